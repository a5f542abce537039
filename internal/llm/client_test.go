package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func anthropicServer(t *testing.T, handler http.HandlerFunc) *AnthropicClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewAnthropicClientWithConfig(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	})
}

func TestAnthropicClient_Complete(t *testing.T) {
	client := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.System != "be terse" {
			t.Errorf("expected system prompt, got %q", req.System)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": "int main(void) { return 0; }"},
			},
		})
	})

	out, err := client.CompleteWithSystem(context.Background(), "be terse", "write firmware")
	if err != nil {
		t.Fatalf("CompleteWithSystem failed: %v", err)
	}
	if !strings.Contains(out, "int main") {
		t.Errorf("unexpected completion: %q", out)
	}
}

func TestAnthropicClient_RetriesOn429(t *testing.T) {
	var calls int
	client := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "ok"}},
		})
	})

	out, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if out != "ok" {
		t.Errorf("expected ok, got %q", out)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", calls)
	}
}

func TestAnthropicClient_FatalOnAPIError(t *testing.T) {
	var calls int
	client := anthropicServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request","message":"bad model"}}`))
	})

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error on 400")
	}
	if calls != 1 {
		t.Errorf("400 must not be retried, got %d calls", calls)
	}
}

func TestAnthropicClient_NoAPIKey(t *testing.T) {
	client := NewAnthropicClient("")
	if _, err := client.Complete(context.Background(), "p"); err == nil {
		t.Fatal("expected error without API key")
	}
}
