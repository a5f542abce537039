package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"firmforge/internal/board"
	"firmforge/internal/feedback"
	"firmforge/internal/spec"
)

// fakeClient records prompts and replays canned completions.
type fakeClient struct {
	lastSystem string
	lastUser   string
	reply      string
	err        error
}

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	return f.CompleteWithSystem(ctx, "", prompt)
}

func (f *fakeClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	return f.reply, f.err
}

func testNode() spec.NodeSpec {
	return spec.NodeSpec{
		NodeID:      "temp_sensor",
		Description: "print temperature readings",
		Assertions: []spec.TestAssertion{
			{Name: "reports_temp", Pattern: "temp=", Required: true},
		},
	}
}

func testBoard(fpu bool) board.Config {
	return board.Config{
		ID:         "lm3s6965",
		Name:       "LM3S6965",
		Arch:       board.ArchCortexM3,
		FlashLimit: 256 * 1024,
		RAMLimit:   64 * 1024,
		HasFPU:     fpu,
	}
}

func TestGenerate_PromptContents(t *testing.T) {
	client := &fakeClient{reply: "int main(void) { return 0; }"}
	gen := New(client, nil)

	src, err := gen.Generate(context.Background(), testNode(), testBoard(false), feedback.None())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if src != "int main(void) { return 0; }" {
		t.Errorf("unexpected source: %q", src)
	}

	for _, want := range []string{"262144", "65536", "no standard library", "no heap"} {
		if !strings.Contains(client.lastSystem, want) {
			t.Errorf("system prompt missing %q:\n%s", want, client.lastSystem)
		}
	}
	if !strings.Contains(client.lastSystem, "fixed-point") {
		t.Error("non-FPU board must demand fixed-point arithmetic")
	}
	if !strings.Contains(client.lastUser, "print temperature readings") {
		t.Error("user prompt must embed the node description")
	}
	if !strings.Contains(client.lastUser, `"temp="`) {
		t.Error("user prompt must list assertion patterns")
	}
	if strings.Contains(client.lastUser, "PREVIOUS ATTEMPT FAILED") {
		t.Error("first call must not carry feedback")
	}
}

func TestGenerate_FPUBoardSkipsFixedPoint(t *testing.T) {
	client := &fakeClient{reply: "int main(void) {}"}
	gen := New(client, nil)

	if _, err := gen.Generate(context.Background(), testNode(), testBoard(true), feedback.None()); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if strings.Contains(client.lastSystem, "fixed-point") {
		t.Error("FPU board must not demand fixed-point arithmetic")
	}
}

func TestGenerate_FeedbackEmbeddedVerbatim(t *testing.T) {
	client := &fakeClient{reply: "int main(void) {}"}
	gen := New(client, nil)

	fb := feedback.CompileFailure("main.c:7: error: unknown type name 'flot'", "")
	if _, err := gen.Generate(context.Background(), testNode(), testBoard(false), fb); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !strings.Contains(client.lastUser, "unknown type name 'flot'") {
		t.Errorf("feedback must be embedded verbatim:\n%s", client.lastUser)
	}
	if !strings.Contains(client.lastUser, "PREVIOUS ATTEMPT FAILED") {
		t.Error("retry prompt must flag the prior failure")
	}
}

func TestGenerate_APIFailureIsGenerationError(t *testing.T) {
	client := &fakeClient{err: errors.New("connection refused")}
	gen := New(client, nil)

	_, err := gen.Generate(context.Background(), testNode(), testBoard(false), feedback.None())
	if err == nil {
		t.Fatal("expected error")
	}
	var genErr *GenerationError
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationError, got %T", err)
	}
	if genErr.NodeID != "temp_sensor" {
		t.Errorf("expected node id in error, got %s", genErr.NodeID)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fences", "int main(void) {}", "int main(void) {}"},
		{"plain fences", "```\nint x;\n```", "int x;"},
		{"language fences", "Here you go:\n```c\nint x;\n```\nEnjoy.", "int x;"},
		{"multiple blocks", "```c\nint x;\n```\ntext\n```c\nint y;\n```", "int x;\nint y;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
