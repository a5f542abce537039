// Package generator wraps the LLM call that turns a node description into
// firmware source. Each call is stateless: the prior failure arrives as a
// feedback.Context argument and is embedded verbatim in the prompt.
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"firmforge/internal/board"
	"firmforge/internal/feedback"
	"firmforge/internal/llm"
	"firmforge/internal/spec"
)

// GenerationError marks an LLM API failure. It is fatal for the node: it
// does not consume a retry and is never feedback-looped.
type GenerationError struct {
	NodeID string
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("code generation failed for node %s: %v", e.NodeID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Generator produces firmware source via an LLM client.
type Generator struct {
	client llm.Client
	logger *zap.Logger
}

// New creates a generator. A nil logger is replaced with a no-op logger.
func New(client llm.Client, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{client: client, logger: logger}
}

// Generate performs one LLM call for the node. The first iteration passes
// feedback.None(); retries pass the prior iteration's failure context, which
// is rendered verbatim into the prompt so the model can correct against the
// exact failure observed.
func (g *Generator) Generate(ctx context.Context, node spec.NodeSpec, b board.Config, fb feedback.Context) (string, error) {
	systemPrompt := buildSystemPrompt(b)
	userPrompt := buildUserPrompt(node, b, fb)

	g.logger.Debug("generating firmware",
		zap.String("node_id", node.NodeID),
		zap.String("board", b.ID),
		zap.String("feedback", string(fb.Kind)))

	raw, err := g.client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", &GenerationError{NodeID: node.NodeID, Err: err}
	}

	source := StripFences(raw)
	if strings.TrimSpace(source) == "" {
		return "", &GenerationError{NodeID: node.NodeID, Err: fmt.Errorf("empty completion")}
	}

	g.logger.Debug("firmware generated",
		zap.String("node_id", node.NodeID),
		zap.Int("source_bytes", len(source)))

	return source, nil
}

// StripFences removes markdown code fences from a completion, keeping only
// fenced content when fences are present and the whole text otherwise.
func StripFences(s string) string {
	if !strings.Contains(s, "```") {
		return strings.TrimSpace(s)
	}
	var code []string
	inFence := false
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			code = append(code, line)
		}
	}
	return strings.TrimSpace(strings.Join(code, "\n"))
}
