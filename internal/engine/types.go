// Package engine composes generation, compilation, simulation and
// validation into a bounded retry loop per node, and fans that loop out
// across the nodes of a system request.
package engine

import (
	"context"
	"time"

	"firmforge/internal/board"
	"firmforge/internal/compiler"
	"firmforge/internal/emulator"
	"firmforge/internal/feedback"
	"firmforge/internal/spec"
	"firmforge/internal/validator"
)

// Stage identifies one phase of an iteration for progress reporting.
type Stage string

const (
	StageGenerate Stage = "generate"
	StageCompile  Stage = "compile"
	StageSimulate Stage = "simulate"
	StageValidate Stage = "validate"
)

// Status is the start/finish marker of a stage transition.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// TerminalState is how a node's loop ended.
type TerminalState string

const (
	// StateSuccess: some iteration passed every required assertion.
	StateSuccess TerminalState = "success"
	// StateExhausted: the iteration budget ran out without a success.
	StateExhausted TerminalState = "exhausted"
	// StateGenerationError: the code generator failed; no retry is spent
	// on provider failures.
	StateGenerationError TerminalState = "generation_error"
	// StateCancelled: the surrounding context was cancelled mid-loop.
	StateCancelled TerminalState = "cancelled"
)

// ProgressEvent is one stage transition of one node's loop. Events for a
// given node are delivered in order; iteration i+1 never starts before
// iteration i finished.
type ProgressEvent struct {
	NodeID    string `json:"node_id"`
	Iteration int    `json:"iteration"`
	Stage     Stage  `json:"stage"`
	Status    Status `json:"status"`
}

// ProgressFunc observes stage transitions. Called synchronously from the
// node's loop goroutine; implementations must not block for long.
type ProgressFunc func(ProgressEvent)

// IterationResult records one full attempt for one node. Simulation is nil
// when compilation failed or violated a constraint; Assertions is nil when
// the firmware never ran to a validating output.
type IterationResult struct {
	Iteration   int                          `json:"iteration"`
	Source      string                       `json:"source,omitempty"`
	Compilation compiler.Outcome             `json:"compilation"`
	Simulation  *emulator.Outcome            `json:"simulation,omitempty"`
	Assertions  []validator.AssertionOutcome `json:"assertions,omitempty"`
	Success     bool                         `json:"success"`
}

// NodeResult is the complete history of one node's loop: at most
// MaxIterations entries, in attempt order, and nothing after the first
// success.
type NodeResult struct {
	NodeID     string            `json:"node_id"`
	State      TerminalState     `json:"state"`
	Iterations []IterationResult `json:"iterations"`
	Err        string            `json:"error,omitempty"`
}

// Succeeded reports whether the node reached firmware that passed
// validation.
func (n NodeResult) Succeeded() bool { return n.State == StateSuccess }

// RunResult aggregates every node of one request.
type RunResult struct {
	RunID    string        `json:"run_id"`
	BoardID  string        `json:"board_id"`
	Nodes    []NodeResult  `json:"nodes"`
	Duration time.Duration `json:"duration"`
}

// AllSucceeded reports whether every node reached a successful iteration.
func (r RunResult) AllSucceeded() bool {
	for _, n := range r.Nodes {
		if !n.Succeeded() {
			return false
		}
	}
	return len(r.Nodes) > 0
}

// Generator produces firmware source for a node, optionally steered by
// feedback from the previous failed attempt.
type Generator interface {
	Generate(ctx context.Context, node spec.NodeSpec, b board.Config, fb feedback.Context) (string, error)
}

// Compiler builds source for a board inside the given working directory.
type Compiler interface {
	Compile(ctx context.Context, source string, b board.Config, workDir string) (compiler.Outcome, error)
}

// Runner executes a compiled binary; see emulator.Runner.
type Runner = emulator.Runner
