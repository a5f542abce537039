package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"firmforge/internal/board"
	"firmforge/internal/compiler"
	"firmforge/internal/emulator"
	"firmforge/internal/feedback"
	"firmforge/internal/generator"
	"firmforge/internal/spec"
)

// scriptedGen hands out one source per call and records the feedback each
// call received.
type scriptedGen struct {
	sources  []string
	errs     []error
	calls    int
	feedback []feedback.Context
}

func (g *scriptedGen) Generate(_ context.Context, _ spec.NodeSpec, _ board.Config, fb feedback.Context) (string, error) {
	i := g.calls
	g.calls++
	g.feedback = append(g.feedback, fb)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.sources) {
		return g.sources[i], nil
	}
	return fmt.Sprintf("// attempt %d", i), nil
}

// mapComp maps source text to a canned compile outcome.
type mapComp struct {
	outcomes map[string]compiler.Outcome
}

func (c *mapComp) Compile(_ context.Context, source string, _ board.Config, _ string) (compiler.Outcome, error) {
	if out, ok := c.outcomes[source]; ok {
		return out, nil
	}
	return compiler.Outcome{Success: true, BinaryPath: "/fake/fw.elf"}, nil
}

// scriptedRunner replays simulation outcomes in order, repeating the last.
type scriptedRunner struct {
	outcomes []emulator.Outcome
	calls    int
	remote   bool
}

func (r *scriptedRunner) Run(_ context.Context, _ string, _ board.Config, _ time.Duration) (emulator.Outcome, error) {
	i := r.calls
	r.calls++
	if i >= len(r.outcomes) {
		i = len(r.outcomes) - 1
	}
	if i < 0 {
		return emulator.Outcome{Success: true}, nil
	}
	return r.outcomes[i], nil
}

func (r *scriptedRunner) Remote() bool { return r.remote }

func testNode(patterns ...string) spec.NodeSpec {
	n := spec.NodeSpec{NodeID: "sensor-1", Description: "emit a temperature reading"}
	for _, p := range patterns {
		n.Assertions = append(n.Assertions, spec.TestAssertion{Name: p, Pattern: p, Required: true})
	}
	return n
}

func lm3s(t *testing.T) board.Config {
	t.Helper()
	b, err := board.Builtin().Get("lm3s6965")
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Scenario A: deterministic generator whose firmware prints the expected
// pattern succeeds on the first attempt with exactly one result.
func TestControllerFirstAttemptSuccess(t *testing.T) {
	gen := &scriptedGen{sources: []string{"// v1"}}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{{Success: true, Output: "temp=25\n"}}}
	ctrl := NewController(gen, &mapComp{}, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
	require.Len(t, res.Iterations, 1)
	require.True(t, res.Iterations[0].Success)
	require.Equal(t, 1, gen.calls, "no generation after success")
}

// Scenario B: a constraint violation on attempt one must arrive verbatim in
// attempt two's feedback.
func TestControllerConstraintFeedbackPropagates(t *testing.T) {
	gen := &scriptedGen{sources: []string{"// fat", "// slim"}}
	comp := &mapComp{outcomes: map[string]compiler.Outcome{
		"// fat": {
			Success: false,
			Memory:  compiler.Memory{RAMUsage: 70000},
			Violations: []compiler.ConstraintViolation{
				{Resource: "ram", Limit: 65536, Actual: 70000},
			},
		},
	}}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{{Success: true, Output: "temp=25\n"}}}
	ctrl := NewController(gen, comp, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
	require.Len(t, res.Iterations, 2)
	require.False(t, res.Iterations[0].Success)
	require.Nil(t, res.Iterations[0].Simulation, "constraint violation must not reach simulation")

	require.Len(t, gen.feedback, 2)
	require.True(t, gen.feedback[0].IsNone())
	fb := gen.feedback[1]
	require.Equal(t, feedback.KindConstraintViolation, fb.Kind)
	require.Equal(t, []feedback.LimitViolation{{Resource: "ram", Limit: 65536, Actual: 70000}}, fb.Violations)
}

// Scenario C: firmware that never halts times out on every attempt; the
// budget is exhausted and the final result keeps timed_out.
func TestControllerExhaustedOnRepeatedTimeout(t *testing.T) {
	gen := &scriptedGen{}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{{TimedOut: true, Output: "stuck"}}}
	ctrl := NewController(gen, &mapComp{}, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateExhausted, res.State)
	require.Len(t, res.Iterations, 3)
	last := res.Iterations[2]
	require.NotNil(t, last.Simulation)
	require.True(t, last.Simulation.TimedOut)
	require.Equal(t, feedback.KindSimulationTimeout, gen.feedback[1].Kind)
	require.Equal(t, feedback.KindSimulationTimeout, gen.feedback[2].Kind)
}

// Scenario D: a generator failure ends the node immediately; compile and
// simulate never run and no retry is spent.
func TestControllerGenerationErrorIsFatal(t *testing.T) {
	gen := &scriptedGen{errs: []error{
		&generator.GenerationError{NodeID: "sensor-1", Err: errors.New("provider unavailable")},
	}}
	runner := &scriptedRunner{}
	ctrl := NewController(gen, &mapComp{}, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateGenerationError, res.State)
	require.Empty(t, res.Iterations)
	require.Contains(t, res.Err, "provider unavailable")
	require.Equal(t, 1, gen.calls)
	require.Equal(t, 0, runner.calls, "simulation must not run")
}

func TestControllerCompileFailureFeedback(t *testing.T) {
	diag := "firmware.c:1: error: unknown type name 'in'"
	gen := &scriptedGen{sources: []string{"in main;", "// fixed"}}
	comp := &mapComp{outcomes: map[string]compiler.Outcome{
		"in main;": {Success: false, Errors: diag},
	}}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{{Success: true, Output: "temp=25"}}}
	ctrl := NewController(gen, comp, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
	require.Equal(t, feedback.KindCompileFailure, gen.feedback[1].Kind)
	require.Equal(t, diag, gen.feedback[1].Errors, "diagnostics must be verbatim")
}

// A failed compile with neither diagnostics nor violations (toolchain
// killed, OOM) must feed back as a compile failure, never as an empty
// constraint report.
func TestControllerOpaqueCompileFailureFeedback(t *testing.T) {
	gen := &scriptedGen{sources: []string{"// killed", "// fine"}}
	comp := &mapComp{outcomes: map[string]compiler.Outcome{
		"// killed": {Success: false},
	}}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{{Success: true, Output: "temp=25"}}}
	ctrl := NewController(gen, comp, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
	require.Len(t, gen.feedback, 2)

	fb := gen.feedback[1]
	require.Equal(t, feedback.KindCompileFailure, fb.Kind)
	require.Empty(t, fb.Violations)
	require.NotContains(t, fb.Render(), "memory limits")
}

func TestControllerAssertionFeedbackCarriesOutput(t *testing.T) {
	gen := &scriptedGen{}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{
		{Success: true, Output: "humidity=40\n"},
		{Success: true, Output: "temp=25\n"},
	}}
	ctrl := NewController(gen, &mapComp{}, runner, ControllerConfig{MaxIterations: 3}, nil)

	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)
	require.Len(t, res.Iterations, 2)

	fb := gen.feedback[1]
	require.Equal(t, feedback.KindAssertionFailures, fb.Kind)
	require.Len(t, fb.Failures, 1)
	require.Equal(t, "temp=", fb.Failures[0].Pattern)
	require.Equal(t, "humidity=40\n", fb.Failures[0].ActualOutput)
}

func TestControllerAtMostNIterations(t *testing.T) {
	for _, n := range []int{1, 2, 5} {
		gen := &scriptedGen{}
		runner := &scriptedRunner{outcomes: []emulator.Outcome{{Crashed: true, ExitCode: 1}}}
		ctrl := NewController(gen, &mapComp{}, runner, ControllerConfig{MaxIterations: n}, nil)

		res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), nil)
		require.NoError(t, err)
		require.Equal(t, StateExhausted, res.State)
		require.Len(t, res.Iterations, n)
	}
}

func TestControllerProgressOrdering(t *testing.T) {
	gen := &scriptedGen{}
	runner := &scriptedRunner{outcomes: []emulator.Outcome{
		{Crashed: true, ExitCode: 1},
		{Success: true, Output: "temp=25"},
	}}
	ctrl := NewController(gen, &mapComp{}, runner, ControllerConfig{MaxIterations: 3}, nil)

	var events []ProgressEvent
	res, err := ctrl.Run(context.Background(), testNode("temp="), lm3s(t), t.TempDir(), func(ev ProgressEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Equal(t, StateSuccess, res.State)

	// Iterations must be monotone: no event of iteration i+1 before the
	// last event of iteration i.
	lastIter := 0
	for _, ev := range events {
		require.GreaterOrEqual(t, ev.Iteration, lastIter)
		lastIter = ev.Iteration
	}
	// Iteration 1 ends with a simulate failure, iteration 2 with a
	// validate success.
	require.Equal(t, ProgressEvent{NodeID: "sensor-1", Iteration: 1, Stage: StageSimulate, Status: StatusFailed}, events[5])
	last := events[len(events)-1]
	require.Equal(t, ProgressEvent{NodeID: "sensor-1", Iteration: 2, Stage: StageValidate, Status: StatusSucceeded}, last)
}

func TestControllerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &scriptedGen{}
	ctrl := NewController(gen, &mapComp{}, &scriptedRunner{}, ControllerConfig{MaxIterations: 3}, nil)
	res, err := ctrl.Run(ctx, testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, res.State)
	require.Empty(t, res.Iterations)
	require.Equal(t, 0, gen.calls)
}

// interruptedGen behaves like the real generator over an LLM call that is
// interrupted mid-flight: the caller's context ends and the client error
// comes back wrapped in a GenerationError.
type interruptedGen struct {
	cancel context.CancelFunc
}

func (g interruptedGen) Generate(ctx context.Context, node spec.NodeSpec, _ board.Config, _ feedback.Context) (string, error) {
	g.cancel()
	return "", &generator.GenerationError{NodeID: node.NodeID, Err: ctx.Err()}
}

// Caller-initiated cancellation during the generating stage is a cancelled
// terminal state, not a provider failure.
func TestControllerCancelledDuringGeneration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl := NewController(interruptedGen{cancel: cancel}, &mapComp{}, &scriptedRunner{}, ControllerConfig{MaxIterations: 3}, nil)
	res, err := ctrl.Run(ctx, testNode("temp="), lm3s(t), t.TempDir(), nil)
	require.NoError(t, err)
	require.Equal(t, StateCancelled, res.State)
	require.Empty(t, res.Iterations)
}
