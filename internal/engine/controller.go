package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"firmforge/internal/board"
	"firmforge/internal/feedback"
	"firmforge/internal/generator"
	"firmforge/internal/spec"
	"firmforge/internal/validator"
)

// DefaultMaxIterations is the per-node attempt budget.
const DefaultMaxIterations = 3

// ControllerConfig bounds one node's loop.
type ControllerConfig struct {
	MaxIterations int
	SimTimeout    time.Duration
}

// Controller runs the generate→compile→simulate→validate loop for a single
// node until success, budget exhaustion, generator failure, or cancellation.
type Controller struct {
	gen    Generator
	comp   Compiler
	runner Runner
	cfg    ControllerConfig
	logger *zap.Logger
}

// NewController wires the loop's stages together. Zero config fields fall
// back to defaults.
func NewController(gen Generator, comp Compiler, runner Runner, cfg ControllerConfig, logger *zap.Logger) *Controller {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{gen: gen, comp: comp, runner: runner, cfg: cfg, logger: logger}
}

// Run drives the loop for one node inside workDir. The returned error is
// non-nil only for infrastructure failures (unwritable workdir, unstartable
// tools); every domain outcome, including generator failure, lands in the
// NodeResult. The iteration list never exceeds the budget and nothing is
// appended after the first success.
func (c *Controller) Run(ctx context.Context, node spec.NodeSpec, b board.Config, workDir string, progress ProgressFunc) (NodeResult, error) {
	result := NodeResult{NodeID: node.NodeID}
	fb := feedback.None()

	log := c.logger.With(zap.String("node_id", node.NodeID), zap.String("board", b.ID))

	for i := 1; i <= c.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			result.State = StateCancelled
			result.Err = err.Error()
			return result, nil
		}

		iter, fbNext, err := c.iterate(ctx, node, b, workDir, i, fb, progress)
		if err != nil {
			// A cancelled context surfaces through whichever stage was
			// in flight, including as a wrapped generator error; the
			// terminal state is cancelled, not a provider failure.
			if ctx.Err() != nil {
				result.State = StateCancelled
				result.Err = ctx.Err().Error()
				return result, nil
			}
			var genErr *generator.GenerationError
			if errors.As(err, &genErr) {
				// Provider failure is fatal for the node and never
				// consumes a retry.
				log.Warn("generation failed", zap.Int("iteration", i), zap.Error(err))
				result.State = StateGenerationError
				result.Err = err.Error()
				return result, nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result.State = StateCancelled
				result.Err = err.Error()
				return result, nil
			}
			return result, err
		}

		result.Iterations = append(result.Iterations, iter)
		if iter.Success {
			log.Info("node succeeded", zap.Int("iterations", i))
			result.State = StateSuccess
			return result, nil
		}

		log.Info("iteration failed",
			zap.Int("iteration", i),
			zap.String("feedback", string(fbNext.Kind)))
		fb = fbNext
	}

	result.State = StateExhausted
	return result, nil
}

// iterate performs one attempt and, on failure, constructs the feedback for
// the next one.
func (c *Controller) iterate(ctx context.Context, node spec.NodeSpec, b board.Config, workDir string, n int, fb feedback.Context, progress ProgressFunc) (IterationResult, feedback.Context, error) {
	emit := func(stage Stage, status Status) {
		if progress != nil {
			progress(ProgressEvent{NodeID: node.NodeID, Iteration: n, Stage: stage, Status: status})
		}
	}
	iter := IterationResult{Iteration: n}

	// Generate.
	emit(StageGenerate, StatusStarted)
	source, err := c.gen.Generate(ctx, node, b, fb)
	if err != nil {
		emit(StageGenerate, StatusFailed)
		return iter, feedback.None(), err
	}
	iter.Source = source
	emit(StageGenerate, StatusSucceeded)

	// Compile, including the memory constraint check.
	emit(StageCompile, StatusStarted)
	comp, err := c.comp.Compile(ctx, source, b, workDir)
	if err != nil {
		emit(StageCompile, StatusFailed)
		return iter, feedback.None(), err
	}
	iter.Compilation = comp
	if !comp.Success {
		emit(StageCompile, StatusFailed)
		// Constraint feedback only when there are actual violations; any
		// other failed compile is a compiler failure even with empty
		// diagnostics, never an empty constraint report.
		if len(comp.Violations) > 0 {
			violations := make([]feedback.LimitViolation, len(comp.Violations))
			for i, v := range comp.Violations {
				violations[i] = feedback.LimitViolation{Resource: v.Resource, Limit: v.Limit, Actual: v.Actual}
			}
			return iter, feedback.ConstraintViolation(violations), nil
		}
		return iter, feedback.CompileFailure(comp.Errors, comp.Warnings), nil
	}
	emit(StageCompile, StatusSucceeded)

	// Simulate.
	emit(StageSimulate, StatusStarted)
	sim, err := c.runner.Run(ctx, comp.BinaryPath, b, c.cfg.SimTimeout)
	if err != nil {
		emit(StageSimulate, StatusFailed)
		return iter, feedback.None(), err
	}
	iter.Simulation = &sim
	if !sim.Success {
		emit(StageSimulate, StatusFailed)
		if sim.TimedOut {
			return iter, feedback.SimulationTimeout(), nil
		}
		return iter, feedback.SimulationCrash(sim.ExitCode, tail(sim.Output, 500)), nil
	}
	emit(StageSimulate, StatusSucceeded)

	// Validate.
	emit(StageValidate, StatusStarted)
	outcomes := validator.Validate(node.Assertions, sim.Output)
	iter.Assertions = outcomes
	if !validator.AllRequiredPassed(outcomes) {
		emit(StageValidate, StatusFailed)
		failed := validator.RequiredFailures(outcomes)
		failures := make([]feedback.AssertionFailure, len(failed))
		for i, o := range failed {
			failures[i] = feedback.AssertionFailure{
				Name:         o.Assertion.Name,
				Pattern:      o.Assertion.Pattern,
				ActualOutput: o.ActualOutput,
			}
		}
		return iter, feedback.AssertionFailures(failures), nil
	}
	emit(StageValidate, StatusSucceeded)

	iter.Success = true
	return iter, feedback.None(), nil
}

// tail returns the last max bytes of s.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
