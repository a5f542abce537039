package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firmforge/internal/board"
	"firmforge/internal/command"
	"firmforge/internal/compiler"
	"firmforge/internal/config"
	"firmforge/internal/emulator"
	"firmforge/internal/engine"
	"firmforge/internal/generator"
	"firmforge/internal/llm"
	"firmforge/internal/spec"
)

var specPath string

// runCmd executes a full generation run for a system spec
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate, compile, simulate and validate firmware for every node",
	RunE: func(cmd *cobra.Command, args []string) error {
		sys, err := spec.LoadFile(specPath)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		boards := board.Builtin()
		b, err := boards.Get(sys.BoardID)
		if err != nil {
			return err
		}
		if b.SupportsLocalEmulation() {
			if err := boards.CheckToolchain(b); err != nil {
				return err
			}
		}

		client, err := newLLMClient(ctx, cfg)
		if err != nil {
			return err
		}

		exec := command.NewDirectExecutor(command.ExecutorConfig{
			DefaultTimeout:     cfg.GetExecTimeout(),
			MaxOutputBytes:     cfg.Execution.MaxOutputBytes,
			AllowedEnvironment: cfg.Execution.AllowedEnvVars,
		}, logger)

		sched := engine.NewScheduler(
			boards,
			generator.New(client, logger),
			compiler.New(exec, logger),
			emulator.NewQEMURunner(exec, logger),
			nil,
			engine.SchedulerConfig{
				MaxIterations: cfg.Engine.MaxIterations,
				SimTimeout:    cfg.GetSimTimeout(),
				Concurrency:   cfg.Engine.Concurrency,
				WorkRoot:      cfg.Engine.WorkRoot,
			},
			logger,
		)

		result, err := sched.Run(ctx, *sys, printProgress)
		if err != nil {
			return err
		}

		printResult(result)
		if !result.AllSucceeded() {
			return fmt.Errorf("%d of %d nodes failed", countFailed(result), len(result.Nodes))
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&specPath, "spec", "", "path to the system spec YAML (required)")
	_ = runCmd.MarkFlagRequired("spec")
}

// newLLMClient picks the provider configured in the llm section.
func newLLMClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.LLM.Provider {
	case "gemini":
		return llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return llm.NewAnthropicClientWithConfig(llm.AnthropicConfig{
			APIKey:    cfg.LLM.APIKey,
			BaseURL:   cfg.LLM.BaseURL,
			Model:     cfg.LLM.Model,
			MaxTokens: cfg.LLM.MaxTokens,
			Timeout:   cfg.GetLLMTimeout(),
		}), nil
	}
}

func printProgress(ev engine.ProgressEvent) {
	logger.Debug("progress",
		zap.String("node_id", ev.NodeID),
		zap.Int("iteration", ev.Iteration),
		zap.String("stage", string(ev.Stage)),
		zap.String("status", string(ev.Status)))
}

// printResult writes the per-node per-iteration trail to stdout.
func printResult(r *engine.RunResult) {
	fmt.Printf("run %s on %s (%s)\n", r.RunID, r.BoardID, r.Duration.Round(10*time.Millisecond))
	for _, n := range r.Nodes {
		fmt.Printf("\nnode %s: %s\n", n.NodeID, n.State)
		if n.Err != "" {
			fmt.Printf("  error: %s\n", n.Err)
		}
		for _, it := range n.Iterations {
			fmt.Printf("  iteration %d: %s\n", it.Iteration, iterationSummary(it))
		}
	}
}

func iterationSummary(it engine.IterationResult) string {
	switch {
	case it.Success:
		m := it.Compilation.Memory
		return fmt.Sprintf("ok (flash %d B, ram %d B)", m.FlashUsage, m.RAMUsage)
	case it.Compilation.CompilerFailed():
		return "compile failed: " + firstLine(it.Compilation.Errors)
	case len(it.Compilation.Violations) > 0:
		parts := make([]string, len(it.Compilation.Violations))
		for i, v := range it.Compilation.Violations {
			parts[i] = v.String()
		}
		return strings.Join(parts, "; ")
	case it.Simulation != nil && it.Simulation.TimedOut:
		return "simulation timed out"
	case it.Simulation != nil && it.Simulation.Crashed:
		return fmt.Sprintf("simulation crashed (exit %d)", it.Simulation.ExitCode)
	default:
		failed := 0
		for _, a := range it.Assertions {
			if a.Assertion.Required && !a.Passed {
				failed++
			}
		}
		return fmt.Sprintf("%d assertion(s) failed", failed)
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func countFailed(r *engine.RunResult) int {
	n := 0
	for _, node := range r.Nodes {
		if !node.Succeeded() {
			n++
		}
	}
	return n
}
