// Package compiler invokes the board's cross-compiler on generated source
// and checks the linked binary against the board's memory limits. A binary
// that links but exceeds flash or RAM is a compile-stage failure: constraint
// violations must never reach the simulation stage.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firmforge/internal/board"
	"firmforge/internal/command"
)

// ConstraintViolation is one memory limit excess, numeric so the feedback
// loop can report exact limit/actual pairs.
type ConstraintViolation struct {
	Resource string `json:"resource"` // "flash" or "ram"
	Limit    int64  `json:"limit"`
	Actual   int64  `json:"actual"`
}

func (v ConstraintViolation) String() string {
	pct := float64(v.Actual) / float64(v.Limit) * 100
	return fmt.Sprintf("%s overflow: %d B / %d B (%.0f%%)", v.Resource, v.Actual, v.Limit, pct)
}

// Memory holds the linker section sizes and the derived usage figures.
// flash = text+data (the load image), ram = data+bss (the runtime image).
type Memory struct {
	Text       int64 `json:"text"`
	Data       int64 `json:"data"`
	BSS        int64 `json:"bss"`
	FlashUsage int64 `json:"flash_usage"`
	RAMUsage   int64 `json:"ram_usage"`
}

// Outcome is the result of one compile attempt. Success is true only when
// the compiler succeeded AND the binary fits the board's limits.
type Outcome struct {
	Success    bool                  `json:"success"`
	BinaryPath string                `json:"binary_path,omitempty"`
	Errors     string                `json:"errors,omitempty"`
	Warnings   string                `json:"warnings,omitempty"`
	Memory     Memory                `json:"memory"`
	Violations []ConstraintViolation `json:"constraint_violations,omitempty"`
}

// CompilerFailed reports whether the cross-compiler itself failed, as
// opposed to a constraint violation on an otherwise clean build.
func (o Outcome) CompilerFailed() bool {
	return o.Errors != ""
}

// Compiler drives the cross-toolchain. Deterministic given identical inputs;
// performs no retries.
type Compiler struct {
	exec   command.Executor
	logger *zap.Logger
}

// New creates a compiler over the given executor.
func New(exec command.Executor, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{exec: exec, logger: logger}
}

// Compile writes source into workDir, links it with a board-sized linker
// script, and measures the result. An error return means the toolchain
// infrastructure failed (missing compiler, unwritable workdir); every
// diagnostic the compiler produced lands verbatim in the Outcome.
func (c *Compiler) Compile(ctx context.Context, source string, b board.Config, workDir string) (Outcome, error) {
	srcPath := filepath.Join(workDir, "firmware.c")
	elfPath := filepath.Join(workDir, "firmware.elf")
	ldPath := filepath.Join(workDir, "firmware.ld")

	if err := os.WriteFile(srcPath, []byte(source), 0o644); err != nil {
		return Outcome{}, fmt.Errorf("failed to write source: %w", err)
	}
	if err := os.WriteFile(ldPath, []byte(LinkerScript(b)), 0o644); err != nil {
		return Outcome{}, fmt.Errorf("failed to write linker script: %w", err)
	}

	args := append([]string{}, b.CompilerFlags...)
	args = append(args,
		"-nostartfiles",
		"-T"+ldPath,
		"-o", elfPath,
		srcPath,
	)

	reqID := uuid.NewString()
	res, err := c.exec.Execute(ctx, command.Command{
		Binary:           b.Compiler,
		Arguments:        args,
		WorkingDirectory: workDir,
		RequestID:        reqID,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("compiler invocation failed: %w", err)
	}
	if res.Cancelled {
		return Outcome{}, ctx.Err()
	}
	if res.TimedOut {
		c.logger.Debug("compile timed out",
			zap.String("board", b.ID),
			zap.Duration("duration", res.Duration))
		return Outcome{Success: false, Errors: fmt.Sprintf("compiler timed out after %s", res.Duration.Round(time.Millisecond))}, nil
	}

	if res.ExitCode != 0 {
		errs := res.Stderr
		if errs == "" {
			// A killed or OOMed toolchain can exit non-zero with nothing
			// on stderr; the feedback loop still needs a diagnostic.
			errs = fmt.Sprintf("compiler exited with status %d and produced no diagnostics", res.ExitCode)
		}
		c.logger.Debug("compile failed",
			zap.String("board", b.ID),
			zap.Int("exit_code", res.ExitCode))
		return Outcome{Success: false, Errors: errs}, nil
	}

	outcome := Outcome{
		BinaryPath: elfPath,
		Warnings:   res.Stderr,
	}

	mem, err := c.measure(ctx, elfPath, b, workDir)
	if err != nil {
		return Outcome{}, err
	}
	outcome.Memory = mem
	outcome.Violations = checkConstraints(mem, b)
	outcome.Success = len(outcome.Violations) == 0

	c.logger.Debug("compile finished",
		zap.String("board", b.ID),
		zap.Bool("success", outcome.Success),
		zap.Int64("flash_usage", mem.FlashUsage),
		zap.Int64("ram_usage", mem.RAMUsage),
		zap.Int("violations", len(outcome.Violations)))

	return outcome, nil
}

// measure runs the size tool and derives flash/RAM usage.
func (c *Compiler) measure(ctx context.Context, elfPath string, b board.Config, workDir string) (Memory, error) {
	res, err := c.exec.Execute(ctx, command.Command{
		Binary:           b.SizeBinary(),
		Arguments:        []string{"-A", elfPath},
		WorkingDirectory: workDir,
		RequestID:        uuid.NewString(),
	})
	if err != nil {
		return Memory{}, fmt.Errorf("size tool invocation failed: %w", err)
	}
	if res.Cancelled {
		return Memory{}, ctx.Err()
	}
	if res.ExitCode != 0 {
		return Memory{}, fmt.Errorf("size tool failed: %s", res.Stderr)
	}
	return ParseSizeReport(res.Stdout), nil
}

// checkConstraints compares usage against the board's declared limits.
func checkConstraints(m Memory, b board.Config) []ConstraintViolation {
	var out []ConstraintViolation
	if m.FlashUsage > b.FlashLimit {
		out = append(out, ConstraintViolation{Resource: "flash", Limit: b.FlashLimit, Actual: m.FlashUsage})
	}
	if m.RAMUsage > b.RAMLimit {
		out = append(out, ConstraintViolation{Resource: "ram", Limit: b.RAMLimit, Actual: m.RAMUsage})
	}
	return out
}
