// Package emulator runs compiled firmware under QEMU and captures its
// semihosting output. QEMU writes semihosting text to stderr, so program
// output is read from there, not stdout.
package emulator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"firmforge/internal/board"
	"firmforge/internal/command"
)

// DefaultTimeout bounds a simulation that never halts. Firmware under test
// is expected to finish its assertion output well inside this window.
const DefaultTimeout = 5 * time.Second

// Outcome is the result of one simulation run. TimedOut and Crashed are
// mutually exclusive; a timed-out run is a failure regardless of what it
// printed before the deadline.
type Outcome struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	TimedOut bool          `json:"timed_out"`
	Crashed  bool          `json:"crashed"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Runner executes a firmware binary for a board. Remote reports whether the
// runner goes through a quota-limited external service; the scheduler
// serializes those.
type Runner interface {
	Run(ctx context.Context, binaryPath string, b board.Config, timeout time.Duration) (Outcome, error)
	Remote() bool
}

// QEMURunner runs firmware under qemu-system-* with semihosting enabled.
type QEMURunner struct {
	exec   command.Executor
	logger *zap.Logger
}

// NewQEMURunner creates a local QEMU-backed runner.
func NewQEMURunner(exec command.Executor, logger *zap.Logger) *QEMURunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QEMURunner{exec: exec, logger: logger}
}

// Remote implements Runner. QEMU runs on the local machine.
func (r *QEMURunner) Remote() bool { return false }

// Run boots the binary on the board's QEMU machine. An error return means
// QEMU could not be started at all; everything the guest did, including
// hanging until the deadline, is reported through the Outcome.
func (r *QEMURunner) Run(ctx context.Context, binaryPath string, b board.Config, timeout time.Duration) (Outcome, error) {
	if !b.SupportsLocalEmulation() {
		return Outcome{}, fmt.Errorf("board %s has no local emulator", b.ID)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	args := []string{
		"-machine", b.QEMUMachine,
		"-nographic",
		"-semihosting-config", "enable=on,target=native",
		"-kernel", binaryPath,
	}
	if b.QEMUCPU != "" {
		args = append(args, "-cpu", b.QEMUCPU)
	}

	res, err := r.exec.Execute(ctx, command.Command{
		Binary:    "qemu-system-" + qemuSystem(b.Arch),
		Arguments: args,
		Timeout:   timeout,
		RequestID: uuid.NewString(),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("emulator invocation failed: %w", err)
	}
	if res.Cancelled {
		return Outcome{}, ctx.Err()
	}

	out := Outcome{
		Output:   res.Stderr,
		TimedOut: res.TimedOut,
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}
	switch {
	case res.TimedOut:
		// The guest never halted. Whatever it printed is kept for
		// diagnostics but the run does not count as a success.
	case res.Crashed():
		out.Crashed = true
	default:
		out.Success = true
	}

	r.logger.Debug("simulation finished",
		zap.String("board", b.ID),
		zap.Bool("success", out.Success),
		zap.Bool("timed_out", out.TimedOut),
		zap.Bool("crashed", out.Crashed),
		zap.Duration("duration", out.Duration))

	return out, nil
}

// qemuSystem maps a board architecture to the qemu-system binary suffix.
func qemuSystem(arch board.Architecture) string {
	switch arch {
	case board.ArchAVR:
		return "avr"
	case board.ArchXtensaLX6:
		return "xtensa"
	case board.ArchRISCV32:
		return "riscv32"
	default:
		return "arm"
	}
}
