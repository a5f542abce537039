package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ExecutorConfig tunes the direct executor.
type ExecutorConfig struct {
	// DefaultTimeout is used when Command.Timeout is zero.
	DefaultTimeout time.Duration

	// MaxOutputBytes caps captured stdout/stderr (each).
	MaxOutputBytes int64

	// AllowedEnvironment lists environment variables passed through to the
	// subprocess. Command.Environment entries are appended afterwards.
	AllowedEnvironment []string
}

// DefaultExecutorConfig returns sensible defaults for toolchain subprocesses.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		DefaultTimeout:     2 * time.Minute,
		MaxOutputBytes:     10 * 1024 * 1024,
		AllowedEnvironment: []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TMPDIR"},
	}
}

// Executor runs commands and returns structured results.
type Executor interface {
	Execute(ctx context.Context, cmd Command) (*Result, error)
}

// DirectExecutor executes commands on the host with os/exec.
type DirectExecutor struct {
	config ExecutorConfig
	logger *zap.Logger
}

// NewDirectExecutor creates an executor with the given config. A nil logger
// is replaced with a no-op logger.
func NewDirectExecutor(config ExecutorConfig, logger *zap.Logger) *DirectExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectExecutor{config: config, logger: logger}
}

// Execute runs cmd, enforcing the timeout and output caps. The returned error
// is reserved for infrastructure failures (missing binary, unusable working
// directory); a non-zero exit, timeout, or cancellation is reported through
// the Result.
func (e *DirectExecutor) Execute(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, fmt.Errorf("binary is required")
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = e.config.DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	proc := exec.CommandContext(execCtx, cmd.Binary, cmd.Arguments...)
	proc.Dir = cmd.WorkingDirectory
	proc.Env = e.buildEnvironment(cmd.Environment)
	if cmd.Stdin != "" {
		proc.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdout := &limitedWriter{w: &stdoutBuf, max: e.config.MaxOutputBytes}
	stderr := &limitedWriter{w: &stderrBuf, max: e.config.MaxOutputBytes}
	proc.Stdout = stdout
	proc.Stderr = stderr

	e.logger.Debug("executing command",
		zap.String("request_id", cmd.RequestID),
		zap.String("cmd", cmd.String()),
		zap.Duration("timeout", timeout))

	result := &Result{ExitCode: -1, StartedAt: time.Now()}
	err := proc.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)
	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Truncated = stdout.truncated || stderr.truncated

	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.TimedOut = true
		e.logger.Debug("command killed on timeout",
			zap.String("request_id", cmd.RequestID),
			zap.String("binary", cmd.Binary),
			zap.Duration("timeout", timeout))
	case errors.Is(execCtx.Err(), context.Canceled):
		result.Cancelled = true
		e.logger.Debug("command cancelled",
			zap.String("request_id", cmd.RequestID),
			zap.String("binary", cmd.Binary))
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// The process never started: missing binary, bad workdir.
			return nil, fmt.Errorf("failed to run %s: %w", cmd.Binary, err)
		}
	}

	e.logger.Debug("command completed",
		zap.String("request_id", cmd.RequestID),
		zap.Int("exit_code", result.ExitCode),
		zap.Bool("timed_out", result.TimedOut),
		zap.Duration("duration", result.Duration))

	return result, nil
}

// buildEnvironment combines the allowlisted host environment with
// command-specific variables.
func (e *DirectExecutor) buildEnvironment(cmdEnv []string) []string {
	env := make([]string, 0, len(e.config.AllowedEnvironment)+len(cmdEnv))
	for _, key := range e.config.AllowedEnvironment {
		if val := os.Getenv(key); val != "" {
			env = append(env, key+"="+val)
		}
	}
	return append(env, cmdEnv...)
}

// limitedWriter caps total bytes written, discarding the excess while
// pretending the write succeeded so the subprocess never sees EPIPE.
type limitedWriter struct {
	w         io.Writer
	max       int64
	written   int64
	truncated bool
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	if lw.written >= lw.max {
		lw.truncated = true
		return n, nil
	}
	if remaining := lw.max - lw.written; int64(n) > remaining {
		lw.truncated = true
		written, err := lw.w.Write(p[:remaining])
		lw.written += int64(written)
		return n, err
	}
	written, err := lw.w.Write(p)
	lw.written += int64(written)
	return written, err
}
