// Package command is the lowest-level execution layer: it runs the
// cross-compiler and emulator as black-box subprocesses and returns a
// structured result the engine can reason about. Working directories are
// scoped-acquired and released on every exit path.
package command

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Command specifies one subprocess invocation.
type Command struct {
	// Binary is the executable to run (e.g. "arm-none-eabi-gcc").
	Binary string `json:"binary"`

	// Arguments are the command-line arguments.
	Arguments []string `json:"arguments"`

	// WorkingDirectory is the directory to execute in.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment variables to set (KEY=VALUE), merged with the executor's
	// allowed environment.
	Environment []string `json:"environment,omitempty"`

	// Stdin provides input to the command's standard input.
	Stdin string `json:"stdin,omitempty"`

	// Timeout is the wall-clock limit. Zero means the executor default.
	Timeout time.Duration `json:"timeout,omitempty"`

	// RequestID uniquely identifies this invocation for log correlation.
	RequestID string `json:"request_id,omitempty"`
}

// String returns the full command line for display and logging.
func (c Command) String() string {
	out := c.Binary
	for _, arg := range c.Arguments {
		out += " " + arg
	}
	return out
}

// Result is the structured output of one subprocess run.
type Result struct {
	// ExitCode is the command's exit code (-1 if it never ran or was killed).
	ExitCode int `json:"exit_code"`

	// Stdout and Stderr are captured verbatim, subject to MaxOutputBytes.
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// TimedOut reports that the wall-clock limit expired and the process was
	// forcibly terminated.
	TimedOut bool `json:"timed_out"`

	// Cancelled reports that the caller's context was cancelled. Distinct
	// from TimedOut so the engine can tell "ran past timeout" apart from a
	// caller-initiated stop.
	Cancelled bool `json:"cancelled"`

	// Truncated reports that output capture hit the size limit.
	Truncated bool `json:"truncated"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Crashed reports a run that completed but exited non-zero, excluding
// timeout and cancellation kills.
func (r *Result) Crashed() bool {
	return !r.TimedOut && !r.Cancelled && r.ExitCode != 0
}

// Workdir is a scoped temporary directory. Release is safe to call more than
// once and on every exit path.
type Workdir struct {
	Path     string
	released bool
}

// NewWorkdir creates a namespaced temporary directory under root (or the
// system temp dir when root is empty).
func NewWorkdir(root, name string) (*Workdir, error) {
	if root == "" {
		dir, err := os.MkdirTemp("", "firmforge_"+name+"_")
		if err != nil {
			return nil, fmt.Errorf("failed to create workdir: %w", err)
		}
		return &Workdir{Path: dir}, nil
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create workdir: %w", err)
	}
	return &Workdir{Path: dir}, nil
}

// Release removes the directory and all artifacts in it.
func (w *Workdir) Release() {
	if w == nil || w.released {
		return
	}
	w.released = true
	_ = os.RemoveAll(w.Path)
}
