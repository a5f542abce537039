// Package feedback models the structured description of why the previous
// iteration failed. A Context is produced by one iteration and passed as a
// plain argument into the next generation call; it is never stored as global
// state, which keeps every generation call pure and testable in isolation.
package feedback

import (
	"fmt"
	"strings"
)

// Kind tags the failure variant.
type Kind string

const (
	KindNone                Kind = "none"
	KindCompileFailure      Kind = "compile_failure"
	KindConstraintViolation Kind = "constraint_violation"
	KindSimulationTimeout   Kind = "simulation_timeout"
	KindSimulationCrash     Kind = "simulation_crash"
	KindAssertionFailures   Kind = "assertion_failures"
)

// LimitViolation is one numeric limit/actual pair from the compile stage.
type LimitViolation struct {
	Resource string `json:"resource"` // "flash" or "ram"
	Limit    int64  `json:"limit"`
	Actual   int64  `json:"actual"`
}

// AssertionFailure captures one failed required assertion together with the
// output the pattern was searched in.
type AssertionFailure struct {
	Name         string `json:"name"`
	Pattern      string `json:"pattern"`
	ActualOutput string `json:"actual_output"`
}

// Context is the tagged variant over all failure kinds. Only the fields for
// the active Kind are populated.
type Context struct {
	Kind Kind `json:"kind"`

	// KindCompileFailure
	Errors   string `json:"errors,omitempty"`
	Warnings string `json:"warnings,omitempty"`

	// KindConstraintViolation
	Violations []LimitViolation `json:"violations,omitempty"`

	// KindSimulationCrash
	ExitCode   int    `json:"exit_code,omitempty"`
	ExitDetail string `json:"exit_detail,omitempty"`

	// KindAssertionFailures
	Failures []AssertionFailure `json:"failures,omitempty"`
}

// None is the first-iteration context: no prior failure.
func None() Context { return Context{Kind: KindNone} }

// IsNone reports whether there is no prior failure to feed back.
func (c Context) IsNone() bool { return c.Kind == KindNone || c.Kind == "" }

// CompileFailure builds feedback from verbatim compiler diagnostics.
func CompileFailure(errs, warnings string) Context {
	return Context{Kind: KindCompileFailure, Errors: errs, Warnings: warnings}
}

// ConstraintViolation builds feedback from memory limit excesses.
func ConstraintViolation(violations []LimitViolation) Context {
	return Context{Kind: KindConstraintViolation, Violations: violations}
}

// SimulationTimeout builds feedback for a run that never terminated.
func SimulationTimeout() Context {
	return Context{Kind: KindSimulationTimeout}
}

// SimulationCrash builds feedback from an abnormal emulator exit.
func SimulationCrash(exitCode int, detail string) Context {
	return Context{Kind: KindSimulationCrash, ExitCode: exitCode, ExitDetail: detail}
}

// AssertionFailures builds feedback from the failed required assertions.
func AssertionFailures(failures []AssertionFailure) Context {
	return Context{Kind: KindAssertionFailures, Failures: failures}
}

// Render formats the context as prompt text for the next generation call.
// The wording mirrors what the failing stage observed, verbatim where the
// stage captured raw tool output.
func (c Context) Render() string {
	switch c.Kind {
	case KindCompileFailure:
		var b strings.Builder
		b.WriteString("Compilation failed:\n")
		b.WriteString(c.Errors)
		if c.Warnings != "" {
			b.WriteString("\n\nCompiler warnings:\n")
			b.WriteString(c.Warnings)
		}
		return b.String()

	case KindConstraintViolation:
		var b strings.Builder
		b.WriteString("The binary exceeds the board's memory limits:\n")
		for _, v := range c.Violations {
			pct := float64(v.Actual) / float64(v.Limit) * 100
			fmt.Fprintf(&b, "- %s overflow: %d B used / %d B available (%.0f%%)\n",
				v.Resource, v.Actual, v.Limit, pct)
		}
		b.WriteString("Reduce code size and static data until the binary fits.")
		return b.String()

	case KindSimulationTimeout:
		return "The firmware ran past the simulation timeout without completing its output. " +
			"Make sure the program prints its expected output promptly and does not block forever before printing."

	case KindSimulationCrash:
		msg := fmt.Sprintf("The firmware crashed in the emulator (exit status %d).", c.ExitCode)
		if c.ExitDetail != "" {
			msg += "\n" + c.ExitDetail
		}
		return msg

	case KindAssertionFailures:
		var b strings.Builder
		b.WriteString("Test failures:\n")
		for _, f := range c.Failures {
			fmt.Fprintf(&b, "- assertion %q: expected pattern %q not found in output\n", f.Name, f.Pattern)
		}
		if len(c.Failures) > 0 && c.Failures[0].ActualOutput != "" {
			b.WriteString("\nActual output:\n")
			b.WriteString(truncate(c.Failures[0].ActualOutput, 1000))
		}
		return b.String()

	default:
		return ""
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}
