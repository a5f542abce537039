// Package validator checks captured firmware output against a node's
// declared assertions. Matching is plain substring containment: emulator
// output is noisy enough that anchored patterns would be brittle, and the
// original descriptions are written against human-readable log lines.
package validator

import (
	"strings"

	"firmforge/internal/spec"
)

// AssertionOutcome pairs one assertion with its verdict against a single
// output capture. ActualOutput is kept on failures only, so a passing
// result list does not repeat the capture per assertion.
type AssertionOutcome struct {
	Assertion    spec.TestAssertion `json:"assertion"`
	Passed       bool               `json:"passed"`
	ActualOutput string             `json:"actual_output,omitempty"`
}

// Validate evaluates every assertion against the captured output. Pure and
// deterministic; outcomes are returned in declaration order and an empty
// assertion list yields an empty (passing) result.
func Validate(assertions []spec.TestAssertion, output string) []AssertionOutcome {
	outcomes := make([]AssertionOutcome, 0, len(assertions))
	for _, a := range assertions {
		o := AssertionOutcome{
			Assertion: a,
			Passed:    strings.Contains(output, a.Pattern),
		}
		if !o.Passed {
			o.ActualOutput = output
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// AllRequiredPassed reports whether every required assertion passed.
// Optional assertions never affect the verdict.
func AllRequiredPassed(outcomes []AssertionOutcome) bool {
	for _, o := range outcomes {
		if o.Assertion.Required && !o.Passed {
			return false
		}
	}
	return true
}

// RequiredFailures returns the required assertions that did not match,
// for feedback construction.
func RequiredFailures(outcomes []AssertionOutcome) []AssertionOutcome {
	var failed []AssertionOutcome
	for _, o := range outcomes {
		if o.Assertion.Required && !o.Passed {
			failed = append(failed, o)
		}
	}
	return failed
}
