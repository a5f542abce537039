package generator

import (
	"fmt"
	"strings"

	"firmforge/internal/board"
	"firmforge/internal/feedback"
	"firmforge/internal/spec"
)

// buildSystemPrompt states the bare-metal ground rules for the target board.
func buildSystemPrompt(b board.Config) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `You are an embedded systems expert generating bare-metal C firmware.

Target: %s (%s)
Flash limit: %d bytes
RAM limit: %d bytes

The code must:
- Be self-contained, freestanding C: no standard library, no heap allocation
- Print output through the semihosting channel (a putchar-style routine you define)
- Fit within the flash and RAM limits above
- Terminate its output promptly; do not block forever before printing
`, b.Name, b.Arch, b.FlashLimit, b.RAMLimit)

	if !b.HasFPU {
		sb.WriteString("- Use fixed-point arithmetic only: this board has no FPU, floating point is forbidden\n")
	}

	sb.WriteString("\nOutput ONLY valid C code, no markdown fences or explanation.")
	return sb.String()
}

// buildUserPrompt combines the node description, the output the tests expect,
// and any prior-failure feedback rendered verbatim.
func buildUserPrompt(node spec.NodeSpec, b board.Config, fb feedback.Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate firmware for: %s\n\nNode ID: %s\n", node.Description, node.NodeID)

	if len(node.Assertions) > 0 {
		sb.WriteString("\nRequired output patterns (the test harness searches for these in the program output):\n")
		for _, a := range node.Assertions {
			fmt.Fprintf(&sb, "  - %q", a.Pattern)
			if !a.Required {
				sb.WriteString(" (optional)")
			}
			sb.WriteString("\n")
		}
	}

	if !fb.IsNone() {
		sb.WriteString("\nPREVIOUS ATTEMPT FAILED:\n")
		sb.WriteString(fb.Render())
		sb.WriteString("\n\nFix all issues and regenerate the complete program.")
	}

	return sb.String()
}
