// Package board holds the static board catalog: memory limits, toolchain
// flags, and emulator identifiers for every target the engine can build for.
// The catalog is immutable and loaded once at process start.
package board

import (
	"fmt"
	"os/exec"
	"sort"
	"strings"
)

// Architecture identifies the CPU family of a board.
type Architecture string

const (
	ArchCortexM0  Architecture = "cortex-m0"
	ArchCortexM3  Architecture = "cortex-m3"
	ArchCortexM4  Architecture = "cortex-m4"
	ArchCortexM4F Architecture = "cortex-m4f"
	ArchCortexM7  Architecture = "cortex-m7"
	ArchAVR       Architecture = "avr"
	ArchXtensaLX6 Architecture = "xtensa-lx6"
	ArchRISCV32   Architecture = "riscv32"
)

// Config describes one target board. All byte limits refer to the linked
// binary, not to runtime allocation.
type Config struct {
	ID         string       `yaml:"id"`
	Name       string       `yaml:"name"`
	Arch       Architecture `yaml:"arch"`
	FlashLimit int64        `yaml:"flash_limit"` // bytes
	RAMLimit   int64        `yaml:"ram_limit"`   // bytes
	ClockMHz   int          `yaml:"clock_mhz"`

	// Toolchain identifiers. SizeTool defaults to Compiler's prefix + "size"
	// when empty (see SizeBinary).
	Compiler      string   `yaml:"compiler"`
	CompilerFlags []string `yaml:"compiler_flags"`
	SizeTool      string   `yaml:"size_tool,omitempty"`

	// Emulator identifiers. Empty QEMUMachine means no local emulation; such
	// boards are backed by a quota-limited remote simulation service and the
	// scheduler serializes them.
	QEMUMachine string `yaml:"qemu_machine,omitempty"`
	QEMUCPU     string `yaml:"qemu_cpu,omitempty"`
	RemoteSim   bool   `yaml:"remote_sim,omitempty"`

	HasFPU bool   `yaml:"has_fpu,omitempty"`
	Notes  string `yaml:"notes,omitempty"`
}

// SizeBinary returns the size tool used to read section sizes from a linked
// ELF, deriving it from the compiler name when not set explicitly
// (arm-none-eabi-gcc -> arm-none-eabi-size).
func (c Config) SizeBinary() string {
	if c.SizeTool != "" {
		return c.SizeTool
	}
	if idx := strings.LastIndex(c.Compiler, "-"); idx >= 0 {
		return c.Compiler[:idx+1] + "size"
	}
	return "size"
}

// SupportsLocalEmulation reports whether the board can run under local QEMU.
func (c Config) SupportsLocalEmulation() bool {
	return c.QEMUMachine != ""
}

// UnknownBoardError is returned by Registry.Get for an id not in the catalog.
type UnknownBoardError struct {
	ID        string
	Available []string
}

func (e *UnknownBoardError) Error() string {
	return fmt.Sprintf("unknown board: %s (available: %s)", e.ID, strings.Join(e.Available, ", "))
}

// Registry is a pure board_id -> Config lookup.
type Registry struct {
	boards map[string]Config
	order  []string
}

// NewRegistry builds a registry from the given configs, preserving order.
func NewRegistry(configs ...Config) *Registry {
	r := &Registry{boards: make(map[string]Config, len(configs))}
	for _, c := range configs {
		if _, dup := r.boards[c.ID]; dup {
			continue
		}
		r.boards[c.ID] = c
		r.order = append(r.order, c.ID)
	}
	return r
}

// Get looks up a board by id. No side effects.
func (r *Registry) Get(id string) (Config, error) {
	c, ok := r.boards[id]
	if !ok {
		return Config{}, &UnknownBoardError{ID: id, Available: r.IDs()}
	}
	return c, nil
}

// IDs returns all board ids in catalog order.
func (r *Registry) IDs() []string {
	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// List returns all board configs in catalog order.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.boards[id])
	}
	return out
}

// ListByArch returns the boards of one architecture, sorted by id.
func (r *Registry) ListByArch(arch Architecture) []Config {
	var out []Config
	for _, c := range r.List() {
		if c.Arch == arch {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Table renders the catalog as a markdown table for CLI display.
func (r *Registry) Table() string {
	var b strings.Builder
	b.WriteString("| ID | Name | Arch | Flash | RAM | Emulation |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	for _, c := range r.List() {
		emu := "qemu"
		if !c.SupportsLocalEmulation() {
			if c.RemoteSim {
				emu = "remote"
			} else {
				emu = "none"
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %dKB | %dKB | %s |\n",
			c.ID, c.Name, c.Arch, c.FlashLimit/1024, c.RAMLimit/1024, emu)
	}
	return b.String()
}

// CheckToolchain verifies the board's cross-compiler is installed, suggesting
// alternatives whose toolchains are present.
func (r *Registry) CheckToolchain(c Config) error {
	if _, err := exec.LookPath(c.Compiler); err == nil {
		return nil
	}
	var alternatives []string
	for _, b := range r.List() {
		if !b.SupportsLocalEmulation() || b.ID == c.ID {
			continue
		}
		if _, err := exec.LookPath(b.Compiler); err == nil {
			alternatives = append(alternatives, b.ID)
		}
	}
	msg := fmt.Sprintf("compiler %q not found for board %q", c.Compiler, c.ID)
	if len(alternatives) > 0 {
		if len(alternatives) > 3 {
			alternatives = alternatives[:3]
		}
		msg += fmt.Sprintf("; boards with installed toolchains: %s", strings.Join(alternatives, ", "))
	}
	return fmt.Errorf("%s", msg)
}
