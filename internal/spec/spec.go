// Package spec defines the request schema: a SystemSpec describing the nodes
// to build, each with a free-text description and ordered test assertions.
// Specs are immutable once submitted.
package spec

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TestAssertion is a named pattern that must (required) or may (optional)
// appear in captured program output. Pattern matching is plain substring,
// applied uniformly by the validator.
type TestAssertion struct {
	Name     string `yaml:"name" json:"name"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Required bool   `yaml:"required" json:"required"`
}

// UnmarshalYAML applies the required=true default when the field is omitted.
func (a *TestAssertion) UnmarshalYAML(value *yaml.Node) error {
	type raw struct {
		Name     string `yaml:"name"`
		Pattern  string `yaml:"pattern"`
		Required *bool  `yaml:"required"`
	}
	var r raw
	if err := value.Decode(&r); err != nil {
		return err
	}
	a.Name = r.Name
	a.Pattern = r.Pattern
	a.Required = r.Required == nil || *r.Required
	return nil
}

// NodeSpec describes one embedded node to generate firmware for.
type NodeSpec struct {
	NodeID      string          `yaml:"node_id" json:"node_id"`
	Description string          `yaml:"description" json:"description"`
	Assertions  []TestAssertion `yaml:"assertions" json:"assertions"`
}

// SystemSpec is the full request: a system description, a target board, and
// the ordered node list. NodeIDs are unique across the list.
type SystemSpec struct {
	Description string     `yaml:"description" json:"description"`
	BoardID     string     `yaml:"board_id" json:"board_id"`
	Nodes       []NodeSpec `yaml:"nodes" json:"nodes"`
}

// Validate checks structural invariants before the spec enters the engine.
func (s *SystemSpec) Validate() error {
	if len(s.Nodes) == 0 {
		return fmt.Errorf("spec has no nodes")
	}
	seen := make(map[string]bool, len(s.Nodes))
	for i, n := range s.Nodes {
		if n.NodeID == "" {
			return fmt.Errorf("node %d: node_id is required", i)
		}
		if seen[n.NodeID] {
			return fmt.Errorf("duplicate node_id %q", n.NodeID)
		}
		seen[n.NodeID] = true
		if n.Description == "" {
			return fmt.Errorf("node %q: description is required", n.NodeID)
		}
		for j, a := range n.Assertions {
			if a.Pattern == "" {
				return fmt.Errorf("node %q: assertion %d has empty pattern", n.NodeID, j)
			}
		}
	}
	return nil
}

// Parse decodes a SystemSpec from YAML and validates it.
func Parse(data []byte) (*SystemSpec, error) {
	var s SystemSpec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse spec: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and parses a SystemSpec from a YAML file.
func LoadFile(path string) (*SystemSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec: %w", err)
	}
	return Parse(data)
}
