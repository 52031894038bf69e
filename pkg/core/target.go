package core

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target describes the element a step is looking for. Identifier takes
// precedence over (Role, Label) when both are present; Desc matches the
// accessibility description as a label fallback.
type Target struct {
	Identifier string `yaml:"id,omitempty" json:"identifier,omitempty"`
	Label      string `yaml:"label,omitempty" json:"label,omitempty"`
	Role       string `yaml:"role,omitempty" json:"role,omitempty"`
	Desc       string `yaml:"desc,omitempty" json:"desc,omitempty"`
}

// targetRaw avoids recursion in UnmarshalYAML.
type targetRaw Target

// UnmarshalYAML accepts either a bare scalar (treated as a label) or the
// full mapping form.
func (t *Target) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Label = node.Value
		return nil
	}

	var raw targetRaw
	if err := node.Decode(&raw); err != nil {
		return err
	}
	*t = Target(raw)
	return nil
}

// IsEmpty returns true if no field is set.
func (t Target) IsEmpty() bool {
	return t.Identifier == "" && t.Label == "" && t.Role == "" && t.Desc == ""
}

// Describe returns a human-readable description for logs and reports.
func (t Target) Describe() string {
	var parts []string
	if t.Identifier != "" {
		parts = append(parts, fmt.Sprintf("id=%s", t.Identifier))
	}
	if t.Label != "" {
		parts = append(parts, fmt.Sprintf("label=%q", t.Label))
	}
	if t.Role != "" {
		parts = append(parts, fmt.Sprintf("role=%s", t.Role))
	}
	if t.Desc != "" {
		parts = append(parts, fmt.Sprintf("desc=%q", t.Desc))
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}
