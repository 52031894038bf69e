package core

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestTargetUnmarshalScalar(t *testing.T) {
	var target Target
	if err := yaml.Unmarshal([]byte(`"Timer"`), &target); err != nil {
		t.Fatalf("Unmarshal scalar: %v", err)
	}

	if target.Label != "Timer" {
		t.Errorf("Label = %q, want %q", target.Label, "Timer")
	}
	if target.Identifier != "" {
		t.Errorf("Identifier = %q, want empty", target.Identifier)
	}
}

func TestTargetUnmarshalMapping(t *testing.T) {
	input := `
id: com.clock:id/fab
label: Add alarm
role: android.widget.ImageButton
`
	var target Target
	if err := yaml.Unmarshal([]byte(input), &target); err != nil {
		t.Fatalf("Unmarshal mapping: %v", err)
	}

	if target.Identifier != "com.clock:id/fab" {
		t.Errorf("Identifier = %q, want %q", target.Identifier, "com.clock:id/fab")
	}
	if target.Label != "Add alarm" {
		t.Errorf("Label = %q, want %q", target.Label, "Add alarm")
	}
	if target.Role != "android.widget.ImageButton" {
		t.Errorf("Role = %q, want %q", target.Role, "android.widget.ImageButton")
	}
}

func TestTargetIsEmpty(t *testing.T) {
	if !(Target{}).IsEmpty() {
		t.Error("zero target should be empty")
	}
	if (Target{Desc: "x"}).IsEmpty() {
		t.Error("target with desc should not be empty")
	}
}

func TestTargetDescribe(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"empty", Target{}, "(empty)"},
		{"label", Target{Label: "Timer"}, `label="Timer"`},
		{"id and label", Target{Identifier: "com.clock:id/tab", Label: "Timer"}, `id=com.clock:id/tab label="Timer"`},
		{"role", Target{Role: "android.widget.Button"}, "role=android.widget.Button"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.Describe(); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
