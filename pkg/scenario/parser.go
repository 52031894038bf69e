package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseFile parses a single scenario YAML file.
func ParseFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is a user-provided scenario file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Parse(data, path)
}

// Parse parses scenario YAML content. A file with one document holds
// only steps; with two documents the first is the header.
func Parse(data []byte, sourcePath string) (*Scenario, error) {
	parts := splitYAMLDocuments(string(data))

	sc := &Scenario{
		SourcePath: sourcePath,
	}

	if len(parts) == 0 {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    1,
			Message: "empty scenario file",
		}
	}

	if len(parts) == 1 {
		if err := parseSteps(parts[0], sc); err != nil {
			return nil, err
		}
	} else {
		if err := parseHeader(parts[0], sc); err != nil {
			return nil, err
		}
		if err := parseSteps(parts[1], sc); err != nil {
			return nil, err
		}
	}

	return sc, nil
}

// splitYAMLDocuments splits on "---" separators, ignoring separators
// that sit inside multiline scalar blocks.
func splitYAMLDocuments(content string) []string {
	var parts []string
	var current strings.Builder
	inMultiline := false
	multilineIndent := 0

	lines := strings.Split(content, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if !inMultiline {
			if strings.HasSuffix(trimmed, "|") || strings.HasSuffix(trimmed, ">") ||
				strings.HasSuffix(trimmed, "|-") || strings.HasSuffix(trimmed, ">-") {
				inMultiline = true
				if i+1 < len(lines) {
					next := lines[i+1]
					multilineIndent = len(next) - len(strings.TrimLeft(next, " \t"))
				}
			}
		} else {
			indent := len(line) - len(strings.TrimLeft(line, " \t"))
			if trimmed != "" && indent < multilineIndent {
				inMultiline = false
			}
		}

		if !inMultiline && trimmed == "---" && strings.TrimLeft(line, " \t") == "---" {
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		} else {
			current.WriteString(line)
			current.WriteString("\n")
		}
	}

	if current.Len() > 0 {
		s := strings.TrimSpace(current.String())
		if s != "" {
			parts = append(parts, current.String())
		}
	}

	return parts
}

func parseHeader(content string, sc *Scenario) error {
	var header Header
	if err := yaml.Unmarshal([]byte(content), &header); err != nil {
		return &ParseError{
			Path:    sc.SourcePath,
			Message: fmt.Sprintf("invalid header: %v", err),
		}
	}
	sc.Header = header
	return nil
}

func parseSteps(content string, sc *Scenario) error {
	var rawSteps []yaml.Node
	if err := yaml.Unmarshal([]byte(content), &rawSteps); err != nil {
		return &ParseError{
			Path:    sc.SourcePath,
			Message: fmt.Sprintf("invalid steps: %v", err),
		}
	}

	for _, node := range rawSteps {
		step, err := parseStep(&node, sc.SourcePath)
		if err != nil {
			return err
		}
		sc.Steps = append(sc.Steps, step)
	}

	return nil
}

func parseStep(node *yaml.Node, sourcePath string) (Step, error) {
	// Handle scalar nodes like "- wait" (no colon, no params).
	if node.Kind == yaml.ScalarNode {
		kind := node.Value
		if !isStepKind(kind) {
			return nil, &ParseError{
				Path:    sourcePath,
				Line:    node.Line,
				Message: fmt.Sprintf("unknown step kind: %s", kind),
			}
		}
		emptyNode := &yaml.Node{Kind: yaml.MappingNode}
		return decodeStep(StepKind(kind), emptyNode, sourcePath)
	}

	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "step must be a mapping or step name",
		}
	}

	kind, valueNode := extractStepKind(node)
	if kind == "" || valueNode == nil {
		return nil, &ParseError{
			Path:    sourcePath,
			Line:    node.Line,
			Message: "unknown step kind",
		}
	}

	return decodeStep(StepKind(kind), valueNode, sourcePath)
}

func extractStepKind(node *yaml.Node) (string, *yaml.Node) {
	for i := 0; i < len(node.Content)-1; i += 2 {
		key := node.Content[i].Value
		if isStepKind(key) {
			return key, node.Content[i+1]
		}
	}
	return "", nil
}

func isStepKind(key string) bool {
	switch StepKind(key) {
	case StepTap, StepInput, StepSwipe, StepAssert, StepWait:
		return true
	}
	return false
}

func decodeStep(kind StepKind, valueNode *yaml.Node, sourcePath string) (Step, error) {
	switch kind {
	case StepTap:
		var s TapStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Target.Label = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepKind = kind
		return &s, nil

	case StepInput:
		var s InputStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Text = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepKind = kind
		return &s, nil

	case StepSwipe:
		var s SwipeStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Direction = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepKind = kind
		return &s, nil

	case StepAssert:
		var s AssertStep
		if valueNode.Kind == yaml.ScalarNode {
			s.Target.Label = valueNode.Value
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepKind = kind
		return &s, nil

	case StepWait:
		var s WaitStep
		if valueNode.Kind == yaml.ScalarNode {
			if err := valueNode.Decode(&s.DurationMs); err != nil {
				return nil, wrapParseError(sourcePath, valueNode.Line, err)
			}
		} else if err := valueNode.Decode(&s); err != nil {
			return nil, wrapParseError(sourcePath, valueNode.Line, err)
		}
		s.StepKind = kind
		return &s, nil
	}

	return nil, &ParseError{
		Path:    sourcePath,
		Line:    valueNode.Line,
		Message: fmt.Sprintf("unknown step kind: %s", kind),
	}
}

func wrapParseError(sourcePath string, line int, err error) error {
	return &ParseError{
		Path:    sourcePath,
		Line:    line,
		Message: err.Error(),
	}
}
