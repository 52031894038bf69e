package appium

import (
	"strconv"
	"strings"

	"encoding/xml"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// ParseHierarchy parses Android UI hierarchy XML into a flat element
// list in document order, with depth and parent links set.
func ParseHierarchy(xmlData string) ([]*core.Element, error) {
	decoder := xml.NewDecoder(strings.NewReader(xmlData))

	var roots []*core.Element
	foundHierarchy := false
	var parseElement func() (*core.Element, error)

	parseElement = func() (*core.Element, error) {
		for {
			token, err := decoder.Token()
			if err != nil {
				return nil, err
			}

			switch t := token.(type) {
			case xml.StartElement:
				if t.Name.Local == "hierarchy" {
					foundHierarchy = true
					continue
				}

				elem := &core.Element{
					Role: t.Name.Local,
				}

				var text, desc string
				for _, attr := range t.Attr {
					switch attr.Name.Local {
					case "text":
						text = attr.Value
					case "content-desc":
						desc = attr.Value
					case "resource-id":
						elem.Identifier = attr.Value
					case "class":
						elem.Role = attr.Value
					case "bounds":
						elem.Bounds = parseBounds(attr.Value)
					case "enabled":
						elem.Enabled = attr.Value == "true"
					case "selected":
						elem.Selected = attr.Value == "true"
					case "focused":
						elem.Focused = attr.Value == "true"
					case "displayed":
						elem.Displayed = attr.Value != "false"
					case "clickable":
						elem.Clickable = attr.Value == "true"
					}
				}

				// Accessibility description doubles as the label when
				// the node carries no text, which is how icon tabs and
				// image buttons expose their names.
				elem.Label = text
				if elem.Label == "" {
					elem.Label = desc
				}
				elem.Desc = desc

				for {
					child, err := parseElement()
					if err != nil || child == nil {
						break
					}
					child.Parent = elem
					elem.Children = append(elem.Children, child)
				}

				return elem, nil

			case xml.EndElement:
				return nil, nil
			}
		}
	}

	var parseErr error
	for {
		elem, err := parseElement()
		if err != nil {
			if err.Error() != "EOF" {
				parseErr = err
			}
			break
		}
		if elem != nil {
			roots = append(roots, elem)
		}
	}

	if parseErr != nil && len(roots) == 0 {
		return nil, core.ErrActionFailed.WithMessage("malformed page source").WithCause(parseErr)
	}
	if !foundHierarchy {
		return nil, core.ErrActionFailed.WithMessage("invalid page source: no hierarchy element found")
	}

	var flat []*core.Element
	for _, root := range roots {
		flat = append(flat, flatten(root, 0)...)
	}
	return flat, nil
}

// flatten walks a tree into a document-order list, assigning depth.
func flatten(elem *core.Element, depth int) []*core.Element {
	elem.Depth = depth
	result := []*core.Element{elem}
	for _, child := range elem.Children {
		result = append(result, flatten(child, depth+1)...)
	}
	return result
}

// parseBounds parses an Android bounds string "[x1,y1][x2,y2]".
func parseBounds(s string) core.Bounds {
	s = strings.ReplaceAll(s, "][", ",")
	s = strings.Trim(s, "[]")
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return core.Bounds{}
	}

	x1, _ := strconv.Atoi(parts[0])
	y1, _ := strconv.Atoi(parts[1])
	x2, _ := strconv.Atoi(parts[2])
	y2, _ := strconv.Atoi(parts[3])

	return core.Bounds{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}
