package appium

import (
	"testing"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

func TestParseHierarchy(t *testing.T) {
	xml := `<?xml version="1.0" encoding="UTF-8"?>
<hierarchy rotation="0">
  <android.widget.FrameLayout bounds="[0,0][1080,1920]" class="android.widget.FrameLayout" enabled="true" displayed="true">
    <android.widget.TextView text="Hello World" resource-id="com.example:id/title" bounds="[100,200][400,250]" enabled="true" clickable="true" />
    <android.widget.Button text="Click Me" content-desc="Submit button" bounds="[100,300][400,380]" enabled="true" clickable="true" />
    <android.widget.ImageView content-desc="Timer" bounds="[100,400][400,480]" enabled="true" selected="true" />
  </android.widget.FrameLayout>
</hierarchy>`

	elements, err := ParseHierarchy(xml)
	if err != nil {
		t.Fatalf("ParseHierarchy failed: %v", err)
	}

	if len(elements) != 4 {
		t.Fatalf("Expected 4 elements, got %d", len(elements))
	}

	title := elements[1]
	if title.Label != "Hello World" {
		t.Errorf("Expected label 'Hello World', got '%s'", title.Label)
	}
	if title.Identifier != "com.example:id/title" {
		t.Errorf("Expected identifier 'com.example:id/title', got '%s'", title.Identifier)
	}
	if title.Role != "android.widget.TextView" {
		t.Errorf("Expected role 'android.widget.TextView', got '%s'", title.Role)
	}
	if title.Bounds.X != 100 || title.Bounds.Y != 200 || title.Bounds.Width != 300 || title.Bounds.Height != 50 {
		t.Errorf("Unexpected bounds: %+v", title.Bounds)
	}
	if !title.Clickable {
		t.Error("Title should be clickable")
	}

	// Label falls back to the accessibility description for text-less nodes.
	tab := elements[3]
	if tab.Label != "Timer" {
		t.Errorf("Expected label 'Timer' from content-desc, got '%s'", tab.Label)
	}
	if tab.Desc != "Timer" {
		t.Errorf("Expected desc 'Timer', got '%s'", tab.Desc)
	}
	if !tab.Selected {
		t.Error("Tab should be selected")
	}
}

func TestParseHierarchy_DocumentOrder(t *testing.T) {
	xml := `<hierarchy>
  <android.widget.LinearLayout bounds="[0,0][1080,1920]" enabled="true" displayed="true">
    <android.widget.Button text="First" bounds="[0,0][100,100]" enabled="true" displayed="true"/>
    <android.widget.FrameLayout bounds="[0,100][1080,200]" enabled="true" displayed="true">
      <android.widget.Button text="Second" bounds="[0,100][100,200]" enabled="true" displayed="true"/>
    </android.widget.FrameLayout>
    <android.widget.Button text="Third" bounds="[0,200][100,300]" enabled="true" displayed="true"/>
  </android.widget.LinearLayout>
</hierarchy>`

	elements, err := ParseHierarchy(xml)
	if err != nil {
		t.Fatalf("ParseHierarchy failed: %v", err)
	}

	var labels []string
	for _, e := range elements {
		if e.Label != "" {
			labels = append(labels, e.Label)
		}
	}
	want := []string{"First", "Second", "Third"}
	if len(labels) != len(want) {
		t.Fatalf("Expected %d labeled elements, got %d", len(want), len(labels))
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("Position %d: expected '%s', got '%s'", i, want[i], labels[i])
		}
	}
}

func TestParseHierarchy_DepthAndParent(t *testing.T) {
	xml := `<hierarchy>
  <android.widget.FrameLayout bounds="[0,0][1080,1920]" clickable="true" enabled="true" displayed="true">
    <android.widget.TextView text="Inner" bounds="[10,10][200,50]" enabled="true" displayed="true"/>
  </android.widget.FrameLayout>
</hierarchy>`

	elements, err := ParseHierarchy(xml)
	if err != nil {
		t.Fatalf("ParseHierarchy failed: %v", err)
	}
	if len(elements) != 2 {
		t.Fatalf("Expected 2 elements, got %d", len(elements))
	}

	root, inner := elements[0], elements[1]
	if root.Depth != 0 || inner.Depth != 1 {
		t.Errorf("Unexpected depths: root=%d inner=%d", root.Depth, inner.Depth)
	}
	if inner.Parent != root {
		t.Error("Inner element should point at its parent")
	}

	// A non-clickable text node resolves to its clickable container.
	if inner.ClickableAncestor() != root {
		t.Error("ClickableAncestor should return the clickable parent")
	}
}

func TestParseHierarchy_NoHierarchyElement(t *testing.T) {
	_, err := ParseHierarchy(`<root><node/></root>`)
	if err == nil {
		t.Fatal("Expected error for XML without hierarchy element")
	}
}

func TestParseHierarchy_Malformed(t *testing.T) {
	_, err := ParseHierarchy(`<hierarchy><node bounds="[0,0][10,10]"`)
	if err == nil {
		t.Fatal("Expected error for malformed XML")
	}
}

func TestParseBounds(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected core.Bounds
	}{
		{"normal", "[100,200][400,250]", core.Bounds{X: 100, Y: 200, Width: 300, Height: 50}},
		{"origin", "[0,0][1080,1920]", core.Bounds{X: 0, Y: 0, Width: 1080, Height: 1920}},
		{"garbage", "not-bounds", core.Bounds{}},
		{"empty", "", core.Bounds{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseBounds(tt.input)
			if got != tt.expected {
				t.Errorf("Expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}
