package agent

import (
	"strings"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// MatchFunc resolves a target against the elements of a snapshot and
// returns the matched element, or nil when nothing qualifies.
type MatchFunc func(elements []*core.Element, t core.Target) *core.Element

// Substring-match weights. Resource identifiers are the most stable
// attribute, accessibility descriptions next, visible text last.
const (
	scoreIdentifier = 4
	scoreDesc       = 3
	scoreLabel      = 2
)

// ExactMatch is the default matcher: first match in document order,
// identifier equality before the (role, label) fallback.
func ExactMatch(elements []*core.Element, t core.Target) *core.Element {
	return core.FirstMatch(elements, t)
}

// FuzzyMatch runs the exact matcher first and only then falls back to
// scored substring matching. A bare label is probed against identifier,
// description and text, so "Timer" still finds a tab whose only handle
// is a content description or a resource id suffix. Ties keep the
// earliest element in document order.
func FuzzyMatch(elements []*core.Element, t core.Target) *core.Element {
	if el := core.FirstMatch(elements, t); el != nil {
		return el
	}
	if t.IsEmpty() {
		return nil
	}

	var best *core.Element
	bestScore := 0
	for _, e := range elements {
		if s := fuzzyScore(e, t); s > bestScore {
			best, bestScore = e, s
		}
	}
	return best
}

func fuzzyScore(e *core.Element, t core.Target) int {
	if t.Identifier != "" {
		// Identifier targets never fall back to other attributes.
		if containsFold(e.Identifier, t.Identifier) {
			return scoreIdentifier
		}
		return 0
	}
	if t.Role != "" && !strings.EqualFold(e.Role, t.Role) {
		return 0
	}

	score := 0
	if t.Desc != "" && containsFold(e.Desc, t.Desc) {
		score += scoreDesc
	}
	if t.Label != "" {
		if containsFold(e.Identifier, t.Label) {
			score += scoreIdentifier
		}
		if t.Desc == "" && containsFold(e.Desc, t.Label) {
			score += scoreDesc
		}
		// Skip the text probe when the label is just the description
		// fallback, otherwise the same attribute counts twice.
		if e.Label != e.Desc && containsFold(e.Label, t.Label) {
			score += scoreLabel
		}
	}
	if score == 0 {
		return 0
	}
	if t.Role != "" {
		score++
	}
	return score
}

func containsFold(haystack, needle string) bool {
	if haystack == "" || needle == "" {
		return false
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
