package core

import "strings"

// FirstMatch scans elements in document order and returns the first one
// matching the target, or nil.
//
// An identifier in the target is authoritative: only identifier equality is
// considered and the (role, label) fallback is never consulted. Otherwise
// elements match on (role, label, desc) equality, with a second
// case-insensitive containment pass for label and desc so near-matches
// still resolve, exact matches always winning.
func FirstMatch(elements []*Element, t Target) *Element {
	if t.IsEmpty() {
		return nil
	}

	if t.Identifier != "" {
		for _, e := range elements {
			if e.Identifier == t.Identifier {
				return e
			}
		}
		return nil
	}

	for _, e := range elements {
		if matchExact(e, t) {
			return e
		}
	}
	for _, e := range elements {
		if matchLoose(e, t) {
			return e
		}
	}
	return nil
}

// AllMatches returns every element matching the target, in document order.
func AllMatches(elements []*Element, t Target) []*Element {
	if t.IsEmpty() {
		return nil
	}

	var out []*Element
	for _, e := range elements {
		if t.Identifier != "" {
			if e.Identifier == t.Identifier {
				out = append(out, e)
			}
			continue
		}
		if matchExact(e, t) || matchLoose(e, t) {
			out = append(out, e)
		}
	}
	return out
}

func matchExact(e *Element, t Target) bool {
	if t.Role != "" && e.Role != t.Role {
		return false
	}
	if t.Label != "" && e.Label != t.Label {
		return false
	}
	if t.Desc != "" && e.Desc != t.Desc {
		return false
	}
	return true
}

func matchLoose(e *Element, t Target) bool {
	if t.Role != "" && e.Role != t.Role {
		return false
	}
	if t.Label != "" && !containsFold(e.Label, t.Label) {
		return false
	}
	if t.Desc != "" && !containsFold(e.Desc, t.Desc) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
