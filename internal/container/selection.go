package container

import "path/filepath"

// SelectionRule is one (glob, kind) pair from the container- or
// runtime-selection configuration list (spec §4.3: "an ordered list of
// (glob, kind) pairs; first match wins; default '*'").
type SelectionRule struct {
	Glob string
	Kind string
}

// Select returns the kind of the first rule whose glob matches id, or
// "" if no rule (not even a trailing "*" default) matches.
func Select(rules []SelectionRule, id string) string {
	for _, r := range rules {
		if ok, _ := filepath.Match(r.Glob, id); ok {
			return r.Kind
		}
	}
	return ""
}
