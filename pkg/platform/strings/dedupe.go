// Package strings holds list helpers for names read from config and forms.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each value and drops blanks and repeats, keeping the
// first occurrence. A nil or empty input comes back unchanged.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SplitList splits a comma separated value such as "Jon, Roger,,Pat". It
// returns nil when nothing but blanks remain.
func SplitList(raw string) []string {
	out := DedupeAndTrim(strings.Split(raw, ","))
	if len(out) == 0 {
		return nil
	}
	return out
}
