// Package strings provides small string-set helpers shared by the claim engine.
package strings

import (
	"slices"
	"strings"
)

// Dedupe removes duplicates and blank entries, preserving first-seen order.
func Dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// SortedUnique returns the distinct non-blank values in ascending order.
// Lock acquisition uses it to get a deterministic order.
func SortedUnique(values []string) []string {
	out := Dedupe(slices.Clone(values))
	slices.Sort(out)
	return out
}

// Without returns values minus every entry equal to skip.
func Without(values []string, skip string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != skip {
			out = append(out, v)
		}
	}
	return out
}
