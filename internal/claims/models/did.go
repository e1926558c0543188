package models

import (
	"regexp"
	"sort"
)

// DIDPattern matches a DID anywhere inside a string.
var DIDPattern = regexp.MustCompile(`did:[a-z0-9]+:[A-Za-z0-9._:%-]+`)

// ExtractDIDs returns every DID appearing in string values (or keys) of v,
// sorted and without duplicates.
func ExtractDIDs(v any) []string {
	seen := map[string]struct{}{}
	walkStrings(v, func(s string) {
		for _, m := range DIDPattern.FindAllString(s, -1) {
			seen[m] = struct{}{}
		}
	})
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// ReplaceDIDs returns a deep copy of v with every DID substring replaced.
func ReplaceDIDs(v any, replace func(did string) string) any {
	switch t := v.(type) {
	case string:
		return DIDPattern.ReplaceAllStringFunc(t, replace)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = ReplaceDIDs(item, replace)
		}
		return out
	default:
		m, ok := AsDoc(t)
		if !ok {
			return v
		}
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[DIDPattern.ReplaceAllStringFunc(k, replace)] = ReplaceDIDs(item, replace)
		}
		return out
	}
}

func walkStrings(v any, fn func(string)) {
	switch t := v.(type) {
	case string:
		fn(t)
	case []any:
		for _, item := range t {
			walkStrings(item, fn)
		}
	default:
		if m, ok := AsDoc(t); ok {
			for k, item := range m {
				fn(k)
				walkStrings(item, fn)
			}
		}
	}
}
