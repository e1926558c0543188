package models

import "strings"

// Ref is a reference to another claim found inside a claim body. A ref
// addresses its target by revision pointer, by handle, or not at all (an
// inline copy of the claim content).
type Ref struct {
	LastClaimID string
	Identifier  string
	Context     string
	Type        string
	Doc         Doc
}

// Addressed reports whether the ref names a row or handle.
func (r Ref) Addressed() bool {
	return r.LastClaimID != "" || r.Identifier != ""
}

// Shape dispatches the referenced claim content.
func (r Ref) Shape() Shape {
	return ShapeOf(r.Context, r.Type, r.Doc)
}

// RefList is the normalized form of a reference field: a JSON null, a single
// object, an array or a bare identifier string all become a list.
type RefList []Ref

// Refs normalizes v. Nested objects without @context inherit parentContext.
func Refs(v any, parentContext string) RefList {
	switch t := v.(type) {
	case nil:
		return RefList{}
	case string:
		id := strings.TrimSpace(t)
		if id == "" {
			return RefList{}
		}
		return RefList{{Identifier: id, Context: NormalizeContext(parentContext)}}
	case []any:
		out := make(RefList, 0, len(t))
		for _, item := range t {
			out = append(out, Refs(item, parentContext)...)
		}
		return out
	default:
		doc, ok := AsDoc(t)
		if !ok {
			return RefList{}
		}
		ctx := doc.Str("@context")
		if ctx == "" {
			ctx = parentContext
		}
		return RefList{{
			LastClaimID: strings.TrimSpace(doc.Str("lastClaimId")),
			Identifier:  strings.TrimSpace(doc.Str("identifier")),
			Context:     NormalizeContext(ctx),
			Type:        doc.Str("@type"),
			Doc:         doc,
		}}
	}
}

// PathRefs normalizes the reference field found at a dotted path.
func PathRefs(doc Doc, path string, parentContext string) RefList {
	return Refs(doc.Path(strings.Split(path, ".")...), parentContext)
}

// First returns the first ref.
func (l RefList) First() (Ref, bool) {
	if len(l) == 0 {
		return Ref{}, false
	}
	return l[0], true
}
