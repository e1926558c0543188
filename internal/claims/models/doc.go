package models

import "strconv"

// Doc is a decoded JSON object from a claim body.
type Doc map[string]any

// AsDoc returns v as a Doc when it is a JSON object.
func AsDoc(v any) (Doc, bool) {
	switch t := v.(type) {
	case Doc:
		return t, true
	case map[string]any:
		return Doc(t), true
	}
	return nil, false
}

// Str returns the string at key, or "" when absent or not a string.
func (d Doc) Str(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// Sub returns the object at key, or nil.
func (d Doc) Sub(key string) Doc {
	sub, _ := AsDoc(d[key])
	return sub
}

// Path follows dotted object keys, e.g. "itemOffered.isPartOf".
func (d Doc) Path(keys ...string) any {
	var cur any = d
	for _, k := range keys {
		m, ok := AsDoc(cur)
		if !ok {
			return nil
		}
		cur = m[k]
	}
	return cur
}

// Num returns the number at key. Numeric strings are accepted.
func (d Doc) Num(key string) (float64, bool) {
	switch t := d[key].(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	}
	return 0, false
}

// Identifier returns the DID or handle of a nested party object (agent,
// recipient, member, ...). A bare string is taken as the identifier.
func (d Doc) Identifier(key string) string {
	switch t := d[key].(type) {
	case string:
		return t
	default:
		if sub, ok := AsDoc(t); ok {
			return sub.Str("identifier")
		}
	}
	return ""
}

// Clone copies the top level of d.
func (d Doc) Clone() Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
