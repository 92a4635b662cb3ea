// Package node models directory-service node records: the nested attribute
// tree a node reports about itself, the policy that picks one reachable
// address out of that tree, and the per-run target derived from it.
package node

import "strings"

// Attrs is a node's attribute tree as returned by the directory service.
// Nested levels are string-keyed maps; leaves are scalars.
type Attrs map[string]any

// Get looks up a dotted path ("cloud.public_hostname") in the tree.
// The second return is false when any path segment is missing.
func (a Attrs) Get(path string) (any, bool) {
	cur := a
	parts := strings.Split(path, ".")
	for i, part := range parts {
		v, ok := cur[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		next, ok := toAttrs(v)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return nil, false
}

// String returns the string value at a dotted path, or "" if the path is
// missing or the value is not a string.
func (a Attrs) String(path string) string {
	v, ok := a.Get(path)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Sub returns the subtree at a dotted path, or nil if the path is missing
// or the value is not a map.
func (a Attrs) Sub(path string) Attrs {
	v, ok := a.Get(path)
	if !ok {
		return nil
	}
	sub, _ := toAttrs(v)
	return sub
}

// toAttrs converts nested map values to Attrs. YAML decoding produces
// map[string]any, so that is the only shape accepted besides Attrs itself.
func toAttrs(v any) (Attrs, bool) {
	switch m := v.(type) {
	case Attrs:
		return m, true
	case map[string]any:
		return Attrs(m), true
	}
	return nil, false
}
