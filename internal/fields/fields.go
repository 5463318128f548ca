// Package fields finds the message fields that a control's display template
// refers to, so they can be shipped to clients alongside the value.
//
// Only the first path segment is resolved: "{{msg.foo.bar}}" and
// "{{foo[2]}}" both refer to field "foo". Widgets rely on that truncation.
package fields

import "strings"

// Ref is one field reference found in a template.
type Ref struct {
	Name string
	// Nested is true for "msg." references, which are copied under the
	// emitted payload's "msg" key.
	Nested bool
}

// Extract returns the field references of every {{ ... }} expression in
// tmpl, in order of appearance. Duplicates are kept.
func Extract(tmpl string) []Ref {
	if !strings.Contains(tmpl, "{{") {
		return nil
	}
	parts := strings.Split(tmpl, "{{")[1:]
	refs := make([]Ref, 0, len(parts))
	for _, part := range parts {
		expr, _, _ := strings.Cut(part, "}}")
		expr = strings.TrimSpace(expr)
		expr = cutAt(expr, "|")
		expr = cutAt(expr, " ")
		expr = cutAt(expr, "?")

		var ref Ref
		if i := strings.Index(expr, "msg."); i >= 0 {
			expr = expr[i+len("msg."):]
			ref.Nested = true
		}
		expr = cutAt(expr, ".")
		ref.Name = cutAt(expr, "[")
		refs = append(refs, ref)
	}
	return refs
}

func cutAt(s, sep string) string {
	before, _, _ := strings.Cut(s, sep)
	return before
}
