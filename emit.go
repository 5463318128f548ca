package livedash

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/livefir/livedash/internal/fields"
	"github.com/livefir/livedash/internal/menu"
)

// templateFields are the control settings whose {{ }} references are
// shipped with each emission.
var templateFields = []string{"label", "format", "color", "units"}

// addTemplateFields copies the message fields that the control's display
// templates refer to into out, unless out already has them.
func addTemplateFields(out Msg, props menu.Props, msg Msg) {
	for _, name := range templateFields {
		tmpl := props.String(name)
		if !strings.Contains(tmpl, "{{") {
			continue
		}
		for _, ref := range fields.Extract(tmpl) {
			if ref.Name == "" {
				continue
			}
			if !ref.Nested {
				if !out.Has(ref.Name) && msg.Has(ref.Name) {
					out[ref.Name] = copyField(msg[ref.Name])
				}
				continue
			}
			nested, ok := asMsg(out["msg"])
			if !ok {
				nested = Msg{}
				out["msg"] = nested
			}
			if v, present := msg[ref.Name]; present && v != nil && !nested.Has(ref.Name) {
				nested[ref.Name] = copyField(v)
			}
		}
	}
}

// copyField detaches v from the inbound message. Binary data becomes its
// binary-string form, one character per byte.
func copyField(v any) any {
	switch b := v.(type) {
	case []byte:
		return binaryString(b)
	case nil, string, bool, float64, int, int64:
		return v
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func binaryString(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

// shallowEqual compares datasets the way change detection needs: scalars
// by value, numbers regardless of their Go type, and maps, slices and
// pointers by identity.
func shallowEqual(a, b any) (equal bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if x, ok := number(a); ok {
		y, ok := number(b)
		return ok && x == y
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return a == b
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// truthy mirrors how flow messages treat flags: false, 0, "" and nil are
// false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	}
	if n, ok := number(v); ok {
		return n != 0
	}
	return true
}
