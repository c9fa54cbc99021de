package api

import "strings"

// Values maps field names to their current values.
//
// Values are plain Go values: string, bool, []string. Accessors return the
// zero value for missing keys or mismatched types.
type Values map[string]any

// String returns the trimmed string value of key.
func (v Values) String(key string) string {
	s, _ := v[key].(string)
	return strings.TrimSpace(s)
}

// Bool returns the boolean value of key.
func (v Values) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Strings returns the string-list value of key. A nil result means the field
// is unset or holds another type.
func (v Values) Strings(key string) []string {
	switch x := v[key].(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// Has reports whether key holds a non-empty value.
func (v Values) Has(key string) bool {
	raw, ok := v[key]
	if !ok || raw == nil {
		return false
	}
	switch x := raw.(type) {
	case string:
		return strings.TrimSpace(x) != ""
	case []string:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}

// Clone returns a copy of v. Slices are copied so the clone shares no
// mutable state with v.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, raw := range v {
		switch x := raw.(type) {
		case []string:
			cp := make([]string, len(x))
			copy(cp, x)
			out[k] = cp
		case []any:
			cp := make([]any, len(x))
			copy(cp, x)
			out[k] = cp
		default:
			out[k] = raw
		}
	}
	return out
}
