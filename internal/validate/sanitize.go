package validate

import (
	"strings"
)

// SanitizeString drops control characters other than tab, newline and
// carriage return, trims surrounding space and caps the length.
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if len(s) <= MaxStringLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxStringLength {
			return s[:i]
		}
		n++
	}
	return s
}

// sanitize cleans strings, and the string leaves one level inside objects
// and arrays. Deeper values are left untouched.
func sanitize(v any) any {
	switch x := v.(type) {
	case string:
		return SanitizeString(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			if s, ok := e.(string); ok {
				out[i] = SanitizeString(s)
			} else {
				out[i] = e
			}
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			if s, ok := e.(string); ok {
				out[k] = SanitizeString(s)
			} else {
				out[k] = e
			}
		}
		return out
	}
	return v
}
