package validate

import "net/url"

// FromValues flattens query values to their first entry, the shape
// Validate expects for the query surface.
func FromValues(v url.Values) map[string]any {
	out := make(map[string]any, len(v))
	for k, vals := range v {
		if len(vals) > 0 {
			out[k] = vals[0]
		}
	}
	return out
}

// FromParams converts path parameters.
func FromParams(p map[string]string) map[string]any {
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
