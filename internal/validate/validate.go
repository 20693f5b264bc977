package validate

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/keithlinneman/invitegate/internal/moderation"
)

// MaxStringLength caps every sanitized string, in runes.
const MaxStringLength = 10000

var emailRE = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Result struct {
	Errors []string
	// Sanitized is a copy of the input with schema fields replaced by their
	// coerced, sanitized values. Fields not in the schema pass through.
	Sanitized map[string]any
}

func (r Result) OK() bool { return len(r.Errors) == 0 }

// Validate runs schema over data. Fields are visited in name order so error
// lists are stable.
func Validate(data map[string]any, schema Schema, surface Surface) Result {
	res := Result{Sanitized: make(map[string]any, len(data))}
	for k, v := range data {
		res.Sanitized[k] = v
	}

	names := make([]string, 0, len(schema))
	for n := range schema {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, name := range names {
		rule := schema[name]
		v, present := data[name]
		if !present || v == nil || v == "" {
			if rule.Required {
				res.Errors = append(res.Errors, name+" is required")
			}
			continue
		}

		if surface != Body {
			v = coerce(v, rule.Type)
		}
		if msg := checkType(name, v, rule.Type); msg != "" {
			res.Errors = append(res.Errors, msg)
			continue
		}

		if !rule.Secret {
			v = sanitize(v)
		}
		res.Sanitized[name] = v
		res.Errors = append(res.Errors, checkValue(name, v, rule)...)
	}
	return res
}

func coerce(v any, t Type) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch t {
	case Number:
		return parseInt(s)
	case Boolean:
		return strings.EqualFold(s, "true")
	case Array:
		parts := strings.Split(s, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out
	}
	return s
}

// parseInt reads an optional sign and leading digits, ignoring the rest:
// "42px" is 42, "abc" is NaN.
func parseInt(s string) float64 {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return math.NaN()
	}
	n, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return math.NaN()
	}
	return n
}

func checkType(name string, v any, t Type) string {
	switch t {
	case String:
		if _, ok := v.(string); !ok {
			return name + " must be a string"
		}
	case Number:
		if f, ok := toFloat(v); !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return name + " must be a number"
		}
	case Boolean:
		if _, ok := v.(bool); !ok {
			return name + " must be a boolean"
		}
	case Array:
		if _, ok := v.([]any); !ok {
			return name + " must be an array"
		}
	case Object:
		if _, ok := v.(map[string]any); !ok {
			return name + " must be an object"
		}
	case Email:
		s, ok := v.(string)
		if !ok || !emailRE.MatchString(strings.TrimSpace(s)) {
			return name + " must be a valid email"
		}
	case URL:
		s, ok := v.(string)
		if !ok || !validURL(strings.TrimSpace(s)) {
			return name + " must be a valid URL"
		}
	}
	return ""
}

func validURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func checkValue(name string, v any, r Rule) []string {
	var errs []string
	switch x := v.(type) {
	case string:
		n := float64(utf8.RuneCountInString(x))
		if r.Min != nil && n < *r.Min {
			errs = append(errs, fmt.Sprintf("%s must be at least %g characters", name, *r.Min))
		}
		if r.Max != nil && n > *r.Max {
			errs = append(errs, fmt.Sprintf("%s must be at most %g characters", name, *r.Max))
		}
		if r.Pattern != nil && !r.Pattern.MatchString(x) {
			errs = append(errs, name+" has an invalid format")
		}
		if r.RejectMarkup && moderation.ContainsMalicious(x) {
			errs = append(errs, name+" contains disallowed content")
		}
	case []any:
		n := float64(len(x))
		if r.Min != nil && n < *r.Min {
			errs = append(errs, fmt.Sprintf("%s must contain at least %g items", name, *r.Min))
		}
		if r.Max != nil && n > *r.Max {
			errs = append(errs, fmt.Sprintf("%s must contain at most %g items", name, *r.Max))
		}
	default:
		if f, ok := toFloat(v); ok {
			if r.Min != nil && f < *r.Min {
				errs = append(errs, fmt.Sprintf("%s must be at least %g", name, *r.Min))
			}
			if r.Max != nil && f > *r.Max {
				errs = append(errs, fmt.Sprintf("%s must be at most %g", name, *r.Max))
			}
		}
	}

	if len(r.Enum) > 0 && !inEnum(v, r.Enum) {
		errs = append(errs, fmt.Sprintf("%s must be one of: %s", name, strings.Join(r.Enum, ", ")))
	}
	if r.Custom != nil {
		if err := r.Custom(v); err != nil {
			msg := err.Error()
			if msg == "" {
				msg = name + " is invalid"
			}
			errs = append(errs, msg)
		}
	}
	return errs
}

func inEnum(v any, enum []string) bool {
	s := fmt.Sprint(v)
	for _, e := range enum {
		if e == s {
			return true
		}
	}
	return false
}
