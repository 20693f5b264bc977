// Package validate checks and sanitizes request input against declarative
// schemas. Body, query and path parameters are validated separately: body
// values arrive typed from the JSON decoder, query and path values arrive as
// strings and are coerced to the declared type first.
//
// Every failing field is reported, not only the first.
package validate

import (
	"regexp"
)

type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Boolean Type = "boolean"
	Array   Type = "array"
	Object  Type = "object"
	Email   Type = "email"
	URL     Type = "url"
)

// Surface is the part of the request being validated.
type Surface string

const (
	Body   Surface = "body"
	Query  Surface = "query"
	Params Surface = "params"
)

// Rule constrains one field. Min and Max bound string and array length or
// numeric value depending on Type.
type Rule struct {
	Type     Type
	Required bool
	Min      *float64
	Max      *float64
	Pattern  *regexp.Regexp
	Enum     []string
	// Custom runs last; a non-nil error fails the field with its message.
	Custom func(v any) error
	// RejectMarkup fails strings that contain script or event-handler markup.
	RejectMarkup bool
	// Secret values are checked but never rewritten, so passwords reach the
	// hasher byte for byte.
	Secret bool
}

type Schema map[string]Rule

// Bound is shorthand for Min/Max values in schema literals.
func Bound(v float64) *float64 { return &v }
