package validate

import (
	"errors"
	"math"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"testing"
)

var nameSchema = Schema{
	"name": {Type: String, Required: true, Min: Bound(2), Max: Bound(5)},
}

func hasError(errs []string, want string) bool {
	for _, e := range errs {
		if e == want {
			return true
		}
	}
	return false
}

func TestValidate_RequiredMissing(t *testing.T) {
	res := Validate(map[string]any{}, nameSchema, Body)
	if !hasError(res.Errors, "name is required") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidate_EmptyStringIsMissing(t *testing.T) {
	res := Validate(map[string]any{"name": ""}, nameSchema, Body)
	if !hasError(res.Errors, "name is required") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidate_MaxLength(t *testing.T) {
	res := Validate(map[string]any{"name": "abcdef"}, nameSchema, Body)
	if !hasError(res.Errors, "name must be at most 5 characters") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidate_Passes(t *testing.T) {
	res := Validate(map[string]any{"name": "ab"}, nameSchema, Body)
	if !res.OK() {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Sanitized["name"] != "ab" {
		t.Fatalf("sanitized name = %v", res.Sanitized["name"])
	}
}

func TestValidate_ReportsEveryFailure(t *testing.T) {
	schema := Schema{
		"name":       {Type: String, Required: true, Min: Bound(2)},
		"email":      {Type: Email, Required: true},
		"attendance": {Type: String, Required: true, Enum: []string{"attending", "declined", "maybe"}},
		"guests":     {Type: Number, Min: Bound(1), Max: Bound(10)},
	}
	res := Validate(map[string]any{
		"name":       "a",
		"attendance": "perhaps",
		"guests":     float64(25),
	}, schema, Body)

	want := []string{
		"attendance must be one of: attending, declined, maybe",
		"email is required",
		"guests must be at most 10",
		"name must be at least 2 characters",
	}
	if !reflect.DeepEqual(res.Errors, want) {
		t.Fatalf("errors =\n%v\nwant\n%v", res.Errors, want)
	}
}

func TestValidate_BodyIsTypeStrict(t *testing.T) {
	schema := Schema{
		"guests":   {Type: Number},
		"attend":   {Type: Boolean},
		"tags":     {Type: Array},
		"settings": {Type: Object},
	}
	res := Validate(map[string]any{
		"guests":   "3",
		"attend":   "true",
		"tags":     "a,b",
		"settings": []any{},
	}, schema, Body)

	for _, want := range []string{
		"guests must be a number",
		"attend must be a boolean",
		"tags must be an array",
		"settings must be an object",
	} {
		if !hasError(res.Errors, want) {
			t.Errorf("missing %q in %v", want, res.Errors)
		}
	}
}

func TestValidate_QueryCoercion(t *testing.T) {
	schema := Schema{
		"limit":    {Type: Number, Min: Bound(1), Max: Bound(100)},
		"approved": {Type: Boolean},
		"ids":      {Type: Array, Max: Bound(3)},
	}
	q := url.Values{"limit": {"20px"}, "approved": {"TRUE"}, "ids": {"a, b,c"}}
	res := Validate(FromValues(q), schema, Query)
	if !res.OK() {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Sanitized["limit"] != float64(20) {
		t.Errorf("limit = %#v", res.Sanitized["limit"])
	}
	if res.Sanitized["approved"] != true {
		t.Errorf("approved = %#v", res.Sanitized["approved"])
	}
	ids, _ := res.Sanitized["ids"].([]any)
	if !reflect.DeepEqual(ids, []any{"a", "b", "c"}) {
		t.Errorf("ids = %#v", ids)
	}
}

func TestValidate_QueryCoercionFailures(t *testing.T) {
	schema := Schema{"limit": {Type: Number}, "flag": {Type: Boolean}}
	res := Validate(map[string]any{"limit": "ten", "flag": "yes"}, schema, Query)
	if !hasError(res.Errors, "limit must be a number") {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Sanitized["flag"] != false {
		t.Fatalf("non-true boolean should coerce to false, got %#v", res.Sanitized["flag"])
	}
}

func TestValidate_ParamsCoercion(t *testing.T) {
	schema := Schema{"id": {Type: Number, Required: true, Min: Bound(1)}}
	res := Validate(FromParams(map[string]string{"id": "0"}), schema, Params)
	if !hasError(res.Errors, "id must be at least 1") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidate_PatternEnumCustomOrder(t *testing.T) {
	schema := Schema{
		"slug": {
			Type:    String,
			Pattern: regexp.MustCompile(`^[a-z0-9-]+$`),
			Custom: func(v any) error {
				if strings.HasPrefix(v.(string), "admin") {
					return errors.New("slug is reserved")
				}
				return nil
			},
		},
	}
	if res := Validate(map[string]any{"slug": "Bad Slug"}, schema, Body); !hasError(res.Errors, "slug has an invalid format") {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res := Validate(map[string]any{"slug": "admin-page"}, schema, Body); !hasError(res.Errors, "slug is reserved") {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res := Validate(map[string]any{"slug": "ana-ben"}, schema, Body); !res.OK() {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidate_SanitizesBeforeLengthChecks(t *testing.T) {
	res := Validate(map[string]any{"name": "  a\x00b\x07  "}, nameSchema, Body)
	if !res.OK() {
		t.Fatalf("errors = %v", res.Errors)
	}
	if res.Sanitized["name"] != "ab" {
		t.Fatalf("sanitized = %q", res.Sanitized["name"])
	}
}

func TestValidate_SecretKeptVerbatim(t *testing.T) {
	schema := Schema{"password": {Type: String, Required: true, Min: Bound(8), Secret: true}}
	raw := "  correct horse\x01 battery  "
	res := Validate(map[string]any{"password": raw}, schema, Body)
	if !res.OK() {
		t.Fatalf("errors = %v", res.Errors)
	}
	if got := res.Sanitized["password"]; got != raw {
		t.Fatalf("password = %q, want it untouched", got)
	}

	res = Validate(map[string]any{"password": "short"}, schema, Body)
	if !hasError(res.Errors, "password must be at least 8 characters") {
		t.Fatalf("length still checked: %v", res.Errors)
	}
}

func TestValidate_SanitizeOneLevelDeep(t *testing.T) {
	schema := Schema{"meta": {Type: Object}, "list": {Type: Array}}
	res := Validate(map[string]any{
		"meta": map[string]any{
			"title":  " hi\x01 ",
			"nested": map[string]any{"deep": " keep\x01 "},
		},
		"list": []any{" x\x02 ", float64(3)},
	}, schema, Body)

	meta := res.Sanitized["meta"].(map[string]any)
	if meta["title"] != "hi" {
		t.Errorf("title = %q", meta["title"])
	}
	if meta["nested"].(map[string]any)["deep"] != " keep\x01 " {
		t.Error("second level must be left untouched")
	}
	list := res.Sanitized["list"].([]any)
	if list[0] != "x" || list[1] != float64(3) {
		t.Errorf("list = %#v", list)
	}
}

func TestValidate_UnknownFieldsPassThrough(t *testing.T) {
	res := Validate(map[string]any{"name": "ab", "csrf_token": "t"}, nameSchema, Body)
	if res.Sanitized["csrf_token"] != "t" {
		t.Fatal("fields outside the schema should pass through")
	}
}

func TestValidate_EmailAndURL(t *testing.T) {
	schema := Schema{"email": {Type: Email}, "site": {Type: URL}}
	res := Validate(map[string]any{"email": "not-an-email", "site": "javascript:alert(1)"}, schema, Body)
	if !hasError(res.Errors, "email must be a valid email") || !hasError(res.Errors, "site must be a valid URL") {
		t.Fatalf("errors = %v", res.Errors)
	}
	res = Validate(map[string]any{"email": "ana@example.com", "site": "https://ana-ben.example/rsvp"}, schema, Body)
	if !res.OK() {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestValidate_RejectMarkup(t *testing.T) {
	schema := Schema{"title": {Type: String, RejectMarkup: true}}
	res := Validate(map[string]any{"title": `<img src=x onerror=alert(1)>`}, schema, Body)
	if !hasError(res.Errors, "title contains disallowed content") {
		t.Fatalf("errors = %v", res.Errors)
	}
}

func TestSanitizeString_Cap(t *testing.T) {
	long := strings.Repeat("é", MaxStringLength+50)
	got := SanitizeString(long)
	if n := len([]rune(got)); n != MaxStringLength {
		t.Fatalf("rune length = %d", n)
	}
	if got := SanitizeString("line one\nline\ttwo"); got != "line one\nline\ttwo" {
		t.Fatalf("whitespace controls should survive, got %q", got)
	}
}

func TestParseInt(t *testing.T) {
	tests := map[string]float64{"42": 42, " -7": -7, "+3x": 3, "12.9": 12}
	for in, want := range tests {
		if got := parseInt(in); got != want {
			t.Errorf("parseInt(%q) = %v, want %v", in, got, want)
		}
	}
	for _, in := range []string{"", "abc", "-"} {
		if got := parseInt(in); !math.IsNaN(got) {
			t.Errorf("parseInt(%q) = %v, want NaN", in, got)
		}
	}
}
