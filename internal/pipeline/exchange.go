package pipeline

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/moderation"
	"github.com/keithlinneman/invitegate/internal/upload"
)

// MaxJSONBody bounds the JSON bodies the pipeline decodes.
const MaxJSONBody = 1 << 20

// Exchange is the state of one request as it moves through the stages.
type Exchange struct {
	Request *http.Request
	Writer  http.ResponseWriter

	// Header collects response headers set by stages. The runner copies
	// them onto the response whether the request proceeds or not.
	Header http.Header

	Identity *auth.Identity
	ClientID string
	Session  string

	// Query and Params hold validated values once the validate stage ran.
	Query  map[string]any
	Params map[string]any

	Files      []upload.File
	Moderation map[string]moderation.Result

	body      map[string]any
	bodyErr   error
	bodyReady bool
}

func newExchange(w http.ResponseWriter, r *http.Request) *Exchange {
	x := &Exchange{Request: r, Writer: w, Header: make(http.Header)}
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		x.Identity = &id
	}
	return x
}

// Body decodes a JSON request body once and returns the same map on every
// call. Requests without a JSON body yield nil.
func (x *Exchange) Body() (map[string]any, error) {
	if x.bodyReady {
		return x.body, x.bodyErr
	}
	x.bodyReady = true
	if !hasJSONBody(x.Request) {
		return nil, nil
	}
	dec := json.NewDecoder(io.LimitReader(x.Request.Body, MaxJSONBody))
	var m map[string]any
	if err := dec.Decode(&m); err != nil && !errors.Is(err, io.EOF) {
		x.bodyErr = apierr.Validation([]string{"body must be a JSON object"})
		return nil, x.bodyErr
	}
	x.body = m
	return m, nil
}

// SetBody replaces the decoded body, used after sanitizing.
func (x *Exchange) SetBody(m map[string]any) {
	x.body, x.bodyErr, x.bodyReady = m, nil, true
}

// String returns a string field from the body, "" when absent.
func (x *Exchange) String(field string) string {
	s, _ := x.body[field].(string)
	return s
}

func (x *Exchange) rawParams() map[string]string {
	rc := chi.RouteContext(x.Request.Context())
	if rc == nil {
		return nil
	}
	out := make(map[string]string, len(rc.URLParams.Keys))
	for i, k := range rc.URLParams.Keys {
		out[k] = rc.URLParams.Values[i]
	}
	return out
}

// Param returns a validated path parameter, falling back to the raw value.
func (x *Exchange) Param(name string) string {
	if s, ok := x.Params[name].(string); ok {
		return s
	}
	return chi.URLParam(x.Request, name)
}

func hasJSONBody(r *http.Request) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return false
	}
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return r.ContentLength > 0
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}
