// Package apierr is the flat error model shared by every request stage and
// handler. An *Error knows its HTTP status and the JSON body clients see;
// anything else that reaches the boundary is reported as a 500.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

type Kind string

const (
	KindRateLimited     Kind = "rate_limit_exceeded"
	KindCSRFMissing     Kind = "csrf_missing"
	KindCSRFInvalid     Kind = "csrf_invalid"
	KindCSRFExpired     Kind = "csrf_expired"
	KindValidation      Kind = "validation_failed"
	KindContentRejected Kind = "content_rejected"
	KindUnauthenticated Kind = "authentication_required"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindUpload          Kind = "upload_rejected"
	KindInternal        Kind = "internal"
)

// Body is the response shape for every failed request.
type Body struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error"`
	Details    []string `json:"details,omitempty"`
	Reason     string   `json:"reason,omitempty"`
	RetryAfter int      `json:"retryAfter,omitempty"`
}

type Error struct {
	Kind       Kind
	Status     int
	Message    string
	Details    []string
	Reason     string
	RetryAfter int
	Cause      error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Body() Body {
	return Body{
		Success:    false,
		Error:      e.Message,
		Details:    e.Details,
		Reason:     e.Reason,
		RetryAfter: e.RetryAfter,
	}
}

func RateLimited(retryAfter int) *Error {
	return &Error{
		Kind:       KindRateLimited,
		Status:     http.StatusTooManyRequests,
		Message:    "Too many requests, please try again later",
		RetryAfter: retryAfter,
	}
}

func CSRFMissing() *Error {
	return &Error{Kind: KindCSRFMissing, Status: http.StatusForbidden, Message: "CSRF token missing"}
}

func CSRFInvalid() *Error {
	return &Error{Kind: KindCSRFInvalid, Status: http.StatusForbidden, Message: "Invalid CSRF token"}
}

func CSRFExpired() *Error {
	return &Error{Kind: KindCSRFExpired, Status: http.StatusForbidden, Message: "CSRF token expired"}
}

func Validation(details []string) *Error {
	return &Error{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Message: "Validation failed",
		Details: details,
	}
}

func ContentRejected(reason string) *Error {
	return &Error{
		Kind:    KindContentRejected,
		Status:  http.StatusBadRequest,
		Message: "Content not allowed",
		Reason:  reason,
	}
}

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Status: http.StatusUnauthorized, Message: "Authentication required"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Status: http.StatusForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Status: http.StatusNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Status: http.StatusConflict, Message: msg}
}

func Upload(status int, msg string) *Error {
	return &Error{Kind: KindUpload, Status: status, Message: msg}
}

func Internal(cause error) *Error {
	return &Error{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		Cause:   cause,
	}
}

// From returns the *Error in err's chain, or wraps err as Internal.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Write renders err as JSON. Retry-After is set for rate-limit errors.
func Write(w http.ResponseWriter, err error) {
	e := From(err)
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	WriteJSON(w, e.Status, e.Body())
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
