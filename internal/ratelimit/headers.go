package ratelimit

import (
	"net/http"
	"strconv"
)

const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderPenalty   = "X-RateLimit-Penalty"
)

// isoMillis matches the ISO-8601 form browsers produce with toISOString.
const isoMillis = "2006-01-02T15:04:05.000Z"

// SetHeaders writes the X-RateLimit-* headers for d. The penalty header is
// only present while a progressive multiplier is in effect.
func SetHeaders(h http.Header, d Decision) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, d.ResetAt.UTC().Format(isoMillis))
	if d.Penalty > 1 {
		h.Set(HeaderPenalty, strconv.FormatFloat(d.Penalty, 'f', -1, 64))
	}
}
