package httpmw

import (
	"net/http"

	"github.com/keithlinneman/invitegate/internal/apierr"
)

// MaxBody caps request bodies at limit bytes. A declared Content-Length
// over the limit is refused up front with a JSON 413; otherwise reads past
// the limit fail with *http.MaxBytesError.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				apierr.Write(w, apierr.Upload(http.StatusRequestEntityTooLarge, "Request body too large"))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
