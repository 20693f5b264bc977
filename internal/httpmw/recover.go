package httpmw

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Recover turns a handler panic into a logged error and a JSON 500.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.WithStack(e)
				} else {
					err = xerrors.New(fmt.Sprint(rec))
				}
				ctx := r.Context()
				logger.With("method", r.Method, "path", r.URL.Path).
					Error(ctx, err, "httpserver panic recovered")

				apierr.Write(w, apierr.Internal(err))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
