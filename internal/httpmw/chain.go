package httpmw

import "net/http"

// Chain wraps h so mws[0] sees the request first. Nil entries are skipped,
// which lets callers list optional middleware inline.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
