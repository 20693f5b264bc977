package httpmw

import "net/http"

// apiCSP locks responses down completely: the server only returns JSON,
// so nothing it serves should ever load, frame or submit anything.
const apiCSP = "default-src 'none'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'"

// SecurityHeaders is middleware that adds common security headers to HTTP responses
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()

		// Require HTTPS for one year, including subdomains, and allow preload
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")

		h.Set("Content-Security-Policy", apiCSP)

		// Disable MIME type sniffing, uploads are served back from storage
		h.Set("X-Content-Type-Options", "nosniff")

		// Old Clickjacking protection - dont allow embedding in frames
		h.Set("X-Frame-Options", "DENY")

		// Referrer policy to control information sent in Referer header
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")

		// Permissions policy to disable various powerful (in)security features
		h.Set("Permissions-Policy", "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()")

		// Prevent Adobe Flash and Acrobat from loading content
		h.Set("X-Permitted-Cross-Domain-Policies", "none")

		// Cross-Origin-Opener-Policy to isolate browsing context
		h.Set("Cross-Origin-Opener-Policy", "same-origin")

		// The invitation front end lives on a sibling subdomain
		h.Set("Cross-Origin-Resource-Policy", "same-site")

		next.ServeHTTP(w, r)
	})
}
