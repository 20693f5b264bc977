// Package fingerprint derives the client keys used by the rate limiters and
// the CSRF guard. There is no server-side session: clients are identified by
// a digest of what they send.
//
// Two users behind the same NAT or proxy with an identical User-Agent share a
// fingerprint and therefore share rate-limit buckets and CSRF tokens. This is
// a known weakness kept for compatibility with existing clients.
package fingerprint

import (
	"strings"

	"github.com/keithlinneman/invitegate/internal/cryptoutil"
)

const anonymous = "anonymous"

// ClientID keys rate-limit buckets by ip, user agent and user id. An empty
// userID is treated as anonymous.
func ClientID(ip, userAgent, userID string) string {
	if userID == "" {
		userID = anonymous
	}
	return digest(ip, userAgent, userID)
}

// SessionID keys CSRF tokens by ip and user agent only, so a token issued
// before login stays valid after it.
func SessionID(ip, userAgent string) string {
	return digest(ip, userAgent)
}

func digest(parts ...string) string {
	return cryptoutil.SHA256Hex([]byte(strings.Join(parts, "\x1f")))
}
