// Package auth resolves bearer tokens to identities and hashes passwords.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/keithlinneman/invitegate/internal/tier"
)

type Identity struct {
	ID    string    `json:"id"`
	Email string    `json:"email"`
	Role  string    `json:"role"`
	Tier  tier.Tier `json:"membership_tier"`
}

// Authenticator resolves a bearer token. It returns ErrInvalidToken for
// tokens that are malformed, expired or forged.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// BearerToken extracts the token from an Authorization: Bearer header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// Optional attaches the identity of a valid bearer token to the request
// context and lets every request through. Routes that require a user
// enforce it later in their pipeline.
func Optional(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tok := BearerToken(r); tok != "" {
				if id, err := a.Authenticate(r.Context(), tok); err == nil {
					r = r.WithContext(WithIdentity(r.Context(), id))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
