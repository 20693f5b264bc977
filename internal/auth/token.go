package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/keithlinneman/invitegate/internal/clock"
	"github.com/keithlinneman/invitegate/internal/tier"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

var ErrInvalidToken = errors.New("invalid token")

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Tier  string `json:"tier"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 access tokens. It holds no state
// beyond the key, so every instance sharing the secret accepts the same
// tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewTokenService(secret []byte, issuer string, ttl time.Duration, c clock.Clock) (*TokenService, error) {
	if len(secret) < 32 {
		return nil, xerrors.New("jwt secret must be at least 32 bytes")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: secret, issuer: issuer, ttl: ttl, clock: clock.OrReal(c)}, nil
}

// Issue signs a token for id and returns it with its expiry.
func (s *TokenService) Issue(id Identity) (string, time.Time, error) {
	now := s.clock.Now().UTC()
	exp := now.Add(s.ttl)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Email: id.Email,
		Role:  id.Role,
		Tier:  string(id.Tier),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, xerrors.Wrap(err, "sign token")
	}
	return signed, exp, nil
}

func (s *TokenService) Authenticate(_ context.Context, token string) (Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil || c.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{ID: c.Subject, Email: c.Email, Role: c.Role, Tier: tier.Parse(c.Tier)}, nil
}
