package csrf

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/clock"
	"github.com/keithlinneman/invitegate/internal/cryptoutil"
	"github.com/keithlinneman/invitegate/internal/fingerprint"
	"github.com/keithlinneman/invitegate/internal/httpmw"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

const (
	HeaderName = "X-CSRF-Token"
	CookieName = "csrf-token"
	FieldName  = "csrf_token"

	DefaultTTL = time.Hour
	tokenBytes = 32
)

// Reason is why a token was rejected. The values double as metric labels.
type Reason string

const (
	ReasonMissing        Reason = "missing"
	ReasonInvalid        Reason = "invalid" // unknown session or wrong token
	ReasonExpired        Reason = "expired"
	ReasonCookieMismatch Reason = "cookie_mismatch"
)

type Result struct {
	Valid  bool
	Reason Reason
}

// Err maps a failed result onto the api error clients receive.
func (r Result) Err() *apierr.Error {
	switch {
	case r.Valid:
		return nil
	case r.Reason == ReasonMissing:
		return apierr.CSRFMissing()
	case r.Reason == ReasonExpired:
		return apierr.CSRFExpired()
	default:
		return apierr.CSRFInvalid()
	}
}

// Supplied holds every place a client may echo the token back.
type Supplied struct {
	Header string
	Body   string
	Query  string
	Cookie string
}

// Token returns the echoed token by precedence: header, body, query.
func (s Supplied) Token() string {
	for _, v := range []string{s.Header, s.Body, s.Query} {
		if v != "" {
			return v
		}
	}
	return ""
}

// SuppliedFrom collects the token candidates from r. body is the already
// decoded JSON body, may be nil.
func SuppliedFrom(r *http.Request, body map[string]any) Supplied {
	s := Supplied{
		Header: r.Header.Get(HeaderName),
		Query:  r.URL.Query().Get(FieldName),
	}
	if v, ok := body[FieldName].(string); ok {
		s.Body = v
	}
	if c, err := r.Cookie(CookieName); err == nil {
		s.Cookie = c.Value
	}
	return s
}

type Guard struct {
	store        Store
	clock        clock.Clock
	ttl          time.Duration
	doubleSubmit bool
	secure       bool
	skip         []string
	onReject     func(Reason)
}

type Option func(*Guard)

func WithTTL(d time.Duration) Option { return func(g *Guard) { g.ttl = d } }

func WithClock(c clock.Clock) Option { return func(g *Guard) { g.clock = c } }

// WithDoubleSubmit requires the cookie to match the echoed token.
func WithDoubleSubmit(on bool) Option { return func(g *Guard) { g.doubleSubmit = on } }

// WithSecureCookie marks the cookie Secure, enabled in production.
func WithSecureCookie(on bool) Option { return func(g *Guard) { g.secure = on } }

// WithSkipPaths exempts path prefixes from validation.
func WithSkipPaths(prefixes ...string) Option {
	return func(g *Guard) { g.skip = append(g.skip, prefixes...) }
}

// WithOnReject is called for each failed validation, used for metrics.
func WithOnReject(fn func(Reason)) Option { return func(g *Guard) { g.onReject = fn } }

func New(store Store, opts ...Option) *Guard {
	g := &Guard{store: store, ttl: DefaultTTL}
	for _, o := range opts {
		o(g)
	}
	g.clock = clock.OrReal(g.clock)
	return g
}

// Session derives the fingerprint a request's token is bound to.
func Session(r *http.Request) string {
	return fingerprint.SessionID(httpmw.ClientIPFromContext(r.Context()), r.UserAgent())
}

// Exempt reports whether a request skips validation: safe methods and
// configured path prefixes.
func (g *Guard) Exempt(method, path string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	for _, p := range g.skip {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// Issue creates a fresh token for session, replacing any previous one.
func (g *Guard) Issue(ctx context.Context, session string) (Token, error) {
	v, err := cryptoutil.RandomHex(tokenBytes)
	if err != nil {
		return Token{}, xerrors.Wrap(err, "generate csrf token")
	}
	t := Token{Value: v, Expires: g.clock.Now().Add(g.ttl)}
	if err := g.store.Put(ctx, session, t); err != nil {
		return Token{}, xerrors.Wrap(err, "store csrf token")
	}
	return t, nil
}

// Ensure returns the live token for session, issuing one if there is none
// or it has expired. Repeated safe requests therefore keep the same token.
func (g *Guard) Ensure(ctx context.Context, session string) (Token, error) {
	t, ok, err := g.store.Get(ctx, session)
	if err != nil {
		return Token{}, xerrors.Wrap(err, "load csrf token")
	}
	if ok && !t.Expired(g.clock.Now()) {
		return t, nil
	}
	return g.Issue(ctx, session)
}

// Validate checks the supplied token against the one stored for session.
// Failures are logged with a token prefix only.
func (g *Guard) Validate(ctx context.Context, session string, s Supplied) (Result, error) {
	res, err := g.validate(ctx, session, s)
	if err != nil {
		return Result{}, err
	}
	if !res.Valid {
		log.FromContext(ctx).Warn(ctx, "csrf validation failed",
			"reason", string(res.Reason),
			"token_prefix", log.Prefix(s.Token(), 8),
			"session_prefix", log.Prefix(session, 8),
		)
		if g.onReject != nil {
			g.onReject(res.Reason)
		}
	}
	return res, nil
}

func (g *Guard) validate(ctx context.Context, session string, s Supplied) (Result, error) {
	supplied := s.Token()
	if supplied == "" {
		return Result{Reason: ReasonMissing}, nil
	}
	stored, ok, err := g.store.Get(ctx, session)
	if err != nil {
		return Result{}, xerrors.Wrap(err, "load csrf token")
	}
	if !ok {
		return Result{Reason: ReasonInvalid}, nil
	}
	if stored.Expired(g.clock.Now()) {
		if err := g.store.Delete(ctx, session); err != nil {
			return Result{}, xerrors.Wrap(err, "delete expired csrf token")
		}
		return Result{Reason: ReasonExpired}, nil
	}
	if !cryptoutil.Equal(supplied, stored.Value) {
		return Result{Reason: ReasonInvalid}, nil
	}
	if g.doubleSubmit && !cryptoutil.Equal(s.Cookie, stored.Value) {
		return Result{Reason: ReasonCookieMismatch}, nil
	}
	return Result{Valid: true}, nil
}

// Invalidate drops the session's token, used on logout.
func (g *Guard) Invalidate(ctx context.Context, session string) error {
	return xerrors.Wrap(g.store.Delete(ctx, session), "delete csrf token")
}

// SetToken adds the token header and cookie to h.
func (g *Guard) SetToken(h http.Header, t Token) {
	h.Set(HeaderName, t.Value)
	h.Add("Set-Cookie", g.cookie(t.Value, int(g.ttl/time.Second)).String())
}

// ClearToken expires the cookie on the client.
func (g *Guard) ClearToken(h http.Header) {
	h.Add("Set-Cookie", g.cookie("", -1).String())
}

func (g *Guard) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: false, // read by client script to echo in the header
		Secure:   g.secure,
		SameSite: http.SameSiteStrictMode,
	}
}
