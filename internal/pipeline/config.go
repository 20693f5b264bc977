package pipeline

import (
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/moderation"
	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/upload"
	"github.com/keithlinneman/invitegate/internal/validate"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Config declares which stages a route runs.
type Config struct {
	Name string
	// RateLimiter names a limiter in Deps.Limiters, empty for none.
	RateLimiter string
	RequireAuth bool
	CSRF        bool
	Schemas     Schemas
	// Moderate maps body fields to the moderation context applied to them.
	Moderate map[string]moderation.Context
	Upload   *upload.Policy
}

// Deps are the shared components stages are built from.
type Deps struct {
	Limiters *ratelimit.Set
	Auth     auth.Authenticator
	CSRF     *csrf.Guard

	OnValidationFailed func(surface validate.Surface)
	OnContentRejected  func(reason string)
}

// Build turns cfg into a Runner. Stages always run in the fixed order
// ratelimit, auth, csrf, validate, moderation, upload.
func (d Deps) Build(cfg Config) (*Runner, error) {
	var stages []Stage
	if cfg.RateLimiter != "" {
		if d.Limiters == nil {
			return nil, xerrors.Newf("pipeline %s: no limiters configured", cfg.Name)
		}
		c, err := d.Limiters.Lookup(cfg.RateLimiter)
		if err != nil {
			return nil, xerrors.Wrapf(err, "pipeline %s", cfg.Name)
		}
		stages = append(stages, RateLimit(c))
	}
	if cfg.RequireAuth {
		stages = append(stages, Authenticate(d.Auth))
	}
	if cfg.CSRF {
		if d.CSRF == nil {
			return nil, xerrors.Newf("pipeline %s: csrf requested without a guard", cfg.Name)
		}
		stages = append(stages, CSRF(d.CSRF))
	}
	if !cfg.Schemas.empty() {
		stages = append(stages, Validate(cfg.Schemas, d.OnValidationFailed))
	}
	if len(cfg.Moderate) > 0 {
		stages = append(stages, Moderate(cfg.Moderate, d.OnContentRejected))
	}
	if cfg.Upload != nil {
		stages = append(stages, Upload(*cfg.Upload))
	}
	return NewRunner(cfg.Name, stages...), nil
}

// MustBuild panics on a wiring error, for route tables built at startup.
func (d Deps) MustBuild(cfg Config) *Runner {
	r, err := d.Build(cfg)
	if err != nil {
		panic(err)
	}
	return r
}
