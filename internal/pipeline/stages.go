package pipeline

import (
	"context"
	"sort"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/auth"
	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/fingerprint"
	"github.com/keithlinneman/invitegate/internal/httpmw"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/moderation"
	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/upload"
	"github.com/keithlinneman/invitegate/internal/validate"
)

// Stage is one step of the pipeline.
type Stage interface {
	Name() string
	Run(ctx context.Context, x *Exchange) Outcome
}

type stageFunc struct {
	name string
	fn   func(ctx context.Context, x *Exchange) Outcome
}

func (s stageFunc) Name() string { return s.name }
func (s stageFunc) Run(ctx context.Context, x *Exchange) Outcome { return s.fn(ctx, x) }

// StageFunc adapts a function to a Stage.
func StageFunc(name string, fn func(ctx context.Context, x *Exchange) Outcome) Stage {
	return stageFunc{name: name, fn: fn}
}

func userID(x *Exchange) string {
	if x.Identity == nil {
		return ""
	}
	return x.Identity.ID
}

// RateLimit checks the request's client fingerprint against c. The limit
// headers are always set. A store failure lets the request through.
func RateLimit(c ratelimit.Checker) Stage {
	return StageFunc("ratelimit", func(ctx context.Context, x *Exchange) Outcome {
		r := x.Request
		x.ClientID = fingerprint.ClientID(httpmw.ClientIPFromContext(ctx), r.UserAgent(), userID(x))

		d, err := c.Check(ctx, x.ClientID)
		if err != nil {
			log.FromContext(ctx).Error(ctx, err, "rate limit check failed", "limiter", c.Name())
			return Proceed()
		}
		ratelimit.SetHeaders(x.Header, d)
		if !d.Allowed {
			log.FromContext(ctx).Warn(ctx, "rate limit exceeded",
				"limiter", c.Name(),
				"client_prefix", log.Prefix(x.ClientID, 8),
				"retry_after", d.RetryAfter,
			)
			return Reject(apierr.RateLimited(d.RetryAfter))
		}
		return Proceed()
	})
}

// Authenticate requires an identity. One attached by auth.Optional is used
// as is, otherwise the bearer token is resolved with a.
func Authenticate(a auth.Authenticator) Stage {
	return StageFunc("auth", func(ctx context.Context, x *Exchange) Outcome {
		if x.Identity != nil {
			return Proceed()
		}
		tok := auth.BearerToken(x.Request)
		if tok == "" || a == nil {
			return Reject(apierr.Unauthenticated())
		}
		id, err := a.Authenticate(ctx, tok)
		if err != nil {
			return Reject(apierr.Unauthenticated())
		}
		x.Identity = &id
		return Proceed()
	})
}

// CSRF validates unsafe requests against the session token. Exempt
// requests get the live token re-emitted, issuing one if needed.
func CSRF(g *csrf.Guard) Stage {
	return StageFunc("csrf", func(ctx context.Context, x *Exchange) Outcome {
		r := x.Request
		x.Session = csrf.Session(r)

		if g.Exempt(r.Method, r.URL.Path) {
			t, err := g.Ensure(ctx, x.Session)
			if err != nil {
				return Reject(apierr.Internal(err))
			}
			g.SetToken(x.Header, t)
			return Proceed()
		}

		var body map[string]any
		if !isMultipart(r) {
			b, err := x.Body()
			if err != nil {
				return Reject(apierr.From(err))
			}
			body = b
		}
		res, err := g.Validate(ctx, x.Session, csrf.SuppliedFrom(r, body))
		if err != nil {
			return Reject(apierr.Internal(err))
		}
		if !res.Valid {
			return Reject(res.Err())
		}
		return Proceed()
	})
}

// Schemas are the per-surface validation rules of a route.
type Schemas struct {
	Body   validate.Schema
	Query  validate.Schema
	Params validate.Schema
}

func (s Schemas) empty() bool {
	return len(s.Body) == 0 && len(s.Query) == 0 && len(s.Params) == 0
}

// Validate checks every configured surface and reports all failures
// together. On success the sanitized values replace the raw ones.
func Validate(s Schemas, onFailed func(surface validate.Surface)) Stage {
	return StageFunc("validate", func(ctx context.Context, x *Exchange) Outcome {
		var details []string
		check := func(surface validate.Surface, data map[string]any, schema validate.Schema) map[string]any {
			if len(schema) == 0 {
				return data
			}
			res := validate.Validate(data, schema, surface)
			if !res.OK() {
				details = append(details, res.Errors...)
				if onFailed != nil {
					onFailed(surface)
				}
				log.FromContext(ctx).Info(ctx, "validation failed", "surface", string(surface), "errors", len(res.Errors))
			}
			return res.Sanitized
		}

		if len(s.Body) > 0 {
			body, err := x.Body()
			if err != nil {
				return Reject(apierr.From(err))
			}
			x.SetBody(check(validate.Body, body, s.Body))
		}
		x.Query = check(validate.Query, validate.FromValues(x.Request.URL.Query()), s.Query)
		x.Params = check(validate.Params, validate.FromParams(x.rawParams()), s.Params)

		if len(details) > 0 {
			return Reject(apierr.Validation(details))
		}
		return Proceed()
	})
}

// Moderate runs the moderation context configured for each body field.
// The first rejected field, in name order, fails the request.
func Moderate(fields map[string]moderation.Context, onRejected func(reason string)) Stage {
	names := make([]string, 0, len(fields))
	for f := range fields {
		names = append(names, f)
	}
	sort.Strings(names)

	return StageFunc("moderation", func(ctx context.Context, x *Exchange) Outcome {
		body, err := x.Body()
		if err != nil {
			return Reject(apierr.From(err))
		}
		if body == nil {
			return Proceed()
		}
		x.Moderation = make(map[string]moderation.Result, len(names))
		for _, f := range names {
			text, ok := body[f].(string)
			if !ok || text == "" {
				continue
			}
			res := moderation.Moderate(fields[f], text)
			x.Moderation[f] = res
			if res.IsApproved {
				continue
			}
			log.FromContext(ctx).Warn(ctx, "content rejected",
				"field", f,
				"reason", res.Reason,
				"score", res.Score,
				"categories", res.Categories,
			)
			if onRejected != nil {
				onRejected(res.Reason)
			}
			return Reject(apierr.ContentRejected(res.Reason))
		}
		return Proceed()
	})
}

// Upload validates multipart files against p. Requests without a multipart
// body pass through with no files.
func Upload(p upload.Policy) Stage {
	return StageFunc("upload", func(ctx context.Context, x *Exchange) Outcome {
		if !isMultipart(x.Request) {
			return Proceed()
		}
		files, aerr := p.Check(x.Writer, x.Request)
		if aerr != nil {
			log.FromContext(ctx).Info(ctx, "upload rejected", "status", aerr.Status, "reason", aerr.Message)
			return Reject(aerr)
		}
		x.Files = files
		return Proceed()
	})
}
