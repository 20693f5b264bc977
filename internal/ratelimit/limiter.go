package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/keithlinneman/invitegate/internal/clock"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Decision is the outcome of one Check. Remaining is never negative.
type Decision struct {
	Limiter    string
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
	// Penalty is the progressive multiplier in effect, 1 when none.
	Penalty float64
}

// Checker is what the request pipeline needs from a limiter.
type Checker interface {
	Name() string
	Check(ctx context.Context, clientID string) (Decision, error)
}

type Option func(*options)

type options struct {
	clock    clock.Clock
	onDenied func(limiter, clientID string)
}

func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithOnDenied is called on every rejected Check, used for metrics.
func WithOnDenied(fn func(limiter, clientID string)) Option {
	return func(o *options) { o.onDenied = fn }
}

func buildOptions(opts []Option) options {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	o.clock = clock.OrReal(o.clock)
	return o
}

// Limiter is a fixed-window limiter: each key may hit MaxAttempts times per
// window, the window restarts on the first hit after its deadline.
type Limiter struct {
	name   string
	policy Policy
	store  Store
	opts   options
}

func New(name string, p Policy, store Store, opts ...Option) (*Limiter, error) {
	if err := p.Validate(); err != nil {
		return nil, xerrors.Wrapf(err, "limiter %s", name)
	}
	if store == nil {
		return nil, xerrors.Newf("limiter %s: nil store", name)
	}
	return &Limiter{name: name, policy: p, store: store, opts: buildOptions(opts)}, nil
}

func (l *Limiter) Name() string   { return l.name }
func (l *Limiter) Policy() Policy { return l.policy }

func (l *Limiter) Check(ctx context.Context, clientID string) (Decision, error) {
	now := l.opts.clock.Now()
	e, err := l.store.Hit(ctx, windowKey(l.name, clientID), l.policy.Window, now)
	if err != nil {
		return Decision{}, xerrors.Wrapf(err, "hit %s", l.name)
	}
	d := decide(l.name, e, l.policy.MaxAttempts, now)
	if !d.Allowed && l.opts.onDenied != nil {
		l.opts.onDenied(l.name, clientID)
	}
	return d, nil
}

func windowKey(limiter, clientID string) string { return "rl:" + limiter + ":" + clientID }

// decide applies increment-then-compare: the entry may exceed max internally,
// the caller only ever sees a rejection once it does.
func decide(name string, e Entry, limit int, now time.Time) Decision {
	d := Decision{
		Limiter:   name,
		Limit:     limit,
		Remaining: limit - e.Count,
		ResetAt:   e.ResetAt,
		Allowed:   e.Count <= limit,
		Penalty:   1,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = retryAfter(e.ResetAt, now)
	}
	return d
}

func retryAfter(resetAt, now time.Time) int {
	secs := int(math.Ceil(float64(resetAt.Sub(now)) / float64(time.Second)))
	if secs < 1 {
		secs = 1
	}
	return secs
}
