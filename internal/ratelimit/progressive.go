package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Progressive tightens a fixed-window policy for repeat offenders. Every
// rejection records a violation; with v violations the multiplier is
// min(1+0.5v, MaxMultiplier), the window is stretched by it and the allowance
// is floor(MaxAttempts/multiplier), never below 1. One violation decays per
// full hour since the last one.
type Progressive struct {
	name    string
	policy  Policy
	store   Store
	history HistoryStore
	opts    options
}

func NewProgressive(name string, p Policy, store Store, history HistoryStore, opts ...Option) (*Progressive, error) {
	if err := p.Validate(); err != nil {
		return nil, xerrors.Wrapf(err, "limiter %s", name)
	}
	if !p.Progressive() {
		return nil, xerrors.Newf("limiter %s: max_multiplier must be > 1 for a progressive limiter", name)
	}
	if store == nil || history == nil {
		return nil, xerrors.Newf("limiter %s: nil store", name)
	}
	return &Progressive{name: name, policy: p, store: store, history: history, opts: buildOptions(opts)}, nil
}

func (p *Progressive) Name() string   { return p.name }
func (p *Progressive) Policy() Policy { return p.policy }

// Effective returns the window and allowance that apply after v violations.
func (p *Progressive) Effective(violations int) (window time.Duration, limit int, multiplier float64) {
	multiplier = math.Min(1+float64(violations)*0.5, p.policy.MaxMultiplier)
	window = time.Duration(float64(p.policy.Window) * multiplier)
	limit = int(math.Floor(float64(p.policy.MaxAttempts) / multiplier))
	if limit < 1 {
		limit = 1
	}
	return window, limit, multiplier
}

func (p *Progressive) Check(ctx context.Context, clientID string) (Decision, error) {
	now := p.opts.clock.Now()
	hkey := historyKey(p.name, clientID)

	stored, err := p.history.History(ctx, hkey)
	if err != nil {
		return Decision{}, xerrors.Wrapf(err, "load violations for %s", p.name)
	}

	window, limit, mult := p.Effective(decay(stored, now).Count)
	e, err := p.store.Hit(ctx, windowKey(p.name, clientID), window, now)
	if err != nil {
		return Decision{}, xerrors.Wrapf(err, "hit %s", p.name)
	}

	d := decide(p.name, e, limit, now)
	d.Penalty = mult

	if !d.Allowed {
		if _, err := p.history.RecordViolation(ctx, hkey, now); err != nil {
			return Decision{}, xerrors.Wrapf(err, "record violation for %s", p.name)
		}
		if p.opts.onDenied != nil {
			p.opts.onDenied(p.name, clientID)
		}
	}
	return d, nil
}

func historyKey(limiter, clientID string) string { return "rlv:" + limiter + ":" + clientID }

// decay forgives one violation per full hour elapsed since the last one.
// Stored records are only rewritten on a new violation, so decay is always
// measured from the last one recorded.
func decay(h History, now time.Time) History {
	if h.Count <= 0 {
		return History{}
	}
	hours := int(now.Sub(h.Last) / time.Hour)
	if hours <= 0 {
		return h
	}
	if hours >= h.Count {
		return History{}
	}
	h.Count -= hours
	h.Last = h.Last.Add(time.Duration(hours) * time.Hour)
	return h
}
