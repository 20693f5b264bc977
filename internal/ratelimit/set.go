package ratelimit

import (
	"sort"

	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// Set is the collection of named limiters. Limiters never share buckets, so
// a client throttled by one is unaffected in the others.
type Set struct {
	limiters map[string]Checker
}

// NewSet builds one limiter per policy. Policies with MaxMultiplier > 1
// become Progressive limiters backed by history.
func NewSet(policies map[string]Policy, store Store, history HistoryStore, opts ...Option) (*Set, error) {
	s := &Set{limiters: make(map[string]Checker, len(policies))}
	for name, p := range policies {
		var (
			c   Checker
			err error
		)
		if p.Progressive() {
			c, err = NewProgressive(name, p, store, history, opts...)
		} else {
			c, err = New(name, p, store, opts...)
		}
		if err != nil {
			return nil, err
		}
		s.limiters[name] = c
	}
	return s, nil
}

func (s *Set) Get(name string) (Checker, bool) {
	c, ok := s.limiters[name]
	return c, ok
}

// Lookup is Get with an error for unknown names, used while wiring routes.
func (s *Set) Lookup(name string) (Checker, error) {
	c, ok := s.limiters[name]
	if !ok {
		return nil, xerrors.Newf("unknown rate limiter %q", name)
	}
	return c, nil
}

// Names returns the configured limiter names, sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.limiters))
	for n := range s.limiters {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
