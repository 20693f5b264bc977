package secstore

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/log"
	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

const DefaultSweepInterval = 5 * time.Minute

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Stores bundles the backends the pipeline needs. It is built once at
// startup and handed to the limiters and the CSRF guard.
type Stores struct {
	Windows ratelimit.Store
	History ratelimit.HistoryStore
	Tokens  csrf.Store

	backend string
	limits  *ratelimit.MemoryStore
	tokens  *csrf.MemoryStore
	redis   *RedisStore
}

func NewMemory() *Stores {
	l := ratelimit.NewMemoryStore(0)
	t := csrf.NewMemoryStore()
	return &Stores{
		Windows: l,
		History: l,
		Tokens:  t,
		backend: BackendMemory,
		limits:  l,
		tokens:  t,
	}
}

// NewRedis verifies the connection before returning.
func NewRedis(ctx context.Context, client redis.UniversalClient, prefix string) (*Stores, error) {
	r := NewRedisStore(client, prefix)
	if err := r.Ping(ctx); err != nil {
		return nil, xerrors.Wrap(err, "redis ping")
	}
	return &Stores{
		Windows: r,
		History: r,
		Tokens:  r,
		backend: BackendRedis,
		redis:   r,
	}, nil
}

// Open builds the backend named in configuration.
func Open(ctx context.Context, backend, addr, password string, db int) (*Stores, error) {
	switch backend {
	case "", BackendMemory:
		return NewMemory(), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
		s, err := NewRedis(ctx, client, DefaultPrefix)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return s, nil
	}
	return nil, xerrors.Newf("unknown store backend %q", backend)
}

func (s *Stores) Backend() string { return s.backend }

// Sweep drops expired entries from the memory backends and returns the
// number of entries still held per store. Redis expires on its own.
func (s *Stores) Sweep(now time.Time) (removed int, sizes map[string]int) {
	sizes = make(map[string]int, 2)
	if s.limits != nil {
		removed += s.limits.Sweep(now)
		sizes["ratelimit"] = s.limits.Len()
	}
	if s.tokens != nil {
		removed += s.tokens.Sweep(now)
		sizes["csrf"] = s.tokens.Len()
	}
	return removed, sizes
}

// Ping reports backend health for readiness probes.
func (s *Stores) Ping(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Ping(ctx)
}

// Clear empties every store.
func (s *Stores) Clear(ctx context.Context) error {
	if s.limits != nil {
		s.limits.Clear()
	}
	if s.tokens != nil {
		s.tokens.Clear()
	}
	if s.redis != nil {
		return s.redis.Clear(ctx)
	}
	return nil
}

func (s *Stores) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	return errors.Join(errs...)
}

// Sweeper runs Stores.Sweep on an interval until its context ends.
type Sweeper struct {
	stores   *Stores
	interval time.Duration
	onSweep  func(sizes map[string]int)
}

type SweeperOption func(*Sweeper)

func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithOnSweep receives the entry counts after each sweep, for gauges.
func WithOnSweep(fn func(sizes map[string]int)) SweeperOption {
	return func(s *Sweeper) { s.onSweep = fn }
}

func NewSweeper(stores *Stores, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{stores: stores, interval: DefaultSweepInterval}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run blocks until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	if s.stores.backend != BackendMemory {
		return
	}
	L := log.FromContext(ctx)
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			removed, sizes := s.stores.Sweep(now)
			if removed > 0 {
				L.Debug(ctx, "security store sweep", "removed", removed, "ratelimit", sizes["ratelimit"], "csrf", sizes["csrf"])
			}
			if s.onSweep != nil {
				s.onSweep(sizes)
			}
		}
	}
}
