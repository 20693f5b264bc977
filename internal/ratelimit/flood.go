package ratelimit

import (
	"context"
	"math"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/invitegate/internal/apierr"
	"github.com/keithlinneman/invitegate/internal/httpmw"
)

// visitor tracks a single IPs bucket and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged resets when the entry is evicted and re-created
	logged bool
}

// FloodGuard is a per-IP token bucket applied to every request before
// routing. It bounds raw request volume; the fixed-window limiters enforce
// per-operation budgets after it.
type FloodGuard struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	perSecond rate.Limit
	burst     int

	// ttl controls how long an idle IP stays in the map
	ttl time.Duration

	// new IPs are rejected once the map holds maxVisitors entries
	maxVisitors int
	atCapacity  bool

	// onFirstDenied fires once per visitor, onDenied on every rejection
	onFirstDenied func(ip string)
	onDenied      func(ip string)
	onCapacity    func()
}

type FloodOption func(*FloodGuard)

// WithRate sets the refill rate and bucket size.
// WithRate(10, 50) allows 50 requests at once, then 10 per second.
func WithRate(perSecond float64, burst int) FloodOption {
	return func(g *FloodGuard) {
		g.perSecond = rate.Limit(perSecond)
		g.burst = burst
	}
}

func WithTTL(d time.Duration) FloodOption {
	return func(g *FloodGuard) { g.ttl = d }
}

// WithOnFirstDenied is separate from WithFloodDenied so a flood is logged
// once but counted on every request.
func WithOnFirstDenied(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) { g.onFirstDenied = fn }
}

func WithFloodDenied(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) { g.onDenied = fn }
}

// WithMaxVisitors bounds the number of tracked IPs.
func WithMaxVisitors(n int) FloodOption {
	return func(g *FloodGuard) {
		if n > 0 {
			g.maxVisitors = n
		}
	}
}

// WithOnCapacity fires when the visitor map first fills up, and again only
// after eviction has freed room.
func WithOnCapacity(fn func()) FloodOption {
	return func(g *FloodGuard) { g.onCapacity = fn }
}

// NewFloodGuard starts the eviction goroutine, which stops when ctx is done.
func NewFloodGuard(ctx context.Context, opts ...FloodOption) *FloodGuard {
	g := &FloodGuard{
		visitors:  make(map[string]*visitor),
		perSecond: 20,
		burst:     60,
		ttl:       5 * time.Minute,

		maxVisitors: 100000,
	}
	for _, o := range opts {
		o(g)
	}
	go g.evict(ctx)
	return g
}

func (g *FloodGuard) allow(ip string) bool {
	g.mu.Lock()
	v, ok := g.visitors[ip]
	if !ok {
		if len(g.visitors) >= g.maxVisitors {
			notify := !g.atCapacity
			g.atCapacity = true
			g.mu.Unlock()
			if notify && g.onCapacity != nil {
				g.onCapacity()
			}
			if g.onDenied != nil {
				g.onDenied(ip)
			}
			return false
		}
		v = &visitor{limiter: rate.NewLimiter(g.perSecond, g.burst)}
		g.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	allowed := v.limiter.Allow()
	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// hooks may be slow, never call them under the lock
	g.mu.Unlock()

	if first && g.onFirstDenied != nil {
		g.onFirstDenied(ip)
	}
	if !allowed && g.onDenied != nil {
		g.onDenied(ip)
	}
	return allowed
}

func (g *FloodGuard) evict(ctx context.Context) {
	t := time.NewTicker(g.ttl / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			g.mu.Lock()
			for ip, v := range g.visitors {
				if now.Sub(v.lastSeen) > g.ttl {
					delete(g.visitors, ip)
				}
			}
			if len(g.visitors) < g.maxVisitors {
				g.atCapacity = false
			}
			g.mu.Unlock()
		}
	}
}

func (g *FloodGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.visitors)
}

// Middleware rejects requests over the per-IP budget with 429.
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	retry := 1
	if g.perSecond > 0 {
		retry = int(math.Ceil(1 / float64(g.perSecond)))
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.allow(httpmw.ClientIPFromContext(r.Context())) {
			apierr.Write(w, apierr.RateLimited(max(retry, 1)))
			return
		}
		next.ServeHTTP(w, r)
	})
}
