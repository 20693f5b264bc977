package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/invitegate/internal/clock"
)

func newTestProgressive(t *testing.T, p Policy) (*Progressive, *MemoryStore, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(t0)
	store := NewMemoryStore(4)
	pl, err := NewProgressive("login", p, store, store, WithClock(fc))
	if err != nil {
		t.Fatalf("NewProgressive: %v", err)
	}
	return pl, store, fc
}

func TestProgressive_Effective(t *testing.T) {
	pl, _, _ := newTestProgressive(t, Policy{Window: 10 * time.Minute, MaxAttempts: 5, MaxMultiplier: 3})

	tests := []struct {
		violations int
		window     time.Duration
		limit      int
		mult       float64
	}{
		{0, 10 * time.Minute, 5, 1},
		{1, 15 * time.Minute, 3, 1.5},
		{2, 20 * time.Minute, 2, 2},
		{3, 25 * time.Minute, 2, 2.5},
		{4, 30 * time.Minute, 1, 3},
		{9, 30 * time.Minute, 1, 3},
	}
	for _, tt := range tests {
		w, l, m := pl.Effective(tt.violations)
		if w != tt.window || l != tt.limit || m != tt.mult {
			t.Errorf("Effective(%d) = (%s, %d, %g), want (%s, %d, %g)",
				tt.violations, w, l, m, tt.window, tt.limit, tt.mult)
		}
	}
}

func TestProgressive_FloorNeverBelowOne(t *testing.T) {
	pl, _, _ := newTestProgressive(t, Policy{Window: time.Minute, MaxAttempts: 1, MaxMultiplier: 10})
	if _, l, _ := pl.Effective(5); l != 1 {
		t.Fatalf("limit = %d, want 1", l)
	}
}

func TestProgressive_TightensAfterRejection(t *testing.T) {
	base := Policy{Window: 10 * time.Minute, MaxAttempts: 4, MaxMultiplier: 4}
	pl, _, fc := newTestProgressive(t, base)

	for i := 0; i < 4; i++ {
		if d := mustCheck(t, pl, "c"); !d.Allowed || d.Penalty != 1 {
			t.Fatalf("request %d: allowed=%v penalty=%g", i+1, d.Allowed, d.Penalty)
		}
	}
	if mustCheck(t, pl, "c").Allowed {
		t.Fatal("5th request should be rejected")
	}

	fc.Advance(10 * time.Minute)
	d := mustCheck(t, pl, "c")
	if !d.Allowed {
		t.Fatal("first request of a new window should be allowed")
	}
	if d.Limit > base.MaxAttempts || d.Limit != 2 {
		t.Fatalf("Limit = %d, want 2 (floor(4/1.5))", d.Limit)
	}
	if got := d.ResetAt.Sub(fc.Now()); got < base.Window || got != 15*time.Minute {
		t.Fatalf("window = %s, want 15m", got)
	}
	if d.Penalty != 1.5 {
		t.Fatalf("Penalty = %g", d.Penalty)
	}
}

func TestProgressive_DecaysPerHour(t *testing.T) {
	pl, store, fc := newTestProgressive(t, Policy{Window: time.Minute, MaxAttempts: 10, MaxMultiplier: 4})
	ctx := context.Background()
	hkey := historyKey("login", "c")
	for i := 0; i < 3; i++ {
		store.RecordViolation(ctx, hkey, t0)
	}

	fc.Advance(2*time.Hour + 30*time.Minute)
	if d := mustCheck(t, pl, "c"); d.Penalty != 1.5 {
		t.Fatalf("Penalty = %g, want 1.5 after two hours of decay", d.Penalty)
	}

	// the half hour already elapsed counts toward the next decay
	fc.Advance(30 * time.Minute)
	if d := mustCheck(t, pl, "c"); d.Penalty != 1 {
		t.Fatalf("Penalty = %g, want fully decayed", d.Penalty)
	}

	// a new violation starts from the decayed count, not the stored one
	h, _ := store.RecordViolation(ctx, hkey, fc.Now())
	if h.Count != 1 || !h.Last.Equal(fc.Now()) {
		t.Fatalf("history = %+v", h)
	}
}

// slowHistory adds latency between reading a record and returning it, the
// way a network round trip to a shared store would.
type slowHistory struct{ *MemoryStore }

func (s slowHistory) History(ctx context.Context, key string) (History, error) {
	h, err := s.MemoryStore.History(ctx, key)
	time.Sleep(5 * time.Millisecond)
	return h, err
}

func TestProgressive_ConcurrentRejectionsAllCount(t *testing.T) {
	fc := clock.NewFake(t0)
	store := NewMemoryStore(4)
	pl, err := NewProgressive("login", Policy{Window: time.Hour, MaxAttempts: 1, MaxMultiplier: 4},
		store, slowHistory{store}, WithClock(fc))
	if err != nil {
		t.Fatal(err)
	}
	if !mustCheck(t, pl, "c").Allowed {
		t.Fatal("first request should be allowed")
	}

	const n = 200
	var rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := pl.Check(context.Background(), "c")
			if err != nil {
				t.Error(err)
				return
			}
			if !d.Allowed {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	if rejected.Load() != n {
		t.Fatalf("rejected = %d, want %d", rejected.Load(), n)
	}
	h, _ := store.History(context.Background(), historyKey("login", "c"))
	if h.Count != n {
		t.Fatalf("recorded violations = %d, want %d", h.Count, n)
	}
}

func TestDecay(t *testing.T) {
	tests := []struct {
		name string
		in   History
		at   time.Duration
		want int
	}{
		{"empty", History{}, time.Hour, 0},
		{"under an hour", History{Count: 2, Last: t0}, 59 * time.Minute, 2},
		{"one hour", History{Count: 2, Last: t0}, time.Hour, 1},
		{"all forgiven", History{Count: 2, Last: t0}, 5 * time.Hour, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := decay(tt.in, t0.Add(tt.at)).Count; got != tt.want {
				t.Fatalf("count = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestNewProgressive_RequiresMultiplier(t *testing.T) {
	s := NewMemoryStore(1)
	if _, err := NewProgressive("x", Policy{Window: time.Minute, MaxAttempts: 3}, s, s); err == nil {
		t.Fatal("policy without multiplier should be rejected")
	}
}
