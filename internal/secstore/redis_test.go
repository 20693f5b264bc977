package secstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/invitegate/internal/csrf"
)

func setupRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, "test:"), mr
}

func TestRedisHit_WindowLifecycle(t *testing.T) {
	s, _ := setupRedis(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	e, err := s.Hit(ctx, "k", time.Minute, now)
	if err != nil {
		t.Fatalf("Hit: %v", err)
	}
	if e.Count != 1 || !e.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("first hit = %+v", e)
	}

	e, _ = s.Hit(ctx, "k", time.Minute, now.Add(30*time.Second))
	if e.Count != 2 || !e.ResetAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("second hit = %+v", e)
	}

	later := now.Add(time.Minute)
	e, _ = s.Hit(ctx, "k", time.Minute, later)
	if e.Count != 1 || !e.ResetAt.Equal(later.Add(time.Minute)) {
		t.Fatalf("hit at reset boundary = %+v, want fresh window", e)
	}
}

func TestRedisHit_SetsTTL(t *testing.T) {
	s, mr := setupRedis(t)
	now := time.UnixMilli(1_700_000_000_000)
	if _, err := s.Hit(context.Background(), "k", time.Minute, now); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("test:win:k"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("ttl = %s", ttl)
	}
}

func TestRedisHit_Concurrent(t *testing.T) {
	s, _ := setupRedis(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	const n = 40
	var wg sync.WaitGroup
	counts := make(chan int, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := s.Hit(ctx, "shared", time.Minute, now)
			if err == nil {
				counts <- e.Count
			}
		}()
	}
	wg.Wait()
	close(counts)

	seen := make(map[int]bool)
	for c := range counts {
		if seen[c] {
			t.Fatalf("count %d returned twice", c)
		}
		seen[c] = true
	}
	if len(seen) != n {
		t.Fatalf("got %d distinct counts, want %d", len(seen), n)
	}
}

func TestRedisHistory(t *testing.T) {
	s, mr := setupRedis(t)
	ctx := context.Background()

	h, err := s.History(ctx, "c")
	if err != nil || h.Count != 0 {
		t.Fatalf("empty history = %+v, %v", h, err)
	}

	last := time.UnixMilli(1_700_000_000_000)
	for i := 1; i <= 3; i++ {
		h, err := s.RecordViolation(ctx, "c", last)
		if err != nil {
			t.Fatal(err)
		}
		if h.Count != i {
			t.Fatalf("violation %d: count = %d", i, h.Count)
		}
	}
	h, _ = s.History(ctx, "c")
	if h.Count != 3 || !h.Last.Equal(last) {
		t.Fatalf("history = %+v", h)
	}
	if ttl := mr.TTL("test:hist:c"); ttl != 3*time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}

	// two hours later two violations are forgiven before the new one counts
	later := last.Add(2*time.Hour + 10*time.Minute)
	h, err = s.RecordViolation(ctx, "c", later)
	if err != nil || h.Count != 2 || !h.Last.Equal(later) {
		t.Fatalf("after decay = %+v, %v", h, err)
	}
	if ttl := mr.TTL("test:hist:c"); ttl != 2*time.Hour {
		t.Fatalf("ttl = %s", ttl)
	}
}

func TestRedisRecordViolation_Concurrent(t *testing.T) {
	s, _ := setupRedis(t)
	ctx := context.Background()
	now := time.UnixMilli(1_700_000_000_000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RecordViolation(ctx, "c", now); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()
	if h, _ := s.History(ctx, "c"); h.Count != 50 {
		t.Fatalf("count = %d, want 50", h.Count)
	}
}

func TestRedisTokens(t *testing.T) {
	s, _ := setupRedis(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "sess"); ok || err != nil {
		t.Fatalf("missing token: ok=%v err=%v", ok, err)
	}

	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond)
	if err := s.Put(ctx, "sess", csrf.Token{Value: "abc", Expires: exp}); err != nil {
		t.Fatal(err)
	}
	tok, ok, err := s.Get(ctx, "sess")
	if err != nil || !ok || tok.Value != "abc" || !tok.Expires.Equal(exp) {
		t.Fatalf("Get = %+v ok=%v err=%v", tok, ok, err)
	}

	if err := s.Delete(ctx, "sess"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.Get(ctx, "sess"); ok {
		t.Fatal("token survived Delete")
	}
}

func TestRedisGuardIntegration(t *testing.T) {
	s, _ := setupRedis(t)
	g := csrf.New(s)
	ctx := context.Background()

	tok, err := g.Issue(ctx, "sess")
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.Validate(ctx, "sess", csrf.Supplied{Header: tok.Value})
	if err != nil || !res.Valid {
		t.Fatalf("Validate = %+v", res)
	}
}

func TestRedisClear(t *testing.T) {
	s, mr := setupRedis(t)
	ctx := context.Background()
	now := time.Now()
	s.Hit(ctx, "a", time.Minute, now)
	s.Put(ctx, "b", csrf.Token{Value: "x", Expires: now.Add(time.Hour)})
	mr.Set("other:key", "keep")

	if n, _ := s.Len(ctx); n != 2 {
		t.Fatalf("Len = %d", n)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Fatalf("Len after Clear = %d", n)
	}
	if !mr.Exists("other:key") {
		t.Fatal("Clear removed a key outside the prefix")
	}
}
