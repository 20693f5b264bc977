package secstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/keithlinneman/invitegate/internal/csrf"
)

func TestMemorySweep(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.Windows.Hit(ctx, "short", time.Minute, now)
	s.Windows.Hit(ctx, "long", time.Hour, now)
	s.Tokens.Put(ctx, "old", csrf.Token{Value: "a", Expires: now.Add(time.Minute)})
	s.Tokens.Put(ctx, "new", csrf.Token{Value: "b", Expires: now.Add(time.Hour)})

	removed, sizes := s.Sweep(now.Add(5 * time.Minute))
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if sizes["ratelimit"] != 1 || sizes["csrf"] != 1 {
		t.Fatalf("sizes = %v", sizes)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if _, sizes := s.Sweep(now); sizes["ratelimit"] != 0 || sizes["csrf"] != 0 {
		t.Fatalf("sizes after Clear = %v", sizes)
	}
}

func TestSweeperRun(t *testing.T) {
	s := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Tokens.Put(ctx, "gone", csrf.Token{Value: "a", Expires: time.Now().Add(-time.Second)})

	swept := make(chan map[string]int, 1)
	sw := NewSweeper(s, WithInterval(10*time.Millisecond), WithOnSweep(func(sizes map[string]int) {
		select {
		case swept <- sizes:
		default:
		}
	}))
	done := make(chan struct{})
	go func() {
		sw.Run(ctx)
		close(done)
	}()

	select {
	case sizes := <-swept:
		if sizes["csrf"] != 0 {
			t.Fatalf("csrf entries after sweep = %d", sizes["csrf"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, "", "", "", 0)
	if err != nil || s.Backend() != BackendMemory {
		t.Fatalf("default backend = %v, %v", s, err)
	}

	mr := miniredis.RunT(t)
	s, err = Open(ctx, BackendRedis, mr.Addr(), "", 0)
	if err != nil {
		t.Fatalf("Open redis: %v", err)
	}
	defer s.Close()
	if s.Backend() != BackendRedis {
		t.Fatalf("backend = %s", s.Backend())
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	if _, err := Open(ctx, "etcd", "", "", 0); err == nil {
		t.Fatal("unknown backend should fail")
	}
}

func TestOpen_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := Open(ctx, BackendRedis, addr, "", 0); err == nil {
		t.Fatal("expected ping failure")
	}
}
