package csrf

import (
	"context"
	"sync"
	"time"
)

type Token struct {
	Value   string
	Expires time.Time
}

func (t Token) Expired(now time.Time) bool { return !now.Before(t.Expires) }

// Store keeps the live token per session fingerprint.
type Store interface {
	Put(ctx context.Context, session string, t Token) error
	// Get reports ok=false when no token exists for the session.
	Get(ctx context.Context, session string) (t Token, ok bool, err error)
	Delete(ctx context.Context, session string) error
}

// MemoryStore is a mutex-guarded in-process Store.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[string]Token
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]Token)}
}

func (s *MemoryStore) Put(_ context.Context, session string, t Token) error {
	s.mu.Lock()
	s.tokens[session] = t
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, session string) (Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[session]
	return t, ok, nil
}

func (s *MemoryStore) Delete(_ context.Context, session string) error {
	s.mu.Lock()
	delete(s.tokens, session)
	s.mu.Unlock()
	return nil
}

// Sweep removes expired tokens and returns how many were dropped.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, t := range s.tokens {
		if t.Expired(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n
}

func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.tokens = make(map[string]Token)
	s.mu.Unlock()
}
