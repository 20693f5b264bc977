package ratelimit

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

// Entry is one fixed window for one key.
type Entry struct {
	Count   int
	ResetAt time.Time
}

func (e Entry) expired(now time.Time) bool { return !now.Before(e.ResetAt) }

// Store holds window counters. Hit must reset a missing or expired entry to
// {0, now+window} and then increment it, as one atomic step per key.
type Store interface {
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (Entry, error)
}

// History is the violation record of one client under a progressive limiter.
type History struct {
	Count int
	Last  time.Time
}

// HistoryStore holds violation records. History returns the stored record
// without decay applied. RecordViolation must decay the stored record to now,
// add one violation stamped now and store it, as one atomic step per key.
type HistoryStore interface {
	History(ctx context.Context, key string) (History, error)
	RecordViolation(ctx context.Context, key string, now time.Time) (History, error)
}

type shard struct {
	mu      sync.Mutex
	windows map[string]Entry
	history map[string]History
}

// MemoryStore is an in-process Store and HistoryStore. Keys are spread over
// fnv-hashed shards so unrelated clients do not contend on one mutex.
type MemoryStore struct {
	shards []*shard
}

func NewMemoryStore(shards int) *MemoryStore {
	if shards <= 0 {
		shards = 32
	}
	s := &MemoryStore{shards: make([]*shard, shards)}
	for i := range s.shards {
		s.shards[i] = &shard{
			windows: make(map[string]Entry),
			history: make(map[string]History),
		}
	}
	return s
}

func (s *MemoryStore) shard(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

func (s *MemoryStore) Hit(_ context.Context, key string, window time.Duration, now time.Time) (Entry, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	e, ok := sh.windows[key]
	if !ok || e.expired(now) {
		e = Entry{ResetAt: now.Add(window)}
	}
	e.Count++
	sh.windows[key] = e
	return e, nil
}

func (s *MemoryStore) History(_ context.Context, key string) (History, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.history[key], nil
}

func (s *MemoryStore) RecordViolation(_ context.Context, key string, now time.Time) (History, error) {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	h := decay(sh.history[key], now)
	h.Count++
	h.Last = now
	sh.history[key] = h
	return h, nil
}

// Sweep drops expired windows and fully decayed histories. It returns the
// number of entries removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, e := range sh.windows {
			if e.expired(now) {
				delete(sh.windows, k)
				n++
			}
		}
		for k, h := range sh.history {
			if decay(h, now).Count == 0 {
				delete(sh.history, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}

// Len returns the number of live window and history entries.
func (s *MemoryStore) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.windows) + len(sh.history)
		sh.mu.Unlock()
	}
	return n
}

func (s *MemoryStore) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.windows = make(map[string]Entry)
		sh.history = make(map[string]History)
		sh.mu.Unlock()
	}
}
