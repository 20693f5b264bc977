package secstore

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/invitegate/internal/csrf"
	"github.com/keithlinneman/invitegate/internal/ratelimit"
	"github.com/keithlinneman/invitegate/internal/xerrors"
)

// DefaultPrefix namespaces every key this package writes.
const DefaultPrefix = "invitegate:"

// tokenGrace keeps expired CSRF tokens readable for a while so the guard can
// tell an expired token from an unknown session.
const tokenGrace = time.Hour

// hitScript resets a missing or elapsed window, increments it and refreshes
// the key TTL in one step. Times are unix milliseconds supplied by the caller
// so all instances agree with the application clock.
var hitScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local reset = tonumber(redis.call('HGET', KEYS[1], 'reset'))
if not reset or now >= reset then
  reset = now + window
  redis.call('HSET', KEYS[1], 'count', 0, 'reset', reset)
end
local count = redis.call('HINCRBY', KEYS[1], 'count', 1)
redis.call('PEXPIRE', KEYS[1], reset - now)
return {count, reset}
`)

// violationScript forgives one violation per full hour since the last one,
// adds a violation stamped now and sets the TTL to the full decay time.
var violationScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local hour = tonumber(ARGV[2])
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
local last = tonumber(redis.call('HGET', KEYS[1], 'last')) or now
local hours = math.floor((now - last) / hour)
if hours > 0 then
  count = math.max(count - hours, 0)
end
count = count + 1
redis.call('HSET', KEYS[1], 'count', count, 'last', now)
redis.call('PEXPIRE', KEYS[1], count * hour)
return count
`)

var (
	_ ratelimit.Store        = (*RedisStore)(nil)
	_ ratelimit.HistoryStore = (*RedisStore)(nil)
	_ csrf.Store             = (*RedisStore)(nil)
)

// RedisStore implements ratelimit.Store, ratelimit.HistoryStore and
// csrf.Store on top of a shared Redis.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(parts ...string) string {
	k := s.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration, now time.Time) (ratelimit.Entry, error) {
	vals, err := hitScript.Run(ctx, s.client, []string{s.key("win", key)},
		now.UnixMilli(), window.Milliseconds()).Int64Slice()
	if err != nil {
		return ratelimit.Entry{}, xerrors.Wrapf(err, "redis hit %s", key)
	}
	if len(vals) != 2 {
		return ratelimit.Entry{}, xerrors.Newf("redis hit %s: unexpected reply %v", key, vals)
	}
	return ratelimit.Entry{Count: int(vals[0]), ResetAt: time.UnixMilli(vals[1])}, nil
}

func (s *RedisStore) History(ctx context.Context, key string) (ratelimit.History, error) {
	m, err := s.client.HGetAll(ctx, s.key("hist", key)).Result()
	if err != nil {
		return ratelimit.History{}, xerrors.Wrapf(err, "redis history %s", key)
	}
	if len(m) == 0 {
		return ratelimit.History{}, nil
	}
	count, _ := strconv.Atoi(m["count"])
	last, _ := strconv.ParseInt(m["last"], 10, 64)
	return ratelimit.History{Count: count, Last: time.UnixMilli(last)}, nil
}

// RecordViolation runs violationScript. The record expires once every
// violation in it would have decayed.
func (s *RedisStore) RecordViolation(ctx context.Context, key string, now time.Time) (ratelimit.History, error) {
	ms := now.UnixMilli()
	count, err := violationScript.Run(ctx, s.client, []string{s.key("hist", key)},
		ms, time.Hour.Milliseconds()).Int64()
	if err != nil {
		return ratelimit.History{}, xerrors.Wrapf(err, "redis record violation %s", key)
	}
	return ratelimit.History{Count: int(count), Last: time.UnixMilli(ms)}, nil
}

func (s *RedisStore) Put(ctx context.Context, session string, t csrf.Token) error {
	k := s.key("csrf", session)
	ttl := time.Until(t.Expires) + tokenGrace
	if ttl <= 0 {
		ttl = tokenGrace
	}
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, "value", t.Value, "expires", t.Expires.UnixMilli())
		p.Expire(ctx, k, ttl)
		return nil
	})
	return xerrors.Wrap(err, "redis csrf put")
}

func (s *RedisStore) Get(ctx context.Context, session string) (csrf.Token, bool, error) {
	m, err := s.client.HGetAll(ctx, s.key("csrf", session)).Result()
	if err != nil {
		return csrf.Token{}, false, xerrors.Wrap(err, "redis csrf get")
	}
	if m["value"] == "" {
		return csrf.Token{}, false, nil
	}
	exp, _ := strconv.ParseInt(m["expires"], 10, 64)
	return csrf.Token{Value: m["value"], Expires: time.UnixMilli(exp)}, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, session string) error {
	return xerrors.Wrap(s.client.Del(ctx, s.key("csrf", session)).Err(), "redis csrf delete")
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Len counts the keys under the prefix.
func (s *RedisStore) Len(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	for iter.Next(ctx) {
		n++
	}
	return n, iter.Err()
}

// Clear deletes every key under the prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 256).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) Close() error { return s.client.Close() }
