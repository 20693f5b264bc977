// Package ratelimit implements the fixed-window limiters that guard the API,
// the progressive variant used on credential endpoints, and a per-IP token
// bucket flood guard that sits in front of the whole router.
//
// Window limiters are keyed by a client fingerprint (ip, user agent, user id)
// and count requests in a fixed window that resets fully at its deadline.
// Counters live in a Store: MemoryStore for a single instance, or the Redis
// store in secstore when several instances must share buckets.
//
// What this does NOT protect against:
//   - distributed attacks across many fingerprints
//   - clients rotating user agents to get fresh buckets
package ratelimit
