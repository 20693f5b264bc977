// Package cryptoutil holds the small hashing and randomness helpers shared by
// the security stages: fingerprint digests, token generation and
// constant-time comparison.
package cryptoutil
