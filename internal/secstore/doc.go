// Package secstore owns the state behind the security pipeline: rate-limit
// windows, violation histories and CSRF tokens. The memory backend keeps
// everything in process and needs the Sweeper to drop expired entries. The
// Redis backend shares state between instances and relies on key TTLs.
package secstore
