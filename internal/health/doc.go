// Package health provides liveness and readiness probes and their HTTP
// handlers.
//
// Readiness combines the shutdown gate with pings of the database and the
// shared security store, so a replica that lost Redis stops receiving
// traffic instead of serving with its limiters failing open.
package health
