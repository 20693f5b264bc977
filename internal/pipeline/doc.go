// Package pipeline composes the request security stages in front of a
// handler:
//
//	RateLimit -> Authenticate -> CSRF -> Validate -> Moderate -> Upload -> Handler
//
// Every stage returns an Outcome. The Runner stops at the first Outcome that
// responds and is the only code that writes a rejection, so no stage can
// respond twice or let a later stage run after a response.
package pipeline
