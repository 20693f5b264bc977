package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/invitegate/internal/health"
	"github.com/keithlinneman/invitegate/internal/httpmw"
	"github.com/keithlinneman/invitegate/internal/log"
)

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	Health       health.Probe
	Readiness    health.Probe

	// APIRoutes mounts the application routes on the router.
	APIRoutes func(chi.Router)

	ClientIPOpts httpmw.ClientIPOptions
	// FloodMW is the per-IP token bucket that runs ahead of tracing and
	// the per-route pipelines.
	FloodMW func(http.Handler) http.Handler
	// MaxBodyBytes caps every request body; 0 means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}
