package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/invitegate/internal/version"
)

type ServerMetrics struct {
	reg       *prometheus.Registry
	handler   http.Handler
	inflight  prometheus.Gauge
	reqTotal  *prometheus.CounterVec
	reqDur    *prometheus.HistogramVec
	respBytes *prometheus.HistogramVec
	buildInfo *prometheus.GaugeVec

	errorsTotal    *prometheus.CounterVec
	httpPanicTotal prometheus.Counter

	profilingActive prometheus.Gauge

	// security pipeline
	rateLimitedTotal      *prometheus.CounterVec
	floodDeniedTotal      prometheus.Counter
	floodCapacityTotal    prometheus.Counter
	csrfRejectedTotal     *prometheus.CounterVec
	validationFailedTotal *prometheus.CounterVec
	contentRejectedTotal  *prometheus.CounterVec
	storeEntries          *prometheus.GaugeVec
}

// New returns a fresh registry + standard collectors + HTTP and security
// metrics. Labels are bounded: route patterns, limiter names, fixed reasons.
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576},
		}, []string{"method", "route"}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered handler panics",
		}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		rateLimitedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_rate_limited_total",
			Help: "Requests rejected by a named rate limiter",
		}, []string{"limiter"}),
		floodDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "security_flood_denied_total",
			Help: "Requests rejected by the per-IP flood guard",
		}),
		floodCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "security_flood_capacity_total",
			Help: "Times a client first exhausted its flood guard bucket",
		}),
		csrfRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_csrf_rejected_total",
			Help: "Requests rejected by CSRF validation by reason",
		}, []string{"reason"}),
		validationFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_validation_failed_total",
			Help: "Requests failing schema validation by surface",
		}, []string{"surface"}),
		contentRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "security_content_rejected_total",
			Help: "Submissions rejected by content moderation by reason",
		}, []string{"reason"}),
		storeEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "security_store_entries",
			Help: "Live entries in the in-memory security stores after the last sweep",
		}, []string{"store"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.buildInfo,
		m.errorsTotal,
		m.httpPanicTotal,
		m.profilingActive,
		m.rateLimitedTotal,
		m.floodDeniedTotal,
		m.floodCapacityTotal,
		m.csrfRejectedTotal,
		m.validationFailedTotal,
		m.contentRejectedTotal,
		m.storeEntries,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         vi.App,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildID,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// IncRateLimited matches ratelimit.WithOnDenied. The client id is not a label.
func (m *ServerMetrics) IncRateLimited(limiter, _ string) {
	m.rateLimitedTotal.WithLabelValues(limiter).Inc()
}

func (m *ServerMetrics) IncFloodDenied() {
	m.floodDeniedTotal.Inc()
}

func (m *ServerMetrics) IncFloodCapacity() {
	m.floodCapacityTotal.Inc()
}

func (m *ServerMetrics) IncCSRFRejected(reason string) {
	m.csrfRejectedTotal.WithLabelValues(reason).Inc()
}

func (m *ServerMetrics) IncValidationFailed(surface string) {
	m.validationFailedTotal.WithLabelValues(surface).Inc()
}

func (m *ServerMetrics) IncContentRejected(reason string) {
	m.contentRejectedTotal.WithLabelValues(reason).Inc()
}

// SetStoreEntries matches secstore.WithOnSweep.
func (m *ServerMetrics) SetStoreEntries(sizes map[string]int) {
	for store, n := range sizes {
		m.storeEntries.WithLabelValues(store).Set(float64(n))
	}
}
