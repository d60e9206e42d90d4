// Package metrics exposes Prometheus counters for the login pipeline.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup results
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheError    = "error"
	CacheWriteErr = "write_error"
)

// Recorder is used by the services layer. Implementations must be safe for concurrent use.
type Recorder interface {
	RecordAuthorize(outcome string, duration time.Duration)
	RecordCacheLookup(result string)
	RecordBackendError(backend string)
	RecordRateLimited()
}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	authorizeTotal    *prometheus.CounterVec
	authorizeDuration prometheus.Histogram
	cacheTotal        *prometheus.CounterVec
	backendErrors     *prometheus.CounterVec
	rateLimited       prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authorizeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_authorize_total",
			Help: "Login attempts by outcome",
		}, []string{"outcome"}),
		authorizeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "turnstile_authorize_duration_seconds",
			Help:    "Total latency of login attempts, including the timing guard",
			Buckets: []float64{0.1, 0.2, 0.25, 0.3, 0.35, 0.4, 0.5, 1, 2.5, 5},
		}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_existence_cache_total",
			Help: "Existence cache operations by result",
		}, []string{"result"}),
		backendErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "turnstile_backend_errors_total",
			Help: "Backend failures observed by the login pipeline",
		}, []string{"backend"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "turnstile_rate_limited_total",
			Help: "Login attempts rejected by the per-email rate limiter",
		}),
	}

	reg.MustRegister(
		c.authorizeTotal,
		c.authorizeDuration,
		c.cacheTotal,
		c.backendErrors,
		c.rateLimited,
	)

	return c
}

// RecordAuthorize counts one attempt. Parameterized reasons such as
// "ineligible:banned" are folded into their prefix to bound label cardinality.
func (c *Collector) RecordAuthorize(outcome string, duration time.Duration) {
	c.authorizeTotal.WithLabelValues(OutcomeLabel(outcome)).Inc()
	c.authorizeDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordCacheLookup(result string) {
	c.cacheTotal.WithLabelValues(result).Inc()
}

func (c *Collector) RecordBackendError(backend string) {
	c.backendErrors.WithLabelValues(backend).Inc()
}

func (c *Collector) RecordRateLimited() {
	c.rateLimited.Inc()
}

// OutcomeLabel strips the detail after the first colon
func OutcomeLabel(outcome string) string {
	if i := strings.IndexByte(outcome, ':'); i >= 0 {
		return outcome[:i]
	}
	return outcome
}

// Noop discards everything
type Noop struct{}

func (Noop) RecordAuthorize(string, time.Duration) {}
func (Noop) RecordCacheLookup(string)              {}
func (Noop) RecordBackendError(string)             {}
func (Noop) RecordRateLimited()                    {}

// Handler returns the HTTP handler for Prometheus scrapes
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
