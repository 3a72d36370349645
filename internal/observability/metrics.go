package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the application.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	policyDenials   *prometheus.CounterVec
	throttleDenials *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheEvictions  prometheus.Counter
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chapterhouse_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chapterhouse_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	policyDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chapterhouse_policy_denials_total",
		Help: "Access checks denied, by reason.",
	}, []string{"reason"})
	throttleDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chapterhouse_throttle_denials_total",
		Help: "Requests denied by the per-action throttle, by class.",
	}, []string{"class"})
	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chapterhouse_cache_hits_total",
		Help: "Tag cache lookups served from a live entry.",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chapterhouse_cache_misses_total",
		Help: "Tag cache lookups that required a compute.",
	})
	cacheEvictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chapterhouse_cache_invalidated_entries_total",
		Help: "Entries removed by tag invalidation.",
	})
	registry.MustRegister(requests, duration, policyDenials, throttleDenials, cacheHits, cacheMisses, cacheEvictions)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		policyDenials:   policyDenials,
		throttleDenials: throttleDenials,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		cacheEvictions:  cacheEvictions,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// PolicyDenied counts a denied access check.
func (m *Metrics) PolicyDenied(reason string) {
	if m == nil {
		return
	}
	m.policyDenials.WithLabelValues(reason).Inc()
}

// ThrottleDenied counts a quota rejection.
func (m *Metrics) ThrottleDenied(class string) {
	if m == nil {
		return
	}
	m.throttleDenials.WithLabelValues(class).Inc()
}

// CacheHit implements tagcache.Metrics.
func (m *Metrics) CacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// CacheMiss implements tagcache.Metrics.
func (m *Metrics) CacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}

// CacheInvalidated implements tagcache.Metrics.
func (m *Metrics) CacheInvalidated(entries int) {
	if m != nil {
		m.cacheEvictions.Add(float64(entries))
	}
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
