package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Prometheus metric names.
const (
	MetricHTTPRequestsTotal       = "crm_http_requests_total"
	MetricHTTPRequestDuration     = "crm_http_request_duration_seconds"
	MetricTokenRefreshTotal       = "crm_token_refresh_total"
	MetricMutationsTotal          = "crm_mutations_total"
	MetricCacheInvalidationsTotal = "crm_cache_invalidations_total"
	MetricCacheRollbacksTotal     = "crm_cache_rollbacks_total"
)

// Outcome labels shared by refresh and mutation counters
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics holds the client's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
	tokenRefresh       *prometheus.CounterVec
	mutations          *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	cacheRollbacks     *prometheus.CounterVec
}

// NewMetrics creates and registers all client collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "Outgoing API requests by method and status code.",
		}, []string{"method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "Outgoing API request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		tokenRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricTokenRefreshTotal,
			Help: "Access token refresh attempts by outcome.",
		}, []string{"outcome"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricMutationsTotal,
			Help: "Optimistic mutations by name and outcome.",
		}, []string{"mutation", "outcome"}),
		cacheInvalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheInvalidationsTotal,
			Help: "Cache keys marked stale, by resource.",
		}, []string{"resource"}),
		cacheRollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricCacheRollbacksTotal,
			Help: "Cache entries restored from snapshot after a failed mutation.",
		}, []string{"resource"}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.tokenRefresh,
		m.mutations,
		m.cacheInvalidations,
		m.cacheRollbacks,
	)
	return m
}

// Registry exposes the underlying registry for scraping and tests
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTP records one completed request; status 0 means a transport failure
func (m *Metrics) ObserveHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.httpRequests.WithLabelValues(method, label).Inc()
	m.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// TokenRefresh records a refresh attempt
func (m *Metrics) TokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.tokenRefresh.WithLabelValues(outcome).Inc()
}

// Mutation records a settled mutation
func (m *Metrics) Mutation(name, outcome string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(name, outcome).Inc()
}

// CacheInvalidated records keys marked stale for a resource
func (m *Metrics) CacheInvalidated(resource string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheInvalidations.WithLabelValues(resource).Add(float64(n))
}

// CacheRolledBack records a snapshot restore for a resource
func (m *Metrics) CacheRolledBack(resource string) {
	if m == nil {
		return
	}
	m.cacheRollbacks.WithLabelValues(resource).Inc()
}

// Serve exposes the registry over HTTP until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr, path string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics endpoint listening", zap.String("addr", ln.Addr().String()), zap.String("path", path))
	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
