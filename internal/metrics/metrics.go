// Package metrics provides Prometheus instrumentation for the engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations by kind and outcome
	// ("committed" or "reverted").
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsc_operations_total",
		Help: "Total number of engine operations",
	}, []string{"kind", "outcome"})

	// OperationLatency tracks engine operation latency, rollbacks included.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dsc_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// LiquidationsTotal counts committed liquidations per collateral asset.
	LiquidationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsc_liquidations_total",
		Help: "Committed liquidations",
	}, []string{"asset"})

	// HealthFactorRejections counts operations reverted because they would
	// leave an account below the minimum health factor.
	HealthFactorRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsc_health_factor_rejections_total",
		Help: "Operations rejected by the solvency check",
	})

	// StalePriceRejections counts price reads refused by the oracle guard.
	StalePriceRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsc_stale_price_rejections_total",
		Help: "Price reads rejected as stale or invalid",
	}, []string{"asset"})

	// TotalDebt tracks the debt currently outstanding across all accounts.
	TotalDebt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsc_total_debt",
		Help: "Outstanding debt token supply minted by the engine",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dsc_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dsc_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dsc_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// RateLimited counts requests refused by the API rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dsc_http_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Label by route pattern, not raw path, to bound cardinality
		// (account addresses appear in paths).
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over connections behind the
// middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
