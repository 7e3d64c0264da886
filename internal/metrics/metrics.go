// Package metrics provides Prometheus instrumentation for the tariff engine.
package metrics

import (
	"bufio"
	"fmt"
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
	// QuotesTotal counts tariff quotes, partitioned by mode and resolved type.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_quotes_total",
		Help: "Total number of tariff quotes computed",
	}, []string{"mode", "type"})

	// QuoteLatency tracks end-to-end quote latency, history recording included.
	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tariff_quote_latency_seconds",
		Help:    "Quote computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	// HistoryAppends counts calculations appended to session history.
	HistoryAppends = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariff_history_appends_total",
		Help: "Calculations appended to session history",
	})

	// HistoryEvictions counts entries dropped from the tail of a full history.
	HistoryEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariff_history_evictions_total",
		Help: "History entries evicted by the size cap",
	})

	// CartMoves counts history to cart moves by terminal outcome.
	CartMoves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_cart_moves_total",
		Help: "Export cart move operations by outcome",
	}, []string{"outcome"})

	// AdminOverrideWrites counts admin override mutations by operation.
	AdminOverrideWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_admin_override_writes_total",
		Help: "Admin tariff override writes",
	}, []string{"op"})

	// SessionOps counts session store calls by backend, operation and result.
	SessionOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_session_ops_total",
		Help: "Session store operations",
	}, []string{"backend", "op", "result"})

	// EventsPublished counts activity events by result.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_events_published_total",
		Help: "Activity events published to the event stream",
	}, []string{"type", "result"})

	// CurrencyRefreshes counts exchange rate table refreshes by result.
	CurrencyRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_currency_refreshes_total",
		Help: "Exchange rate table refresh attempts",
	}, []string{"result"})

	// ComparisonsTotal counts multi-country comparisons.
	ComparisonsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tariff_comparisons_total",
		Help: "Multi-country tariff comparisons served",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tariff_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tariff_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tariff_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps ids out of the label set.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
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

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack is required by the websocket upgrade on /api/ws.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
