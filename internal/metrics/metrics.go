// Package metrics provides Prometheus instrumentation for the clearing engine.
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

	"github.com/atmx/clearing-engine/internal/model"
)

var (
	// OrdersSubmitted counts orders accepted into the queue.
	OrdersSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearing_orders_submitted_total",
		Help: "Orders accepted into the market queue",
	})

	// QuotesPosted counts quotes posted (including replacements).
	QuotesPosted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearing_quotes_posted_total",
		Help: "Quotes posted to the registry",
	})

	// IntentsDropped counts agent intents the core refused.
	IntentsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearing_intents_dropped_total",
		Help: "Agent intents refused by the coordinator",
	}, []string{"kind"})

	// FillsTotal counts fills, partitioned by good.
	FillsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearing_fills_total",
		Help: "Orders filled by clearing",
	}, []string{"good"})

	// RejectionsTotal counts unfilled orders by reason.
	RejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearing_rejections_total",
		Help: "Orders consumed by clearing without a fill",
	}, []string{"reason"})

	// FillVolume tracks cumulative filled quantity per good.
	FillVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearing_fill_volume_total",
		Help: "Cumulative filled quantity",
	}, []string{"good"})

	// ClearDuration observes the wall time of one clearing pass.
	ClearDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clearing_clear_duration_seconds",
		Help:    "Clearing pass latency in seconds",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	})

	// CurrentTick is the last cleared tick.
	CurrentTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clearing_tick",
		Help: "Last cleared simulation tick",
	})

	// MoneySupply is the sum of all ledger balances after the last tick.
	MoneySupply = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clearing_money_supply",
		Help: "Sum of all ledger balances",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "clearing_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearing_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clearing_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveClear records the outcome of one clearing pass.
func ObserveClear(tick int, report model.ClearReport, took time.Duration) {
	ClearDuration.Observe(took.Seconds())
	CurrentTick.Set(float64(tick))
	for _, f := range report.Filled {
		FillsTotal.WithLabelValues(f.Order.Good).Inc()
		FillVolume.WithLabelValues(f.Order.Good).Add(f.Quantity.InexactFloat64())
	}
	for _, r := range report.Rejected {
		RejectionsTotal.WithLabelValues(r.Reason).Inc()
	}
}

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

		// Route pattern keeps label cardinality bounded.
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
