package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "storefront"

// Metrics groups the Prometheus collectors exported by the API.
type Metrics struct {
	registry *prometheus.Registry

	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	ordersCreate prometheus.Counter
	transitions  *prometheus.CounterVec
	itemUpdates  *prometheus.CounterVec
	stockFails   prometheus.Counter
	notifyFails  *prometheus.CounterVec
}

// NewMetrics registers all collectors on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"route", "method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"route"}),
		ordersCreate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "orders",
			Name:      "created_total",
			Help:      "Orders successfully created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Order status transition requests by target and outcome.",
		}, []string{"target", "outcome"}),
		itemUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "orders",
			Name:      "item_updates_total",
			Help:      "Per-item status updates by requested status and outcome.",
		}, []string{"status", "outcome"}),
		stockFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "inventory",
			Name:      "reservation_failures_total",
			Help:      "Checkouts rejected because stock could not be reserved.",
		}),
		notifyFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "notifications",
			Name:      "publish_failures_total",
			Help:      "Notification events that could not be published.",
		}, []string{"event"}),
	}
	registry.MustRegister(
		m.requests, m.latency, m.ordersCreate, m.transitions, m.itemUpdates, m.stockFails, m.notifyFails,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Middleware records request counts and latency keyed by chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := newResponseRecorder(w)
		start := time.Now()
		next.ServeHTTP(recorder, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		m.requests.WithLabelValues(route, SanitizeMethod(r.Method), strconv.Itoa(recorder.Status())).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// OrderCreated increments the created orders counter.
func (m *Metrics) OrderCreated() {
	if m != nil {
		m.ordersCreate.Inc()
	}
}

// OrderTransition records an order status transition outcome (applied, noop, conflict).
func (m *Metrics) OrderTransition(target, outcome string) {
	if m != nil {
		m.transitions.WithLabelValues(target, outcome).Inc()
	}
}

// ItemUpdate records a per-item status update outcome.
func (m *Metrics) ItemUpdate(status string, ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	m.itemUpdates.WithLabelValues(status, outcome).Inc()
}

// StockReservationFailed counts checkouts rejected for insufficient stock.
func (m *Metrics) StockReservationFailed() {
	if m != nil {
		m.stockFails.Inc()
	}
}

// NotificationFailed counts notification publish failures.
func (m *Metrics) NotificationFailed(event string) {
	if m != nil {
		m.notifyFails.WithLabelValues(event).Inc()
	}
}
