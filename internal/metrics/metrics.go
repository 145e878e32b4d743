// Package metrics owns the Prometheus collectors exposed on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "starterkit"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight  prometheus.Gauge
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	clientInits   *prometheus.CounterVec
	clientInitDur *prometheus.HistogramVec
	rateLimited   *prometheus.CounterVec
	failOpen      *prometheus.CounterVec
	authDecisions *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
		clientInits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "clients",
			Name:      "init_total",
			Help:      "Client construction attempts by outcome.",
		}, []string{"client", "result"}),
		clientInitDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "clients",
			Name:      "init_duration_seconds",
			Help:      "Duration of client construction.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"client"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "limited_total",
			Help:      "Requests rejected by a rate limiter.",
		}, []string{"scope"}),
		failOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "fail_open_total",
			Help:      "Checks allowed because the cache was unavailable.",
		}, []string{"scope"}),
		authDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "route_decisions_total",
			Help:      "Route authorization decisions by category and action.",
		}, []string{"category", "action"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.clientInits,
		m.clientInitDur,
		m.rateLimited,
		m.failOpen,
		m.authDecisions,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// HTTPStarted marks a request in flight and returns the func that records it.
func (m *Metrics) HTTPStarted() func(method, route string, status int) {
	if m == nil {
		return func(string, string, int) {}
	}
	start := time.Now()
	m.httpInFlight.Inc()
	return func(method, route string, status int) {
		m.httpInFlight.Dec()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

// ObserveClientInit matches the singleton observer signature.
func (m *Metrics) ObserveClientInit(name string, took time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.clientInits.WithLabelValues(name, result).Inc()
	m.clientInitDur.WithLabelValues(name).Observe(took.Seconds())
}

func (m *Metrics) RateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

func (m *Metrics) RateLimitFailOpen(scope string) {
	if m == nil {
		return
	}
	m.failOpen.WithLabelValues(scope).Inc()
}

func (m *Metrics) AuthDecision(category, action string) {
	if m == nil {
		return
	}
	m.authDecisions.WithLabelValues(category, action).Inc()
}
