// Package metrics exposes Prometheus collectors for the backend.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glenn"

// Metrics groups every collector the service records into. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	registrations        *prometheus.CounterVec
	registrationDuration prometheus.Histogram
	compensations        *prometheus.CounterVec
	bestEffortFailures   *prometheus.CounterVec

	pushes       *prometheus.CounterVec
	queueDepth   prometheus.Gauge
	deadLettered prometheus.Counter

	uploads *prometheus.CounterVec

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers all collectors on reg. A nil reg gets a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: reg,
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Tournament registration attempts by outcome.",
		}, []string{"outcome"}),
		registrationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registration_duration_seconds",
			Help:      "Time spent committing a registration.",
			Buckets:   prometheus.DefBuckets,
		}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_compensations_total",
			Help:      "Compensating actions run after a failed registration step.",
		}, []string{"action", "result"}),
		bestEffortFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registration_best_effort_failures_total",
			Help:      "Non-fatal registration steps that failed.",
		}, []string{"step"}),
		pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_pushes_total",
			Help:      "Push delivery attempts by result.",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_queue_depth",
			Help:      "Jobs waiting in the notification dispatcher queue.",
		}),
		deadLettered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_dead_lettered_total",
			Help:      "Notifications abandoned after exhausting delivery attempts.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "File uploads by provider and result.",
		}, []string{"provider", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.registrations,
		m.registrationDuration,
		m.compensations,
		m.bestEffortFailures,
		m.pushes,
		m.queueDepth,
		m.deadLettered,
		m.uploads,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RegistrationOutcome(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRegistration(d time.Duration) {
	if m == nil {
		return
	}
	m.registrationDuration.Observe(d.Seconds())
}

// Compensation records a compensating action; ok is false when it failed and
// the system may be left inconsistent.
func (m *Metrics) Compensation(action string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.compensations.WithLabelValues(action, result).Inc()
}

func (m *Metrics) BestEffortFailure(step string) {
	if m == nil {
		return
	}
	m.bestEffortFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) Push(result string) {
	if m == nil {
		return
	}
	m.pushes.WithLabelValues(result).Inc()
}

func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) DeadLettered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.deadLettered.Add(float64(n))
}

func (m *Metrics) Upload(provider string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.uploads.WithLabelValues(provider, result).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
