// Package metrics exposes Prometheus collectors for action invocations and
// the HTTP API.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DenzelPenzel/ton-agent/internal/agent"
)

const namespace = "tonagent"

// Metrics owns the collectors registered on one registry.
type Metrics struct {
	registry    *prometheus.Registry
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, so several instances can
// live in one process.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_invocations_total",
			Help:      "Action invocations by outcome.",
		}, []string{"action", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "action_duration_seconds",
			Help:      "Wall time of action invocations.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"action"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests handled by the API.",
		}, []string{"handler", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "method"}),
	}
	for _, c := range []prometheus.Collector{m.invocations, m.duration, m.requests, m.latency} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveInvocation records one finished action run.
func (m *Metrics) ObserveInvocation(ev agent.InvocationEvent) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(ev.Action, ev.Outcome()).Inc()
	m.duration.WithLabelValues(ev.Action).Observe(ev.Duration.Seconds())
}

// ObserveHTTPRequest records one API request.
func (m *Metrics) ObserveHTTPRequest(handler, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(handler, method).Observe(elapsed.Seconds())
}

// Track subscribes to the agent's invocation feed and records every event
// until ctx is done.
func (m *Metrics) Track(ctx context.Context, a *agent.Agent) {
	events := make(chan agent.InvocationEvent, 64)
	sub := a.SubscribeInvocations(events)
	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case ev := <-events:
				m.ObserveInvocation(ev)
			case <-sub.Err():
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
