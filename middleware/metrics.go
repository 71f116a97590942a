package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request counts and latency histograms per method via
// Prometheus collectors, and also feeds the lighter-weight MetricSink
// exposed through Context for consumers that don't want a full Prometheus
// registry (spec.md §5, the one permitted shared mutable structure).
type Metrics struct {
	Base
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	start map[string]time.Time
}

func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_total", Help: "Total MCP requests handled, by method.",
		}, []string{"method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "request_errors_total", Help: "Total MCP request errors, by method.",
		}, []string{"method"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "request_duration_seconds", Help: "MCP request latency, by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		start: map[string]time.Time{},
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.errors, m.latency)
	}
	return m
}

func (m *Metrics) Name() string       { return "metrics" }
func (m *Metrics) Priority() Priority { return PriorityLowest }

func (m *Metrics) OnRequest(_ context.Context, mwctx *Context, _ *json.RawMessage) error {
	mwctx.Metadata["metrics_start"] = time.Now().Format(time.RFC3339Nano)
	m.requests.WithLabelValues(mwctx.Method).Inc()
	return nil
}

func (m *Metrics) OnResponse(_ context.Context, mwctx *Context, _ *json.RawMessage) error {
	m.observe(mwctx, false)
	return nil
}

func (m *Metrics) OnError(_ context.Context, mwctx *Context, _ error) {
	m.errors.WithLabelValues(mwctx.Method).Inc()
	m.observe(mwctx, true)
}

func (m *Metrics) observe(mwctx *Context, errOccurred bool) {
	started, ok := mwctx.Metadata["metrics_start"]
	if !ok {
		return
	}
	t0, err := time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return
	}
	elapsed := time.Since(t0).Seconds()
	m.latency.WithLabelValues(mwctx.Method).Observe(elapsed)
	if sink := mwctx.MetricSink(); sink != nil {
		sink.ObserveRequest(mwctx.Method, errOccurred, elapsed)
	}
}
