//
//  Copyright © Manetu Inc. All rights reserved.
//

// Package metrics counts authorization decisions in Prometheus format.
//
// A [Recorder] owns its registry so that several engines, or tests, never
// collide on the default registerer. Serve it with [Recorder.Handler]:
//
//	rec := metrics.NewRecorder()
//	engine, _ := core.NewEngine(options.WithMetrics(rec))
//	http.Handle("/metrics", rec.Handler())
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "portalauthz"

// Decision label values
const (
	Grant = "grant"
	Deny  = "deny"
	Error = "error"
)

// Recorder holds the decision collectors.
type Recorder struct {
	registry  *prometheus.Registry
	decisions *prometheus.CounterVec
	latency   *prometheus.HistogramVec
}

// NewRecorder registers the collectors in a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "decisions_total",
			Help:      "Authorization decisions by action, profile and outcome.",
		}, []string{"action", "profile", "decision"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent evaluating an authorization decision.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}, []string{"profile"}),
	}
	r.registry.MustRegister(r.decisions, r.latency)
	return r
}

// Observe counts one decision. A nil Recorder ignores the call.
func (r *Recorder) Observe(profile, action, decision string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(action, profile, decision).Inc()
	r.latency.WithLabelValues(profile).Observe(elapsed.Seconds())
}

// Decisions exposes the counter vector, mostly for tests.
func (r *Recorder) Decisions() *prometheus.CounterVec {
	return r.decisions
}

// Registry returns the registry holding the collectors.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
