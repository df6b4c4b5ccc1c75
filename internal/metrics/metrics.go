// Package metrics exposes Prometheus counters for the token lifecycle,
// the authorization callback and tool invocations.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "toolbridge"

// Recorder records service metrics. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	refreshes    *prometheus.CounterVec
	callbacks    *prometheus.CounterVec
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	discoveries  *prometheus.CounterVec
	janitorSwept prometheus.Counter
}

// New creates a Recorder backed by its own registry.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refresh_total",
			Help:      "Token refresh attempts by outcome.",
		}, []string{"outcome"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_callback_total",
			Help:      "Authorization callbacks by outcome.",
		}, []string{"outcome"}),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations by outcome kind.",
		}, []string{"outcome"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_invocation_duration_seconds",
			Help:      "Latency of tool invocations that reached the provider.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_discovery_total",
			Help:      "tools/list discovery cycles by outcome.",
		}, []string{"outcome"}),
		janitorSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pkce_sessions_swept_total",
			Help:      "Expired PKCE sessions removed by the janitor.",
		}),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.refreshes,
		r.callbacks,
		r.toolCalls,
		r.toolDuration,
		r.discoveries,
		r.janitorSwept,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Refresh counts a refresh attempt. Outcomes: success, rejected, failed, deduplicated.
func (r *Recorder) Refresh(outcome string) {
	if r == nil {
		return
	}
	r.refreshes.WithLabelValues(outcome).Inc()
}

// Callback counts an authorization callback outcome.
func (r *Recorder) Callback(outcome string) {
	if r == nil {
		return
	}
	r.callbacks.WithLabelValues(outcome).Inc()
}

// ToolInvocation counts an invocation and observes its latency when d > 0.
func (r *Recorder) ToolInvocation(outcome string, d time.Duration) {
	if r == nil {
		return
	}
	r.toolCalls.WithLabelValues(outcome).Inc()
	if d > 0 {
		r.toolDuration.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// Discovery counts a tools/list cycle.
func (r *Recorder) Discovery(outcome string) {
	if r == nil {
		return
	}
	r.discoveries.WithLabelValues(outcome).Inc()
}

// Swept counts PKCE sessions removed by the janitor.
func (r *Recorder) Swept(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.janitorSwept.Add(float64(n))
}
