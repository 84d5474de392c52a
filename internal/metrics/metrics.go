// Package metrics exposes the Prometheus collectors described in §4.10,
// served on /metrics: incidents opened, incident outcomes, fix attempts,
// gateway tools/call latency, and the live event-bus subscriber count. A
// model-call latency histogram and a log buffer occupancy gauge are
// registered as well; no component records values into them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric family behind its own prometheus.Registry
// rather than the global default, so multiple Registries can coexist in
// tests without collector-already-registered panics.
type Registry struct {
	registry *prometheus.Registry

	IncidentsOpened     *prometheus.CounterVec
	IncidentOutcomes    *prometheus.CounterVec
	FixAttempts         *prometheus.CounterVec
	GatewayCallDuration *prometheus.HistogramVec
	ModelCallDuration   *prometheus.HistogramVec
	EventBusQueueDepth  prometheus.Gauge
	LogBufferOccupancy  *prometheus.GaugeVec
}

// New registers and returns every collector on a fresh registry.
func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
		IncidentsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_incidents_opened_total",
			Help: "Incidents opened by the pipeline, labeled by triggering service.",
		}, []string{"service"}),
		IncidentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_incident_outcomes_total",
			Help: "Incidents resolved, labeled by final status and reason.",
		}, []string{"status", "reason"}),
		FixAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sentinel_fix_attempts_total",
			Help: "Remediation tool invocations, labeled by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		GatewayCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_gateway_call_duration_seconds",
			Help:    "Latency of MCP gateway tools/call requests; the method label holds the called tool's name.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		ModelCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sentinel_model_call_duration_seconds",
			Help:    "Latency of OpenRouter model calls, labeled by model role.",
			Buckets: prometheus.DefBuckets,
		}, []string{"role"}),
		EventBusQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sentinel_eventbus_subscriber_count",
			Help: "Current number of live telemetry subscribers on the event bus.",
		}),
		LogBufferOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sentinel_log_buffer_lines",
			Help: "Lines currently held in a container's rolling log buffer.",
		}, []string{"container_id"}),
	}

	reg.MustRegister(
		r.IncidentsOpened,
		r.IncidentOutcomes,
		r.FixAttempts,
		r.GatewayCallDuration,
		r.ModelCallDuration,
		r.EventBusQueueDepth,
		r.LogBufferOccupancy,
	)
	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordFixAttempt records a single tool invocation outcome.
func (r *Registry) RecordFixAttempt(tool string, success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	r.FixAttempts.WithLabelValues(tool, outcome).Inc()
}

// RecordIncidentOutcome records the terminal status of an incident.
func (r *Registry) RecordIncidentOutcome(status, reason string) {
	r.IncidentOutcomes.WithLabelValues(status, reason).Inc()
}
