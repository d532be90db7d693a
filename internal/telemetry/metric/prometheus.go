package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "converge"

// Push results used as the "result" label.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Registry holds all application metrics.
type Registry struct {
	registry *prometheus.Registry

	// Control service
	ConnectionsActive prometheus.Gauge
	BroadcastsTotal   *prometheus.CounterVec
	PushesTotal       *prometheus.CounterVec
	NodeStatesTotal   prometheus.Counter

	// Protocol
	DecodeErrorsTotal *prometheus.CounterVec
	CommandDuration   *prometheus.HistogramVec

	// Admin API
	AdminRequestsTotal *prometheus.CounterVec
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus every converge metric.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "connections_active",
			Help:      "Number of agent sessions in the live set.",
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "broadcasts_total",
			Help:      "Broadcast episodes by trigger.",
		}, []string{"trigger"}),
		PushesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "pushes_total",
			Help:      "ClusterStatus pushes by result.",
		}, []string{"result"}),
		NodeStatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "control",
			Name:      "node_states_total",
			Help:      "Node state reports received from agents.",
		}),
		DecodeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "decode_errors_total",
			Help:      "Command invocations rejected because an argument failed to decode.",
		}, []string{"command"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "protocol",
			Name:      "command_duration_seconds",
			Help:      "Time spent in command responders.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"command"}),
		AdminRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin API requests by procedure and code.",
		}, []string{"procedure", "code"}),
	}

	reg.MustRegister(
		r.ConnectionsActive,
		r.BroadcastsTotal,
		r.PushesTotal,
		r.NodeStatesTotal,
		r.DecodeErrorsTotal,
		r.CommandDuration,
		r.AdminRequestsTotal,
	)
	return r
}

// Handler returns an HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registerer exposes the underlying registry for components that bring
// their own collectors (the storage engine, for example).
func (r *Registry) Registerer() prometheus.Registerer {
	if r == nil {
		return nil
	}
	return r.registry
}

// ============================================================================
// Recording helpers
// ============================================================================

func (r *Registry) IncConnections() {
	if r != nil {
		r.ConnectionsActive.Inc()
	}
}

func (r *Registry) DecConnections() {
	if r != nil {
		r.ConnectionsActive.Dec()
	}
}

// IncBroadcast counts one broadcast episode.
func (r *Registry) IncBroadcast(trigger string) {
	if r != nil {
		r.BroadcastsTotal.WithLabelValues(trigger).Inc()
	}
}

// ObservePush counts one push outcome.
func (r *Registry) ObservePush(err error) {
	if r == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	r.PushesTotal.WithLabelValues(result).Inc()
}

func (r *Registry) IncNodeState() {
	if r != nil {
		r.NodeStatesTotal.Inc()
	}
}

func (r *Registry) IncDecodeError(command string) {
	if r != nil {
		r.DecodeErrorsTotal.WithLabelValues(command).Inc()
	}
}

// ObserveCommand records how long a responder ran.
func (r *Registry) ObserveCommand(command string, d time.Duration) {
	if r != nil {
		r.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
	}
}

func (r *Registry) ObserveAdminRequest(procedure, code string) {
	if r != nil {
		r.AdminRequestsTotal.WithLabelValues(procedure, code).Inc()
	}
}
