// Package metrics exposes prometheus collectors for conversation turns,
// graph nodes, the agent worker pool and the HTTP surface.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smallnest/researchchat/agent"
)

const namespace = "researchchat"

// Metrics holds the collectors of one process. The zero value is not usable;
// create one with New. A nil *Metrics ignores every observation.
type Metrics struct {
	registry *prometheus.Registry

	nodeDuration *prometheus.HistogramVec
	turnDuration *prometheus.HistogramVec
	turns        *prometheus.CounterVec
	connections  prometheus.Gauge
	uploads      *prometheus.CounterVec
	dropped      prometheus.Counter

	messages     atomic.Int64
	researchRuns atomic.Int64
	active       atomic.Int64
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "graph",
			Name:      "node_duration_seconds",
			Help:      "Time spent in each conversation graph node.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"node", "status"}),
		turnDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turn_duration_seconds",
			Help:      "Duration of a conversation turn by intent.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"intent"}),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Conversation turns by intent and outcome.",
		}, []string{"intent", "status"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "websocket_connections",
			Help:      "Open WebSocket connections.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "documents",
			Name:      "uploads_total",
			Help:      "Document uploads by outcome.",
		}, []string{"status"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a client could not keep up.",
		}),
	}
	reg.MustRegister(
		m.nodeDuration, m.turnDuration, m.turns, m.connections, m.uploads, m.dropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func status(failed bool) string {
	if failed {
		return "error"
	}
	return "ok"
}

// ObserveNode records one graph node run.
func (m *Metrics) ObserveNode(node string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.nodeDuration.WithLabelValues(node, status(err != nil)).Observe(d.Seconds())
}

// ObserveTurn records one conversation turn.
func (m *Metrics) ObserveTurn(intent string, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(intent, status(failed)).Inc()
	m.turnDuration.WithLabelValues(intent).Observe(d.Seconds())
	m.messages.Add(1)
	if intent == "web_research" {
		m.researchRuns.Add(1)
	}
}

// ConnectionOpened counts a new WebSocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.active.Add(1)
	m.connections.Inc()
}

// ConnectionClosed counts a closed WebSocket connection and the events its
// queue dropped.
func (m *Metrics) ConnectionClosed(dropped int) {
	if m == nil {
		return
	}
	m.active.Add(-1)
	m.connections.Dec()
	if dropped > 0 {
		m.dropped.Add(float64(dropped))
	}
}

// DocumentUploaded counts an upload attempt.
func (m *Metrics) DocumentUploaded(failed bool) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(status(failed)).Inc()
}

// WatchPool exports the size, in-flight jobs and timeouts of p.
func (m *Metrics) WatchPool(p *agent.Pool) {
	if m == nil || p == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent_pool",
			Name:      "size",
			Help:      "Maximum concurrent agent jobs.",
		}, func() float64 { return float64(p.Size()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent_pool",
			Name:      "in_flight",
			Help:      "Agent jobs currently running.",
		}, func() float64 { return float64(p.InFlight()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent_pool",
			Name:      "timeouts_total",
			Help:      "Agent jobs abandoned after their timeout.",
		}, func() float64 { return float64(p.Timeouts()) }),
	)
}

// Snapshot is a point-in-time summary for the stats endpoint.
type Snapshot struct {
	ActiveConnections int64 `json:"active_connections"`
	MessagesProcessed int64 `json:"messages_processed"`
	ResearchRuns      int64 `json:"research_runs"`
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		ActiveConnections: m.active.Load(),
		MessagesProcessed: m.messages.Load(),
		ResearchRuns:      m.researchRuns.Load(),
	}
}
