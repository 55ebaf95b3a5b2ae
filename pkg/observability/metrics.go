package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the canvas engine and the relay
// export. All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// Sync metrics
	BroadcastsSent      *prometheus.CounterVec
	BroadcastsThrottled *prometheus.CounterVec
	RemoteApplied       *prometheus.CounterVec
	RemoteDropped       *prometheus.CounterVec

	// Persistence metrics
	Saves        *prometheus.CounterVec
	SaveDuration prometheus.Histogram

	// Relay metrics
	RelayConnections prometheus.Gauge
	RelayRooms       prometheus.Gauge
	RelayMessages    *prometheus.CounterVec

	// AI metrics
	AIRequests *prometheus.CounterVec

	// Breaker state per protected dependency: 0 closed, 1 half-open, 2 open
	BreakerState *prometheus.GaugeVec
}

// NewMetrics creates a metrics set on its own registry
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		BroadcastsSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "broadcasts_sent_total",
				Help:      "Broadcast messages sent to the project channel",
			},
			[]string{"event"},
		),
		BroadcastsThrottled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "broadcasts_throttled_total",
				Help:      "Broadcast messages discarded by the rate limiter",
			},
			[]string{"event"},
		),
		RemoteApplied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "remote_applied_total",
				Help:      "Remote events that changed local state",
			},
			[]string{"event"},
		),
		RemoteDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "sync",
				Name:      "dropped_total",
				Help:      "Remote events dropped without changing local state",
			},
			[]string{"reason"},
		),
		Saves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "saves_total",
				Help:      "Project writes by trigger and result",
			},
			[]string{"trigger", "result"},
		),
		SaveDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "persistence",
				Name:      "save_duration_seconds",
				Help:      "Backend write latency",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RelayConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "connections",
				Help:      "Open websocket connections",
			},
		),
		RelayRooms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "rooms",
				Help:      "Rooms with at least one connection",
			},
		),
		RelayMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "relay",
				Name:      "messages_total",
				Help:      "Frames handled by the relay",
			},
			[]string{"direction"},
		),
		AIRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ai",
				Name:      "requests_total",
				Help:      "Calls to the text generation service",
			},
			[]string{"operation", "result"},
		),
		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "breaker",
				Name:      "state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
	}

	registry.MustRegister(
		m.BroadcastsSent,
		m.BroadcastsThrottled,
		m.RemoteApplied,
		m.RemoteDropped,
		m.Saves,
		m.SaveDuration,
		m.RelayConnections,
		m.RelayRooms,
		m.RelayMessages,
		m.AIRequests,
		m.BreakerState,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BroadcastSent(event string) {
	if m == nil {
		return
	}
	m.BroadcastsSent.WithLabelValues(event).Inc()
}

func (m *Metrics) BroadcastThrottled(event string) {
	if m == nil {
		return
	}
	m.BroadcastsThrottled.WithLabelValues(event).Inc()
}

func (m *Metrics) RemoteEventApplied(event string) {
	if m == nil {
		return
	}
	m.RemoteApplied.WithLabelValues(event).Inc()
}

func (m *Metrics) RemoteEventDropped(reason string) {
	if m == nil {
		return
	}
	m.RemoteDropped.WithLabelValues(reason).Inc()
}

// SaveCompleted records one write attempt. result is "ok", "failed" or "skipped".
func (m *Metrics) SaveCompleted(trigger, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.Saves.WithLabelValues(trigger, result).Inc()
	if result != "skipped" {
		m.SaveDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) RelayConnectionOpened() {
	if m == nil {
		return
	}
	m.RelayConnections.Inc()
}

func (m *Metrics) RelayConnectionClosed() {
	if m == nil {
		return
	}
	m.RelayConnections.Dec()
}

func (m *Metrics) SetRelayRooms(n int) {
	if m == nil {
		return
	}
	m.RelayRooms.Set(float64(n))
}

func (m *Metrics) RelayMessage(direction string) {
	if m == nil {
		return
	}
	m.RelayMessages.WithLabelValues(direction).Inc()
}

func (m *Metrics) AIRequest(operation string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.AIRequests.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}
