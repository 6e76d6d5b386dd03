// Package metrics provides Prometheus collectors for the server core.
//
// Collection is optional: a nil *ServerMetrics is valid everywhere one is
// accepted, and costs nothing. Collectors are registered on the registry
// passed to New (the default registerer when nil).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ServerMetrics tracks connection admission and transfer activity.
type ServerMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	activeSessions      prometheus.Gauge
	commandsTotal       *prometheus.CounterVec
	filesSent           prometheus.Counter
	bytesSent           prometheus.Counter
}

// New creates and registers the server collectors.
// If reg is nil, prometheus.DefaultRegisterer is used.
func New(reg prometheus.Registerer) *ServerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &ServerMetrics{
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filedepot",
			Name:      "connections_accepted_total",
			Help:      "Connections admitted past the capacity check.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filedepot",
			Name:      "connections_rejected_total",
			Help:      "Connections rejected at capacity.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "filedepot",
			Name:      "active_sessions",
			Help:      "Sessions currently in the Serving state.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "filedepot",
			Name:      "commands_total",
			Help:      "Commands dispatched, by command word.",
		}, []string{"command"}),
		filesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filedepot",
			Name:      "files_sent_total",
			Help:      "Completed file transfers.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "filedepot",
			Name:      "file_bytes_sent_total",
			Help:      "Payload bytes sent in file transfers.",
		}),
	}

	reg.MustRegister(
		m.connectionsAccepted,
		m.connectionsRejected,
		m.activeSessions,
		m.commandsTotal,
		m.filesSent,
		m.bytesSent,
	)
	return m
}

// RecordConnectionAccepted counts an admitted connection.
func (m *ServerMetrics) RecordConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// RecordConnectionRejected counts a capacity rejection.
func (m *ServerMetrics) RecordConnectionRejected() {
	if m == nil {
		return
	}
	m.connectionsRejected.Inc()
}

// SetActiveSessions sets the active session gauge.
func (m *ServerMetrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}

// RecordCommand counts one dispatched command word.
func (m *ServerMetrics) RecordCommand(command string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(command).Inc()
}

// RecordFileSent counts one completed transfer of size bytes.
func (m *ServerMetrics) RecordFileSent(size int64) {
	if m == nil {
		return
	}
	m.filesSent.Inc()
	m.bytesSent.Add(float64(size))
}
