// Package metrics exposes Prometheus instrumentation for the buffer engine
// and its owning connection: window/inflight gauges, retransmission and FEC
// counters, and BBR's own bandwidth/RTT/pacing estimates.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every engine/connection Prometheus collector.
type Metrics struct {
	AdvertisedWindow *prometheus.GaugeVec
	InflightBytes    *prometheus.GaugeVec
	RetransmitQueue  *prometheus.GaugeVec
	ReorderBuffer    *prometheus.GaugeVec

	PacketsSent     *prometheus.CounterVec
	PacketsReceived *prometheus.CounterVec
	BytesSent       *prometheus.CounterVec
	BytesReceived   *prometheus.CounterVec
	SocketErrors    *prometheus.CounterVec

	RetransmissionsTotal *prometheus.CounterVec
	RTTMicros            *prometheus.GaugeVec
	BottleneckBandwidth  *prometheus.GaugeVec
	PacingRate           *prometheus.GaugeVec
	CongestionState      *prometheus.GaugeVec

	FECRecoveredTotal *prometheus.CounterVec
	FECFailedTotal    *prometheus.CounterVec

	ConnectionsTotal  *prometheus.CounterVec
	ActiveConnections prometheus.Gauge

	GoRoutines prometheus.Gauge
}

// New creates and registers the metrics collectors under namespace/subsystem.
func New(namespace, subsystem string) *Metrics {
	return &Metrics{
		AdvertisedWindow: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "advertised_window_bytes",
				Help: "Most recently advertised receive window",
			},
			[]string{"conn_id"},
		),
		InflightBytes: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "inflight_bytes",
				Help: "Bytes currently awaiting ACK in the retransmission queue",
			},
			[]string{"conn_id"},
		),
		RetransmitQueue: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "retransmission_queue_length",
				Help: "Number of unacked packets awaiting retransmission",
			},
			[]string{"conn_id"},
		),
		ReorderBuffer: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "reorder_buffer_length",
				Help: "Number of out-of-order packets held pending the missing gap",
			},
			[]string{"conn_id"},
		),

		PacketsSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "packets_sent_total",
				Help: "Total packets transmitted",
			},
			[]string{"conn_id"},
		),
		PacketsReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "packets_received_total",
				Help: "Total packets received",
			},
			[]string{"conn_id"},
		),
		BytesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "bytes_sent_total",
				Help: "Total datagram bytes transmitted, headers included",
			},
			[]string{"conn_id"},
		),
		BytesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "bytes_received_total",
				Help: "Total datagram bytes received, headers included",
			},
			[]string{"conn_id"},
		),
		SocketErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "socket_errors_total",
				Help: "Total socket read/write errors",
			},
			[]string{"conn_id"},
		),

		RetransmissionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "retransmissions_total",
				Help: "Total packets retransmitted by the RTO timer",
			},
			[]string{"conn_id"},
		),
		RTTMicros: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "rtt_microseconds",
				Help: "BBR's current minimum RTT estimate",
			},
			[]string{"conn_id"},
		),
		BottleneckBandwidth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "bottleneck_bandwidth_bps",
				Help: "BBR's current bottleneck bandwidth estimate in bytes/sec",
			},
			[]string{"conn_id"},
		),
		PacingRate: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "pacing_rate_bps",
				Help: "BBR's current pacing rate in bytes/sec",
			},
			[]string{"conn_id"},
		),
		CongestionState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "congestion_state",
				Help: "BBR state (0=startup, 1=drain, 2=probe_bw, 3=probe_rtt)",
			},
			[]string{"conn_id"},
		),

		FECRecoveredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "fec_recovered_shards_total",
				Help: "Total data shards reconstructed from parity",
			},
			[]string{"conn_id"},
		),
		FECFailedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "fec_failed_recoveries_total",
				Help: "Total FEC groups that could not be reconstructed",
			},
			[]string{"conn_id"},
		),

		ConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "connections_total",
				Help: "Total connections by lifecycle transition",
			},
			[]string{"transition"}, // established/closed
		),
		ActiveConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "active_connections",
				Help: "Number of connections currently established",
			},
		),

		GoRoutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace, Subsystem: subsystem,
				Name: "goroutines",
				Help: "Number of goroutines in the process",
			},
		),
	}
}

// RecordConnection records a connection lifecycle transition.
func (m *Metrics) RecordConnection(established bool) {
	if established {
		m.ConnectionsTotal.WithLabelValues("established").Inc()
		m.ActiveConnections.Inc()
	} else {
		m.ConnectionsTotal.WithLabelValues("closed").Inc()
		m.ActiveConnections.Dec()
	}
}

// Sample records one snapshot of a single connection's engine and
// congestion-controller state against the conn_id label. Gauge is its
// current value; Delta fields are the increase since the previous sample
// for the same conn_id (the Collector computes these from the connection's
// own cumulative counters, since prometheus.Counter only exposes Add).
type Sample struct {
	ConnID           string
	AdvertisedWindow uint32
	InflightBytes    uint32
	RetransmitQueue  int
	ReorderBuffer    int

	PacketsSentDelta     uint64
	PacketsReceivedDelta uint64
	BytesSentDelta       uint64
	BytesReceivedDelta   uint64
	SocketErrorsDelta    uint64
	RetransmissionsDelta uint64
	FECRecoveredDelta    uint64
	FECFailedDelta       uint64

	RTT             time.Duration
	BandwidthBps    uint64
	PacingRateBps   uint64
	CongestionState int
}

// Record updates every gauge/counter for s.ConnID from a single sample.
func (m *Metrics) Record(s Sample) {
	m.AdvertisedWindow.WithLabelValues(s.ConnID).Set(float64(s.AdvertisedWindow))
	m.InflightBytes.WithLabelValues(s.ConnID).Set(float64(s.InflightBytes))
	m.RetransmitQueue.WithLabelValues(s.ConnID).Set(float64(s.RetransmitQueue))
	m.ReorderBuffer.WithLabelValues(s.ConnID).Set(float64(s.ReorderBuffer))

	m.PacketsSent.WithLabelValues(s.ConnID).Add(float64(s.PacketsSentDelta))
	m.PacketsReceived.WithLabelValues(s.ConnID).Add(float64(s.PacketsReceivedDelta))
	m.BytesSent.WithLabelValues(s.ConnID).Add(float64(s.BytesSentDelta))
	m.BytesReceived.WithLabelValues(s.ConnID).Add(float64(s.BytesReceivedDelta))
	m.SocketErrors.WithLabelValues(s.ConnID).Add(float64(s.SocketErrorsDelta))
	m.RetransmissionsTotal.WithLabelValues(s.ConnID).Add(float64(s.RetransmissionsDelta))
	m.FECRecoveredTotal.WithLabelValues(s.ConnID).Add(float64(s.FECRecoveredDelta))
	m.FECFailedTotal.WithLabelValues(s.ConnID).Add(float64(s.FECFailedDelta))

	m.RTTMicros.WithLabelValues(s.ConnID).Set(float64(s.RTT.Microseconds()))
	m.BottleneckBandwidth.WithLabelValues(s.ConnID).Set(float64(s.BandwidthBps))
	m.PacingRate.WithLabelValues(s.ConnID).Set(float64(s.PacingRateBps))
	m.CongestionState.WithLabelValues(s.ConnID).Set(float64(s.CongestionState))
}
