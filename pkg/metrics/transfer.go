package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultNamespace = "grover"
	subsystemTFTP    = "tftp"
)

// Label values for the direction and outcome of one transfer.
const (
	DirectionRead  = "read"
	DirectionWrite = "write"

	OutcomeCompleted = "completed"
	OutcomeAborted   = "aborted"
	OutcomeTimedOut  = "timed_out"
	OutcomeFailed    = "failed"
)

// ServerCollector counts what the TFTP server does on the wire and per
// transfer. All methods are safe on a nil receiver.
type ServerCollector struct {
	registry *prometheus.Registry

	started           *prometheus.CounterVec
	finished          *prometheus.CounterVec
	active            prometheus.Gauge
	bytesSent         prometheus.Counter
	bytesReceived     prometheus.Counter
	packetsSent       prometheus.Counter
	packetsReceived   prometheus.Counter
	retransmissions   prometheus.Counter
	decodeFailures    prometheus.Counter
	unknownTID        prometheus.Counter
	duplicateRequests prometheus.Counter
	droppedFrames     prometheus.Counter
}

// NewServerCollector creates a collector registered on its own registry.
func NewServerCollector(namespace string) *ServerCollector {
	if strings.TrimSpace(namespace) == "" {
		namespace = defaultNamespace
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTFTP,
			Name:      name,
			Help:      help,
		})
	}
	c := &ServerCollector{
		registry: prometheus.NewRegistry(),
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTFTP,
			Name:      "transfers_started_total",
			Help:      "Transfers started, by direction.",
		}, []string{"direction"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTFTP,
			Name:      "transfers_finished_total",
			Help:      "Transfers finished, by direction and outcome.",
		}, []string{"direction", "outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemTFTP,
			Name:      "active_sessions",
			Help:      "Sessions currently registered with the dispatcher.",
		}),
		bytesSent:         counter("bytes_sent_total", "Payload bytes sent in DATA packets."),
		bytesReceived:     counter("bytes_received_total", "Payload bytes received in DATA packets and written."),
		packetsSent:       counter("packets_sent_total", "Datagrams sent by the server."),
		packetsReceived:   counter("packets_received_total", "Datagrams received on the shared socket."),
		retransmissions:   counter("retransmissions_total", "Packets resent after a wait timed out."),
		decodeFailures:    counter("decode_failures_total", "Datagrams that failed to decode."),
		unknownTID:        counter("unknown_tid_total", "Non-request packets from peers with no session."),
		duplicateRequests: counter("duplicate_requests_total", "Requests ignored because the peer already has a session."),
		droppedFrames:     counter("dropped_frames_total", "Packets dropped because a session inbox was full."),
	}
	c.registry.MustRegister(
		c.started, c.finished, c.active,
		c.bytesSent, c.bytesReceived, c.packetsSent, c.packetsReceived,
		c.retransmissions, c.decodeFailures, c.unknownTID,
		c.duplicateRequests, c.droppedFrames,
	)
	return c
}

// Registry returns the prometheus registry managed by this collector.
func (c *ServerCollector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *ServerCollector) TransferStarted(direction string) {
	if c == nil {
		return
	}
	c.started.WithLabelValues(direction).Inc()
	c.active.Inc()
}

func (c *ServerCollector) TransferFinished(direction, outcome string) {
	if c == nil {
		return
	}
	c.finished.WithLabelValues(direction, outcome).Inc()
	c.active.Dec()
}

// ObserveSend records one datagram sent; payload counts DATA bytes only.
func (c *ServerCollector) ObserveSend(payload int) {
	if c == nil {
		return
	}
	c.packetsSent.Inc()
	if payload > 0 {
		c.bytesSent.Add(float64(payload))
	}
}

func (c *ServerCollector) ObservePacketReceive() {
	if c == nil {
		return
	}
	c.packetsReceived.Inc()
}

// ObserveDiskWrite records DATA payload bytes accepted and written.
func (c *ServerCollector) ObserveDiskWrite(bytes int) {
	if c == nil || bytes <= 0 {
		return
	}
	c.bytesReceived.Add(float64(bytes))
}

func (c *ServerCollector) ObserveRetransmit() {
	if c == nil {
		return
	}
	c.retransmissions.Inc()
}

func (c *ServerCollector) ObserveDecodeFailure() {
	if c == nil {
		return
	}
	c.decodeFailures.Inc()
}

func (c *ServerCollector) ObserveUnknownTID() {
	if c == nil {
		return
	}
	c.unknownTID.Inc()
}

func (c *ServerCollector) ObserveDuplicateRequest() {
	if c == nil {
		return
	}
	c.duplicateRequests.Inc()
}

func (c *ServerCollector) ObserveDroppedFrame() {
	if c == nil {
		return
	}
	c.droppedFrames.Inc()
}
