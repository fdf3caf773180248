package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "dwell",
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Currently open WebSocket sessions.",
	})

	metricRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dwell",
		Subsystem: "ws",
		Name:      "rejects_total",
		Help:      "WebSocket handshakes rejected before upgrade, by reason.",
	}, []string{"reason"})

	metricMessages = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dwell",
		Subsystem: "chat",
		Name:      "messages_total",
		Help:      "Messages accepted over WebSocket and published to the bus.",
	})

	metricBadFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "dwell",
		Subsystem: "ws",
		Name:      "bad_frames_total",
		Help:      "Inbound frames dropped for malformed JSON or failed validation.",
	})
)
