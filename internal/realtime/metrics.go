package realtime

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Open socket connections by principal kind.",
		},
		[]string{"kind"},
	)
	wsRejected = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_handshakes_rejected_total",
			Help: "Socket upgrades refused by the authenticator.",
		},
	)
	wsCommands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ws_commands_total",
			Help: "Socket commands received by command and outcome.",
		},
		[]string{"command", "outcome"}, // outcome: ok|error|ignored|limited
	)
	wsFramesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ws_frames_dropped_total",
			Help: "Outbound frames dropped because a connection send queue was full.",
		},
	)
	relayDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_dropped_total",
			Help: "sendMessage attempts dropped without feedback, by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRejected, wsCommands, wsFramesDropped, relayDropped)
}
