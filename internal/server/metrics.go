package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "robobridge_ws_clients",
		Help: "Number of connected WebSocket clients",
	})

	broadcastMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robobridge_broadcast_messages_total",
		Help: "Messages fanned out to WebSocket clients",
	})

	droppedClients = promauto.NewCounter(prometheus.CounterOpts{
		Name: "robobridge_dropped_clients_total",
		Help: "Clients removed because their send buffer was full",
	})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robobridge_commands_total",
		Help: "Drive commands received from clients by command and result",
	}, []string{"command", "result"})

	rejectedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "robobridge_rejected_messages_total",
		Help: "Client messages ignored by reason",
	}, []string{"reason"})
)
