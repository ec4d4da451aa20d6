// Package metrics holds the Prometheus collectors for the realtime and billing paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections_active",
			Help: "Number of live websocket connections",
		},
	)

	RoomBroadcasts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "room_broadcasts_total",
			Help: "Events fanned out to conversation rooms",
		},
		[]string{"event"},
	)

	DroppedDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "room_dropped_deliveries_total",
			Help: "Deliveries dropped because a connection was slow or gone",
		},
	)

	MessagesPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_persisted_total",
			Help: "Chat messages persisted",
		},
		[]string{"type"},
	)

	MilestoneTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milestone_transitions_total",
			Help: "Milestone status transitions applied",
		},
		[]string{"from", "to"},
	)

	PaymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment verification attempts by outcome",
		},
		[]string{"outcome"},
	)

	OutboxDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_dispatched_total",
			Help: "Notification events dispatched from the outbox",
		},
		[]string{"kind", "outcome"},
	)
)
