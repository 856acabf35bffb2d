// Package metrics holds the process-wide Prometheus collectors for the live
// channel. They are registered on the default registry and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "naskahlive"

// Drop reasons.
const (
	ReasonMalformed = "malformed"
	ReasonForbidden = "forbidden"
	ReasonAuthError = "auth_error"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "sessions_active",
		Help:      "Live sessions currently joined to a document group.",
	})

	SessionsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "sessions_rejected_total",
		Help:      "Connection attempts refused before upgrade.",
	})

	MessagesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "messages_dropped_total",
		Help:      "Inbound messages dropped without being applied.",
	}, []string{"reason"})

	EditsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "edits_applied_total",
		Help:      "Inbound edits broadcast to the document group.",
	})

	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "delivery_failures_total",
		Help:      "Broadcast deliveries that could not be queued for a member.",
	})

	EchoSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ws",
		Name:      "echo_suppressed_total",
		Help:      "Outbound events skipped because they originated from the receiving user.",
	})

	RelayEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "events_total",
		Help:      "Events exchanged with other instances.",
	}, []string{"direction"})
)
