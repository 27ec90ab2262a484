package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ReasonDecode    = "decode"
	ReasonMalformed = "malformed"
	ReasonExhausted = "exhausted"
)

var (
	// Ingestion
	ConsumerSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_consumer_success_total",
		Help: "Notification events ingested successfully",
	})

	ConsumerRetryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_consumer_retry_attempt_total",
		Help: "Redelivered notification events (delivery attempt > 1)",
	})

	ConsumerFinalFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_consumer_final_failure_total",
		Help: "Notification events dropped for good",
	}, []string{"reason"})

	ConsumerKeyMismatch = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_consumer_key_mismatch_total",
		Help: "Events whose transport key differs from receiverUserId",
	})

	// Push
	PushSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_push_sent_total",
		Help: "Envelopes written to live connections",
	})

	PushFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_push_failed_total",
		Help: "Envelope writes that failed and evicted the connection",
	})

	WebSocketSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notification_ws_sessions",
		Help: "Registered push connections",
	})

	HeartbeatTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notification_ws_heartbeat_timeout_total",
		Help: "Connections closed because no pong arrived in time",
	})
)
