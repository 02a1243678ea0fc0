package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions tracks currently registered charge point sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_active_sessions",
		Help: "Number of charge point sessions currently registered",
	})

	// FramesReceived counts inbound OCPP-J frames by message type.
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_frames_received_total",
		Help: "Total OCPP frames received from charge points",
	}, []string{"message_type"})

	// FramesSent counts outbound OCPP-J frames by message type.
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_frames_sent_total",
		Help: "Total OCPP frames sent to charge points",
	}, []string{"message_type"})

	// CallsSent counts CS-initiated calls by action.
	CallsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_calls_sent_total",
		Help: "Total CS-initiated calls sent to charge points",
	}, []string{"action"})

	// CallsRateLimited counts charge point calls rejected by the per-session
	// rate limiter.
	CallsRateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_calls_rate_limited_total",
		Help: "Total charge point calls rejected with a CALLERROR by the rate limiter",
	})

	// CallTimeouts counts CS-initiated calls that expired without an answer.
	CallTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_call_timeouts_total",
		Help: "Total CS-initiated calls that timed out",
	})

	// HandlerDuration observes per-action handler latency.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gateway_handler_duration_seconds",
		Help:    "Processing time of charge point initiated actions",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// HandlerErrors counts handler failures answered with a CALLERROR.
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_handler_errors_total",
		Help: "Total charge point calls answered with a CALLERROR",
	}, []string{"action", "error_code"})

	// MeterSamplesPublished counts meter samples delivered to the fan-out.
	MeterSamplesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_meter_samples_published_total",
		Help: "Total live meter samples published to subscribers",
	})

	// MeterSamplesDropped counts meter persistence jobs shed under load.
	MeterSamplesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_meter_samples_dropped_total",
		Help: "Total meter persistence jobs dropped by the bounded queue",
	})

	// EventsPublished counts domain events handed to the broker.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_events_published_total",
		Help: "Total domain events published to Kafka",
	}, []string{"event_type"})

	// SessionsSuperseded counts reconnects that replaced a live session.
	SessionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_superseded_total",
		Help: "Total sessions closed because the charge point reconnected",
	})

	// SessionsSwept counts sessions terminated by the heartbeat sweeper.
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_sessions_swept_total",
		Help: "Total sessions terminated for missing ping responses",
	})
)
