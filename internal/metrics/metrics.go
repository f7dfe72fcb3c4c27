// Package metrics defines the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook metrics
var (
	// WebhooksReceived tracks inbound webhook deliveries by event type
	WebhooksReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Inbound webhook deliveries by event type",
		},
		[]string{"event_type"},
	)

	// WebhooksRejected tracks webhook deliveries dropped before routing
	WebhooksRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_rejected_total",
			Help: "Webhook deliveries rejected by reason (malformed, bad_signature)",
		},
		[]string{"reason"},
	)

	// WebhookVerifyDuration tracks signature verification latency in seconds
	WebhookVerifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webhook_verify_duration_seconds",
			Help:    "Webhook signature verification duration in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
	)
)

// Token service metrics
var (
	// TokensIssued tracks tokens signed and recorded by kind
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_issued_total",
			Help: "Tokens issued by kind (access_token, refresh_token)",
		},
		[]string{"kind"},
	)

	// TokensRevoked tracks explicit revocations by kind
	TokensRevoked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tokens_revoked_total",
			Help: "Tokens explicitly revoked by kind",
		},
		[]string{"kind"},
	)

	// TokenVerifications tracks verification outcomes
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_verifications_total",
			Help: "Token verifications by result (ok, invalid, revoked)",
		},
		[]string{"result"},
	)
)

// Upstream session metrics
var (
	// UpstreamRefreshes tracks OAuth refresh-grant calls by result
	UpstreamRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_refreshes_total",
			Help: "Upstream OAuth refresh-grant calls by result (ok, failed, revoked)",
		},
		[]string{"result"},
	)
)

// Event delivery metrics
var (
	// EventSubscribers tracks currently registered event subscribers
	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "event_subscribers",
			Help: "Currently registered event subscribers",
		},
	)

	// EventsRouted tracks routed events by event type
	EventsRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_routed_total",
			Help: "Webhook events routed by event type",
		},
		[]string{"event_type"},
	)

	// EventsDropped tracks events dropped because a subscriber buffer was full
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Events dropped due to full subscriber buffers",
		},
	)
)

// Redis metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks Redis connection errors
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total Redis connection errors",
		},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)
)
