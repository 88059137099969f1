package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConsumeTotal counts generation consume calls by outcome (pro, free, no_credits, conflict, error).
	ConsumeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examly",
		Subsystem: "credits",
		Name:      "consume_total",
		Help:      "Generation consume calls by outcome.",
	}, []string{"outcome"})

	// RechargeTotal counts auto-recharge attempts by outcome.
	RechargeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examly",
		Subsystem: "credits",
		Name:      "recharge_total",
		Help:      "Off-session auto-recharge attempts by outcome.",
	}, []string{"outcome"})

	// FreeActivationsTotal counts free-trial activation requests by outcome.
	FreeActivationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examly",
		Subsystem: "credits",
		Name:      "free_activations_total",
		Help:      "Free-trial activation requests by outcome.",
	}, []string{"outcome"})

	// WebhookRequestsTotal counts Stripe webhook requests by event type and status.
	WebhookRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "examly",
		Subsystem: "webhook",
		Name:      "requests_total",
		Help:      "Total Stripe webhook requests by event type and HTTP status.",
	}, []string{"event_type", "status"})

	// WebhookDuration tracks Stripe webhook processing latency.
	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "examly",
		Subsystem: "webhook",
		Name:      "duration_seconds",
		Help:      "Stripe webhook processing duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"event_type"})
)
