package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	chatFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_chat_fallback_total",
		Help: "Chat turns answered with the fallback message, by reason.",
	}, []string{"reason"})

	enrollmentGrants = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_enrollment_grants_total",
		Help: "Enrollment grant attempts by outcome.",
	}, []string{"outcome"})

	purchaseTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_purchase_transitions_total",
		Help: "Purchase state machine transitions by target state.",
	}, []string{"to"})

	reviewSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "learnhub_reviews_total",
		Help: "Review submissions by outcome.",
	}, []string{"outcome"})
)
