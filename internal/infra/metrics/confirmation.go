package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		ConfirmationViews,
		ConfirmationDuration,
		HandoffsTotal,
		RateLimitedTotal,
	)
}

var (
	// Rendered confirmation views grouped by rail and state.
	// rail: card|upi
	// state: loading|success|recoverable_error|fatal_error
	ConfirmationViews = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_confirmation_views_total",
			Help: "Confirmation views returned by rail and state.",
		},
		[]string{"rail", "state"},
	)

	// Wall time of a confirmation request, including retries and polling.
	ConfirmationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_confirmation_duration_seconds",
			Help:    "Duration of confirmation requests in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 3, 5, 10, 30, 60, 180, 600},
		},
		[]string{"rail", "state"},
	)

	// Pending handoffs by operation.
	// op: stored|resumed|empty
	HandoffsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_handoffs_total",
			Help: "Account-binding handoffs stored and consumed.",
		},
		[]string{"op"},
	)

	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter.",
		},
		[]string{"route"},
	)
)

func ObserveConfirmation(rail, state string, elapsed time.Duration) {
	ConfirmationViews.WithLabelValues(norm(rail), norm(state)).Inc()
	ConfirmationDuration.WithLabelValues(norm(rail), norm(state)).Observe(elapsed.Seconds())
}

func IncHandoff(op string) {
	HandoffsTotal.WithLabelValues(norm(op)).Inc()
}

func IncRateLimited(route string) {
	RateLimitedTotal.WithLabelValues(route).Inc()
}
