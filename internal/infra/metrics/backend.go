package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(backendRequests, backendLatency, emailsTotal) }

var (
	backendRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_backend_requests_total",
			Help: "Calls to the billing/account backend by endpoint and HTTP status (0 = transport error).",
		},
		[]string{"endpoint", "status"},
	)

	backendLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "checkout_backend_request_duration_seconds",
			Help:    "Latency of backend calls in seconds.",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"endpoint"},
	)

	// Activation emails by delivery status: sent|error
	emailsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_activation_emails_total",
			Help: "Subscription activation emails by delivery status.",
		},
		[]string{"status"},
	)
)

func ObserveBackendCall(endpoint string, status int, elapsed time.Duration) {
	backendRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	backendLatency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func IncActivationEmail(status string) {
	emailsTotal.WithLabelValues(norm(status)).Inc()
}
