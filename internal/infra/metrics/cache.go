package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(cacheRequestsTotal, subscriptionChangesTotal) }

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_cache_requests_total",
		Help: "Tracks cache hits and misses for in-process caches.",
	},
	[]string{"cache", "result"}, // e.g., cache="subscription", result="hit"
)

var subscriptionChangesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "checkout_subscription_changes_total",
		Help: "Counts published subscription snapshots that differ from the previous one.",
	},
	[]string{"status"},
)

func IncCacheRequest(cacheName, result string) {
	cacheRequestsTotal.WithLabelValues(norm(cacheName), norm(result)).Inc()
}

func IncSubscriptionChanged(status string) {
	subscriptionChangesTotal.WithLabelValues(norm(status)).Inc()
}
