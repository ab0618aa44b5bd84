package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(workerTasksTotal, workerQueueDepth) }

var (
	workerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_worker_tasks_total",
			Help: "Background tasks by pool and outcome.",
		},
		[]string{"pool", "status"}, // 'completed', 'failed', 'rejected'
	)

	workerQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "checkout_worker_queue_depth",
			Help: "Tasks waiting in the pool queue.",
		},
		[]string{"pool"},
	)
)

func IncWorkerTask(pool, status string) {
	workerTasksTotal.WithLabelValues(norm(pool), norm(status)).Inc()
}

func SetWorkerQueueDepth(pool string, n int) {
	workerQueueDepth.WithLabelValues(norm(pool)).Set(float64(n))
}
