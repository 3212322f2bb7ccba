package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Storage metrics shared by every repository implementation
var (
	StoreQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "store_query_duration_seconds",
		Help:    "Repository query latency in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"backend", "operation"})

	StoreQueryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_query_total",
		Help: "Total number of repository queries executed",
	}, []string{"backend", "operation", "status"})

	StoreRetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_retry_total",
		Help: "Total number of retried repository operations",
	}, []string{"backend", "operation", "reason"})

	RedisAvailable = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "redis_available",
		Help: "Whether Redis is currently reachable (1 = available, 0 = degraded)",
	})
)

// RecordStoreQuery records one repository call started at start
func RecordStoreQuery(backend, operation string, start time.Time, err error) {
	StoreQueryDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	StoreQueryTotal.WithLabelValues(backend, operation, status).Inc()
}

// RecordStoreRetry records a retried repository operation
func RecordStoreRetry(backend, operation, reason string) {
	StoreRetryTotal.WithLabelValues(backend, operation, reason).Inc()
}

// RecordRedisAvailable sets the Redis availability gauge
func RecordRedisAvailable(available bool) {
	if available {
		RedisAvailable.Set(1)
		return
	}
	RedisAvailable.Set(0)
}
