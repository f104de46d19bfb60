package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(storeOpDuration, dbPoolStats) }

var (
	storeOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "settings_store_op_duration_seconds",
			Help:    "Latency of settings store operations by driver, operation and result.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"driver", "op", "result"},
	)

	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "db_pool_stats",
			Help: "Current state of the postgres connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)
)

// ObserveStoreOp records one store call that began at start; err nil counts as "ok".
func ObserveStoreOp(driver, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	storeOpDuration.WithLabelValues(norm(driver), norm(op), result).Observe(time.Since(start).Seconds())
}

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}
