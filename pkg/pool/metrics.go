package pool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// poolConnections tracks tracked connections by state.
	poolConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "resilience_pool_connections",
			Help: "Current number of pooled connections by state",
		},
		[]string{"state"}, // "active", "idle"
	)

	// poolAcquiresTotal tracks how acquisitions were satisfied.
	poolAcquiresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_pool_acquires_total",
			Help: "Total connection acquisitions by outcome",
		},
		[]string{"outcome"}, // "reused", "created", "repurposed", "queued"
	)

	// poolTimeoutsTotal tracks queued acquisitions that timed out.
	poolTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_pool_timeouts_total",
			Help: "Total queued acquisitions that timed out",
		},
	)

	// poolReapedTotal tracks connections removed by the idle reaper.
	poolReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_pool_reaped_total",
			Help: "Total idle connections removed by the reaper",
		},
	)

	// poolWaitSeconds tracks how long queued callers waited.
	poolWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resilience_pool_wait_seconds",
			Help:    "Time queued callers spent waiting for a connection",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10},
		},
	)
)

// Stats is a point-in-time snapshot of pool state.
type Stats struct {
	Total              int
	Active             int
	Idle               int
	Utilization        float64
	QueueDepth         int
	TotalRequests      int64
	AvgRequestsPerConn float64
}
