package delivery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "learningbharat"

var (
	intentsDeduped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "intents_deduped_total",
			Help:      "Intents dropped by the idempotency cache",
		},
	)

	intentsRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "intents_rate_limited_total",
			Help:      "Intents deferred to the next window by channel",
		},
		[]string{"channel"},
	)

	deliveryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempts_total",
			Help:      "Delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	deliveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "attempt_duration_seconds",
			Help:      "Time spent in a channel adapter call",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	retriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "retries_total",
			Help:      "Retries scheduled by channel",
		},
		[]string{"channel"},
	)

	deadLettered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "dead_lettered_total",
			Help:      "Records terminated into dead-letter state by channel",
		},
		[]string{"channel"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "queue_depth",
			Help:      "In-memory dispatch queue depth by channel",
		},
		[]string{"channel"},
	)

	recordsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "records",
			Help:      "Delivery records by status",
		},
		[]string{"status"},
	)
)

func recordDeduped() {
	intentsDeduped.Inc()
}

func recordRateLimited(channel string) {
	intentsRateLimited.WithLabelValues(channel).Inc()
}

func recordAttempt(channel, outcome string, duration time.Duration) {
	deliveryAttempts.WithLabelValues(channel, outcome).Inc()
	deliveryDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

func recordRetry(channel string) {
	retriesScheduled.WithLabelValues(channel).Inc()
}

func recordDeadLetter(channel string) {
	deadLettered.WithLabelValues(channel).Inc()
}

func recordQueueDepth(channel string, depth int) {
	queueDepth.WithLabelValues(channel).Set(float64(depth))
}

// RecordQueueStats updates record status gauges.
func RecordQueueStats(stats *QueueStats) {
	recordsByStatus.WithLabelValues("pending").Set(float64(stats.Pending))
	recordsByStatus.WithLabelValues("deferred").Set(float64(stats.Deferred))
	recordsByStatus.WithLabelValues("dispatched").Set(float64(stats.Dispatched))
	recordsByStatus.WithLabelValues("delivered").Set(float64(stats.Delivered))
	recordsByStatus.WithLabelValues("retry_scheduled").Set(float64(stats.RetryScheduled))
	recordsByStatus.WithLabelValues("failed_permanent").Set(float64(stats.FailedPermanent))
}
