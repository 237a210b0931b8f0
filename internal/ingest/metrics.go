package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "learningbharat"

var eventsIngested = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_total",
		Help:      "Total source records processed by ingestion status",
	},
	[]string{"status"},
)

// recordIngested records an ingestion outcome metric.
func recordIngested(status string) {
	eventsIngested.WithLabelValues(status).Inc()
}
