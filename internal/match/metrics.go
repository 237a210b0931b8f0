package match

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "learningbharat"

var intentsMatched = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "match",
		Name:      "intents_total",
		Help:      "Total notification intents produced by the matcher",
	},
)

// recordMatched records produced intents.
func recordMatched(count int) {
	intentsMatched.Add(float64(count))
}
