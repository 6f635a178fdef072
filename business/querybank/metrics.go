package querybank

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qcbench",
		Subsystem: "querybank",
		Name:      "executions_total",
		Help:      "Reference query executions by query and outcome.",
	}, []string{"query", "outcome"})

	duration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qcbench",
		Subsystem: "querybank",
		Name:      "execution_seconds",
		Help:      "Reference query execution time.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"query"})
)

func observe(id string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	executions.WithLabelValues(id, outcome).Inc()
	duration.WithLabelValues(id).Observe(time.Since(start).Seconds())
}
