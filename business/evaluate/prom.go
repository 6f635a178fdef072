package evaluate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	examplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qcbench",
		Subsystem: "eval",
		Name:      "examples_total",
		Help:      "Evaluated examples by difficulty and outcome.",
	}, []string{"difficulty", "outcome"})

	answerQuality = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qcbench",
		Subsystem: "eval",
		Name:      "answer_quality",
		Help:      "Answer quality score per example.",
		Buckets:   []float64{0, 0.25, 0.5, 0.75, 0.9, 1},
	}, []string{"difficulty"})

	runsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "qcbench",
		Subsystem: "eval",
		Name:      "runs_total",
		Help:      "Completed evaluation runs.",
	})
)

func record(r Result) {
	outcome := "miss"
	switch {
	case r.AgentError:
		outcome = "agent_error"
	case r.AnswerQuality >= 1:
		outcome = "match"
	case r.AnswerQuality > 0:
		outcome = "partial"
	}

	examplesTotal.WithLabelValues(r.Difficulty, outcome).Inc()
	answerQuality.WithLabelValues(r.Difficulty).Observe(r.AnswerQuality)
}
