package toolsrv

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var errMissingTable = errors.New("table is required")

var toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "qcbench",
	Subsystem: "tools",
	Name:      "calls_total",
	Help:      "Tool calls served to agents by tool and status.",
}, []string{"tool", "status"})

func observe(tool string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}

	toolCalls.WithLabelValues(tool, status).Inc()
}
