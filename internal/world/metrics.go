package world

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldline_events_replayed_total",
		Help: "Total number of events folded into computed states",
	})

	rowsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldline_rows_written_total",
		Help: "Total number of rows committed through batch writes",
	})

	partialWriteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldline_partial_write_failures_total",
		Help: "Number of multi-batch writes that failed after committing at least one batch",
	})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "worldline_operation_duration_seconds",
		Help:    "Duration of engine operations",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
	}, []string{"operation"})
)

func observe(operation string) func() {
	timer := prometheus.NewTimer(operationDuration.WithLabelValues(operation))
	return func() { timer.ObserveDuration() }
}
