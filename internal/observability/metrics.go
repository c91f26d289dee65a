package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "air_quality_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	RunsTotal    *prometheus.CounterVec // labels: outcome={success,error}
	RunDuration  prometheus.Histogram
	RunsInFlight prometheus.Gauge

	// Row flow through the cleaner.
	RowsConsumed      prometheus.Counter
	RowsProduced      prometheus.Counter
	DuplicatesRemoved prometheus.Counter
	ImputedValues     *prometheus.CounterVec // labels: column
	CappedValues      *prometheus.CounterVec // labels: column

	// Sink metrics.
	SinkWrites  *prometheus.CounterVec // labels: sink, table, outcome={success,error}
	RowsWritten *prometheus.CounterVec // labels: table
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete clean-transform-persist run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RunsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "runs_in_flight",
			Help:      "Number of pipeline runs currently executing.",
		}),
		RowsConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_consumed_total",
			Help:      "Raw rows handed to the cleaner.",
		}),
		RowsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_produced_total",
			Help:      "Cleaned rows turned into fact records.",
		}),
		DuplicatesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_removed_total",
			Help:      "Exact duplicate rows dropped by the cleaner.",
		}),
		ImputedValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imputed_values_total",
			Help:      "Missing numeric values filled with the column mean.",
		}, []string{"column"}),
		CappedValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capped_values_total",
			Help:      "Numeric values clipped to the 99.9th percentile.",
		}, []string{"column"}),
		SinkWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Table writes by sink, table and outcome.",
		}, []string{"sink", "table", "outcome"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written per table across all sinks.",
		}, []string{"table"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunsInFlight,
		m.RowsConsumed,
		m.RowsProduced,
		m.DuplicatesRemoved,
		m.ImputedValues,
		m.CappedValues,
		m.SinkWrites,
		m.RowsWritten,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
