package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/shpitdev/corpus-querier/internal/batch"
	"github.com/shpitdev/corpus-querier/pkg/corpus"
)

// Run holds the counters of one batch run on a private registry, so a run can
// be dumped to a node-exporter textfile when the process exits.
type Run struct {
	registry *prometheus.Registry

	// AttemptsTotal counts search requests by result (count, timeout, fault).
	AttemptsTotal *prometheus.CounterVec
	// AttemptDuration tracks request latency by result.
	AttemptDuration *prometheus.HistogramVec
	// CellsTotal counts visited cells by outcome (count, skipped, error).
	CellsTotal *prometheus.CounterVec
	// HitsTotal sums the hit counts written.
	HitsTotal prometheus.Counter
	// LastRunStatus is 1 for the status the run ended with.
	LastRunStatus *prometheus.GaugeVec
}

func NewRun(corpusName string) *Run {
	labels := prometheus.Labels{"corpus": corpusName}
	r := &Run{
		registry: prometheus.NewRegistry(),
		AttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusq_attempts_total",
				Help:        "Total number of corpus search requests",
				ConstLabels: labels,
			},
			[]string{"result"},
		),
		AttemptDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "corpusq_attempt_duration_seconds",
				Help:        "Corpus search request latency in seconds",
				ConstLabels: labels,
				Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
			},
			[]string{"result"},
		),
		CellsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "corpusq_cells_total",
				Help:        "Total number of cells visited",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		HitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "corpusq_hits_total",
			Help:        "Sum of hit counts written to the sheet",
			ConstLabels: labels,
		}),
		LastRunStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name:        "corpusq_last_run_status",
				Help:        "Set to 1 for the status the last run ended with",
				ConstLabels: labels,
			},
			[]string{"status", "reason"},
		),
	}
	r.registry.MustRegister(r.AttemptsTotal, r.AttemptDuration, r.CellsTotal, r.HitsTotal, r.LastRunStatus)
	return r
}

// ObserveAttempt matches retry.Options.OnAttempt.
func (r *Run) ObserveAttempt(_ int, res corpus.AttemptResult) {
	kind := res.Kind.String()
	r.AttemptsTotal.WithLabelValues(kind).Inc()
	r.AttemptDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())
}

// ObserveCell matches batch.Options.OnCell.
func (r *Run) ObserveCell(rec batch.CellRecord) {
	r.CellsTotal.WithLabelValues(rec.Outcome.Kind.String()).Inc()
	if rec.Outcome.Count > 0 {
		r.HitsTotal.Add(float64(rec.Outcome.Count))
	}
}

// ObserveResult records how the run ended.
func (r *Run) ObserveResult(res batch.Result) {
	r.LastRunStatus.WithLabelValues(res.Status.String(), res.Reason.String()).Set(1)
}

// WriteTextfile writes the registry in the text exposition format.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
