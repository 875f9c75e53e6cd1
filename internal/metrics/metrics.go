package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks checkpoint throughput, anomalies, ledger health and the
// transit scheduler. All methods are safe on a nil receiver.
type Metrics struct {
	CheckpointsSubmitted *prometheus.CounterVec
	SubmitDuration       prometheus.Histogram
	AnomaliesRaised      *prometheus.CounterVec
	LedgerAppendFailures prometheus.Counter
	SchedulerCycles      *prometheus.CounterVec
	SchedulerPaused      prometheus.Gauge
}

// New registers every metric on reg. Pass prometheus.DefaultRegisterer in
// production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CheckpointsSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplydaddy_checkpoints_submitted_total",
			Help: "Checkpoint submissions by outcome",
		}, []string{"outcome"}),
		SubmitDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "supplydaddy_checkpoint_submit_duration_seconds",
			Help:    "Duration of accepted checkpoint submissions",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		AnomaliesRaised: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplydaddy_anomalies_total",
			Help: "Anomalies recorded by type and severity",
		}, []string{"type", "severity"}),
		LedgerAppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "supplydaddy_ledger_append_failures_total",
			Help: "Ledger appends that failed and rolled back a submission",
		}),
		SchedulerCycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "supplydaddy_scheduler_cycles_total",
			Help: "Transit scheduler cycles by result",
		}, []string{"result"}),
		SchedulerPaused: f.NewGauge(prometheus.GaugeOpts{
			Name: "supplydaddy_scheduler_paused",
			Help: "1 while the transit simulation is paused",
		}),
	}
}

func (m *Metrics) ObserveSubmission(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.CheckpointsSubmitted.WithLabelValues(outcome).Inc()
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}

// IncrementRejected counts a submission refused before it reached the ledger.
func (m *Metrics) IncrementRejected(reason string) {
	if m == nil {
		return
	}
	m.CheckpointsSubmitted.WithLabelValues("rejected_" + reason).Inc()
}

func (m *Metrics) IncrementAnomaly(anomalyType, severity string) {
	if m == nil {
		return
	}
	m.AnomaliesRaised.WithLabelValues(anomalyType, severity).Inc()
}

func (m *Metrics) IncrementLedgerFailure() {
	if m == nil {
		return
	}
	m.LedgerAppendFailures.Inc()
}

func (m *Metrics) IncrementSchedulerCycle(result string) {
	if m == nil {
		return
	}
	m.SchedulerCycles.WithLabelValues(result).Inc()
}

func (m *Metrics) SetSchedulerPaused(paused bool) {
	if m == nil {
		return
	}
	if paused {
		m.SchedulerPaused.Set(1)
		return
	}
	m.SchedulerPaused.Set(0)
}
