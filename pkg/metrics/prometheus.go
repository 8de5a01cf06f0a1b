package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain repository.Metrics using Prometheus.
type Recorder struct {
	runsTotal         *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
	alertsTotal       *prometheus.CounterVec
	suppressionsTotal *prometheus.CounterVec
	errorsTotal       *prometheus.CounterVec
	judgmentRetries   prometheus.Counter
	inFlight          prometheus.Gauge
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		runsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigwatch_runs_total",
				Help: "Total number of analysis runs by mode and producing source",
			},
			[]string{"mode", "source"},
		),
		runDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sigwatch_run_duration_seconds",
				Help:    "Duration of analysis runs in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		alertsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigwatch_alerts_total",
				Help: "Total number of alert decisions",
			},
			[]string{"decision"},
		),
		suppressionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigwatch_suppressions_total",
				Help: "Total number of suppressed alerts by reason",
			},
			[]string{"reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sigwatch_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		judgmentRetries: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sigwatch_judgment_retries_total",
				Help: "Total number of judgment provider retries",
			},
		),
		inFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "sigwatch_runs_in_flight",
				Help: "Number of entity runs currently executing",
			},
		),
	}
}

func (r *Recorder) RecordRun(mode, source string) {
	r.runsTotal.WithLabelValues(mode, source).Inc()
}

func (r *Recorder) RecordRunDuration(mode string, seconds float64) {
	r.runDuration.WithLabelValues(mode).Observe(seconds)
}

func (r *Recorder) RecordAlert(sent bool) {
	decision := "suppressed"
	if sent {
		decision = "sent"
	}
	r.alertsTotal.WithLabelValues(decision).Inc()
}

func (r *Recorder) RecordSuppression(reason string) {
	r.suppressionsTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordJudgmentRetry() {
	r.judgmentRetries.Inc()
}

func (r *Recorder) SetInFlight(n int) {
	r.inFlight.Set(float64(n))
}
