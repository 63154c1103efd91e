package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/simaogato/wealthflow-ldi/internal/domain"
)

// Recorder publishes run telemetry as Prometheus metrics
type Recorder struct {
	StageDuration     *prometheus.HistogramVec
	RunDuration       *prometheus.HistogramVec
	RunFailures       *prometheus.CounterVec
	ApproximateSolves *prometheus.CounterVec
	FundingRatio      *prometheus.GaugeVec
}

// NewRecorder creates and registers the metrics on reg
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ldi",
				Subsystem: "run",
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each stage of a portfolio run",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ldi",
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "End-to-end duration of a portfolio run",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"status"},
		),

		RunFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldi",
				Subsystem: "run",
				Name:      "failures_total",
				Help:      "Failed portfolio runs by error kind",
			},
			[]string{"portfolio", "kind"},
		),

		ApproximateSolves: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ldi",
				Subsystem: "optimizer",
				Name:      "approximate_total",
				Help:      "Optimizations that returned an approximate allocation, by stop reason",
			},
			[]string{"portfolio", "reason"},
		),

		FundingRatio: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ldi",
				Subsystem: "liability",
				Name:      "funding_ratio",
				Help:      "Latest funding ratio per portfolio",
			},
			[]string{"portfolio"},
		),
	}
}

func (r *Recorder) ObserveStage(stage string, elapsed time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveRun(portfolioID string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
		r.RunFailures.WithLabelValues(portfolioID, string(domain.KindOf(err))).Inc()
	}
	r.RunDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveApproximate(portfolioID string, reason domain.StopReason) {
	r.ApproximateSolves.WithLabelValues(portfolioID, string(reason)).Inc()
}

func (r *Recorder) ObserveFunding(portfolioID string, ratio float64) {
	r.FundingRatio.WithLabelValues(portfolioID).Set(ratio)
}
