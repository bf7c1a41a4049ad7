package tuning

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/estateml/estateml/pkg/errors"
)

// StudyMetrics exports search progress as Prometheus metrics.
type StudyMetrics struct {
	TrialsTotal   *prometheus.CounterVec
	TrialDuration *prometheus.HistogramVec
	BestValue     *prometheus.GaugeVec
}

// NewStudyMetrics creates the collectors and registers them with reg.
func NewStudyMetrics(reg prometheus.Registerer) (*StudyMetrics, error) {
	m := &StudyMetrics{
		TrialsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "estateml",
				Subsystem: "tuning",
				Name:      "trials_total",
				Help:      "Number of finished trials by state.",
			},
			[]string{"study", "state"},
		),
		TrialDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "estateml",
				Subsystem: "tuning",
				Name:      "trial_duration_seconds",
				Help:      "Wall time of finished trials.",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
			},
			[]string{"study"},
		),
		BestValue: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "estateml",
				Subsystem: "tuning",
				Name:      "best_value",
				Help:      "Lowest objective value among complete trials.",
			},
			[]string{"study"},
		),
	}
	for _, c := range []prometheus.Collector{m.TrialsTotal, m.TrialDuration, m.BestValue} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "tuning: register metrics")
		}
	}
	return m, nil
}

// Callback returns a study callback that records every finished trial.
func (m *StudyMetrics) Callback() Callback {
	return func(study *Study, trial FrozenTrial) {
		m.TrialsTotal.WithLabelValues(study.Name(), trial.State.String()).Inc()
		m.TrialDuration.WithLabelValues(study.Name()).Observe(trial.Duration().Seconds())
		if best, err := study.BestTrial(); err == nil {
			m.BestValue.WithLabelValues(study.Name()).Set(best.Value)
		}
	}
}

// WriteTextfile writes everything gathered by g to path in the text
// exposition format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return errors.Wrapf(err, "tuning: write metrics to %s", path)
	}
	return nil
}
