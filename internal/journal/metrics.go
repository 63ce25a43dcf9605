package journal

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	saves      prometheus.Counter
	archived   prometheus.Counter
	rotations  prometheus.Counter
	failures   *prometheus.CounterVec
	lockWait   prometheus.Histogram
	hotEntries prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		saves: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cocoon", Subsystem: "journal", Name: "saves_total",
			Help: "Cocoons written to the hot tier",
		}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cocoon", Subsystem: "journal", Name: "archived_total",
			Help: "Cocoons moved to the cold tier",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cocoon", Subsystem: "journal", Name: "rotations_total",
			Help: "Rotation passes that archived at least one cocoon",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocoon", Subsystem: "journal", Name: "failures_total",
			Help: "Journal failures by kind",
		}, []string{"kind"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cocoon", Subsystem: "journal", Name: "lock_wait_seconds",
			Help:    "Time spent acquiring the journal lock",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 10},
		}),
		hotEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cocoon", Subsystem: "journal", Name: "hot_entries",
			Help: "Cocoons currently in the hot tier",
		}),
	}
	if reg == nil {
		return m
	}
	m.saves = register(reg, m.saves)
	m.archived = register(reg, m.archived)
	m.rotations = register(reg, m.rotations)
	m.failures = register(reg, m.failures)
	m.lockWait = register(reg, m.lockWait)
	m.hotEntries = register(reg, m.hotEntries)
	return m
}

// register adds c to reg, reusing the existing collector when another journal
// in the same process registered it first.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}
