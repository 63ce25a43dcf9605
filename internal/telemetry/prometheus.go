package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// #region prometheus-observer
// PrometheusObserver exports events as counters, and the latest value of each
// numeric field as a gauge.
type PrometheusObserver struct {
	events *prometheus.CounterVec
	fields *prometheus.GaugeVec
}

// NewPrometheusObserver creates the collectors and registers them on reg.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	p := &PrometheusObserver{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cocoon",
			Name:      "events_total",
			Help:      "Events emitted by graph, tension and journal components",
		}, []string{"component", "op"}),
		fields: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "cocoon",
			Name:      "event_field",
			Help:      "Last numeric value reported for an event field",
		}, []string{"component", "op", "field"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{p.events, p.fields} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

func (p *PrometheusObserver) Observe(e Event) {
	p.events.WithLabelValues(e.Component, e.Op).Inc()
	for name, v := range e.Fields {
		p.fields.WithLabelValues(e.Component, e.Op, name).Set(v)
	}
}

// #endregion prometheus-observer
