// Package metrics exposes the trainer's observability series through
// Prometheus, using the go-kit metrics abstraction.
package metrics

import (
	"sync"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"

	"github.com/swarmml/swarmtrain/trainer"
)

const namespace = "swarmtrain"

var _ trainer.Sink = (*PrometheusSink)(nil)

// PrometheusSink maps trainer series onto gauges and run params onto a
// labelled info gauge. Series gauges are registered lazily on first
// observation so the sink needs no upfront knowledge of metric names.
type PrometheusSink struct {
	mu     sync.Mutex
	runID  string
	series map[string]metrics.Gauge
	params metrics.Gauge
}

func NewPrometheusSink(runID string) *PrometheusSink {
	return &PrometheusSink{
		runID:  runID,
		series: make(map[string]metrics.Gauge),
		params: kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_param",
			Help:      "Run-level parameters as name/value label pairs.",
		}, []string{"run_id", "name", "value"}),
	}
}

func (s *PrometheusSink) Param(name, value string) {
	s.params.With("run_id", s.runID, "name", name, "value", value).Set(1)
}

func (s *PrometheusSink) Observe(name string, value float64, _ int) {
	s.gauge(name).With("run_id", s.runID).Set(value)
}

func (s *PrometheusSink) gauge(name string) metrics.Gauge {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.series[name]
	if !ok {
		g = kitprometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Name:      name,
			Help:      "Training loop series " + name + ".",
		}, []string{"run_id"})
		s.series[name] = g
	}

	return g
}
