package trainer

import (
	"log/slog"
	"strconv"
)

// Metric series names shared with the observability side.
const (
	MetricTrainLoss        = "train_loss"
	MetricMemoryUsage      = "memory_usage"
	MetricGPUUsage         = "gpu_usage"
	MetricNetworkBandwidth = "network_bandwidth"
	MetricStaleness        = "gradient_staleness"
)

// Sink records scalar observability series and run-level parameters. The
// loop never fails on sink errors; implementations must swallow their own.
type Sink interface {
	Param(name, value string)
	Observe(name string, value float64, step int)
}

// UsageSampler provides the resource series emitted alongside training
// metrics. A nil sampler disables them.
type UsageSampler interface {
	// MemoryUsage is the resident set size in bytes.
	MemoryUsage() float64
	// GPUUtilization is a percentage, zero when no device is exposed.
	GPUUtilization() float64
	// NetworkBandwidth is bytes per second since the previous sample.
	NetworkBandwidth() float64
}

type logSink struct {
	logger *slog.Logger
}

// NewLogSink records series through the structured logger, for local-only
// runs without a metrics backend.
func NewLogSink(logger *slog.Logger) Sink {
	return &logSink{logger: logger}
}

func (s *logSink) Param(name, value string) {
	s.logger.Info("run param", slog.String("name", name), slog.String("value", value))
}

func (s *logSink) Observe(name string, value float64, step int) {
	s.logger.Debug("metric",
		slog.String("name", name),
		slog.String("value", strconv.FormatFloat(value, 'g', -1, 64)),
		slog.Int("step", step))
}

type nopSink struct{}

func NewNopSink() Sink { return nopSink{} }

func (nopSink) Param(string, string) {}

func (nopSink) Observe(string, float64, int) {}
