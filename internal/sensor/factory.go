package sensor

import (
	"log/slog"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

// Factory builds sensors that share one provider.
type Factory struct {
	provider domain.Provider
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     []Option
}

// NewFactory creates a Factory. opts are applied to every sensor it builds.
func NewFactory(provider domain.Provider, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Factory {
	return &Factory{
		provider: provider,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// NewSensor builds a stopped sensor for cfg.
func (f *Factory) NewSensor(cfg domain.SensorConfig) (*Sensor, error) {
	return New(cfg, f.provider, f.logger, f.metrics, f.opts...)
}
