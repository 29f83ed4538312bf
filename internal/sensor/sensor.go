package sensor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

const (
	defaultRetries      = 3
	defaultRetryBackoff = 200 * time.Millisecond
)

// Option customizes a Sensor.
type Option func(*Sensor)

// WithClock sets the time source driving the poll ticker and retry backoff.
func WithClock(c clockwork.Clock) Option {
	return func(s *Sensor) { s.clock = c }
}

// WithRetry sets how many times a failed fetch is retried within one poll
// and the first backoff delay. The delay doubles per attempt and is capped
// at the poll interval.
func WithRetry(attempts int, initial time.Duration) Option {
	return func(s *Sensor) {
		s.retries = attempts
		s.retryBackoff = initial
	}
}

// Sensor polls a weather provider on a fixed interval and notifies its
// observer with every reading.
type Sensor struct {
	cfg          domain.SensorConfig
	provider     domain.Provider
	clock        clockwork.Clock
	logger       *slog.Logger
	metrics      *observability.Metrics
	retries      int
	retryBackoff time.Duration

	mu       sync.Mutex
	observer domain.Observer
	cancel   context.CancelFunc
	done     chan struct{}

	ready atomic.Bool
}

// New creates a stopped Sensor. The config is validated here; an invalid
// config yields a *domain.ConfigError.
func New(cfg domain.SensorConfig, provider domain.Provider, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) (*Sensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, errors.New("sensor: provider is required")
	}
	s := &Sensor{
		cfg:          cfg,
		provider:     provider,
		clock:        clockwork.NewRealClock(),
		logger:       logger.With("device_id", cfg.DeviceID),
		metrics:      metrics,
		retries:      defaultRetries,
		retryBackoff: defaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the sensor's configuration. SensorConfig holds only
// values, so the copy cannot alter the sensor.
func (s *Sensor) Config() domain.SensorConfig {
	return s.cfg
}

// SetObserver registers the recipient of data-changed notifications,
// replacing any previous one.
func (s *Sensor) SetObserver(o domain.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = o
}

// Start launches the poll loop. It fetches once immediately, then every
// configured interval until Stop is called or ctx is cancelled. Starting a
// running sensor is a no-op.
func (s *Sensor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go s.run(loopCtx, done)
	s.logger.Info("sensor started", "interval", s.cfg.Interval, "units", s.cfg.Units)
	return nil
}

// Stop halts the poll loop and waits for it to exit. Stopping a stopped
// sensor is a no-op.
func (s *Sensor) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sensor stopped")
}

// Running reports whether the poll loop is active.
func (s *Sensor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Sync performs one fetch-and-notify cycle immediately, without retries.
// Fetch and observer errors are returned to the caller.
func (s *Sensor) Sync(ctx context.Context) error {
	reading, err := s.provider.CurrentWeather(ctx, s.cfg.Query())
	if err != nil {
		s.metrics.SensorErrors.Inc()
		return fmt.Errorf("sync fetch: %w", err)
	}
	return s.deliver(ctx, reading)
}

// CheckReadiness returns nil once the sensor has delivered at least one
// reading, or an error describing why it is not yet ready.
func (s *Sensor) CheckReadiness(_ context.Context) error {
	if !s.ready.Load() {
		return errors.New("sensor has not delivered any readings yet")
	}
	return nil
}

func (s *Sensor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.release(done)
	s.metrics.SensorActive.Set(1)
	defer s.metrics.SensorActive.Set(0)

	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.poll(ctx)
		}
	}
}

// release clears the loop handle when the loop exits on its own, so a
// cancelled parent context leaves the sensor restartable. A loop already
// detached by Stop, or replaced by a later Start, is left alone.
func (s *Sensor) release(done chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != done {
		return
	}
	s.cancel()
	s.cancel, s.done = nil, nil
	s.logger.Info("sensor stopped", "reason", "context done")
}

// poll fetches with exponential backoff and delivers the reading. Errors are
// logged; the next tick tries again.
func (s *Sensor) poll(ctx context.Context) {
	backoff := s.retryBackoff
	for attempt := 0; ; attempt++ {
		reading, err := s.provider.CurrentWeather(ctx, s.cfg.Query())
		if err == nil {
			if err := s.deliver(ctx, reading); err != nil {
				s.logger.Warn("observer rejected reading", "error", err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.metrics.SensorErrors.Inc()
		s.logger.Error("weather fetch failed", "error", err, "attempt", attempt+1)
		if attempt >= s.retries {
			return
		}
		if !s.sleepWithContext(ctx, backoff) {
			return
		}
		backoff = retry.NextBackoff(backoff, s.cfg.Interval)
	}
}

func (s *Sensor) deliver(ctx context.Context, reading domain.Reading) error {
	data := domain.NewWeatherData(s.cfg, reading)
	s.metrics.SensorReadings.Inc()
	s.ready.Store(true)
	if s.cfg.Debug {
		s.logger.Info("weather reading", "city", data.City, "temperature", data.Temperature, "unit", data.Unit)
	}

	s.mu.Lock()
	observer := s.observer
	s.mu.Unlock()
	if observer == nil {
		return nil
	}

	if err := observer.OnDataChanged(ctx, data); err != nil {
		s.metrics.ObserverErrors.Inc()
		return fmt.Errorf("notify observer: %w", err)
	}
	return nil
}

// sleepWithContext mirrors retry.SleepWithContext on the sensor's clock.
func (s *Sensor) sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
