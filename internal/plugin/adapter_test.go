package plugin_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
	"github.com/couchcryptid/openweather-bridge/internal/plugin"
	"github.com/couchcryptid/openweather-bridge/internal/sensor"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"pgregory.net/rapid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- mocks ---

type stubProvider struct {
	reading domain.Reading
	err     error
	calls   atomic.Int64
}

func (p *stubProvider) CurrentWeather(_ context.Context, _ domain.Query) (domain.Reading, error) {
	p.calls.Add(1)
	return p.reading, p.err
}

type failingFactory struct{}

func (failingFactory) NewSensor(domain.SensorConfig) (*sensor.Sensor, error) {
	return nil, errors.New("provider offline")
}

type countingObserver struct {
	n atomic.Int64
}

func (o *countingObserver) OnDataChanged(context.Context, domain.WeatherData) error {
	o.n.Add(1)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFactory(p domain.Provider) *sensor.Factory {
	return sensor.NewFactory(p, discardLogger(), observability.NewMetricsForTesting(),
		sensor.WithClock(clockwork.NewFakeClock()))
}

// --- tests ---

func TestAdapter_InitializeNilUsesDefaults(t *testing.T) {
	a := plugin.NewAdapter(newFactory(&stubProvider{}), &countingObserver{})
	assert.False(t, a.Active())

	res, err := a.Initialize(nil)
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusInitialized, res.Status)
	require.NotNil(t, res.Sensor)
	assert.Same(t, res.Sensor, a.Sensor())
	assert.True(t, a.Active())

	cfg := res.Sensor.Config()
	assert.Equal(t, domain.DefaultUnits, cfg.Units)
	assert.Equal(t, domain.DefaultLang, cfg.Lang)
	assert.Equal(t, domain.DefaultInterval, cfg.Interval)
}

func TestAdapter_SecondInitializeIsNoop(t *testing.T) {
	a := plugin.NewAdapter(newFactory(&stubProvider{}), &countingObserver{})

	first, err := a.Initialize(map[string]any{})
	require.NoError(t, err)
	before := first.Sensor.Config()

	second, err := a.Initialize(map[string]any{"key": 1, "units": "imperial"})
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusAlreadyInitialized, second.Status)
	assert.Nil(t, second.Sensor)

	assert.Same(t, first.Sensor, a.Sensor())
	assert.Equal(t, before, a.Sensor().Config())
	assert.Equal(t, domain.UnitsMetric, a.Sensor().Config().Units)
}

func TestAdapter_BadConfigLeavesUninitialized(t *testing.T) {
	a := plugin.NewAdapter(newFactory(&stubProvider{}), &countingObserver{})

	_, err := a.Initialize(map[string]any{"interval": "often"})
	var cfgErr *domain.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.False(t, a.Active())

	res, err := a.Initialize(map[string]any{"interval": 5})
	require.NoError(t, err)
	assert.Equal(t, plugin.StatusInitialized, res.Status)
	assert.Equal(t, 5*time.Minute, res.Sensor.Config().Interval)
}

func TestAdapter_FactoryError(t *testing.T) {
	a := plugin.NewAdapter(failingFactory{}, &countingObserver{})

	_, err := a.Initialize(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create sensor")
	assert.Contains(t, err.Error(), "provider offline")
	assert.False(t, a.Active())
}

func TestAdapter_AttachesObserver(t *testing.T) {
	obs := &countingObserver{}
	a := plugin.NewAdapter(newFactory(&stubProvider{}), obs)

	res, err := a.Initialize(map[string]any{"city": "Austin"})
	require.NoError(t, err)
	require.NoError(t, res.Sensor.Sync(context.Background()))

	assert.Equal(t, int64(1), obs.n.Load())
}

func TestAdapter_ConcurrentInitializeCreatesOneSensor(t *testing.T) {
	a := plugin.NewAdapter(newFactory(&stubProvider{}), &countingObserver{})

	var created atomic.Int64
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := a.Initialize(nil)
			if err == nil && res.Status == plugin.StatusInitialized {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), created.Load())
}

func TestInitStatus_String(t *testing.T) {
	assert.Equal(t, "initialized", plugin.StatusInitialized.String())
	assert.Equal(t, "already_initialized", plugin.StatusAlreadyInitialized.String())
	assert.Equal(t, "unknown", plugin.InitStatus(0).String())
}

// Initialize on a fresh adapter honours every supplied key and defaults the
// rest; a second call never changes the result.
func TestAdapter_InitializeConfigProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		in := map[string]any{}
		label := rapid.Ptr(rapid.StringMatching(`[a-z]{0,12}`), true).Draw(t, "label")
		units := rapid.Ptr(rapid.SampledFrom([]string{"standard", "metric", "imperial"}), true).Draw(t, "units")
		interval := rapid.Ptr(rapid.IntRange(1, 1440), true).Draw(t, "interval")
		lat := rapid.Ptr(rapid.Float64Range(-90, 90), true).Draw(t, "latitude")
		if label != nil {
			in["label"] = *label
		}
		if units != nil {
			in["units"] = *units
		}
		if interval != nil {
			in["interval"] = *interval
		}
		if lat != nil {
			in["latitude"] = *lat
		}

		a := plugin.NewAdapter(newFactory(&stubProvider{}), &countingObserver{})
		res, err := a.Initialize(in)
		if err != nil {
			t.Fatalf("initialize: %v", err)
		}
		cfg := res.Sensor.Config()

		wantLabel, wantUnits, wantInterval, wantLat := "", domain.DefaultUnits, domain.DefaultInterval, 0.0
		if label != nil {
			wantLabel = *label
		}
		if units != nil {
			wantUnits = *units
		}
		if interval != nil {
			wantInterval = time.Duration(*interval) * time.Minute
		}
		if lat != nil {
			wantLat = *lat
		}
		if cfg.Label != wantLabel || cfg.Units != wantUnits || cfg.Interval != wantInterval || cfg.Latitude != wantLat {
			t.Fatalf("config %+v does not match input %v", cfg, in)
		}
		if cfg.Lang != domain.DefaultLang {
			t.Fatalf("lang = %q, want default", cfg.Lang)
		}

		again, err := a.Initialize(map[string]any{"units": "imperial", "label": "changed"})
		if err != nil || again.Status != plugin.StatusAlreadyInitialized || again.Sensor != nil {
			t.Fatalf("second initialize = %+v, %v", again, err)
		}
		if a.Sensor().Config() != cfg {
			t.Fatalf("config changed after second initialize")
		}
	})
}
