package sensor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

type nopProvider struct{}

func (nopProvider) CurrentWeather(context.Context, domain.Query) (domain.Reading, error) {
	return domain.Reading{}, nil
}

func newClockedSensor(t *testing.T, clock clockwork.Clock) *Sensor {
	t.Helper()
	s, err := New(domain.DefaultSensorConfig(), nopProvider{},
		slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting(), WithClock(clock))
	require.NoError(t, err)
	return s
}

func TestSleepWithContext_FollowsClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := newClockedSensor(t, clock)

	done := make(chan bool, 1)
	go func() { done <- s.sleepWithContext(context.Background(), time.Second) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	assert.True(t, <-done)
}

func TestSleepWithContext_Cancelled(t *testing.T) {
	s := newClockedSensor(t, clockwork.NewFakeClock())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, s.sleepWithContext(ctx, time.Hour))
}

func TestSleepWithContext_NonPositive(t *testing.T) {
	s := newClockedSensor(t, clockwork.NewFakeClock())
	assert.True(t, s.sleepWithContext(context.Background(), 0))
}
