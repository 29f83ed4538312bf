//go:build openweather

package openweather

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real OpenWeatherMap API and require OPENWEATHER_API_KEY.
// Run with: go test -tags=openweather ./internal/adapter/openweather/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	key := os.Getenv("OPENWEATHER_API_KEY")
	if key == "" {
		t.Fatal("OPENWEATHER_API_KEY must be set to run smoke tests")
	}
	return &Client{
		apiKey:     key,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.openweathermap.org",
		metrics:    testMetrics(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestSmoke_CurrentWeatherByCity(t *testing.T) {
	c := smokeClient(t)

	r, err := c.CurrentWeather(context.Background(), domain.Query{City: "Austin,US", Units: "metric"})
	require.NoError(t, err)

	assert.Equal(t, "Austin", r.City)
	assert.NotZero(t, r.Pressure)
	assert.False(t, r.Sunrise.IsZero())
	t.Logf("Austin: %.1f°C, %s", r.Temperature, r.WeatherDescription)
}

func TestSmoke_CurrentWeatherByCoordinates(t *testing.T) {
	c := smokeClient(t)

	r, err := c.CurrentWeather(context.Background(), domain.Query{Latitude: 60.1699, Longitude: 24.9384, Units: "imperial"})
	require.NoError(t, err)

	assert.NotEmpty(t, r.City)
	assert.NotZero(t, r.Humidity)
	t.Logf("%s: %.1f°F", r.City, r.Temperature)
}
