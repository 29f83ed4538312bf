package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNewWeatherData_StampsIdentityAndTime(t *testing.T) {
	now := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { SetClock(nil) })

	cfg := SensorConfig{DeviceID: "dev-1", Label: "roof", Units: UnitsImperial}
	data := NewWeatherData(cfg, Reading{City: "Austin", Temperature: 71.6, Humidity: 40})

	assert.Equal(t, now, data.Timestamp)
	assert.Equal(t, "dev-1", data.DeviceID)
	assert.Equal(t, "roof", data.Label)
	assert.Equal(t, UnitsImperial, data.Unit)
	assert.Equal(t, "Austin", data.City)
	assert.Equal(t, 71.6, data.Temperature)
}

func TestWeatherData_ToMap(t *testing.T) {
	ts := time.Date(2024, time.April, 26, 15, 10, 0, 0, time.UTC)
	sunrise := time.Date(2024, time.April, 26, 11, 58, 0, 0, time.UTC)
	data := WeatherData{
		Timestamp:          ts,
		DeviceID:           "dev-1",
		Label:              "roof",
		City:               "Austin",
		Temperature:        20,
		TemperatureMax:     22,
		TemperatureMin:     18,
		Unit:               UnitsMetric,
		Humidity:           55,
		Pressure:           1012,
		WindSpeed:          3.5,
		WindDegrees:        180,
		Cloudiness:         75,
		WeatherIconID:      803,
		WeatherDescription: "broken clouds",
		Rain:               0.2,
		Sunrise:            sunrise,
	}

	want := map[string]any{
		"timestamp":          ts.UnixMilli(),
		"deviceId":           "dev-1",
		"label":              "roof",
		"city":               "Austin",
		"temperature":        20.0,
		"temperatureMax":     22.0,
		"temperatureMin":     18.0,
		"unit":               "metric",
		"humidity":           55.0,
		"pressure":           1012.0,
		"windSpeed":          3.5,
		"windDegrees":        180.0,
		"cloudiness":         75.0,
		"weatherIconId":      803,
		"weatherDescription": "broken clouds",
		"rain":               0.2,
		"snow":               0.0,
		"sunrise":            sunrise.UnixMilli(),
		"sunset":             int64(0),
	}
	if diff := cmp.Diff(want, data.ToMap()); diff != "" {
		t.Errorf("ToMap() mismatch (-want +got):\n%s", diff)
	}
}

func TestWeatherData_ToMapHasAllDataFields(t *testing.T) {
	m := WeatherData{}.ToMap()
	assert.Len(t, m, len(DataFields))
	for _, k := range DataFields {
		assert.Contains(t, m, k)
	}
}
