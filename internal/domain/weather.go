package domain

import (
	"context"
	"time"
)

// Query describes what to ask a weather provider for. When Latitude or
// Longitude is non-zero the coordinates win over City.
type Query struct {
	City      string
	Latitude  float64
	Longitude float64
	Units     string
	Lang      string
	APIKey    string
}

// HasCoordinates reports whether the query pins a location by lat/lon.
func (q Query) HasCoordinates() bool {
	return q.Latitude != 0 || q.Longitude != 0
}

// Reading is a provider's current-conditions observation, already
// normalized to the requested units.
type Reading struct {
	City               string
	Temperature        float64
	TemperatureMax     float64
	TemperatureMin     float64
	Humidity           float64
	Pressure           float64
	WindSpeed          float64
	WindDegrees        float64
	Cloudiness         float64
	Rain               float64 // mm over the last hour
	Snow               float64 // mm over the last hour
	WeatherIconID      int
	WeatherDescription string
	Sunrise            time.Time
	Sunset             time.Time
	ObservedAt         time.Time
}

// Provider fetches current weather for a query.
type Provider interface {
	CurrentWeather(ctx context.Context, q Query) (Reading, error)
}

// WeatherData is the immutable snapshot a sensor emits when new data
// arrives. It travels across the event channel as a flat map.
type WeatherData struct {
	Timestamp          time.Time
	DeviceID           string
	Label              string
	City               string
	Temperature        float64
	TemperatureMax     float64
	TemperatureMin     float64
	Unit               string
	Humidity           float64
	Pressure           float64
	WindSpeed          float64
	WindDegrees        float64
	Cloudiness         float64
	WeatherIconID      int
	WeatherDescription string
	Rain               float64
	Snow               float64
	Sunrise            time.Time
	Sunset             time.Time
}

// Observer receives sensor data-changed notifications.
type Observer interface {
	OnDataChanged(ctx context.Context, data WeatherData) error
}

// NewWeatherData stamps a provider reading with the sensor's identity.
// Timestamp comes from the package clock.
func NewWeatherData(cfg SensorConfig, r Reading) WeatherData {
	return WeatherData{
		Timestamp:          clock.Now().UTC(),
		DeviceID:           cfg.DeviceID,
		Label:              cfg.Label,
		City:               r.City,
		Temperature:        r.Temperature,
		TemperatureMax:     r.TemperatureMax,
		TemperatureMin:     r.TemperatureMin,
		Unit:               cfg.Units,
		Humidity:           r.Humidity,
		Pressure:           r.Pressure,
		WindSpeed:          r.WindSpeed,
		WindDegrees:        r.WindDegrees,
		Cloudiness:         r.Cloudiness,
		WeatherIconID:      r.WeatherIconID,
		WeatherDescription: r.WeatherDescription,
		Rain:               r.Rain,
		Snow:               r.Snow,
		Sunrise:            r.Sunrise,
		Sunset:             r.Sunset,
	}
}

// ToMap flattens the snapshot for transport. Times are Unix milliseconds,
// zero times become 0.
func (d WeatherData) ToMap() map[string]any {
	return map[string]any{
		"timestamp":          unixMilli(d.Timestamp),
		"deviceId":           d.DeviceID,
		"label":              d.Label,
		"city":               d.City,
		"temperature":        d.Temperature,
		"temperatureMax":     d.TemperatureMax,
		"temperatureMin":     d.TemperatureMin,
		"unit":               d.Unit,
		"humidity":           d.Humidity,
		"pressure":           d.Pressure,
		"windSpeed":          d.WindSpeed,
		"windDegrees":        d.WindDegrees,
		"cloudiness":         d.Cloudiness,
		"weatherIconId":      d.WeatherIconID,
		"weatherDescription": d.WeatherDescription,
		"rain":               d.Rain,
		"snow":               d.Snow,
		"sunrise":            unixMilli(d.Sunrise),
		"sunset":             unixMilli(d.Sunset),
	}
}

// DataFields lists the keys ToMap always produces.
var DataFields = []string{
	"timestamp", "deviceId", "label", "city",
	"temperature", "temperatureMax", "temperatureMin", "unit",
	"humidity", "pressure", "windSpeed", "windDegrees", "cloudiness",
	"weatherIconId", "weatherDescription", "rain", "snow",
	"sunrise", "sunset",
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
