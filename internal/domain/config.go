package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
)

// Units accepted by OpenWeatherMap.
const (
	UnitsStandard = "standard"
	UnitsMetric   = "metric"
	UnitsImperial = "imperial"
)

// Defaults applied by ParseSensorConfig when a key is absent.
const (
	DefaultUnits    = UnitsMetric
	DefaultLang     = "en"
	DefaultInterval = 15 * time.Minute
)

// SensorConfig is the effective configuration of a weather sensor. It is
// built once from the initialize payload and never mutated afterwards.
// Enabled sensors start polling as soon as they are initialized.
type SensorConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Debug     bool          `mapstructure:"debug"`
	Label     string        `mapstructure:"label"`
	DeviceID  string        `mapstructure:"deviceId"`
	APIKey    string        `mapstructure:"apiKey"`
	Units     string        `mapstructure:"units"`
	Lang      string        `mapstructure:"lang"`
	Interval  time.Duration `mapstructure:"interval"`
	City      string        `mapstructure:"city"`
	Latitude  float64       `mapstructure:"latitude"`
	Longitude float64       `mapstructure:"longitude"`
}

// ConfigError reports a configuration value the sensor cannot accept.
type ConfigError struct {
	Key    string
	Value  any
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid sensor config %q (%v): %s", e.Key, e.Value, e.Reason)
}

// DefaultSensorConfig returns the configuration used when initialize is
// called without arguments. DeviceID is generated per call.
func DefaultSensorConfig() SensorConfig {
	return SensorConfig{
		DeviceID: uuid.NewString(),
		Units:    DefaultUnits,
		Lang:     DefaultLang,
		Interval: DefaultInterval,
	}
}

// ParseSensorConfig converts an initialize payload into a SensorConfig.
// A nil or empty map yields DefaultSensorConfig. Unknown keys are ignored
// and nil values keep their default. Numbers may arrive as any Go numeric
// type (JSON decoding yields float64, YAML decoding yields int); interval
// is given in minutes.
func ParseSensorConfig(m map[string]any) (SensorConfig, error) {
	cfg := DefaultSensorConfig()
	if len(m) == 0 {
		return cfg, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       minutesToDuration,
		WeaklyTypedInput: false,
		Result:           &cfg,
	})
	if err != nil {
		return SensorConfig{}, fmt.Errorf("build config decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return SensorConfig{}, toConfigError(m, err)
	}

	if err := cfg.Validate(); err != nil {
		return SensorConfig{}, err
	}
	return cfg, nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// minutesToDuration reads a duration field as a count of minutes.
func minutesToDuration(_, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	var minutes float64
	v := reflect.ValueOf(data)
	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		minutes = float64(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		minutes = float64(v.Uint())
	case reflect.Float32, reflect.Float64:
		minutes = v.Float()
	default:
		return nil, errors.New("expected number of minutes")
	}
	if math.IsNaN(minutes) || math.IsInf(minutes, 0) {
		return nil, errors.New("expected finite number")
	}
	return time.Duration(minutes * float64(time.Minute)), nil
}

func toConfigError(m map[string]any, err error) error {
	var decErr *mapstructure.DecodeError
	if !errors.As(err, &decErr) {
		return &ConfigError{Reason: err.Error()}
	}
	key := decErr.Name()
	return &ConfigError{Key: key, Value: lookupFold(m, key), Reason: decErr.Unwrap().Error()}
}

// lookupFold mirrors the decoder's case-insensitive key matching.
func lookupFold(m map[string]any, key string) any {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return nil
}

// Validate checks value ranges. ParseSensorConfig calls it; callers that
// build a SensorConfig by hand should too.
func (c SensorConfig) Validate() error {
	switch c.Units {
	case UnitsStandard, UnitsMetric, UnitsImperial:
	default:
		return &ConfigError{Key: "units", Value: c.Units, Reason: "must be standard, metric or imperial"}
	}
	if c.Interval <= 0 {
		return &ConfigError{Key: "interval", Value: c.Interval.Minutes(), Reason: "must be positive"}
	}
	if c.DeviceID == "" {
		return &ConfigError{Key: "deviceId", Value: c.DeviceID, Reason: "must not be empty"}
	}
	if math.IsNaN(c.Latitude) || c.Latitude < -90 || c.Latitude > 90 {
		return &ConfigError{Key: "latitude", Value: c.Latitude, Reason: "out of range [-90, 90]"}
	}
	if math.IsNaN(c.Longitude) || c.Longitude < -180 || c.Longitude > 180 {
		return &ConfigError{Key: "longitude", Value: c.Longitude, Reason: "out of range [-180, 180]"}
	}
	return nil
}

// Query returns the provider query described by the config.
func (c SensorConfig) Query() Query {
	return Query{
		City:      c.City,
		Latitude:  c.Latitude,
		Longitude: c.Longitude,
		Units:     c.Units,
		Lang:      c.Lang,
		APIKey:    c.APIKey,
	}
}

// ToMap renders the config back into the initialize payload shape.
func (c SensorConfig) ToMap() map[string]any {
	return map[string]any{
		"enabled":   c.Enabled,
		"debug":     c.Debug,
		"label":     c.Label,
		"deviceId":  c.DeviceID,
		"apiKey":    c.APIKey,
		"units":     c.Units,
		"lang":      c.Lang,
		"interval":  c.Interval.Minutes(),
		"city":      c.City,
		"latitude":  c.Latitude,
		"longitude": c.Longitude,
	}
}
