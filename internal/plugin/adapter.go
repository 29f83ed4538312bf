package plugin

import (
	"fmt"
	"sync"

	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/sensor"
)

// SensorFactory builds the sensor an Adapter owns.
type SensorFactory interface {
	NewSensor(cfg domain.SensorConfig) (*sensor.Sensor, error)
}

// InitStatus tells the caller what Initialize did.
type InitStatus int

const (
	// StatusInitialized means a new sensor was created.
	StatusInitialized InitStatus = iota + 1
	// StatusAlreadyInitialized means a sensor already existed and nothing changed.
	StatusAlreadyInitialized
)

func (s InitStatus) String() string {
	switch s {
	case StatusInitialized:
		return "initialized"
	case StatusAlreadyInitialized:
		return "already_initialized"
	default:
		return "unknown"
	}
}

// InitResult is the outcome of Initialize. Sensor is nil unless Status is
// StatusInitialized.
type InitResult struct {
	Status InitStatus
	Sensor *sensor.Sensor
}

// Adapter owns at most one sensor for the life of a plugin. The first
// successful Initialize creates it; later calls leave it untouched.
type Adapter struct {
	factory  SensorFactory
	observer domain.Observer

	mu     sync.Mutex
	sensor *sensor.Sensor
}

// NewAdapter creates an uninitialized Adapter. observer is attached to the
// sensor it creates.
func NewAdapter(factory SensorFactory, observer domain.Observer) *Adapter {
	return &Adapter{factory: factory, observer: observer}
}

// Initialize creates the sensor from config (nil means all defaults) when
// none exists. If a sensor already exists the config is ignored and the
// result carries StatusAlreadyInitialized with a nil sensor. Config and
// construction errors leave the adapter uninitialized.
func (a *Adapter) Initialize(config map[string]any) (InitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sensor != nil {
		return InitResult{Status: StatusAlreadyInitialized}, nil
	}

	cfg, err := domain.ParseSensorConfig(config)
	if err != nil {
		return InitResult{}, err
	}
	s, err := a.factory.NewSensor(cfg)
	if err != nil {
		return InitResult{}, fmt.Errorf("create sensor: %w", err)
	}
	s.SetObserver(a.observer)
	a.sensor = s

	return InitResult{Status: StatusInitialized, Sensor: s}, nil
}

// Sensor returns the owned sensor, or nil before Initialize succeeds.
func (a *Adapter) Sensor() *sensor.Sensor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sensor
}

// Active reports whether a sensor exists.
func (a *Adapter) Active() bool {
	return a.Sensor() != nil
}
