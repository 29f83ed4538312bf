package plugin

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/openweather-bridge/internal/observability"
)

// Channel names the plugin registers with its host.
const (
	MethodChannelName = "awareframework_openweather/method"
	EventChannelName  = "awareframework_openweather/event"
)

// Method channel calls.
const (
	MethodInitialize = "initialize"
	MethodStart      = "start"
	MethodStop       = "stop"
	MethodSync       = "sync"
	MethodIsEnabled  = "is_enabled"
)

var (
	// ErrMethodNotImplemented is returned for calls the plugin does not know.
	ErrMethodNotImplemented = errors.New("method not implemented")
	// ErrNotInitialized is returned for sensor calls made before initialize.
	ErrNotInitialized = errors.New("sensor not initialized")
	// ErrListenerClosed is returned by sinks whose consumer went away.
	ErrListenerClosed = errors.New("listener closed")
)

// MethodCall is one invocation on the method channel.
type MethodCall struct {
	Method    string `json:"method"`
	Arguments any    `json:"arguments,omitempty"`
}

// ChannelHandler is what a host routes channel traffic to.
type ChannelHandler interface {
	HandleMethodCall(ctx context.Context, call MethodCall) (any, error)
	Listen(event string, sink Sink) *Listener
}

// Registrar is implemented by hosts that expose a method channel and an
// event channel.
type Registrar interface {
	SetChannels(methodChannel, eventChannel string, h ChannelHandler)
}

// Plugin binds one Adapter and one EventChannel. The host owns the Plugin
// and tears it down with Close.
type Plugin struct {
	adapter *Adapter
	events  *EventChannel
	logger  *slog.Logger
	metrics *observability.Metrics

	// ctx bounds sensor poll loops started through the method channel; a
	// request context would end with the request.
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Plugin whose sensors are built by factory.
func New(factory SensorFactory, logger *slog.Logger, metrics *observability.Metrics) *Plugin {
	events := NewEventChannel(metrics)
	ctx, cancel := context.WithCancel(context.Background())
	return &Plugin{
		adapter: NewAdapter(factory, events),
		events:  events,
		logger:  logger,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register hands the plugin's channels to the host.
func (p *Plugin) Register(r Registrar) {
	r.SetChannels(MethodChannelName, EventChannelName, p)
}

// Adapter returns the plugin's sensor adapter.
func (p *Plugin) Adapter() *Adapter { return p.adapter }

// Events returns the plugin's event channel.
func (p *Plugin) Events() *EventChannel { return p.events }

// Listen registers a listener on the event channel.
func (p *Plugin) Listen(event string, sink Sink) *Listener {
	return p.events.Listen(event, sink)
}

// CheckReadiness reports ready once a sensor exists and has delivered data.
func (p *Plugin) CheckReadiness(ctx context.Context) error {
	s := p.adapter.Sensor()
	if s == nil {
		return ErrNotInitialized
	}
	return s.CheckReadiness(ctx)
}

// HandleMethodCall dispatches a method channel call.
//
//	initialize(config?) -> sensor config map, or nil if already initialized;
//	                       starts the sensor when config.enabled is true
//	start, stop, sync   -> nil
//	is_enabled          -> bool
func (p *Plugin) HandleMethodCall(ctx context.Context, call MethodCall) (any, error) {
	result, outcome, err := p.handle(ctx, call)
	method := call.Method
	if errors.Is(err, ErrMethodNotImplemented) {
		method = "unknown"
	}
	p.metrics.MethodCalls.WithLabelValues(method, outcome).Inc()
	if err != nil {
		p.logger.Warn("method call failed", "method", call.Method, "error", err)
	}
	return result, err
}

func (p *Plugin) handle(ctx context.Context, call MethodCall) (any, string, error) {
	switch call.Method {
	case MethodInitialize:
		// Non-map arguments fall back to defaults.
		config, _ := call.Arguments.(map[string]any)
		res, err := p.adapter.Initialize(config)
		if err != nil {
			return nil, "error", err
		}
		if res.Status == StatusAlreadyInitialized {
			p.logger.Debug("initialize ignored, sensor already exists")
			return nil, "noop", nil
		}
		cfg := res.Sensor.Config()
		p.logger.Info("sensor initialized", "device_id", cfg.DeviceID, "units", cfg.Units, "interval", cfg.Interval)
		if cfg.Enabled {
			if err := res.Sensor.Start(p.ctx); err != nil {
				return nil, "error", err
			}
		}
		return cfg.ToMap(), "ok", nil

	case MethodStart:
		s := p.adapter.Sensor()
		if s == nil {
			return nil, "error", ErrNotInitialized
		}
		if err := s.Start(p.ctx); err != nil {
			return nil, "error", err
		}
		return nil, "ok", nil

	case MethodStop:
		s := p.adapter.Sensor()
		if s == nil {
			return nil, "error", ErrNotInitialized
		}
		s.Stop()
		return nil, "ok", nil

	case MethodSync:
		s := p.adapter.Sensor()
		if s == nil {
			return nil, "error", ErrNotInitialized
		}
		if err := s.Sync(ctx); err != nil {
			return nil, "error", err
		}
		return nil, "ok", nil

	case MethodIsEnabled:
		s := p.adapter.Sensor()
		return s != nil && s.Running(), "ok", nil

	default:
		return nil, "error", ErrMethodNotImplemented
	}
}

// Close stops the sensor and drops all listeners.
func (p *Plugin) Close() {
	if s := p.adapter.Sensor(); s != nil {
		s.Stop()
	}
	p.cancel()
	p.events.Close()
}
