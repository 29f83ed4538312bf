package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the bridge.
type Metrics struct {
	// Sensor metrics.
	SensorActive    prometheus.Gauge
	SensorReadings  prometheus.Counter
	SensorErrors    prometheus.Counter
	ObserverErrors  prometheus.Counter
	MethodCalls     *prometheus.CounterVec // labels: method, outcome={ok,error,noop}
	ActiveListeners *prometheus.GaugeVec   // labels: event

	// Event fan-out metrics.
	EventsDispatched *prometheus.CounterVec // labels: event
	SinkDeliveries   *prometheus.CounterVec // labels: event, outcome={success,error}

	// OpenWeatherMap API metrics.
	WeatherRequests    *prometheus.CounterVec // labels: outcome={success,error}
	WeatherCache       *prometheus.CounterVec // labels: result={hit,miss}
	WeatherAPIDuration prometheus.Histogram
}

// NewMetrics creates and registers all bridge metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.SensorActive,
		m.SensorReadings,
		m.SensorErrors,
		m.ObserverErrors,
		m.MethodCalls,
		m.ActiveListeners,
		m.EventsDispatched,
		m.SinkDeliveries,
		m.WeatherRequests,
		m.WeatherCache,
		m.WeatherAPIDuration,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SensorActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "openweather_bridge",
			Name:      "sensor_active",
			Help:      "1 while the sensor poll loop is running, 0 otherwise.",
		}),
		SensorReadings: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "sensor_readings_total",
			Help:      "Total readings delivered to the sensor observer.",
		}),
		SensorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "sensor_fetch_errors_total",
			Help:      "Total failed provider fetches.",
		}),
		ObserverErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "observer_errors_total",
			Help:      "Total data-changed notifications the observer rejected.",
		}),
		MethodCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "method_calls_total",
			Help:      "Method channel calls by method and outcome.",
		}, []string{"method", "outcome"}),
		ActiveListeners: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "openweather_bridge",
			Name:      "event_listeners",
			Help:      "Listeners currently registered per event name.",
		}, []string{"event"}),
		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "events_dispatched_total",
			Help:      "Events dispatched on the event channel by name.",
		}, []string{"event"}),
		SinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "sink_deliveries_total",
			Help:      "Listener sink invocations by event name and outcome.",
		}, []string{"event", "outcome"}),
		WeatherRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "weather_requests_total",
			Help:      "OpenWeatherMap API requests by outcome.",
		}, []string{"outcome"}),
		WeatherCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "openweather_bridge",
			Name:      "weather_cache_total",
			Help:      "Weather cache lookups by result.",
		}, []string{"result"}),
		WeatherAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "openweather_bridge",
			Name:      "weather_api_duration_seconds",
			Help:      "OpenWeatherMap API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
