// Package domain models the OpenWeatherMap sensor exposed by the bridge.
//
// # Sensor configuration
//
// A sensor is configured once, from the flat map passed to the initialize
// call on the method channel. Keys follow the AWARE framework naming:
//
//	enabled, debug       bool
//	label, deviceId      string
//	apiKey               string, OpenWeatherMap "appid"
//	units                "standard" | "metric" | "imperial" (default metric)
//	lang                 OpenWeatherMap language code (default "en")
//	interval             polling period in minutes (default 15)
//	city                 free-text city query, used when no coordinates are set
//	latitude, longitude  WGS-84 coordinates
//
// Absent keys take the defaults above and deviceId defaults to a random UUID.
// Unknown keys are ignored. Wrong types or out-of-range values produce a
// [*ConfigError] naming the key.
//
// # Data-changed payload
//
// Each reading becomes a [WeatherData] snapshot, flattened by
// [WeatherData.ToMap] before it crosses the event channel. Times
// (timestamp, sunrise, sunset) are Unix milliseconds. The unit field echoes
// the configured units so listeners can tell Celsius from Fahrenheit:
//
//	standard  K,  m/s
//	metric    °C, m/s
//	imperial  °F, mph
//
// Snapshots are never stored or replayed.
package domain
