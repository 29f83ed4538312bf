package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"gopkg.in/yaml.v3"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// OpenWeatherMap client configuration.
	OpenWeatherBaseURL   string
	OpenWeatherAPIKey    string
	OpenWeatherTimeout   time.Duration
	OpenWeatherRateLimit int // requests per minute
	OpenWeatherCacheSize int
	OpenWeatherCacheTTL  time.Duration

	// Sensor autostart. SensorConfigFile is a YAML map in the initialize
	// payload shape.
	SensorConfigFile string
	SensorAutostart  bool

	// Optional event channel sinks.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	RedisAddr    string
	RedisChannel string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	owTimeout, err := parsePositiveDuration("OPENWEATHER_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	cacheTTL, err := parsePositiveDuration("OPENWEATHER_CACHE_TTL", "1m")
	if err != nil {
		return nil, err
	}
	rateLimit, err := parsePositiveInt("OPENWEATHER_RATE_LIMIT", 60)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("OPENWEATHER_CACHE_SIZE", 100)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		OpenWeatherBaseURL:   sharedcfg.EnvOrDefault("OPENWEATHER_BASE_URL", "https://api.openweathermap.org"),
		OpenWeatherAPIKey:    os.Getenv("OPENWEATHER_API_KEY"),
		OpenWeatherTimeout:   owTimeout,
		OpenWeatherRateLimit: rateLimit,
		OpenWeatherCacheSize: cacheSize,
		OpenWeatherCacheTTL:  cacheTTL,

		SensorConfigFile: os.Getenv("SENSOR_CONFIG_FILE"),
		SensorAutostart:  os.Getenv("SENSOR_AUTOSTART") == "true",

		KafkaEnabled: os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "openweather-data"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisChannel: sharedcfg.EnvOrDefault("REDIS_CHANNEL", "openweather:on_data_changed"),
	}

	if cfg.OpenWeatherBaseURL == "" {
		return nil, errors.New("OPENWEATHER_BASE_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_TOPIC is empty")
	}
	if cfg.SensorAutostart && cfg.SensorConfigFile == "" {
		return nil, errors.New("SENSOR_AUTOSTART is true but SENSOR_CONFIG_FILE is not set")
	}

	return cfg, nil
}

// LoadSensorConfig reads the YAML sensor config file into the map shape the
// initialize call expects. An empty path yields a nil map (all defaults).
func LoadSensorConfig(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sensor config %s: %w", path, err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse sensor config %s: %w", path, err)
	}
	return m, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
