package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/openweather-bridge/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/openweather-bridge/internal/adapter/kafka"
	"github.com/couchcryptid/openweather-bridge/internal/adapter/openweather"
	redisadapter "github.com/couchcryptid/openweather-bridge/internal/adapter/redis"
	"github.com/couchcryptid/openweather-bridge/internal/config"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
	"github.com/couchcryptid/openweather-bridge/internal/plugin"
	"github.com/couchcryptid/openweather-bridge/internal/sensor"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if cfg.OpenWeatherAPIKey == "" {
		logger.Warn("OPENWEATHER_API_KEY not set, sensors must supply apiKey")
	}
	client := openweather.NewClient(cfg.OpenWeatherBaseURL, cfg.OpenWeatherAPIKey, cfg.OpenWeatherTimeout,
		cfg.OpenWeatherRateLimit, metrics, logger)
	provider := openweather.NewCachedProvider(client, cfg.OpenWeatherCacheSize, cfg.OpenWeatherCacheTTL, nil, metrics)
	logger.Info("openweather provider ready",
		"base_url", cfg.OpenWeatherBaseURL, "cache_size", cfg.OpenWeatherCacheSize, "cache_ttl", cfg.OpenWeatherCacheTTL)

	p := plugin.New(sensor.NewFactory(provider, logger, metrics), logger, metrics)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, logger)
	p.Register(srv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Optional sinks listen on the event channel like any other client.
	var closers []func() error
	if cfg.KafkaEnabled {
		writer := kafkaadapter.NewWriter(cfg, logger)
		p.Listen(plugin.EventDataChanged, writer.Sink(plugin.EventDataChanged))
		closers = append(closers, writer.Close)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	if cfg.RedisAddr != "" {
		publisher := redisadapter.NewPublisher(cfg, logger)
		if err := publisher.Ping(ctx); err != nil {
			logger.Warn("redis unreachable at startup", "error", err)
		}
		p.Listen(plugin.EventDataChanged, publisher.Sink(plugin.EventDataChanged))
		closers = append(closers, publisher.Close)
		logger.Info("redis sink enabled", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	if cfg.SensorAutostart {
		if err := autostart(ctx, cfg, p); err != nil {
			logger.Error("sensor autostart failed", "error", err)
			os.Exit(1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("http server error", "error", err)
	}

	p.Close()
	for _, c := range closers {
		if err := c(); err != nil {
			logger.Error("sink close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// autostart initializes and starts the sensor from SENSOR_CONFIG_FILE.
func autostart(ctx context.Context, cfg *config.Config, p *plugin.Plugin) error {
	sensorCfg, err := config.LoadSensorConfig(cfg.SensorConfigFile)
	if err != nil {
		return err
	}
	if _, err := p.HandleMethodCall(ctx, plugin.MethodCall{Method: plugin.MethodInitialize, Arguments: sensorCfg}); err != nil {
		return err
	}
	_, err = p.HandleMethodCall(ctx, plugin.MethodCall{Method: plugin.MethodStart})
	return err
}
