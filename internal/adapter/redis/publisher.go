// Package redis mirrors event channel payloads onto a Redis pub/sub channel.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/openweather-bridge/internal/config"
	goredis "github.com/redis/go-redis/v9"
)

// Message is the envelope published for every event.
type Message struct {
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// Publisher publishes event channel payloads with PUBLISH.
type Publisher struct {
	client  *goredis.Client
	channel string
	logger  *slog.Logger
}

// NewPublisher connects to cfg.RedisAddr. The connection is lazy; Ping
// checks it eagerly.
func NewPublisher(cfg *config.Config, logger *slog.Logger) *Publisher {
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	return &Publisher{client: client, channel: cfg.RedisChannel, logger: logger}
}

// Ping verifies the server is reachable.
func (p *Publisher) Ping(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping %s: %w", p.client.Options().Addr, err)
	}
	return nil
}

// Sink returns an event channel sink that publishes every payload for event.
func (p *Publisher) Sink(event string) func(context.Context, map[string]any) error {
	return func(ctx context.Context, payload map[string]any) error {
		data, err := json.Marshal(Message{Event: event, Data: payload})
		if err != nil {
			return fmt.Errorf("serialize %s payload: %w", event, err)
		}
		receivers, err := p.client.Publish(ctx, p.channel, data).Result()
		if err != nil {
			return fmt.Errorf("redis publish: %w", err)
		}
		p.logger.Debug("event published", "sink", "redis", "event", event, "channel", p.channel, "receivers", receivers)
		return nil
	}
}

func (p *Publisher) Close() error {
	return p.client.Close()
}
