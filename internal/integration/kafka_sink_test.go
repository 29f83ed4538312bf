//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/couchcryptid/openweather-bridge/internal/adapter/kafka"
	"github.com/couchcryptid/openweather-bridge/internal/adapter/openweather"
	"github.com/couchcryptid/openweather-bridge/internal/adapter/openweather/owmock"
	"github.com/couchcryptid/openweather-bridge/internal/config"
	"github.com/couchcryptid/openweather-bridge/internal/domain"
	"github.com/couchcryptid/openweather-bridge/internal/observability"
	"github.com/couchcryptid/openweather-bridge/internal/plugin"
	"github.com/couchcryptid/openweather-bridge/internal/sensor"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const testTopic = "test-openweather-data"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("test-cluster"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type fixedProvider struct {
	reading domain.Reading
}

func (p fixedProvider) CurrentWeather(context.Context, domain.Query) (domain.Reading, error) {
	return p.reading, nil
}

// TestDataChangedReachesKafka wires initialize -> sync -> event channel ->
// kafka.Writer and reads the published message back from the topic.
func TestDataChangedReachesKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	cfg := &config.Config{KafkaBrokers: []string{broker}, KafkaTopic: testTopic}
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	provider := fixedProvider{reading: domain.Reading{City: "Austin", Temperature: 28.4, Humidity: 61}}
	p := plugin.New(sensor.NewFactory(provider, discardLogger(), metrics), discardLogger(), metrics)
	t.Cleanup(p.Close)
	p.Listen(plugin.EventDataChanged, writer.Sink(plugin.EventDataChanged))

	_, err := p.HandleMethodCall(ctx, plugin.MethodCall{
		Method:    plugin.MethodInitialize,
		Arguments: map[string]any{"city": "Austin", "deviceId": "dev-int"},
	})
	require.NoError(t, err)
	_, err = p.HandleMethodCall(ctx, plugin.MethodCall{Method: plugin.MethodSync})
	require.NoError(t, err)

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testTopic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from topic")

	assert.Equal(t, "dev-int", string(msg.Key))
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, plugin.EventDataChanged, headers["event_name"])
	_, err = time.Parse(time.RFC3339, headers["timestamp"])
	assert.NoError(t, err, "timestamp header should be RFC3339")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	for _, k := range domain.DataFields {
		assert.Contains(t, payload, k)
	}
	assert.Equal(t, "Austin", payload["city"])
	assert.Equal(t, 28.4, payload["temperature"])
	assert.Equal(t, "metric", payload["unit"])
}

// TestCachedProviderFeedsSensor runs the production provider stack against
// an in-process OpenWeatherMap stand-in.
func TestCachedProviderFeedsSensor(t *testing.T) {
	stub := owmock.NewHandler(clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)))
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	metrics := observability.NewMetricsForTesting()
	client := openweather.NewClient(srv.URL, "key", 5*time.Second, 600, metrics, discardLogger())
	provider := openweather.NewCachedProvider(client, 10, time.Minute, nil, metrics)

	p := plugin.New(sensor.NewFactory(provider, discardLogger(), metrics), discardLogger(), metrics)
	t.Cleanup(p.Close)

	var got []map[string]any
	p.Listen(plugin.EventDataChanged, func(_ context.Context, payload map[string]any) error {
		got = append(got, payload)
		return nil
	})

	ctx := context.Background()
	_, err := p.HandleMethodCall(ctx, plugin.MethodCall{Method: plugin.MethodInitialize, Arguments: map[string]any{"city": "Austin"}})
	require.NoError(t, err)
	for range 2 {
		_, err = p.HandleMethodCall(ctx, plugin.MethodCall{Method: plugin.MethodSync})
		require.NoError(t, err)
	}

	require.Len(t, got, 2)
	assert.Equal(t, "Austin", got[0]["city"])
	assert.Equal(t, int64(1), stub.Hits(), "second sync should be served from cache")
}
