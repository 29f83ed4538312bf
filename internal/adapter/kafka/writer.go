package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/openweather-bridge/internal/config"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer produces event channel payloads to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Sink returns an event channel sink that publishes every payload for event
// as one message.
func (w *Writer) Sink(event string) func(context.Context, map[string]any) error {
	return func(ctx context.Context, payload map[string]any) error {
		msg, err := serializeToMessage(event, payload)
		if err != nil {
			return err
		}
		if err := w.writer.WriteMessages(ctx, msg); err != nil {
			return fmt.Errorf("kafka write: %w", err)
		}
		w.logger.Debug("event published", "sink", "kafka", "event", event, "topic", w.writer.Topic)
		return nil
	}
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a payload into a Kafka message keyed by device
// so readings from one sensor stay on one partition.
func serializeToMessage(event string, payload map[string]any) (kafkago.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize %s payload: %w", event, err)
	}
	deviceID, _ := payload["deviceId"].(string)
	headers := []kafkago.Header{{Key: "event_name", Value: []byte(event)}}
	if ts, ok := payload["timestamp"].(int64); ok && ts > 0 {
		headers = append(headers, kafkago.Header{
			Key:   "timestamp",
			Value: []byte(time.UnixMilli(ts).UTC().Format(time.RFC3339)),
		})
	}
	return kafkago.Message{
		Key:     []byte(deviceID),
		Value:   data,
		Headers: headers,
	}, nil
}
