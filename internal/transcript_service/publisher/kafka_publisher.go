package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// EventPublisher writes pipeline events to Kafka through the shared writer.
// Messages are keyed by document id so every event of one document lands on
// the same partition and stays ordered.
type EventPublisher struct {
	writer *kafka.Writer
	log    *logger.Logger
}

// NewEventPublisher creates an EventPublisher on an existing writer.
func NewEventPublisher(writer *kafka.Writer, log *logger.Logger) *EventPublisher {
	return &EventPublisher{writer: writer, log: log}
}

// Publish JSON-encodes value and writes it to topic under key.
func (p *EventPublisher) Publish(ctx context.Context, topic, key string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		p.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to marshal event for Kafka")
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		p.log.WithError(models.ErrorInfo{Message: err.Error()}).
			WithPayload(map[string]interface{}{"topic": topic}).
			Error("Failed to write event to Kafka")
		return fmt.Errorf("failed to write event to topic %s: %w", topic, err)
	}
	return nil
}
