package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bigballadanny/dwschatbot/internal/models"
)

// LogPublisher ships structured audit records to a dedicated Kafka topic so
// they can be indexed offline without touching the serving path. Delivery is
// at-least-once; consumers must tolerate duplicates.
type LogPublisher struct {
	writer *kafka.Writer
}

// NewLogPublisher creates a publisher for the audit topic from the config.
func NewLogPublisher(client *KafkaClient) *LogPublisher {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      client.Config.Brokers,
		Topic:        client.Config.Topics.Audit,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	})
	return &LogPublisher{writer: writer}
}

// Publish serializes the entry as JSON and sends it keyed by key, usually
// the user id so one user's records stay ordered within a partition.
func (p *LogPublisher) Publish(ctx context.Context, key string, entry *models.LogEntry) error {
	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: jsonData,
	})
	if err != nil {
		return fmt.Errorf("failed to write audit entry to kafka: %w", err)
	}

	return nil
}

// Close closes the underlying writer.
func (p *LogPublisher) Close() error {
	return p.writer.Close()
}
