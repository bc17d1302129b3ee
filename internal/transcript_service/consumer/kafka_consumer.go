package consumer

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/bigballadanny/dwschatbot/internal/models"
	"github.com/bigballadanny/dwschatbot/pkg/logger"
)

// UploadConsumer reads uploaded-transcript events from Kafka and feeds them
// to a handler. An offset is committed only after the handler accepts the
// message, so an event is never lost between the broker and the worker
// queue; the processing state machine makes the resulting redeliveries
// harmless.
type UploadConsumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

// NewUploadConsumer creates an UploadConsumer on an existing reader.
func NewUploadConsumer(reader *kafka.Reader, log *logger.Logger) *UploadConsumer {
	return &UploadConsumer{reader: reader, log: log}
}

// Start consumes messages until ctx ends. The handler's error keeps the
// offset uncommitted for redelivery.
func (c *UploadConsumer) Start(ctx context.Context, handler func(context.Context, kafka.Message) error) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				c.log.Info("Stopping Kafka upload consumer...")
				return
			default:
				msg, err := c.reader.FetchMessage(ctx)
				if err != nil {
					if ctx.Err() == nil {
						c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Error fetching message from Kafka")
					}
					continue
				}

				if err := handler(ctx, msg); err != nil {
					c.log.WithError(models.ErrorInfo{Message: err.Error()}).WithPayload(map[string]interface{}{
						"topic":     msg.Topic,
						"partition": msg.Partition,
						"offset":    msg.Offset,
					}).Error("Error handling Kafka message, leaving offset uncommitted")
					continue
				}

				if err := c.reader.CommitMessages(ctx, msg); err != nil {
					c.log.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to commit Kafka message")
				}
			}
		}
	}()
}

// Close closes the underlying Kafka reader.
func (c *UploadConsumer) Close() error {
	return c.reader.Close()
}
