package kafka

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bigballadanny/dwschatbot/internal/config"
)

// KafkaClient holds the shared writer and an admin connection. Readers are
// created per topic with NewReader since each consumer tracks its own offset.
type KafkaClient struct {
	Writer *kafka.Writer
	Conn   *kafka.Conn
	Config *config.KafkaConfig
}

var (
	client  *KafkaClient
	once    sync.Once
	initErr error
)

// GetClient initializes and returns a singleton KafkaClient. On first call it
// connects to the cluster and creates any missing topics from the config.
func GetClient(cfg *config.KafkaConfig) (*KafkaClient, error) {
	once.Do(func() {
		if len(cfg.Brokers) == 0 {
			initErr = fmt.Errorf("no Kafka brokers configured")
			return
		}

		topics := topicNames(cfg)
		if len(topics) == 0 {
			initErr = fmt.Errorf("no Kafka topics configured")
			return
		}

		conn, err := kafka.Dial("tcp", cfg.Brokers[0])
		if err != nil {
			initErr = fmt.Errorf("kafka admin connection failed: %w", err)
			return
		}

		partitions, err := conn.ReadPartitions()
		if err != nil {
			initErr = fmt.Errorf("cannot read Kafka partitions: %w", err)
			conn.Close()
			return
		}
		existingTopics := make(map[string]struct{})
		for _, p := range partitions {
			existingTopics[p.Topic] = struct{}{}
		}

		var topicsToCreate []kafka.TopicConfig
		for _, topicName := range topics {
			if _, exists := existingTopics[topicName]; !exists {
				log.Printf("Topic '%s' does not exist, creating...", topicName)
				topicsToCreate = append(topicsToCreate, kafka.TopicConfig{
					Topic:             topicName,
					NumPartitions:     1,
					ReplicationFactor: 1,
				})
			}
		}

		if len(topicsToCreate) > 0 {
			if err := conn.CreateTopics(topicsToCreate...); err != nil {
				initErr = fmt.Errorf("cannot auto-create Kafka topics: %w", err)
				conn.Close()
				return
			}
			log.Printf("Created %d Kafka topics.", len(topicsToCreate))
		}

		writer := &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 10 * time.Millisecond,
			BatchSize:    100,
		}

		log.Println("✅ Kafka client initialized!")
		client = &KafkaClient{Writer: writer, Conn: conn, Config: cfg}
	})

	return client, initErr
}

// NewReader creates a consumer-group reader for one topic.
func (c *KafkaClient) NewReader(topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     c.Config.Brokers,
		GroupID:     c.Config.ConsumerGroup,
		Topic:       topic,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxAttempts: 10,
		Dialer: &kafka.Dialer{
			Timeout: 10 * time.Second,
		},
	})
}

// Close shuts down the writer and the admin connection.
func (c *KafkaClient) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.Writer != nil {
		if err := c.Writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cannot close Kafka writer: %w", err))
		}
	}
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cannot close Kafka admin connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("errors while closing Kafka client: %v", errs)
	}
	return nil
}

// HealthCheck verifies the cluster is reachable by asking for the controller.
func (c *KafkaClient) HealthCheck(ctx context.Context) error {
	if c == nil || c.Conn == nil {
		return fmt.Errorf("kafka client not initialized")
	}
	_, err := c.Conn.Controller()
	return err
}

// GetControllerInfo returns the address of the Kafka controller broker.
func (c *KafkaClient) GetControllerInfo() (string, error) {
	if c == nil || c.Conn == nil {
		return "", fmt.Errorf("kafka client not initialized")
	}
	controller, err := c.Conn.Controller()
	if err != nil {
		return "", err
	}
	return net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)), nil
}

func topicNames(cfg *config.KafkaConfig) []string {
	var names []string
	for _, t := range []string{cfg.Topics.Uploaded, cfg.Topics.Processed, cfg.Topics.Failed, cfg.Topics.Audit} {
		if t != "" {
			names = append(names, t)
		}
	}
	return names
}
