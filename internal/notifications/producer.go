package notifications

import (
	"context"
	"fmt"
	"time"

	"swapstation/internal/shared/config"
	"swapstation/pkg/logger"

	"github.com/IBM/sarama"
)

// Publisher delivers swap events to downstream consumers.
type Publisher interface {
	PublishSwapEvent(ctx context.Context, event *SwapEvent) error
	Close() error
}

// KafkaProducerConfig contains configuration for the Kafka swap event producer
type KafkaProducerConfig struct {
	Brokers          []string
	Topic            string
	ClientID         string
	RetryMax         int
	TimeoutMs        int
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaProducerConfig returns a default producer configuration
func DefaultKafkaProducerConfig() *KafkaProducerConfig {
	return &KafkaProducerConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "swap-events",
		ClientID:         "swapstation",
		RetryMax:         3,
		TimeoutMs:        10000,             // 10 seconds
		RequiredAcks:     sarama.WaitForAll, // Wait for all in-sync replicas
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000, // 1MB
	}
}

// KafkaProducerConfigFrom overlays the process configuration on the defaults.
func KafkaProducerConfigFrom(cfg config.KafkaConfig) *KafkaProducerConfig {
	producerConfig := DefaultKafkaProducerConfig()
	if len(cfg.Brokers) > 0 {
		producerConfig.Brokers = cfg.Brokers
	}
	if cfg.Topic != "" {
		producerConfig.Topic = cfg.Topic
	}
	if cfg.ClientID != "" {
		producerConfig.ClientID = cfg.ClientID
	}
	return producerConfig
}

// SaramaConfig builds the sarama producer settings.
func (c *KafkaProducerConfig) SaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = c.ClientID

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = c.RequiredAcks
	saramaConfig.Producer.Compression = c.CompressionType
	saramaConfig.Producer.Retry.Max = c.RetryMax
	saramaConfig.Producer.Timeout = time.Duration(c.TimeoutMs) * time.Millisecond
	saramaConfig.Producer.Idempotent = c.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = c.MaxMessageBytes

	// Idempotent producers need a single in-flight request
	if c.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash on the station id so a station's events stay ordered
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

// KafkaPublisher publishes swap events to Kafka
type KafkaPublisher struct {
	producer sarama.SyncProducer
	config   *KafkaProducerConfig
}

// NewKafkaPublisher connects a sync producer to the configured brokers
func NewKafkaPublisher(config *KafkaProducerConfig) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	logger.GetDefault().Info("Kafka swap event producer created", "brokers", config.Brokers, "topic", config.Topic)
	return NewKafkaPublisherWithProducer(producer, config), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, config *KafkaProducerConfig) *KafkaPublisher {
	return &KafkaPublisher{
		producer: producer,
		config:   config,
	}
}

// PublishSwapEvent publishes a single swap event to Kafka
func (kp *KafkaPublisher) PublishSwapEvent(ctx context.Context, event *SwapEvent) error {
	messageBytes, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal swap event: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     kp.config.Topic,
		Key:       sarama.StringEncoder(event.PartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   kp.createHeaders(event),
		Timestamp: event.At,
	}

	partition, offset, err := kp.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send swap event to Kafka: %w", err)
	}

	logger.GetDefault().DebugContext(ctx, "Swap event published",
		"topic", kp.config.Topic,
		"partition", partition,
		"offset", offset,
		"type", event.Type,
		"swap_id", event.SwapID,
	)
	return nil
}

func (kp *KafkaPublisher) createHeaders(event *SwapEvent) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		{Key: []byte("event_id"), Value: []byte(event.ID.String())},
		{Key: []byte("event_type"), Value: []byte(event.Type)},
		{Key: []byte("swap_id"), Value: []byte(event.SwapID.String())},
		{Key: []byte("station_id"), Value: []byte(event.StationID.String())},
		{Key: []byte("version"), Value: []byte("1.0")},
		{Key: []byte("producer"), Value: []byte("swapstation")},
		{Key: []byte("created_at"), Value: []byte(event.At.Format(time.RFC3339))},
	}

	if event.BookingID != nil {
		headers = append(headers, sarama.RecordHeader{
			Key:   []byte("booking_id"),
			Value: []byte(event.BookingID.String()),
		})
	}

	return headers
}

// Close closes the Kafka producer
func (kp *KafkaPublisher) Close() error {
	if kp.producer != nil {
		if err := kp.producer.Close(); err != nil {
			return fmt.Errorf("failed to close Kafka producer: %w", err)
		}
		logger.GetDefault().Info("Kafka swap event producer closed")
	}
	return nil
}

// NopPublisher drops events. Used when Kafka is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishSwapEvent(context.Context, *SwapEvent) error { return nil }
func (NopPublisher) Close() error                                      { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = NopPublisher{}
)
