package message

import (
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	"github.com/charging-platform/central-system/internal/events"
	"github.com/charging-platform/central-system/internal/metrics"
)

// Publisher hands domain events to a broker. A nil-safe NoopPublisher is
// used when Kafka is disabled.
type Publisher interface {
	PublishEvent(event *events.Event) error
	Close() error
}

// KafkaProducer publishes domain events to one topic, keyed by charge point
// id so per-station ordering survives partitioning.
type KafkaProducer struct {
	producer sarama.AsyncProducer
	topic    string
}

// ProducerConfig tunes the async producer.
type ProducerConfig struct {
	RetryMax       int
	FlushFrequency time.Duration
}

// NewKafkaProducer creates the async producer and starts its result readers.
func NewKafkaProducer(brokers []string, topic string, cfg *ProducerConfig) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 500 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	if cfg != nil {
		if cfg.RetryMax > 0 {
			config.Producer.Retry.Max = cfg.RetryMax
		}
		if cfg.FlushFrequency > 0 {
			config.Producer.Flush.Frequency = cfg.FlushFrequency
		}
	}

	producer, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka async producer: %w", err)
	}

	kp := &KafkaProducer{
		producer: producer,
		topic:    topic,
	}

	go kp.handleSuccesses()
	go kp.handleErrors()

	return kp, nil
}

// PublishEvent serializes the event and queues it for delivery.
func (p *KafkaProducer) PublishEvent(event *events.Event) error {
	eventData, err := event.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event to JSON: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.ChargePointID),
		Value: sarama.ByteEncoder(eventData),
	}

	p.producer.Input() <- msg
	metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()
	return nil
}

// Close shuts the producer down, flushing queued messages.
func (p *KafkaProducer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func (p *KafkaProducer) handleSuccesses() {
	for msg := range p.producer.Successes() {
		log.Debug().
			Str("topic", msg.Topic).
			Str("key", string(msg.Key.(sarama.StringEncoder))).
			Msg("Kafka message sent successfully")
	}
}

func (p *KafkaProducer) handleErrors() {
	for err := range p.producer.Errors() {
		log.Error().
			Err(err).
			Str("topic", err.Msg.Topic).
			Msg("Failed to send Kafka message")
	}
}

// NoopPublisher discards events; used when Kafka is disabled.
type NoopPublisher struct{}

// PublishEvent discards the event.
func (NoopPublisher) PublishEvent(_ *events.Event) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }
