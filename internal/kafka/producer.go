package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/snappy-loop/wishes/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes wish events to Kafka
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, topic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Msg("Kafka producer initialized")

	return &Producer{
		writer: writer,
		topic:  topic,
	}
}

// PublishEvent writes the event as JSON keyed by session id, so one session's events stay ordered.
func (p *Producer) PublishEvent(ctx context.Context, event *models.WishEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal wish event: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(event.SessionID.String()),
		Value: data,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(event.Kind)},
		},
	}

	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	log.Info().
		Str("event_id", event.ID.String()).
		Str("kind", event.Kind).
		Str("topic", p.topic).
		Msg("Wish event published to Kafka")

	return nil
}

// Close closes the producer
func (p *Producer) Close() error {
	log.Info().Msg("Closing Kafka producer")
	return p.writer.Close()
}
