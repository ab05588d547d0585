package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/snappy-loop/wishes/internal/models"
)

const (
	maxBackoffShift = 10
	defaultMaxTries = 50 // after this many attempts the message is skipped so it cannot block the partition
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventHandler processes wish events. It must be idempotent: messages may be redelivered.
type EventHandler interface {
	PublishEvent(ctx context.Context, event *models.WishEvent) error
}

// Consumer wraps a Kafka consumer
type Consumer struct {
	reader    messageReader
	handler   EventHandler
	maxTries  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(brokers []string, topic, groupID string, handler EventHandler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // manual commits
		// Events published before the first recorder start are still recorded.
		StartOffset: kafka.FirstOffset,
	})

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Kafka consumer initialized")

	return newConsumer(reader, handler)
}

func newConsumer(reader messageReader, handler EventHandler) *Consumer {
	return &Consumer{
		reader:    reader,
		handler:   handler,
		maxTries:  defaultMaxTries,
		baseDelay: time.Second,
		maxDelay:  5 * time.Minute,
	}
}

// Start consumes until ctx is cancelled. Each message is retried with exponential backoff,
// then committed and skipped after maxTries failures.
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Msg("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Failed to fetch message")
			continue
		}

		if err := c.handleWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().
				Err(err).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("CRITICAL: Message processing failed after all retries - SKIPPING MESSAGE")
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			// Redelivery is harmless, the handler is idempotent.
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message) error {
	var lastErr error
	for attempt := 0; attempt < c.maxTries; attempt++ {
		lastErr = c.processMessage(ctx, msg)
		if lastErr == nil {
			return nil
		}
		var decodeErr *decodeError
		if errors.As(lastErr, &decodeErr) {
			return lastErr
		}

		log.Error().
			Err(lastErr).
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempt", attempt+1).
			Int("max_retries", c.maxTries).
			Msg("Failed to process message - will retry")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff(attempt)):
		}
	}
	return lastErr
}

func (c *Consumer) backoff(attempt int) time.Duration {
	delay := c.baseDelay * time.Duration(1<<uint(min(attempt, maxBackoffShift)))
	return min(delay, c.maxDelay)
}

// decodeError marks messages that will never parse; they are not retried.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return fmt.Sprintf("failed to unmarshal message: %v", e.err) }

func (e *decodeError) Unwrap() error { return e.err }

// processMessage processes a single Kafka message
func (c *Consumer) processMessage(ctx context.Context, msg kafka.Message) error {
	log.Debug().
		Str("topic", msg.Topic).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Msg("Processing message")

	var event models.WishEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return &decodeError{err: err}
	}

	if err := c.handler.PublishEvent(ctx, &event); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}

	log.Info().
		Str("event_id", event.ID.String()).
		Str("kind", event.Kind).
		Msg("Message processed successfully")

	return nil
}

// Close closes the consumer
func (c *Consumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
