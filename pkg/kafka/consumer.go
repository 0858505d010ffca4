// Package kafka wraps segmentio/kafka-go for the search-events topic. The
// producer writes JSON events keyed for partitioning; the consumer hands each
// message to a MessageHandler and commits it once handled.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pinnedref/pinnedref/pkg/config"
	"github.com/pinnedref/pinnedref/pkg/logger"
)

// MessageHandler processes one message. A returned error is logged and the
// message is left uncommitted.
type MessageHandler func(ctx context.Context, key []byte, value []byte) error

const fetchBackoff = time.Second

// reader is the part of *kafka.Reader the consume loop needs.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader  reader
	handler MessageHandler
	backoff time.Duration
	logger  *slog.Logger
}

// NewConsumer joins cfg.ConsumerGroup on topic. A group with no committed
// offset starts at the newest message; analytics does not replay history.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.LastOffset,
	})
	return newConsumer(r, topic, handler)
}

func newConsumer(r reader, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader:  r,
		handler: handler,
		backoff: fetchBackoff,
		logger:  logger.WithComponent("kafka-consumer", "topic", topic),
	}
}

// Start consumes until ctx is cancelled and then closes the reader. It only
// returns an error if closing the reader fails.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started")
	for ctx.Err() == nil {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			c.logger.Warn("fetch failed", "error", err, "retry_in", c.backoff)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
			}
			continue
		}
		c.handle(ctx, msg)
	}
	c.logger.Info("consumer stopping", "reason", ctx.Err())
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("closing kafka reader: %w", err)
	}
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.With("partition", msg.Partition, "offset", msg.Offset)
	if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
		log.Error("handler failed, message left uncommitted", "error", err)
		return
	}
	if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		log.Error("commit failed", "error", err)
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var out T
	if err := json.Unmarshal(value, &out); err != nil {
		return out, fmt.Errorf("decoding kafka message: %w", err)
	}
	return out, nil
}
