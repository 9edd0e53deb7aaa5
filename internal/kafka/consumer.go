package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ms-storefront/internal/logger"
	"ms-storefront/internal/models"

	"github.com/segmentio/kafka-go"
)

// Consumer reads domain events from a set of topics as one consumer group.
type Consumer struct {
	reader *kafka.Reader
	log    *logger.Logger
}

func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	})
	return &Consumer{reader: reader, log: log}
}

// Run hands every decoded event to handle until ctx is cancelled. Messages
// that do not decode are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle func(topic string, ev models.DomainEvent) error) error {
	c.log.Info("KAFKA", "Consumer started")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("read message: %w", err)
		}

		var ev models.DomainEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Warn("KAFKA", fmt.Sprintf("Skipping undecodable message on %s at offset %d: %v", msg.Topic, msg.Offset, err))
			continue
		}
		if err := handle(msg.Topic, ev); err != nil {
			c.log.Error("KAFKA", fmt.Sprintf("Handler failed for %s %s: %v", ev.Type, ev.EntityID, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
