package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/notification-hub/internal/apperr"
	"github.com/fathima-sithara/notification-hub/internal/model"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafkago.Message, error)
	Close() error
}

// Sender is the part of the notification service the consumer feeds.
type Sender interface {
	Send(ctx context.Context, n *model.Notification) (model.Notification, error)
}

// Consumer ingests notification drafts published by other systems and sends them as if they had
// arrived over HTTP.
type Consumer struct {
	reader messageReader
	sender Sender
	log    *zap.Logger
}

func NewConsumer(brokers []string, topic, groupID string, sender Sender, log *zap.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(r, sender, log)
}

func newConsumer(r messageReader, sender Sender, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: r, sender: sender, log: log.Named("kafka.consumer")}
}

// Run blocks until ctx is done. Messages are handled in order so stored timestamps follow
// the topic order.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("kafka read error", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		if err := c.Handle(ctx, m.Value); err != nil {
			c.log.Warn("inbound notification dropped",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
	}
}

// Handle decodes one draft and sends it.
func (c *Consumer) Handle(ctx context.Context, raw []byte) error {
	var d *model.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return fmt.Errorf("decode draft: %v: %w", err, apperr.ErrInvalidArgument)
	}
	if d == nil {
		return fmt.Errorf("empty draft: %w", apperr.ErrInvalidArgument)
	}
	n, err := c.sender.Send(ctx, d.Notification())
	if err != nil {
		return err
	}
	c.log.Debug("inbound notification sent", zap.String("id", n.ID))
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
