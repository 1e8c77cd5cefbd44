// Package events publishes engine events to Kafka for downstream consumers
// (notification fan-out, analytics). Publishing is best-effort: the engine
// never fails a user action because the event bus is down.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/fathima-sithara/chat-sync/internal/models"
)

type Publisher struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

// NewPublisher builds a Kafka publisher. A nil *Publisher is valid and
// publishes nothing, so the engine can be wired without a broker.
func NewPublisher(brokers []string, topic string, log *zap.SugaredLogger) *Publisher {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Publisher{writer: w, log: log}
}

func (p *Publisher) publish(ctx context.Context, key string, payload any) {
	if p == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		p.log.Warnw("event marshal failed", "key", key, "err", err)
		return
	}
	msg := kafka.Message{Key: []byte(key), Value: b, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warnw("event publish failed", "key", key, "err", err)
	}
}

func (p *Publisher) MessageCreated(ctx context.Context, m *models.Message) {
	if p == nil {
		return
	}
	p.publish(ctx, m.ConversationID, map[string]any{
		"event":   "message.new",
		"message": m,
	})
}

func (p *Publisher) ThreadRead(ctx context.Context, convID, readerID string) {
	if p == nil {
		return
	}
	p.publish(ctx, convID, map[string]any{
		"event":        "conversation.read",
		"conversation": convID,
		"reader":       readerID,
	})
}

func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
