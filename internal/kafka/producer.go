package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// DispatchTrigger is the message published when a webhook row becomes due, so a
// dispatcher worker can run a batch without waiting for its next tick.
type DispatchTrigger struct {
	EntryID        string    `json:"entry_id"`
	SubscriptionID string    `json:"subscription_id"`
	QueuedAt       time.Time `json:"queued_at"`
}

// Producer is a thin wrapper around segmentio/kafka-go Writer.
type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}}
}

// PublishDispatch sends a trigger keyed by subscription id.
func (p *Producer) PublishDispatch(ctx context.Context, t DispatchTrigger) error {
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(t.SubscriptionID),
		Value: b,
	})
}

func (p *Producer) Close() error { return p.w.Close() }
