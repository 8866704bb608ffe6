package outbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/segmentio/kafka-go"

	"payments/internal/model"
)

const (
	HeaderEventType = "event_type"
	HeaderMessageID = "message_id"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes order events keyed by order id, so every event of
// one order lands on the same partition in order.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) Publish(ctx context.Context, msg model.OutboxMessage) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(msg.EntityID, 10)),
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(msg.EventType)},
			{Key: HeaderMessageID, Value: []byte(msg.ID.String())},
		},
		Time: msg.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to write message %s: %w", msg.ID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
