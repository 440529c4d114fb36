package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-bookings/internal/models"
)

// Publisher streams appended reputation events, keyed by booking id. The
// reputation service logs publish failures and moves on; the events table is
// the source of truth.
type Publisher struct {
	Writer *kafka.Writer
}

func NewPublisher(brokers []string, topic string) *Publisher {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Publisher{Writer: writer}
}

func (p *Publisher) PublishReputationEvents(events []models.ReputationEvent) error {
	messages := make([]kafka.Message, 0, len(events))
	for _, evt := range events {
		msgBytes, err := json.Marshal(evt)
		if err != nil {
			return err
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(evt.BookingID),
			Value: msgBytes,
		})
	}
	return p.Writer.WriteMessages(context.Background(), messages...)
}

func (p *Publisher) Close() error {
	return p.Writer.Close()
}
