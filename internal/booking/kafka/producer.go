package kafka

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"ms-bookings/internal/models"
)

// Publisher streams booking status changes to the notification feed. The
// settlement coordinator treats publish failures as best-effort.
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

// PublishBookingStatusChanged streams one accepted transition, keyed by
// booking id so consumers see a booking's transitions in order.
func (p *Publisher) PublishBookingStatusChanged(evt models.BookingStatusEvent) error {
	msgBytes, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.Writer.WriteMessages(context.Background(),
		kafka.Message{
			Key:   []byte(evt.BookingID),
			Value: msgBytes,
		},
	)
}

func (p *Publisher) Close() error {
	return p.Writer.Close()
}
