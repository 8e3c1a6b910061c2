package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/tutorhub/bookingengine/libs/kafkax"
)

type KafkaConfig struct {
	Brokers string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes notification requests for an external mailer. The payload
// carries the rendered text so consumers need no template knowledge.
type Kafka struct {
	writer messageWriter
	topic  string
	now    func() time.Time
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	brokers := kafkax.SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic not configured")
	}
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:      brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: int(kafka.RequireAll),
	})
	return newKafka(writer, cfg.Topic), nil
}

func newKafka(w messageWriter, topic string) *Kafka {
	return &Kafka{writer: w, topic: topic, now: time.Now}
}

// Event is the JSON value written to the notification topic.
type Event struct {
	EventID    string    `json:"event_id"`
	Kind       Kind      `json:"kind"`
	To         Recipient `json:"to"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	BookingID  string    `json:"booking_id"`
	SlotStart  time.Time `json:"slot_start"`
	SlotEnd    time.Time `json:"slot_end"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (k *Kafka) Send(ctx context.Context, msg Message) error {
	subject, body, err := Render(msg)
	if err != nil {
		return dispatchErr("kafka", err)
	}
	value, err := json.Marshal(Event{
		EventID:    msg.ID,
		Kind:       msg.Kind,
		To:         msg.Recipient,
		Subject:    subject,
		Body:       body,
		BookingID:  msg.Booking.ID,
		SlotStart:  msg.Booking.Slot.Start.UTC(),
		SlotEnd:    msg.Booking.Slot.End.UTC(),
		OccurredAt: k.now().UTC(),
	})
	if err != nil {
		return dispatchErr("kafka", err)
	}
	m := kafka.Message{
		Key:   []byte(msg.Booking.ID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(msg.ID)},
			{Key: "event_type", Value: []byte(msg.Kind)},
		},
	}
	m.Headers = kafkax.InjectTraceHeaders(ctx, m.Headers)
	if err := k.writer.WriteMessages(ctx, m); err != nil {
		return dispatchErr("kafka", err)
	}
	return nil
}

func (k *Kafka) Close() error { return k.writer.Close() }
