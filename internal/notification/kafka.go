package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/segmentio/kafka-go"
)

// DefaultTopic receives voucher lifecycle events when none is configured.
const DefaultTopic = "escrow.vouchers"

// MessageWriter is the part of kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the JSON document published for every notification.
type Event struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// KafkaNotifier publishes notifications as events keyed by destination, so
// all events for one recipient land on the same partition.
type KafkaNotifier struct {
	writer MessageWriter
	now    func() time.Time
}

// NewKafkaWriter builds an asynchronous writer for the given brokers and
// topic. Messages are partitioned by a hash of their key. Escrow operations
// never wait on the broker; failed batches are logged from the completion
// callback.
func NewKafkaWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	if topic == "" {
		topic = DefaultTopic
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil && logger != nil {
				logger.Error("voucher event delivery failed", slog.String("topic", topic), slog.Int("events", len(messages)), slog.Any("error", err))
			}
		},
	}
}

// NewKafkaNotifier wraps a writer.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, now: time.Now}
}

// Send publishes one event.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	payload, err := json.Marshal(Event{
		ID:          ulid.Make().String(),
		Kind:        message.Kind,
		Destination: message.Destination,
		Body:        message.Body,
		OccurredAt:  n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(message.Destination),
		Value:   payload,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(message.Kind)}},
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", message.Kind, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// Fanout delivers each message to every notifier and joins their failures.
type Fanout []Notifier

// Send implements Notifier.
func (f Fanout) Send(ctx context.Context, message Message) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
