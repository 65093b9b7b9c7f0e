package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder copies every published event onto a Kafka topic keyed by
// ticket (or order) id so consumers see one entity's events in order.
type KafkaForwarder struct {
	writer MessageWriter
	logger *zap.Logger
}

// NewKafkaWriter builds a writer for topic. It returns nil when brokers or
// topic are empty, which disables forwarding.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
	}
}

// NewKafkaForwarder wraps writer.
func NewKafkaForwarder(writer MessageWriter, logger *zap.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, logger: logger}
}

// Register subscribes the forwarder to every event type.
func (f *KafkaForwarder) Register(d Dispatcher) {
	if f == nil || f.writer == nil || d == nil {
		return
	}
	SubscribeAll(d, f.Handle)
}

// Handle encodes the event and writes it.
func (f *KafkaForwarder) Handle(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	key := event.TicketID
	if key == "" {
		key = event.OrderID
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Warn("kafka forward failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
		return err
	}
	return nil
}

// Close flushes and closes the writer.
func (f *KafkaForwarder) Close() error {
	if f == nil || f.writer == nil {
		return nil
	}
	return f.writer.Close()
}
