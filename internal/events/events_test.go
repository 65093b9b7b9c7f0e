package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

func TestPublishRunsEveryHandler(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")
	calls := 0
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventTicketCreated, func(context.Context, Event) error {
		calls++
		return nil
	})
	d.Subscribe(EventOrderCreated, func(context.Context, Event) error {
		t.Fatal("handler for another type must not run")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want joined boom", err)
	}
}

func TestPublishWithoutListeners(t *testing.T) {
	if err := NewInMemoryDispatcher().Publish(context.Background(), Event{Type: EventAgentStatusChanged}); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

type recordingWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func TestKafkaForwarderKeysByTicket(t *testing.T) {
	writer := &recordingWriter{}
	forwarder := NewKafkaForwarder(writer, zap.NewNop())
	d := NewInMemoryDispatcher()
	forwarder.Register(d)

	if err := d.Publish(context.Background(), Event{ID: "e1", Type: EventTicketStatusChanged, TicketID: "t-9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := d.Publish(context.Background(), Event{ID: "e2", Type: EventOrderCreated, OrderID: "o-3"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(writer.msgs) != 2 {
		t.Fatalf("wrote %d messages", len(writer.msgs))
	}
	if string(writer.msgs[0].Key) != "t-9" || string(writer.msgs[1].Key) != "o-3" {
		t.Fatalf("keys = %q, %q", writer.msgs[0].Key, writer.msgs[1].Key)
	}
	var decoded Event
	if err := json.Unmarshal(writer.msgs[0].Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != EventTicketStatusChanged || decoded.ID != "e1" {
		t.Fatalf("decoded %+v", decoded)
	}
}

func TestKafkaForwarderSurfacesWriteErrors(t *testing.T) {
	writer := &recordingWriter{err: errors.New("broker down")}
	forwarder := NewKafkaForwarder(writer, zap.NewNop())
	if err := forwarder.Handle(context.Background(), Event{Type: EventTicketCreated}); err == nil {
		t.Fatal("expected write error")
	}
}

func TestNewKafkaWriterDisabled(t *testing.T) {
	if NewKafkaWriter(nil, "topic") != nil {
		t.Fatal("empty brokers should disable the writer")
	}
	if NewKafkaWriter([]string{"localhost:9092"}, "") != nil {
		t.Fatal("empty topic should disable the writer")
	}
}
