package worker

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository/memory"
	"github.com/spec-kit/marketplace-support/internal/service"
)

type countingSink struct {
	seen int
}

func (s *countingSink) Register(d events.Dispatcher) {
	d.Subscribe(events.EventOrderCreated, func(context.Context, events.Event) error {
		s.seen++
		return nil
	})
}

func TestStartNotificationWorkerRegistersSinks(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	store := memory.New()
	notifications := service.NewNotificationService(store.Notifications(), dispatcher, zap.NewNop())
	sink := &countingSink{}

	StartNotificationWorker(dispatcher, notifications, sink, nil)

	if err := dispatcher.Publish(context.Background(), events.Event{Type: events.EventOrderCreated, Payload: events.OrderCreatedPayload{}}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if sink.seen != 1 {
		t.Fatalf("sink saw %d events", sink.seen)
	}
}
