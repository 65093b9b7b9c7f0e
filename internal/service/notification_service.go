package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// NotificationService stores in-app notifications and logs domain events.
type NotificationService struct {
	notifications repository.NotificationRepository
	dispatcher    events.Dispatcher
	logger        *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(notifications repository.NotificationRepository, dispatcher events.Dispatcher, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		notifications: notifications,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventOrderCreated, n.handleOrderCreated)
	n.dispatcher.Subscribe(events.EventOrderStatusChanged, n.logEvent("OrderStatusChanged"))
	n.dispatcher.Subscribe(events.EventTicketCreated, n.logEvent("TicketCreated"))
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.logEvent("TicketAssigned"))
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.logEvent("TicketStatusChanged"))
	n.dispatcher.Subscribe(events.EventTicketPriorityChanged, n.logEvent("TicketPriorityChanged"))
	n.dispatcher.Subscribe(events.EventTicketMessageAdded, n.handleTicketMessageAdded)
	n.dispatcher.Subscribe(events.EventAgentStatusChanged, n.logEvent("AgentStatusChanged"))
}

func (n *NotificationService) logEvent(name string) events.EventHandler {
	return func(_ context.Context, event events.Event) error {
		n.logger.Info(name,
			zap.String("event_id", event.ID),
			zap.String("ticket_id", event.TicketID),
			zap.String("order_id", event.OrderID),
			zap.Any("payload", event.Payload))
		return nil
	}
}

func (n *NotificationService) handleOrderCreated(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.OrderCreatedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Info("OrderCreated",
		zap.String("order_id", event.OrderID),
		zap.String("ticket_id", payload.TicketID),
		zap.Float64("total_amount", payload.TotalAmount),
		zap.String("currency", payload.Currency))
	return nil
}

func (n *NotificationService) handleTicketMessageAdded(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketMessageAddedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	n.logger.Debug("TicketMessageAdded",
		zap.String("ticket_id", event.TicketID),
		zap.String("message_id", payload.MessageID),
		zap.String("sender_role", string(payload.SenderRole)),
		zap.String("channel_type", string(payload.Channel)))
	return nil
}

// NotifyAssignment alerts an agent that a ticket is theirs.
func (n *NotificationService) NotifyAssignment(ctx context.Context, agentID string, ticket *domain.Ticket, summary string) (*domain.Notification, error) {
	ticketID := ticket.ID
	notification := &domain.Notification{
		UserID:   agentID,
		Type:     domain.NotificationTicketAssigned,
		Title:    "New ticket assigned",
		Body:     summary,
		TicketID: &ticketID,
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return nil, apperrors.MapError(err)
	}
	return notification, nil
}

// ListForUser returns a user's most recent notifications.
func (n *NotificationService) ListForUser(ctx context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	list, err := n.notifications.ListByUser(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}
