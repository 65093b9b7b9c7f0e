package events

import (
	"time"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventOrderCreated          EventType = "order_created"
	EventOrderStatusChanged    EventType = "order_status_changed"
	EventTicketCreated         EventType = "ticket_created"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketMessageAdded    EventType = "ticket_message_added"
	EventAgentStatusChanged    EventType = "agent_status_changed"
)

// AllEventTypes lists every event the services emit.
var AllEventTypes = []EventType{
	EventOrderCreated,
	EventOrderStatusChanged,
	EventTicketCreated,
	EventTicketAssigned,
	EventTicketStatusChanged,
	EventTicketPriorityChanged,
	EventTicketMessageAdded,
	EventAgentStatusChanged,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Role   domain.Role `json:"role"`
	UserID *string     `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TicketID  string    `json:"ticket_id,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// OrderCreatedPayload payload.
type OrderCreatedPayload struct {
	TicketID     string             `json:"ticket_id,omitempty"`
	PackageID    string             `json:"package_id"`
	PackageTitle string             `json:"package_title"`
	BrandID      string             `json:"brand_id"`
	BrandName    string             `json:"brand_name"`
	CreatorID    string             `json:"creator_id"`
	CreatorName  string             `json:"creator_name"`
	TotalAmount  float64            `json:"total_amount"`
	Currency     string             `json:"currency"`
	Status       domain.OrderStatus `json:"status"`
	DeliveryTime int                `json:"delivery_time"`
}

// OrderStatusChangedPayload payload.
type OrderStatusChangedPayload struct {
	OldStatus domain.OrderStatus `json:"old_status"`
	NewStatus domain.OrderStatus `json:"new_status"`
	Reason    string             `json:"reason,omitempty"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OrderID  string                `json:"order_id"`
	AgentID  string                `json:"agent_id"`
	Priority domain.TicketPriority `json:"priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	PreviousAgentID *string `json:"previous_agent_id,omitempty"`
	AgentID         string  `json:"agent_id"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketMessageAddedPayload payload.
type TicketMessageAddedPayload struct {
	MessageID   string             `json:"message_id"`
	MessageType domain.MessageType `json:"message_type"`
	SenderRole  domain.Role        `json:"sender_role"`
	SenderID    string             `json:"sender_id"`
	Channel     domain.ChannelType `json:"channel_type"`
	BodyPreview string             `json:"body_preview"`
}

// AgentStatusChangedPayload payload.
type AgentStatusChangedPayload struct {
	AgentID      string             `json:"agent_id"`
	OldStatus    domain.AgentStatus `json:"old_status"`
	NewStatus    domain.AgentStatus `json:"new_status"`
	IsOnline     bool               `json:"is_online"`
	LastOnlineAt *time.Time         `json:"last_online_at,omitempty"`
}
