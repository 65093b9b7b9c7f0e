package domain

import "time"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTicketAssigned NotificationType = "ticket_assigned"
)

// Notification alerts a user about something that needs their attention.
type Notification struct {
	ID        string
	UserID    string
	Type      NotificationType
	Title     string
	Body      string
	TicketID  *string
	Read      bool
	CreatedAt time.Time
}

// WarningStep names a best-effort side effect.
type WarningStep string

const (
	StepProvisionChannels WarningStep = "provision_channels"
	StepWelcomeMessage    WarningStep = "welcome_message"
	StepAgentGreeting     WarningStep = "agent_greeting"
	StepAgentNotification WarningStep = "agent_notification"
	StepOrderSummary      WarningStep = "order_summary_message"
	StepStatusNarration   WarningStep = "status_narration"
	StepAcceptNarration   WarningStep = "accept_narration"
	StepRejectNarration   WarningStep = "reject_narration"
)

// Warning records a best-effort side effect that failed while the primary
// operation still succeeded.
type Warning struct {
	Step    WarningStep `json:"step"`
	Message string      `json:"message"`
}
