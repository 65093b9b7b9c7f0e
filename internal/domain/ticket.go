package domain

import (
	"fmt"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

// Valid reports whether s is a known ticket status.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusResolved, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the support conversation bound 1:1 to an order.
type Ticket struct {
	ID                  string
	OrderID             string
	AgentID             string
	Status              TicketStatus
	Priority            TicketPriority
	BrandAgentChannel   string
	CreatorAgentChannel string
	LegacyChannelID     *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// TicketDetail is a ticket with its relations resolved.
type TicketDetail struct {
	Ticket      Ticket
	Order       Order
	Package     Package
	Brand       BrandProfile
	Creator     CreatorProfile
	Agent       User
	BrandUser   User
	CreatorUser User
}

// PlaceholderChannel marks a vendor channel that could not be provisioned.
func PlaceholderChannel(channel ChannelType, ticketID string) string {
	return fmt.Sprintf("pending:%s:%s", channel, ticketID)
}

// Admits reports whether a reader with role may open the ticket. Agents and
// super admins mediate every ticket; brands and creators only their own.
func (d TicketDetail) Admits(userID string, role Role) bool {
	switch role {
	case RoleAgent, RoleSuperAdmin:
		return true
	case RoleBrand:
		return d.BrandUser.ID == userID
	case RoleCreator:
		return d.CreatorUser.ID == userID
	case RoleSystem:
		return false
	}
	return false
}
