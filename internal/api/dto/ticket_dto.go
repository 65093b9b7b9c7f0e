package dto

import (
	"time"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// UpdateTicketStatusRequest payload.
type UpdateTicketStatusRequest struct {
	Status domain.TicketStatus `json:"status"`
}

// UpdateTicketPriorityRequest payload.
type UpdateTicketPriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// ReassignTicketRequest payload.
type ReassignTicketRequest struct {
	AgentID string `json:"agent_id"`
}

// CreateMessageRequest payload. ChannelType is required for agents.
type CreateMessageRequest struct {
	Text        string              `json:"text"`
	MessageType domain.MessageType  `json:"message_type"`
	FileURL     *string             `json:"file_url"`
	FileName    *string             `json:"file_name"`
	ChannelType *domain.ChannelType `json:"channel_type"`
}

// TicketResponse is a ticket without relations.
type TicketResponse struct {
	ID                  string                `json:"id"`
	OrderID             string                `json:"order_id"`
	AgentID             string                `json:"agent_id"`
	Status              domain.TicketStatus   `json:"status"`
	Priority            domain.TicketPriority `json:"priority"`
	BrandAgentChannel   string                `json:"brand_agent_channel_id"`
	CreatorAgentChannel string                `json:"creator_agent_channel_id"`
	LegacyChannelID     *string               `json:"legacy_channel_id,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// PartyResponse names one side of the order.
type PartyResponse struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

// PackageResponse summarizes the purchased package.
type PackageResponse struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Price        float64 `json:"price"`
	Currency     string  `json:"currency"`
	DeliveryDays int     `json:"delivery_days"`
}

// TicketDetailResponse is a ticket with its relations resolved.
type TicketDetailResponse struct {
	TicketResponse
	Order   OrderResponse   `json:"order"`
	Package PackageResponse `json:"package"`
	Brand   PartyResponse   `json:"brand"`
	Creator PartyResponse   `json:"creator"`
	Agent   AgentResponse   `json:"agent"`
}

// NewTicketResponse renders a ticket.
func NewTicketResponse(t *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                  t.ID,
		OrderID:             t.OrderID,
		AgentID:             t.AgentID,
		Status:              t.Status,
		Priority:            t.Priority,
		BrandAgentChannel:   t.BrandAgentChannel,
		CreatorAgentChannel: t.CreatorAgentChannel,
		LegacyChannelID:     t.LegacyChannelID,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

// NewTicketDetailResponse renders a hydrated ticket.
func NewTicketDetailResponse(d *domain.TicketDetail) TicketDetailResponse {
	return TicketDetailResponse{
		TicketResponse: NewTicketResponse(&d.Ticket),
		Order:          NewOrderResponse(&d.Order),
		Package: PackageResponse{
			ID:           d.Package.ID,
			Title:        d.Package.Title,
			Price:        d.Package.Price,
			Currency:     d.Package.Currency,
			DeliveryDays: d.Package.DeliveryDays,
		},
		Brand:   PartyResponse{ID: d.Brand.ID, UserID: d.Brand.UserID, Name: d.Brand.CompanyName},
		Creator: PartyResponse{ID: d.Creator.ID, UserID: d.Creator.UserID, Name: d.Creator.DisplayName},
		Agent:   NewAgentResponse(&d.Agent),
	}
}
