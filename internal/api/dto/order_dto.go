package dto

import (
	"time"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// CreateOrderRequest payload. BrandID is taken from the caller's brand
// profile when the caller is a brand.
type CreateOrderRequest struct {
	PackageID              string   `json:"package_id"`
	BrandID                string   `json:"brand_id"`
	CreatorID              string   `json:"creator_id"`
	TotalAmount            float64  `json:"total_amount"`
	Currency               string   `json:"currency"`
	DeliveryTime           int      `json:"delivery_time"`
	AdditionalInstructions string   `json:"additional_instructions"`
	References             []string `json:"references"`
	LegacyChannelID        *string  `json:"legacy_channel_id"`
}

// UpdateOrderStatusRequest payload.
type UpdateOrderStatusRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// RejectOrderRequest payload.
type RejectOrderRequest struct {
	Reason string `json:"reason"`
}

// OrderResponse is an order.
type OrderResponse struct {
	ID                     string             `json:"id"`
	PackageID              string             `json:"package_id"`
	BrandID                string             `json:"brand_id"`
	CreatorID              string             `json:"creator_id"`
	TotalAmount            float64            `json:"total_amount"`
	Currency               string             `json:"currency"`
	Status                 domain.OrderStatus `json:"status"`
	DeliveryTime           int                `json:"delivery_time"`
	AdditionalInstructions string             `json:"additional_instructions,omitempty"`
	References             []string           `json:"references"`
	DeliveryDeadline       *time.Time         `json:"delivery_deadline,omitempty"`
	SubmissionDeadline     *time.Time         `json:"submission_deadline,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// OrderCreatedResponse is a new order with its ticket.
type OrderCreatedResponse struct {
	Order    OrderResponse         `json:"order"`
	Ticket   *TicketDetailResponse `json:"ticket"`
	Warnings []domain.Warning      `json:"warnings"`
}

// OrderStatusResponse is an order after a status change.
type OrderStatusResponse struct {
	Order    OrderResponse    `json:"order"`
	Warnings []domain.Warning `json:"warnings"`
}

// NewOrderResponse renders an order.
func NewOrderResponse(o *domain.Order) OrderResponse {
	refs := o.References
	if refs == nil {
		refs = []string{}
	}
	return OrderResponse{
		ID:                     o.ID,
		PackageID:              o.PackageID,
		BrandID:                o.BrandID,
		CreatorID:              o.CreatorID,
		TotalAmount:            o.TotalAmount,
		Currency:               o.Currency,
		Status:                 o.Status,
		DeliveryTime:           o.DeliveryTime,
		AdditionalInstructions: o.AdditionalInstructions,
		References:             refs,
		DeliveryDeadline:       o.DeliveryDeadline,
		SubmissionDeadline:     o.SubmissionDeadline,
		CreatedAt:              o.CreatedAt,
		UpdatedAt:              o.UpdatedAt,
	}
}
