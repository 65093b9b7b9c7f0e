package domain

import "time"

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusPending              OrderStatus = "pending"
	OrderStatusAccepted             OrderStatus = "accepted"
	OrderStatusRejected             OrderStatus = "rejected"
	OrderStatusInProgress           OrderStatus = "in_progress"
	OrderStatusReview               OrderStatus = "review"
	OrderStatusRevisionRequested    OrderStatus = "revision_requested"
	OrderStatusPriceRevisionPending OrderStatus = "price_revision_pending"
	OrderStatusCompleted            OrderStatus = "completed"
	OrderStatusCancelled            OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAccepted, OrderStatusRejected, OrderStatusInProgress,
		OrderStatusReview, OrderStatusRevisionRequested, OrderStatusPriceRevisionPending,
		OrderStatusCompleted, OrderStatusCancelled:
		return true
	}
	return false
}

// Order is a brand's purchase of a creator's package.
type Order struct {
	ID                     string
	PackageID              string
	BrandID                string
	CreatorID              string
	TotalAmount            float64
	Currency               string
	Status                 OrderStatus
	DeliveryTime           int
	AdditionalInstructions string
	References             []string
	DeliveryDeadline       *time.Time
	SubmissionDeadline     *time.Time
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Package is a creator's purchasable offering.
type Package struct {
	ID           string
	CreatorID    string
	Title        string
	Description  string
	Price        float64
	Currency     string
	DeliveryDays int
}

// BrandProfile is the brand-side profile attached to a brand user.
type BrandProfile struct {
	ID          string
	UserID      string
	CompanyName string
}

// CreatorProfile is the creator-side profile attached to a creator user.
type CreatorProfile struct {
	ID          string
	UserID      string
	DisplayName string
}
