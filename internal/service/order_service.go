package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

const deadlineLayout = "Mon, Jan 2 2006 15:04 MST"

// statusNarrations is the canned system message for each order status.
var statusNarrations = map[domain.OrderStatus]string{
	domain.OrderStatusPending:              "Order Pending: waiting for the creator to respond.",
	domain.OrderStatusAccepted:             "Order Accepted by Creator: work will begin shortly.",
	domain.OrderStatusRejected:             "Order Rejected by Creator.",
	domain.OrderStatusInProgress:           "Order In Progress: the creator is working on your deliverables.",
	domain.OrderStatusReview:               "Order In Review: deliverables have been submitted for the brand's review.",
	domain.OrderStatusRevisionRequested:    "Revision Requested: the brand asked for changes to the deliverables.",
	domain.OrderStatusPriceRevisionPending: "Price Revision Pending: a new price is awaiting approval.",
	domain.OrderStatusCompleted:            "Order Completed: all deliverables have been approved.",
	domain.OrderStatusCancelled:            "Order Cancelled.",
}

// statusNarration returns the canned narration or the generic fallback.
func statusNarration(status domain.OrderStatus) string {
	if text, ok := statusNarrations[status]; ok {
		return text
	}
	return fmt.Sprintf("Order status updated to %s.", status)
}

// OrderService creates orders with their tickets and narrates order status
// changes into the ticket conversation.
type OrderService struct {
	tx          repository.Transactor
	orders      repository.OrderRepository
	catalog     repository.CatalogRepository
	tickets     *TicketService
	messages    *MessageService
	events      publisher
	logger      *zap.Logger
	defaultDays int
	now         func() time.Time
}

// OrderDependencies bundles collaborators for the order service.
type OrderDependencies struct {
	Tx          repository.Transactor
	OrderRepo   repository.OrderRepository
	CatalogRepo repository.CatalogRepository
	Tickets     *TicketService
	Messages    *MessageService
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// CreateOrderInput is a brand's purchase request.
type CreateOrderInput struct {
	PackageID              string
	BrandID                string
	CreatorID              string
	TotalAmount            float64
	Currency               string
	DeliveryTime           int
	AdditionalInstructions string
	References             []string
	LegacyChannelID        *string
}

// OrderResult is a created order, its ticket and any best-effort failures.
type OrderResult struct {
	Order    *domain.Order
	Ticket   *domain.TicketDetail
	Warnings []domain.Warning
}

// StatusResult is an order after a status change plus narration failures.
type StatusResult struct {
	Order    *domain.Order
	Warnings []domain.Warning
}

// NewOrderService constructs the service.
func NewOrderService(cfg config.Config, deps OrderDependencies) *OrderService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	days := cfg.Orders.DefaultDeliveryDays
	if days <= 0 {
		days = 7
	}
	return &OrderService{
		tx:          deps.Tx,
		orders:      deps.OrderRepo,
		catalog:     deps.CatalogRepo,
		tickets:     deps.Tickets,
		messages:    deps.Messages,
		events:      publisher{dispatcher: deps.Dispatcher, logger: deps.Logger, now: deps.Now},
		logger:      deps.Logger,
		defaultDays: days,
		now:         deps.Now,
	}
}

// CreateOrder persists a pending order and its ticket in one unit of work,
// then runs the ticket setup steps and posts the order summary.
func (s *OrderService) CreateOrder(ctx context.Context, actor *domain.User, input CreateOrderInput) (*OrderResult, error) {
	details := map[string]any{}
	if strings.TrimSpace(input.PackageID) == "" {
		details["package_id"] = "required"
	}
	if strings.TrimSpace(input.BrandID) == "" {
		details["brand_id"] = "required"
	}
	if strings.TrimSpace(input.CreatorID) == "" {
		details["creator_id"] = "required"
	}
	if input.TotalAmount <= 0 {
		details["total_amount"] = "must be positive"
	}
	if input.DeliveryTime < 0 {
		details["delivery_time"] = "must not be negative"
	}
	if len(details) > 0 {
		return nil, apperrors.NewInvalidOrderData("invalid order", details)
	}

	pkg, err := s.catalog.GetPackage(ctx, input.PackageID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewInvalidOrderData("unknown package", map[string]any{"package_id": input.PackageID})
		}
		return nil, apperrors.MapError(err)
	}
	if pkg.CreatorID != input.CreatorID {
		return nil, apperrors.NewInvalidOrderData("package does not belong to creator", map[string]any{"package_id": pkg.ID, "creator_id": input.CreatorID})
	}
	brand, err := s.catalog.GetBrand(ctx, input.BrandID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewInvalidOrderData("unknown brand", map[string]any{"brand_id": input.BrandID})
		}
		return nil, apperrors.MapError(err)
	}
	creator, err := s.catalog.GetCreator(ctx, input.CreatorID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewInvalidOrderData("unknown creator", map[string]any{"creator_id": input.CreatorID})
		}
		return nil, apperrors.MapError(err)
	}

	order := &domain.Order{
		PackageID:              pkg.ID,
		BrandID:                brand.ID,
		CreatorID:              creator.ID,
		TotalAmount:            input.TotalAmount,
		Currency:               strings.ToUpper(strings.TrimSpace(input.Currency)),
		Status:                 domain.OrderStatusPending,
		DeliveryTime:           input.DeliveryTime,
		AdditionalInstructions: strings.TrimSpace(input.AdditionalInstructions),
		References:             input.References,
	}
	if order.Currency == "" {
		order.Currency = pkg.Currency
	}
	if order.DeliveryTime == 0 {
		order.DeliveryTime = pkg.DeliveryDays
	}
	if order.DeliveryTime <= 0 {
		order.DeliveryTime = s.defaultDays
	}

	var ticket *domain.Ticket
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Create(ctx, order); err != nil {
			return apperrors.MapError(err)
		}
		var err error
		ticket, err = s.tickets.openTicket(ctx, order.ID, input.LegacyChannelID)
		return err
	})
	if err != nil {
		return nil, err
	}

	ticketResult, err := s.tickets.completeTicket(ctx, ticket)
	if err != nil {
		return nil, err
	}
	warn := &warnings{logger: s.logger.With(zap.String("order_id", order.ID), zap.String("ticket_id", ticket.ID))}
	warn.merge(ticketResult.Warnings)

	detail := ticketResult.Ticket
	if err := s.messages.narrate(ctx, ticket.ID, detail.Agent.ID, domain.RoleSystem, domain.ChannelSystem, domain.MessageTypeSystem, orderSummary(detail)); err != nil {
		warn.add(domain.StepOrderSummary, err)
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventOrderCreated,
		TicketID: ticket.ID,
		OrderID:  order.ID,
		Actor:    userActor(actor),
		Payload: events.OrderCreatedPayload{
			TicketID:     ticket.ID,
			PackageID:    pkg.ID,
			PackageTitle: pkg.Title,
			BrandID:      brand.ID,
			BrandName:    brand.CompanyName,
			CreatorID:    creator.ID,
			CreatorName:  creator.DisplayName,
			TotalAmount:  order.TotalAmount,
			Currency:     order.Currency,
			Status:       order.Status,
			DeliveryTime: order.DeliveryTime,
		},
	})

	return &OrderResult{Order: order, Ticket: detail, Warnings: warn.result()}, nil
}

func orderSummary(detail *domain.TicketDetail) string {
	order := detail.Order
	var b strings.Builder
	fmt.Fprintf(&b, "New order #%s\n", order.ID)
	fmt.Fprintf(&b, "Package: %s (%.2f %s)\n", detail.Package.Title, detail.Package.Price, detail.Package.Currency)
	fmt.Fprintf(&b, "Brand: %s\n", detail.Brand.CompanyName)
	fmt.Fprintf(&b, "Creator: %s\n", detail.Creator.DisplayName)
	fmt.Fprintf(&b, "Total: %.2f %s\n", order.TotalAmount, order.Currency)
	fmt.Fprintf(&b, "Delivery time: %d days\n", order.DeliveryTime)
	if order.AdditionalInstructions != "" {
		fmt.Fprintf(&b, "Instructions: %s\n", order.AdditionalInstructions)
	}
	if len(order.References) > 0 {
		fmt.Fprintf(&b, "References: %s\n", strings.Join(order.References, ", "))
	}
	fmt.Fprintf(&b, "Assigned agent: %s", detail.Agent.Name)
	return b.String()
}

// GetOrder returns an order.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order", map[string]any{"order_id": orderID})
	}
	return order, nil
}

// UpdateOrderStatus changes the status and narrates it on the system
// channel, authored by the ticket's agent.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, actor *domain.User, orderID string, status domain.OrderStatus) (*StatusResult, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid order status", map[string]any{"status": status})
	}
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	updated, err := s.transition(ctx, order, status, false)
	if err != nil {
		return nil, err
	}
	ticket, err := s.announceStatus(ctx, actor, order.ID, order.Status, status, "")
	if err != nil {
		return nil, err
	}
	warn := &warnings{logger: s.logger.With(zap.String("order_id", order.ID))}
	s.narrateStatus(ctx, ticket, status, warn)
	return &StatusResult{Order: updated, Warnings: warn.result()}, nil
}

// transition writes the new status. A decision only lands while the order
// is still pending, so a concurrent accept and reject cannot both win.
func (s *OrderService) transition(ctx context.Context, order *domain.Order, status domain.OrderStatus, decision bool) (*domain.Order, error) {
	if !decision {
		updated, err := s.orders.UpdateStatus(ctx, order.ID, status)
		if err != nil {
			return nil, notFound(err, "order", map[string]any{"order_id": order.ID})
		}
		return updated, nil
	}
	updated, err := s.orders.UpdateStatusFrom(ctx, order.ID, domain.OrderStatusPending, status)
	if err == nil {
		return updated, nil
	}
	if !apperrors.IsNoRows(err) {
		return nil, apperrors.MapError(err)
	}
	current, err := s.GetOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	return nil, apperrors.NewInvalidStateTransition(string(current.Status), string(status))
}

// announceStatus publishes the change and returns the order's ticket, or nil
// when it has none.
func (s *OrderService) announceStatus(ctx context.Context, actor *domain.User, orderID string, previous, status domain.OrderStatus, reason string) (*domain.Ticket, error) {
	ticket, err := s.tickets.tickets.GetByOrderID(ctx, orderID)
	if err != nil && !apperrors.IsNoRows(err) {
		return nil, apperrors.MapError(err)
	}

	event := events.Event{
		Type:    events.EventOrderStatusChanged,
		OrderID: orderID,
		Actor:   userActor(actor),
		Payload: events.OrderStatusChangedPayload{OldStatus: previous, NewStatus: status, Reason: reason},
	}
	if ticket != nil {
		event.TicketID = ticket.ID
	}
	s.events.publish(ctx, event)
	return ticket, nil
}

func (s *OrderService) narrateStatus(ctx context.Context, ticket *domain.Ticket, status domain.OrderStatus, warn *warnings) {
	if ticket == nil {
		warn.add(domain.StepStatusNarration, fmt.Errorf("order has no ticket"))
		return
	}
	if err := s.messages.narrate(ctx, ticket.ID, ticket.AgentID, domain.RoleSystem, domain.ChannelSystem, domain.MessageTypeSystem, statusNarration(status)); err != nil {
		warn.add(domain.StepStatusNarration, err, zap.String("ticket_id", ticket.ID))
	}
}

// AcceptOrder lets the order's creator accept it, fixing the delivery and
// submission deadlines.
func (s *OrderService) AcceptOrder(ctx context.Context, orderID, creatorUserID string) (*StatusResult, error) {
	order, creator, err := s.authorizeCreatorDecision(ctx, orderID, creatorUserID)
	if err != nil {
		return nil, err
	}

	days := order.DeliveryTime
	if days <= 0 {
		days = s.defaultDays
	}
	delivery := s.now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	submission := delivery.Add(-24 * time.Hour)

	var updated *domain.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if updated, err = s.transition(ctx, order, domain.OrderStatusAccepted, true); err != nil {
			return err
		}
		if err := s.orders.SetDeadlines(ctx, order.ID, delivery, submission); err != nil {
			return apperrors.MapError(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	updated.DeliveryDeadline = &delivery
	updated.SubmissionDeadline = &submission

	ticket, err := s.announceStatus(ctx, actorFromID(creatorUserID, domain.UserTypeCreator), order.ID, order.Status, domain.OrderStatusAccepted, "")
	if err != nil {
		return nil, err
	}

	warn := &warnings{logger: s.logger.With(zap.String("order_id", order.ID))}
	s.narrateStatus(ctx, ticket, domain.OrderStatusAccepted, warn)
	if ticket == nil {
		return &StatusResult{Order: updated, Warnings: warn.result()}, nil
	}

	narrations := []struct {
		sender  string
		role    domain.Role
		channel domain.ChannelType
		msgType domain.MessageType
		text    string
	}{
		{
			creatorUserID, domain.RoleCreator, domain.ChannelCreatorAgent, domain.MessageTypeText,
			fmt.Sprintf("I've accepted this order and will deliver by %s.", delivery.Format(deadlineLayout)),
		},
		{
			ticket.AgentID, domain.RoleSystem, domain.ChannelCreatorAgent, domain.MessageTypeSystem,
			fmt.Sprintf("Reminder: please submit your deliverables by %s, 24 hours before the delivery deadline of %s.",
				submission.Format(deadlineLayout), delivery.Format(deadlineLayout)),
		},
		{
			ticket.AgentID, domain.RoleSystem, domain.ChannelBrandAgent, domain.MessageTypeSystem,
			fmt.Sprintf("Good news! %s accepted your order. Expected delivery: %s.", creator.DisplayName, delivery.Format(deadlineLayout)),
		},
	}
	for _, n := range narrations {
		if err := s.messages.narrate(ctx, ticket.ID, n.sender, n.role, n.channel, n.msgType, n.text); err != nil {
			warn.add(domain.StepAcceptNarration, err, zap.String("channel_type", string(n.channel)))
		}
	}
	return &StatusResult{Order: updated, Warnings: warn.result()}, nil
}

// RejectOrder lets the order's creator decline it.
func (s *OrderService) RejectOrder(ctx context.Context, orderID, creatorUserID, reason string) (*StatusResult, error) {
	order, _, err := s.authorizeCreatorDecision(ctx, orderID, creatorUserID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	var updated *domain.Order
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.transition(ctx, order, domain.OrderStatusRejected, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	ticket, err := s.announceStatus(ctx, actorFromID(creatorUserID, domain.UserTypeCreator), order.ID, order.Status, domain.OrderStatusRejected, reason)
	if err != nil {
		return nil, err
	}

	warn := &warnings{logger: s.logger.With(zap.String("order_id", order.ID))}
	s.narrateStatus(ctx, ticket, domain.OrderStatusRejected, warn)
	if ticket == nil {
		return &StatusResult{Order: updated, Warnings: warn.result()}, nil
	}

	text := "I've declined this order."
	if reason != "" {
		text += " Reason: " + reason
	}
	if err := s.messages.narrate(ctx, ticket.ID, creatorUserID, domain.RoleCreator, domain.ChannelCreatorAgent, domain.MessageTypeText, text); err != nil {
		warn.add(domain.StepRejectNarration, err)
	}
	return &StatusResult{Order: updated, Warnings: warn.result()}, nil
}

// authorizeCreatorDecision checks that the caller owns the order's creator
// profile and that the order is still pending.
func (s *OrderService) authorizeCreatorDecision(ctx context.Context, orderID, creatorUserID string) (*domain.Order, *domain.CreatorProfile, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	creator, err := s.catalog.GetCreatorByUserID(ctx, creatorUserID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, nil, apperrors.NewUnauthorizedActor("caller has no creator profile", map[string]any{"user_id": creatorUserID})
		}
		return nil, nil, apperrors.MapError(err)
	}
	if creator.ID != order.CreatorID {
		return nil, nil, apperrors.NewUnauthorizedActor("order belongs to another creator", map[string]any{"order_id": order.ID})
	}
	if order.Status != domain.OrderStatusPending {
		return nil, nil, apperrors.NewInvalidStateTransition(string(order.Status), "decided")
	}
	return order, creator, nil
}

func actorFromID(userID string, userType domain.UserType) *domain.User {
	return &domain.User{ID: userID, UserType: userType}
}

// BrandForUser returns the caller's brand profile.
func (s *OrderService) BrandForUser(ctx context.Context, userID string) (*domain.BrandProfile, error) {
	brand, err := s.catalog.GetBrandByUserID(ctx, userID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewUnauthorizedActor("caller has no brand profile", map[string]any{"user_id": userID})
		}
		return nil, apperrors.MapError(err)
	}
	return brand, nil
}

// AuthorizeRead checks that a reader may see the order. Staff see every
// order; brands and creators only the ones they are party to.
func (s *OrderService) AuthorizeRead(ctx context.Context, order *domain.Order, userID string, role domain.Role) error {
	switch role {
	case domain.RoleAgent, domain.RoleSuperAdmin:
		return nil
	case domain.RoleBrand:
		brand, err := s.BrandForUser(ctx, userID)
		if err != nil {
			return err
		}
		if brand.ID == order.BrandID {
			return nil
		}
	case domain.RoleCreator:
		creator, err := s.catalog.GetCreatorByUserID(ctx, userID)
		if err != nil && !apperrors.IsNoRows(err) {
			return apperrors.MapError(err)
		}
		if creator != nil && creator.ID == order.CreatorID {
			return nil
		}
	}
	return apperrors.NewUnauthorizedActor("order belongs to another party", map[string]any{"order_id": order.ID})
}
