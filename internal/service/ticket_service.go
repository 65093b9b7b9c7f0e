package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// TicketService coordinates ticket workflows.
type TicketService struct {
	tx            repository.Transactor
	tickets       repository.TicketRepository
	orders        repository.OrderRepository
	users         repository.UserRepository
	catalog       repository.CatalogRepository
	assignment    *AssignmentService
	messages      *MessageService
	notifications *NotificationService
	provisioner   ChannelProvisioner
	events        publisher
	logger        *zap.Logger
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Tx            repository.Transactor
	TicketRepo    repository.TicketRepository
	OrderRepo     repository.OrderRepository
	UserRepo      repository.UserRepository
	CatalogRepo   repository.CatalogRepository
	Assignment    *AssignmentService
	Messages      *MessageService
	Notifications *NotificationService
	// Provisioner may be nil, in which case tickets keep placeholder channels.
	Provisioner ChannelProvisioner
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// TicketResult is a created ticket plus any best-effort failures.
type TicketResult struct {
	Ticket   *domain.TicketDetail
	Warnings []domain.Warning
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &TicketService{
		tx:            deps.Tx,
		tickets:       deps.TicketRepo,
		orders:        deps.OrderRepo,
		users:         deps.UserRepo,
		catalog:       deps.CatalogRepo,
		assignment:    deps.Assignment,
		messages:      deps.Messages,
		notifications: deps.Notifications,
		provisioner:   deps.Provisioner,
		events:        publisher{dispatcher: deps.Dispatcher, logger: deps.Logger, now: deps.Now},
		logger:        deps.Logger,
	}
}

// CreateTicket opens the ticket for an order, assigning the next agent in
// rotation, then runs the best-effort setup steps.
func (s *TicketService) CreateTicket(ctx context.Context, orderID string, legacyChannelID *string) (*TicketResult, error) {
	var ticket *domain.Ticket
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		ticket, err = s.openTicket(ctx, orderID, legacyChannelID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.completeTicket(ctx, ticket)
}

// openTicket inserts the ticket row. It must run inside a unit of work so
// the cursor lock and the insert commit together.
func (s *TicketService) openTicket(ctx context.Context, orderID string, legacyChannelID *string) (*domain.Ticket, error) {
	if _, err := s.orders.GetByID(ctx, orderID); err != nil {
		return nil, notFound(err, "order", map[string]any{"order_id": orderID})
	}
	if existing, err := s.tickets.GetByOrderID(ctx, orderID); err == nil && existing != nil {
		return nil, apperrors.NewConflict("order already has a ticket", map[string]any{"order_id": orderID, "ticket_id": existing.ID})
	} else if err != nil && !apperrors.IsNoRows(err) {
		return nil, apperrors.MapError(err)
	}

	agent, err := s.assignment.NextAgent(ctx)
	if err != nil {
		return nil, err
	}

	ticket := &domain.Ticket{
		OrderID:         orderID,
		AgentID:         agent.ID,
		Status:          domain.TicketStatusOpen,
		Priority:        domain.TicketPriorityMedium,
		LegacyChannelID: legacyChannelID,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewConflict("order already has a ticket", map[string]any{"order_id": orderID})
		}
		return nil, apperrors.MapError(err)
	}

	placed, err := s.tickets.SetChannels(ctx, ticket.ID,
		domain.PlaceholderChannel(domain.ChannelBrandAgent, ticket.ID),
		domain.PlaceholderChannel(domain.ChannelCreatorAgent, ticket.ID))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return placed, nil
}

// completeTicket runs the post-commit steps. Every failure becomes a
// warning on the result.
func (s *TicketService) completeTicket(ctx context.Context, ticket *domain.Ticket) (*TicketResult, error) {
	detail, err := s.hydrate(ctx, ticket)
	if err != nil {
		return nil, err
	}
	warn := &warnings{logger: s.logger.With(zap.String("ticket_id", ticket.ID), zap.String("order_id", ticket.OrderID))}

	s.provisionChannels(ctx, detail, warn)

	welcome := fmt.Sprintf("Welcome! This ticket tracks the order for %q between %s and %s. %s from our support team will help you both along the way.",
		detail.Package.Title, detail.Brand.CompanyName, detail.Creator.DisplayName, detail.Agent.Name)
	if err := s.messages.narrate(ctx, ticket.ID, detail.Agent.ID, domain.RoleSystem, domain.ChannelSystem, domain.MessageTypeSystem, welcome); err != nil {
		warn.add(domain.StepWelcomeMessage, err)
	}

	// The introduction goes to the purchasing side, which opened the conversation.
	greeting := fmt.Sprintf("Hi, I'm %s, your support agent for this order. I'll coordinate with the creator for you, so reach out here any time.", detail.Agent.Name)
	if err := s.messages.narrate(ctx, ticket.ID, detail.Agent.ID, domain.RoleAgent, domain.ChannelBrandAgent, domain.MessageTypeText, greeting); err != nil {
		warn.add(domain.StepAgentGreeting, err)
	}

	summary := fmt.Sprintf("%s ordered %q from %s.", detail.Brand.CompanyName, detail.Package.Title, detail.Creator.DisplayName)
	if _, err := s.notifications.NotifyAssignment(ctx, detail.Agent.ID, &detail.Ticket, summary); err != nil {
		warn.add(domain.StepAgentNotification, err)
	}

	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		OrderID:  ticket.OrderID,
		Actor:    systemActor(),
		Payload: events.TicketCreatedPayload{
			OrderID:  ticket.OrderID,
			AgentID:  ticket.AgentID,
			Priority: ticket.Priority,
		},
	})
	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		OrderID:  ticket.OrderID,
		Actor:    systemActor(),
		Payload:  events.TicketAssignedPayload{AgentID: ticket.AgentID},
	})

	return &TicketResult{Ticket: detail, Warnings: warn.result()}, nil
}

func (s *TicketService) provisionChannels(ctx context.Context, detail *domain.TicketDetail, warn *warnings) {
	if s.provisioner == nil {
		warn.add(domain.StepProvisionChannels, fmt.Errorf("no chat provisioner configured"))
		return
	}
	ticket := &detail.Ticket
	brandChannel, creatorChannel, err := s.provisioner.CreateSeparateTicketChannels(ctx, ticket.ID, detail.Agent.ID, detail.BrandUser.ID, detail.CreatorUser.ID)
	if err != nil {
		warn.add(domain.StepProvisionChannels, err)
		return
	}
	updated, err := s.tickets.SetChannels(ctx, ticket.ID, brandChannel, creatorChannel)
	if err != nil {
		warn.add(domain.StepProvisionChannels, err)
		return
	}
	*ticket = *updated
}

// GetTicketByOrderID returns the order's ticket, or nil when it has none.
// It never creates one.
func (s *TicketService) GetTicketByOrderID(ctx context.Context, orderID string) (*domain.TicketDetail, error) {
	ticket, err := s.tickets.GetByOrderID(ctx, orderID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return s.hydrate(ctx, ticket)
}

// GetTicket returns a hydrated ticket.
func (s *TicketService) GetTicket(ctx context.Context, ticketID string) (*domain.TicketDetail, error) {
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	return s.hydrate(ctx, ticket)
}

// UpdateTicketStatus sets the ticket status.
func (s *TicketService) UpdateTicketStatus(ctx context.Context, actor *domain.User, ticketID string, status domain.TicketStatus) (*domain.Ticket, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("invalid ticket status", map[string]any{"status": status})
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	old := ticket.Status
	if old == status {
		return ticket, nil
	}
	ticket, err = s.tickets.UpdateStatus(ctx, ticket.ID, status)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: ticket.ID,
		OrderID:  ticket.OrderID,
		Actor:    userActor(actor),
		Payload:  events.TicketStatusChangedPayload{OldStatus: old, NewStatus: status},
	})
	return ticket, nil
}

// UpdateTicketPriority sets the ticket priority.
func (s *TicketService) UpdateTicketPriority(ctx context.Context, actor *domain.User, ticketID string, priority domain.TicketPriority) (*domain.Ticket, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("invalid ticket priority", map[string]any{"priority": priority})
	}
	ticket, err := s.getTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	old := ticket.Priority
	if old == priority {
		return ticket, nil
	}
	ticket, err = s.tickets.UpdatePriority(ctx, ticket.ID, priority)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketPriorityChanged,
		TicketID: ticket.ID,
		OrderID:  ticket.OrderID,
		Actor:    userActor(actor),
		Payload:  events.TicketPriorityChangedPayload{OldPriority: old, NewPriority: priority},
	})
	return ticket, nil
}

// ReassignTicket moves the ticket to another agent.
func (s *TicketService) ReassignTicket(ctx context.Context, actor *domain.User, ticketID, agentID string) (*domain.Ticket, error) {
	return s.assignment.ReassignTicket(ctx, actor, ticketID, agentID)
}

// ListAgentTickets returns an agent's queue, most recently updated first.
func (s *TicketService) ListAgentTickets(ctx context.Context, agentID string, statuses []domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("invalid ticket status", map[string]any{"status": status})
		}
	}
	list, err := s.tickets.ListWithFilter(ctx, repository.TicketFilter{
		AgentID:  &agentID,
		Statuses: statuses,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if list == nil {
		list = []domain.Ticket{}
	}
	return list, nil
}

func (s *TicketService) getTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

// hydrate resolves the ticket's order, package, parties and agent.
func (s *TicketService) hydrate(ctx context.Context, ticket *domain.Ticket) (*domain.TicketDetail, error) {
	detail := &domain.TicketDetail{Ticket: *ticket}

	order, err := s.orders.GetByID(ctx, ticket.OrderID)
	if err != nil {
		return nil, notFound(err, "order", map[string]any{"order_id": ticket.OrderID})
	}
	detail.Order = *order

	pkg, err := s.catalog.GetPackage(ctx, order.PackageID)
	if err != nil {
		return nil, notFound(err, "package", map[string]any{"package_id": order.PackageID})
	}
	detail.Package = *pkg

	brand, err := s.catalog.GetBrand(ctx, order.BrandID)
	if err != nil {
		return nil, notFound(err, "brand", map[string]any{"brand_id": order.BrandID})
	}
	detail.Brand = *brand

	creator, err := s.catalog.GetCreator(ctx, order.CreatorID)
	if err != nil {
		return nil, notFound(err, "creator", map[string]any{"creator_id": order.CreatorID})
	}
	detail.Creator = *creator

	for _, ref := range []struct {
		id   string
		dst  *domain.User
		kind string
	}{
		{ticket.AgentID, &detail.Agent, "agent"},
		{brand.UserID, &detail.BrandUser, "brand user"},
		{creator.UserID, &detail.CreatorUser, "creator user"},
	} {
		user, err := s.users.GetByID(ctx, ref.id)
		if err != nil {
			return nil, notFound(err, ref.kind, map[string]any{"user_id": ref.id})
		}
		*ref.dst = *user
	}
	return detail, nil
}
