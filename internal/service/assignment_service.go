package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// AssignmentService picks agents for new tickets and moves tickets between
// agents.
type AssignmentService struct {
	tickets repository.TicketRepository
	users   repository.UserRepository
	cursors repository.AssignmentCursorRepository
	events  publisher
}

// AssignmentDependencies bundles repositories.
type AssignmentDependencies struct {
	TicketRepo repository.TicketRepository
	UserRepo   repository.UserRepository
	CursorRepo repository.AssignmentCursorRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AssignmentService{
		tickets: deps.TicketRepo,
		users:   deps.UserRepo,
		cursors: deps.CursorRepo,
		events:  publisher{dispatcher: deps.Dispatcher, logger: deps.Logger, now: deps.Now},
	}
}

// NextAgent advances the shared round-robin cursor and returns the agent at
// its position. It must run in the same unit of work as the ticket insert.
func (s *AssignmentService) NextAgent(ctx context.Context) (*domain.User, error) {
	agents, err := s.users.ListAgents(ctx, repository.AgentFilter{})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if len(agents) == 0 {
		return nil, apperrors.NewNoAgentsAvailable()
	}
	index, err := s.cursors.Advance(ctx, repository.TicketCursor, len(agents))
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	agent := agents[index]
	return &agent, nil
}

// ReassignTicket hands a ticket to another eligible agent. No narration is
// posted.
func (s *AssignmentService) ReassignTicket(ctx context.Context, actor *domain.User, ticketID, agentID string) (*domain.Ticket, error) {
	assignee, err := s.users.GetByID(ctx, agentID)
	if err != nil {
		return nil, notFound(err, "agent", map[string]any{"agent_id": agentID})
	}
	if !assignee.UserType.IsAgent() {
		return nil, apperrors.NewValidationError("assignee is not an agent", map[string]any{"agent_id": agentID})
	}
	if assignee.Status == domain.AccountStatusSuspended {
		return nil, apperrors.NewConflict("assignee suspended", map[string]any{"agent_id": agentID})
	}

	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, apperrors.MapError(err)
	}
	if ticket.AgentID == assignee.ID {
		return ticket, nil
	}

	previous := ticket.AgentID
	ticket, err = s.tickets.UpdateAgent(ctx, ticket.ID, assignee.ID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketAssigned,
		TicketID: ticket.ID,
		OrderID:  ticket.OrderID,
		Actor:    userActor(actor),
		Payload: events.TicketAssignedPayload{
			PreviousAgentID: &previous,
			AgentID:         assignee.ID,
		},
	})
	return ticket, nil
}
