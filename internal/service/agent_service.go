package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

const minPasswordLength = 8

// AgentService manages the support agent directory and agent presence.
type AgentService struct {
	users      repository.UserRepository
	events     publisher
	logger     *zap.Logger
	bcryptCost int
	now        func() time.Time
}

// AgentDependencies encapsulates repositories required for agent management.
type AgentDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        func() time.Time
}

// CreateAgentInput carries a new agent account.
type CreateAgentInput struct {
	Email    string
	Name     string
	Password string
}

// NewAgentService constructs the service.
func NewAgentService(cfg config.Config, deps AgentDependencies) *AgentService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AgentService{
		users:      deps.UserRepo,
		events:     publisher{dispatcher: deps.Dispatcher, logger: deps.Logger, now: deps.Now},
		logger:     deps.Logger,
		bcryptCost: cfg.Auth.BcryptCost,
		now:        deps.Now,
	}
}

func requireSuperAdmin(actor *domain.User) error {
	if actor == nil || actor.UserType != domain.UserTypeSuperAdmin {
		return apperrors.NewForbidden("super admin role required")
	}
	return nil
}

// CreateAgent adds a support agent account. New agents start active,
// unverified and offline.
func (s *AgentService) CreateAgent(ctx context.Context, actor *domain.User, input CreateAgentInput) (*domain.User, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	email := strings.TrimSpace(input.Email)
	name := strings.TrimSpace(input.Name)
	details := map[string]any{}
	if addr, err := mail.ParseAddress(email); err != nil {
		details["email"] = "must be a valid address"
	} else {
		email = strings.ToLower(addr.Address)
	}
	if name == "" {
		details["name"] = "required"
	}
	if len(input.Password) < minPasswordLength {
		details["password"] = "must be at least 8 characters"
	}
	if len(details) > 0 {
		return nil, apperrors.NewValidationError("invalid agent", details)
	}

	if existing, err := s.users.GetByEmail(ctx, email); err == nil && existing != nil {
		return nil, apperrors.NewDuplicateEmail(email)
	} else if err != nil && !apperrors.IsNoRows(err) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	createdBy := actor.ID
	agent := &domain.User{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		UserType:      domain.UserTypeAdmin,
		Status:        domain.AccountStatusActive,
		EmailVerified: false,
		Presence:      domain.OfflinePresence(),
		CreatedBy:     &createdBy,
	}
	if err := s.users.Create(ctx, agent); err != nil {
		if apperrors.IsUniqueViolation(err) {
			return nil, apperrors.NewDuplicateEmail(email)
		}
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("agent created", zap.String("agent_id", agent.ID), zap.String("created_by", createdBy))
	return agent, nil
}

// UpdateAgentStatus moves an agent's presence through its state machine.
func (s *AgentService) UpdateAgentStatus(ctx context.Context, agentID string, status domain.AgentStatus, isOnline *bool) (*domain.User, error) {
	agent, err := s.getAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	previous := agent.Presence
	next, err := previous.Transition(status, isOnline, s.now())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownAgentStatus), errors.Is(err, domain.ErrPresenceOnlineFlagMismatch):
			return nil, apperrors.NewValidationError(err.Error(), map[string]any{"status": status})
		case errors.Is(err, domain.ErrInvalidPresenceTransition):
			return nil, apperrors.NewInvalidStateTransition(string(previous.Status), string(status))
		}
		return nil, apperrors.MapError(err)
	}
	if next == previous {
		return agent, nil
	}

	if err := s.users.UpdatePresence(ctx, agent.ID, next); err != nil {
		return nil, apperrors.MapError(err)
	}
	agent.Presence = next
	s.events.publish(ctx, events.Event{
		Type:  events.EventAgentStatusChanged,
		Actor: userActor(agent),
		Payload: events.AgentStatusChangedPayload{
			AgentID:      agent.ID,
			OldStatus:    previous.Status,
			NewStatus:    next.Status,
			IsOnline:     next.IsOnline,
			LastOnlineAt: next.LastOnlineAt,
		},
	})
	return agent, nil
}

// GetAgentStats reports directory counts.
func (s *AgentService) GetAgentStats(ctx context.Context) (domain.AgentStats, error) {
	stats, err := s.users.AgentStats(ctx)
	if err != nil {
		return domain.AgentStats{}, apperrors.MapError(err)
	}
	return stats, nil
}

// ListAgents returns the directory in assignment order.
func (s *AgentService) ListAgents(ctx context.Context, includeSuspended bool) ([]domain.User, error) {
	agents, err := s.users.ListAgents(ctx, repository.AgentFilter{IncludeSuspended: includeSuspended})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return agents, nil
}

// SuspendAgent removes an agent from assignment without deleting them.
func (s *AgentService) SuspendAgent(ctx context.Context, actor *domain.User, agentID string) (*domain.User, error) {
	return s.setAccountStatus(ctx, actor, agentID, domain.AccountStatusSuspended)
}

// ReactivateAgent returns a suspended agent to the directory.
func (s *AgentService) ReactivateAgent(ctx context.Context, actor *domain.User, agentID string) (*domain.User, error) {
	return s.setAccountStatus(ctx, actor, agentID, domain.AccountStatusActive)
}

func (s *AgentService) setAccountStatus(ctx context.Context, actor *domain.User, agentID string, status domain.AccountStatus) (*domain.User, error) {
	if err := requireSuperAdmin(actor); err != nil {
		return nil, err
	}
	agent, err := s.getAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.Status == status {
		return agent, nil
	}
	agent.Status = status
	if err := s.users.Update(ctx, agent); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("agent account status changed",
		zap.String("agent_id", agent.ID),
		zap.String("status", string(status)),
		zap.String("actor_id", actor.ID))
	return agent, nil
}

func (s *AgentService) getAgent(ctx context.Context, agentID string) (*domain.User, error) {
	agent, err := s.users.GetByID(ctx, agentID)
	if err != nil {
		return nil, notFound(err, "agent", map[string]any{"agent_id": agentID})
	}
	if !agent.UserType.IsAgent() {
		return nil, apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
	}
	return agent, nil
}
