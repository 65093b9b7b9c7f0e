package dto

import (
	"time"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// CreateAgentRequest payload.
type CreateAgentRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// UpdateAgentStatusRequest payload. IsOnline is optional and must agree
// with Status when present.
type UpdateAgentStatusRequest struct {
	Status   domain.AgentStatus `json:"status"`
	IsOnline *bool              `json:"is_online"`
}

// AgentResponse is an agent with presence.
type AgentResponse struct {
	UserResponse
	AgentStatus  domain.AgentStatus `json:"agent_status"`
	IsOnline     bool               `json:"is_online"`
	LastOnlineAt *time.Time         `json:"last_online_at,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// NewAgentResponse renders an agent.
func NewAgentResponse(agent *domain.User) AgentResponse {
	return AgentResponse{
		UserResponse: NewUserResponse(agent),
		AgentStatus:  agent.Presence.Status,
		IsOnline:     agent.Presence.IsOnline,
		LastOnlineAt: agent.Presence.LastOnlineAt,
		CreatedAt:    agent.CreatedAt,
	}
}
