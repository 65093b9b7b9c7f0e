package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-support/internal/api/dto"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/service"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// AgentsHandler manages the agent directory and agent presence.
type AgentsHandler struct {
	agents  *service.AgentService
	tickets *service.TicketService
}

// NewAgentsHandler constructs handler.
func NewAgentsHandler(agents *service.AgentService, tickets *service.TicketService) *AgentsHandler {
	return &AgentsHandler{agents: agents, tickets: tickets}
}

// List handles GET /agents.
func (h *AgentsHandler) List(c *fiber.Ctx) error {
	agents, err := h.agents.ListAgents(c.UserContext(), parseBoolQuery(c, "include_suspended", false))
	if err != nil {
		return err
	}
	resp := make([]dto.AgentResponse, 0, len(agents))
	for i := range agents {
		resp = append(resp, dto.NewAgentResponse(&agents[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Stats handles GET /agents/stats.
func (h *AgentsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.agents.GetAgentStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Create handles POST /agents.
func (h *AgentsHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateAgentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.CreateAgent(c.UserContext(), principal.User, service.CreateAgentInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// Suspend handles POST /agents/:id/suspend.
func (h *AgentsHandler) Suspend(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	agent, err := h.agents.SuspendAgent(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// Reactivate handles POST /agents/:id/reactivate.
func (h *AgentsHandler) Reactivate(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	agent, err := h.agents.ReactivateAgent(c.UserContext(), principal.User, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// UpdateMyStatus handles PATCH /agents/me/status.
func (h *AgentsHandler) UpdateMyStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateAgentStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agent, err := h.agents.UpdateAgentStatus(c.UserContext(), principal.User.ID, req.Status, req.IsOnline)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewAgentResponse(agent)})
}

// MyTickets handles GET /agents/me/tickets.
func (h *AgentsHandler) MyTickets(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var statuses []domain.TicketStatus
	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			statuses = append(statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)

	tickets, err := h.tickets.ListAgentTickets(c.UserContext(), principal.User.ID, statuses, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	resp := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		resp = append(resp, dto.NewTicketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}
