package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-support/internal/api/dto"
	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/service"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// TicketsHandler exposes ticket and conversation endpoints.
type TicketsHandler struct {
	tickets  *service.TicketService
	messages *service.MessageService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, messages *service.MessageService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, messages: messages}
}

// Get handles GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	_, detail, err := h.admitted(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(detail)})
}

// UpdateStatus handles PATCH /tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateTicketStatus(c.UserContext(), principal.User, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// UpdatePriority handles PATCH /tickets/:id/priority.
func (h *TicketsHandler) UpdatePriority(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateTicketPriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateTicketPriority(c.UserContext(), principal.User, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// Reassign handles PATCH /tickets/:id/assignee.
func (h *TicketsHandler) Reassign(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.ReassignTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.AgentID) == "" {
		return apperrors.NewValidationError("agent_id required", map[string]any{"agent_id": "required"})
	}
	ticket, err := h.tickets.ReassignTicket(c.UserContext(), principal.User, c.Params("id"), req.AgentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListMessages handles GET /tickets/:id/messages. Super admins may pass
// view=all to read every channel.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	principal, detail, err := h.admitted(c)
	if err != nil {
		return err
	}

	requester := principal.Requester()
	if c.Query("view") == "all" {
		if principal.Role != domain.RoleSuperAdmin {
			return apperrors.NewForbidden("full view requires super admin")
		}
		requester = domain.AdminOverride()
	}

	var channel *domain.ChannelType
	if val := c.Query("channel"); val != "" {
		ch := domain.ChannelType(val)
		channel = &ch
	}

	page, err := h.messages.GetTicketMessages(c.UserContext(), detail.Ticket.ID, requester, parseBoolQuery(c, "load_older", false), channel)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": page})
}

// PostMessage handles POST /tickets/:id/messages.
func (h *TicketsHandler) PostMessage(c *fiber.Ctx) error {
	principal, detail, err := h.admitted(c)
	if err != nil {
		return err
	}
	var req dto.CreateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	msg, err := h.messages.AddMessage(c.UserContext(), service.AddMessageInput{
		TicketID: detail.Ticket.ID,
		SenderID: principal.User.ID,
		Text:     req.Text,
		Type:     req.MessageType,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		Channel:  req.ChannelType,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": service.NewMessageView(*msg)})
}

// admitted loads the ticket and checks the caller is a party to it.
func (h *TicketsHandler) admitted(c *fiber.Ctx) (*auth.Principal, *domain.TicketDetail, error) {
	principal, err := requirePrincipal(c)
	if err != nil {
		return nil, nil, err
	}
	detail, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, nil, err
	}
	if !detail.Admits(principal.User.ID, principal.Role) {
		return nil, nil, apperrors.NewUnauthorizedActor("ticket belongs to another party", map[string]any{"ticket_id": detail.Ticket.ID})
	}
	return principal, detail, nil
}
