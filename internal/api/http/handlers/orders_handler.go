package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-support/internal/api/dto"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/observability"
	"github.com/spec-kit/marketplace-support/internal/service"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// OrdersHandler exposes order lifecycle endpoints.
type OrdersHandler struct {
	orders  *service.OrderService
	tickets *service.TicketService
	metrics *observability.Metrics
}

// NewOrdersHandler constructs handler.
func NewOrdersHandler(orders *service.OrderService, tickets *service.TicketService, metrics *observability.Metrics) *OrdersHandler {
	return &OrdersHandler{orders: orders, tickets: tickets, metrics: metrics}
}

// Create handles POST /orders.
func (h *OrdersHandler) Create(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	brandID := req.BrandID
	if principal.Role == domain.RoleBrand {
		brand, err := h.orders.BrandForUser(c.UserContext(), principal.User.ID)
		if err != nil {
			return err
		}
		brandID = brand.ID
	}

	result, err := h.orders.CreateOrder(c.UserContext(), principal.User, service.CreateOrderInput{
		PackageID:              req.PackageID,
		BrandID:                brandID,
		CreatorID:              req.CreatorID,
		TotalAmount:            req.TotalAmount,
		Currency:               req.Currency,
		DeliveryTime:           req.DeliveryTime,
		AdditionalInstructions: req.AdditionalInstructions,
		References:             req.References,
		LegacyChannelID:        req.LegacyChannelID,
	})
	if err != nil {
		return err
	}
	h.recordWarnings(result.Warnings)

	resp := dto.OrderCreatedResponse{
		Order:    dto.NewOrderResponse(result.Order),
		Warnings: warningsOrEmpty(result.Warnings),
	}
	if result.Ticket != nil {
		detail := dto.NewTicketDetailResponse(result.Ticket)
		resp.Ticket = &detail
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// Get handles GET /orders/:id.
func (h *OrdersHandler) Get(c *fiber.Ctx) error {
	order, err := h.readableOrder(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewOrderResponse(order)})
}

// Ticket handles GET /orders/:id/ticket. It never opens a ticket.
func (h *OrdersHandler) Ticket(c *fiber.Ctx) error {
	order, err := h.readableOrder(c)
	if err != nil {
		return err
	}
	detail, err := h.tickets.GetTicketByOrderID(c.UserContext(), order.ID)
	if err != nil {
		return err
	}
	if detail == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"order_id": order.ID})
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketDetailResponse(detail)})
}

// UpdateStatus handles PATCH /orders/:id/status.
func (h *OrdersHandler) UpdateStatus(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.UpdateOrderStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.orders.UpdateOrderStatus(c.UserContext(), principal.User, c.Params("id"), req.Status)
	if err != nil {
		return err
	}
	return h.statusResponse(c, result)
}

// Accept handles POST /orders/:id/accept.
func (h *OrdersHandler) Accept(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	result, err := h.orders.AcceptOrder(c.UserContext(), c.Params("id"), principal.User.ID)
	if err != nil {
		return err
	}
	return h.statusResponse(c, result)
}

// Reject handles POST /orders/:id/reject.
func (h *OrdersHandler) Reject(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.RejectOrderRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	result, err := h.orders.RejectOrder(c.UserContext(), c.Params("id"), principal.User.ID, req.Reason)
	if err != nil {
		return err
	}
	return h.statusResponse(c, result)
}

func (h *OrdersHandler) readableOrder(c *fiber.Ctx) (*domain.Order, error) {
	principal, err := requirePrincipal(c)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.GetOrder(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if err := h.orders.AuthorizeRead(c.UserContext(), order, principal.User.ID, principal.Role); err != nil {
		return nil, err
	}
	return order, nil
}

func (h *OrdersHandler) statusResponse(c *fiber.Ctx, result *service.StatusResult) error {
	h.recordWarnings(result.Warnings)
	return c.JSON(fiber.Map{"data": dto.OrderStatusResponse{
		Order:    dto.NewOrderResponse(result.Order),
		Warnings: warningsOrEmpty(result.Warnings),
	}})
}

func (h *OrdersHandler) recordWarnings(warnings []domain.Warning) {
	for _, w := range warnings {
		h.metrics.RecordWarning(string(w.Step))
	}
}

func warningsOrEmpty(warnings []domain.Warning) []domain.Warning {
	if warnings == nil {
		return []domain.Warning{}
	}
	return warnings
}

func parseBoolQuery(c *fiber.Ctx, key string, defaultVal bool) bool {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func parseIntQuery(c *fiber.Ctx, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultVal
}
