package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-support/internal/api/dto"
	"github.com/spec-kit/marketplace-support/internal/service"
)

// NotificationsHandler lists in-app notifications.
type NotificationsHandler struct {
	notifications *service.NotificationService
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(notifications *service.NotificationService) *NotificationsHandler {
	return &NotificationsHandler{notifications: notifications}
}

// List handles GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	list, err := h.notifications.ListForUser(c.UserContext(), principal.User.ID, parseBoolQuery(c, "unread", false), parseIntQuery(c, "limit", 20))
	if err != nil {
		return err
	}
	resp := make([]dto.NotificationResponse, 0, len(list))
	for _, n := range list {
		resp = append(resp, dto.NotificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			Title:     n.Title,
			Body:      n.Body,
			TicketID:  n.TicketID,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": resp})
}
