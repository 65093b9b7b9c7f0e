package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/marketplace-support/internal/api/dto"
	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/integrations/streamchat"
	"github.com/spec-kit/marketplace-support/internal/service"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// ChatTokenIssuer signs tokens clients use to connect to the chat vendor.
type ChatTokenIssuer interface {
	CreateUserToken(userID string) (string, time.Time, error)
	APIKey() string
}

// AuthHandler exposes login and account endpoints.
type AuthHandler struct {
	auth *service.AuthService
	chat ChatTokenIssuer
}

// NewAuthHandler constructs handler. chat may be nil.
func NewAuthHandler(authService *service.AuthService, chat ChatTokenIssuer) *AuthHandler {
	return &AuthHandler{auth: authService, chat: chat}
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": dto.NewUserResponse(result.User),
			"auth": dto.AuthResponse{Token: result.Token, ExpiresAt: result.ExpiresAt},
		},
	})
}

// Me handles GET /auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewUserResponse(principal.User)})
}

// ChangePassword handles POST /auth/password/change.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	var req dto.PasswordChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.auth.ChangePassword(c.UserContext(), principal.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ChatToken handles GET /chat/token.
func (h *AuthHandler) ChatToken(c *fiber.Ctx) error {
	principal, err := requirePrincipal(c)
	if err != nil {
		return err
	}
	if h.chat == nil {
		return chatUnavailable()
	}
	token, exp, err := h.chat.CreateUserToken(principal.User.ID)
	if err != nil {
		if errors.Is(err, streamchat.ErrNotConfigured) {
			return chatUnavailable()
		}
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.ChatTokenResponse{
		APIKey:    h.chat.APIKey(),
		UserID:    principal.User.ID,
		Token:     token,
		ExpiresAt: exp,
	}})
}

func chatUnavailable() error {
	return apperrors.NewDomainError("CHAT_UNAVAILABLE", "chat is not available", http.StatusServiceUnavailable, nil)
}

func requirePrincipal(c *fiber.Ctx) (*auth.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return nil, apperrors.NewUnauthenticated("authentication required")
	}
	return principal, nil
}
