package dto

import (
	"time"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// PasswordChangeRequest payload for authenticated password changes.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserResponse is the public shape of an account.
type UserResponse struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Email         string               `json:"email"`
	UserType      domain.UserType      `json:"user_type"`
	Status        domain.AccountStatus `json:"status"`
	EmailVerified bool                 `json:"email_verified"`
}

// ChatTokenResponse lets a client connect to the chat vendor directly.
type ChatTokenResponse struct {
	APIKey    string    `json:"api_key"`
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NotificationResponse is one in-app notification.
type NotificationResponse struct {
	ID        string                  `json:"id"`
	Type      domain.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Body      string                  `json:"body"`
	TicketID  *string                 `json:"ticket_id,omitempty"`
	Read      bool                    `json:"read"`
	CreatedAt time.Time               `json:"created_at"`
}

// NewUserResponse renders a user without credentials.
func NewUserResponse(user *domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		UserType:      user.UserType,
		Status:        user.Status,
		EmailVerified: user.EmailVerified,
	}
}
