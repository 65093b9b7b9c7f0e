package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// AuthService coordinates login and password flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	logger     *zap.Logger
	bcryptCost int
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// LoginResult is an authenticated user and their access token.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes),
		logger:     deps.Logger,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

// Login authenticates any account by email and password. Unknown emails and
// wrong passwords are indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}
	if user.Status == domain.AccountStatusSuspended {
		return nil, apperrors.NewUnauthenticated("account suspended")
	}
	if user.UserType == domain.UserTypeSystem {
		return nil, apperrors.NewUnauthenticated("system accounts cannot log in")
	}

	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.UserType)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user logged in", zap.String("user_id", user.ID), zap.String("user_type", string(user.UserType)))
	return &LoginResult{User: user, Token: token, ExpiresAt: exp}, nil
}

// ChangePassword verifies the current password before storing the new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperrors.NewValidationError("invalid password", map[string]any{"new_password": "must be at least 8 characters"})
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFound(err, "user", map[string]any{"user_id": userID})
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewUnauthenticated("invalid credentials")
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// EnsureSuperAdmin creates the operator account unless an account with the
// email already exists. It reports whether a user was created.
func (s *AuthService) EnsureSuperAdmin(ctx context.Context, email, name, password string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, nil
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return false, nil
	} else if !apperrors.IsNoRows(err) {
		return false, apperrors.MapError(err)
	}
	if len(password) < minPasswordLength {
		return false, apperrors.NewValidationError("invalid password", map[string]any{"password": "must be at least 8 characters"})
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return false, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		UserType:      domain.UserTypeSuperAdmin,
		Status:        domain.AccountStatusActive,
		EmailVerified: true,
		Presence:      domain.OfflinePresence(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return false, apperrors.MapError(err)
	}
	s.logger.Info("super admin created", zap.String("user_id", user.ID), zap.String("email", email))
	return true, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
