package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/auth"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// RateLimiter counts hits per key in a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// MessageRateLimit bounds how many messages one sender may post per minute.
// A failing limiter lets the request through.
func MessageRateLimit(limiter RateLimiter, perMinute int, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if limiter == nil || perMinute <= 0 {
			return c.Next()
		}
		principal, ok := auth.PrincipalFromContext(c)
		if !ok {
			return c.Next()
		}
		allowed, err := limiter.Allow(c.UserContext(), "messages:"+principal.User.ID, perMinute, time.Minute)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.Error(err))
			return c.Next()
		}
		if !allowed {
			c.Set(fiber.HeaderRetryAfter, "60")
			return apperrors.NewRateLimited("too many messages, slow down")
		}
		return c.Next()
	}
}
