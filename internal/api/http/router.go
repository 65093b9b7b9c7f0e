package http

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Orders         *handlers.OrdersHandler
	Tickets        *handlers.TicketsHandler
	Agents         *handlers.AgentsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
	RateLimiter    RateLimiter
	// MessagesPerMinute caps message posts per sender. Zero disables it.
	MessagesPerMinute int
	Logger            *zap.Logger
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics)

	app.Post("/auth/login", cfg.Auth.Login)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Get("/auth/me", cfg.Auth.Me)
	protected.Post("/auth/password/change", cfg.Auth.ChangePassword)
	protected.Get("/chat/token", cfg.Auth.ChatToken)
	protected.Get("/notifications", cfg.Notifications.List)

	orders := protected.Group("/orders")
	orders.Post("/", auth.RequireRoles(domain.RoleBrand, domain.RoleSuperAdmin), cfg.Orders.Create)
	orders.Get("/:id", cfg.Orders.Get)
	orders.Get("/:id/ticket", cfg.Orders.Ticket)
	orders.Patch("/:id/status", auth.RequireStaff(), cfg.Orders.UpdateStatus)
	orders.Post("/:id/accept", auth.RequireRoles(domain.RoleCreator), cfg.Orders.Accept)
	orders.Post("/:id/reject", auth.RequireRoles(domain.RoleCreator), cfg.Orders.Reject)

	tickets := protected.Group("/tickets")
	tickets.Get("/:id", cfg.Tickets.Get)
	tickets.Patch("/:id/status", auth.RequireStaff(), cfg.Tickets.UpdateStatus)
	tickets.Patch("/:id/priority", auth.RequireStaff(), cfg.Tickets.UpdatePriority)
	tickets.Patch("/:id/assignee", auth.RequireStaff(), cfg.Tickets.Reassign)
	tickets.Get("/:id/messages", cfg.Tickets.ListMessages)
	tickets.Post("/:id/messages", MessageRateLimit(cfg.RateLimiter, cfg.MessagesPerMinute, cfg.Logger), cfg.Tickets.PostMessage)

	agents := protected.Group("/agents")
	agents.Patch("/me/status", auth.RequireRoles(domain.RoleAgent), cfg.Agents.UpdateMyStatus)
	agents.Get("/me/tickets", auth.RequireRoles(domain.RoleAgent), cfg.Agents.MyTickets)
	agents.Get("/", auth.RequireSuperAdmin(), cfg.Agents.List)
	agents.Get("/stats", auth.RequireSuperAdmin(), cfg.Agents.Stats)
	agents.Post("/", auth.RequireSuperAdmin(), cfg.Agents.Create)
	agents.Post("/:id/suspend", auth.RequireSuperAdmin(), cfg.Agents.Suspend)
	agents.Post("/:id/reactivate", auth.RequireSuperAdmin(), cfg.Agents.Reactivate)
}
