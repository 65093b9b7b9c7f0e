package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/api/http/handlers"
	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/observability"
	"github.com/spec-kit/marketplace-support/internal/repository/memory"
	"github.com/spec-kit/marketplace-support/internal/service"
)

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	t       *testing.T
	app     *fiber.App
	store   *memory.Store
	tokens  *auth.TokenManager
	limiter *stubLimiter
	metrics *observability.Metrics

	superAdmin  *domain.User
	agent       *domain.User
	brandUser   *domain.User
	otherBrand  *domain.User
	creatorUser *domain.User
	pkg         domain.Package
	creator     domain.CreatorProfile
}

func newTestServer(t *testing.T, checks map[string]handlers.Pinger) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	dispatcher := events.NewInMemoryDispatcher()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cfg := config.Config{
		Auth:      config.AuthConfig{JWTSecret: "router-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4},
		Orders:    config.OrderConfig{DefaultDeliveryDays: 7},
		RateLimit: config.RateLimitConfig{MessagesPerMinute: 5},
	}

	notifications := service.NewNotificationService(store.Notifications(), dispatcher, logger)
	agents := service.NewAgentService(cfg, service.AgentDependencies{UserRepo: store.Users(), Dispatcher: dispatcher, Logger: logger})
	assignment := service.NewAssignmentService(service.AssignmentDependencies{
		TicketRepo: store.Tickets(), UserRepo: store.Users(), CursorRepo: store.Cursors(), Dispatcher: dispatcher, Logger: logger,
	})
	messages := service.NewMessageService(service.MessageDependencies{
		TicketRepo: store.Tickets(), UserRepo: store.Users(), MessageRepo: store.Messages(), Dispatcher: dispatcher, Logger: logger,
	})
	tickets := service.NewTicketService(service.TicketDependencies{
		Tx: store, TicketRepo: store.Tickets(), OrderRepo: store.Orders(), UserRepo: store.Users(), CatalogRepo: store.Catalog(),
		Assignment: assignment, Messages: messages, Notifications: notifications, Dispatcher: dispatcher, Logger: logger,
	})
	orders := service.NewOrderService(cfg, service.OrderDependencies{
		Tx: store, OrderRepo: store.Orders(), CatalogRepo: store.Catalog(), Tickets: tickets, Messages: messages,
		Dispatcher: dispatcher, Logger: logger,
	})
	authService := service.NewAuthService(cfg, service.AuthDependencies{UserRepo: store.Users(), Logger: logger})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	limiter := &stubLimiter{allow: true}
	RegisterRoutes(app, RouteConfig{
		Health:            handlers.NewHealthHandler("marketplace-support", "test", checks, metrics),
		Auth:              handlers.NewAuthHandler(authService, nil),
		Orders:            handlers.NewOrdersHandler(orders, tickets, metrics),
		Tickets:           handlers.NewTicketsHandler(tickets, messages),
		Agents:            handlers.NewAgentsHandler(agents, tickets),
		Notifications:     handlers.NewNotificationsHandler(notifications),
		AuthMiddleware:    auth.NewAuthMiddleware(authService.TokenManager(), store.Users()),
		RateLimiter:       limiter,
		MessagesPerMinute: cfg.RateLimit.MessagesPerMinute,
		Logger:            logger,
	})

	s := &testServer{t: t, app: app, store: store, tokens: authService.TokenManager(), limiter: limiter, metrics: metrics}
	s.superAdmin = s.addUser(ctx, "root@example.com", "Root", domain.UserTypeSuperAdmin)
	s.agent = s.addUser(ctx, "ada@support.example.com", "Ada", domain.UserTypeAgent)
	online := domain.Presence{Status: domain.AgentStatusAvailable, IsOnline: true}
	if err := store.Users().UpdatePresence(ctx, s.agent.ID, online); err != nil {
		t.Fatalf("presence: %v", err)
	}
	s.brandUser = s.addUser(ctx, "brand@example.com", "Brand Owner", domain.UserTypeBrand)
	s.otherBrand = s.addUser(ctx, "other@example.com", "Other Brand", domain.UserTypeBrand)
	s.creatorUser = s.addUser(ctx, "creator@example.com", "Casey Creator", domain.UserTypeCreator)
	store.SeedBrand(domain.BrandProfile{UserID: s.brandUser.ID, CompanyName: "Acme"})
	store.SeedBrand(domain.BrandProfile{UserID: s.otherBrand.ID, CompanyName: "Globex"})
	s.creator = store.SeedCreator(domain.CreatorProfile{UserID: s.creatorUser.ID, DisplayName: "Casey"})
	s.pkg = store.SeedPackage(domain.Package{CreatorID: s.creator.ID, Title: "Launch video", Price: 250, Currency: "USD", DeliveryDays: 5})
	return s
}

func (s *testServer) addUser(ctx context.Context, email, name string, userType domain.UserType) *domain.User {
	s.t.Helper()
	hash, err := auth.HashPassword("correct-horse", 4)
	if err != nil {
		s.t.Fatalf("hash: %v", err)
	}
	user := &domain.User{
		Name: name, Email: email, PasswordHash: hash, UserType: userType,
		Status: domain.AccountStatusActive, Presence: domain.OfflinePresence(),
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		s.t.Fatalf("create %s: %v", email, err)
	}
	return user
}

func (s *testServer) token(user *domain.User) string {
	s.t.Helper()
	token, _, err := s.tokens.GenerateToken(user.ID, user.UserType)
	if err != nil {
		s.t.Fatalf("token: %v", err)
	}
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(method, path string, as *domain.User, body any) (int, envelope, nethttp.Header) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if as != nil {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.token(as))
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			s.t.Fatalf("%s %s: decode %q: %v", method, path, raw, err)
		}
	}
	return resp.StatusCode, env, resp.Header
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return out
}

type createdOrder struct {
	Order struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"order"`
	Ticket struct {
		ID      string `json:"id"`
		AgentID string `json:"agent_id"`
	} `json:"ticket"`
	Warnings []domain.Warning `json:"warnings"`
}

type messagePage struct {
	Messages []struct {
		ID      string `json:"id"`
		Text    string `json:"text"`
		Channel string `json:"channel_type"`
		Role    string `json:"sender_role"`
	} `json:"messages"`
	HasOlderMessages bool `json:"has_older_messages"`
}

func (s *testServer) placeOrder() createdOrder {
	s.t.Helper()
	status, env, _ := s.do(fiber.MethodPost, "/orders", s.brandUser, map[string]any{
		"package_id":   s.pkg.ID,
		"creator_id":   s.creator.ID,
		"total_amount": 250,
		"currency":     "usd",
	})
	if status != fiber.StatusCreated {
		s.t.Fatalf("create order status = %d (%s)", status, env.Error.Code)
	}
	return decode[createdOrder](s.t, env.Data)
}

func TestLoginAndMe(t *testing.T) {
	s := newTestServer(t, nil)

	status, env, _ := s.do(fiber.MethodPost, "/auth/login", nil, map[string]string{"email": "brand@example.com", "password": "nope"})
	if status != fiber.StatusUnauthorized || env.Error.Code != "UNAUTHENTICATED" {
		t.Fatalf("bad login = %d %s", status, env.Error.Code)
	}

	status, env, _ = s.do(fiber.MethodPost, "/auth/login", nil, map[string]string{"email": "brand@example.com", "password": "correct-horse"})
	if status != fiber.StatusOK {
		t.Fatalf("login = %d %s", status, env.Error.Code)
	}
	login := decode[struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}](t, env.Data)
	if login.Auth.Token == "" {
		t.Fatal("token missing")
	}

	status, env, _ = s.do(fiber.MethodGet, "/auth/me", s.brandUser, nil)
	me := decode[struct {
		ID       string `json:"id"`
		UserType string `json:"user_type"`
	}](t, env.Data)
	if status != fiber.StatusOK || me.ID != s.brandUser.ID || me.UserType != "brand" {
		t.Fatalf("me = %d %+v", status, me)
	}

	status, env, _ = s.do(fiber.MethodGet, "/auth/me", nil, nil)
	if status != fiber.StatusUnauthorized || env.Error.Code != "UNAUTHENTICATED" {
		t.Fatalf("anonymous me = %d %s", status, env.Error.Code)
	}
}

func TestOrderFlowOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.placeOrder()
	if created.Order.Status != "pending" || created.Ticket.AgentID != s.agent.ID {
		t.Fatalf("created = %+v", created)
	}
	if len(created.Warnings) == 0 {
		t.Fatal("missing chat provisioner should surface as a warning")
	}

	status, env, _ := s.do(fiber.MethodGet, "/orders/"+created.Order.ID, s.otherBrand, nil)
	if status != fiber.StatusForbidden || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("foreign brand read = %d %s", status, env.Error.Code)
	}
	status, _, _ = s.do(fiber.MethodGet, "/orders/"+created.Order.ID+"/ticket", s.creatorUser, nil)
	if status != fiber.StatusOK {
		t.Fatalf("creator ticket read = %d", status)
	}

	status, env, _ = s.do(fiber.MethodPost, "/orders/"+created.Order.ID+"/accept", s.brandUser, nil)
	if status != fiber.StatusForbidden || env.Error.Code != "FORBIDDEN" {
		t.Fatalf("brand accept = %d %s", status, env.Error.Code)
	}

	status, env, _ = s.do(fiber.MethodPost, "/orders/"+created.Order.ID+"/accept", s.creatorUser, nil)
	if status != fiber.StatusOK {
		t.Fatalf("accept = %d %s", status, env.Error.Code)
	}
	accepted := decode[struct {
		Order struct {
			Status           string     `json:"status"`
			DeliveryDeadline *time.Time `json:"delivery_deadline"`
		} `json:"order"`
	}](t, env.Data)
	if accepted.Order.Status != "accepted" || accepted.Order.DeliveryDeadline == nil {
		t.Fatalf("accepted = %+v", accepted)
	}

	status, env, _ = s.do(fiber.MethodPost, "/orders/"+created.Order.ID+"/reject", s.creatorUser, map[string]string{"reason": "late"})
	if status != fiber.StatusConflict || env.Error.Code != "INVALID_STATE_TRANSITION" {
		t.Fatalf("reject after accept = %d %s", status, env.Error.Code)
	}
}

func TestMessagesOverHTTP(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.placeOrder()
	path := "/tickets/" + created.Ticket.ID + "/messages"

	status, env, _ := s.do(fiber.MethodPost, path, s.brandUser, map[string]string{"text": "Any update?"})
	if status != fiber.StatusCreated {
		t.Fatalf("brand post = %d %s", status, env.Error.Code)
	}
	if s.limiter.keys[0] != "messages:"+s.brandUser.ID {
		t.Fatalf("limiter key = %q", s.limiter.keys[0])
	}

	status, env, _ = s.do(fiber.MethodPost, path, s.agent, map[string]string{"text": "On it"})
	if status != fiber.StatusBadRequest || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("agent without channel = %d %s", status, env.Error.Code)
	}

	status, env, _ = s.do(fiber.MethodPost, path, s.otherBrand, map[string]string{"text": "hi"})
	if status != fiber.StatusForbidden || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("outsider post = %d %s", status, env.Error.Code)
	}

	status, env, _ = s.do(fiber.MethodGet, path, s.creatorUser, nil)
	if status != fiber.StatusOK {
		t.Fatalf("creator list = %d", status)
	}
	page := decode[messagePage](t, env.Data)
	for _, m := range page.Messages {
		if m.Channel == string(domain.ChannelBrandAgent) {
			t.Fatalf("creator saw brand channel message %+v", m)
		}
	}

	status, env, _ = s.do(fiber.MethodGet, path+"?view=all", s.agent, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("agent full view = %d", status)
	}
	status, env, _ = s.do(fiber.MethodGet, path+"?view=all&load_older=true", s.superAdmin, nil)
	if status != fiber.StatusOK {
		t.Fatalf("admin full view = %d", status)
	}
	if got := len(decode[messagePage](t, env.Data).Messages); got != 4 {
		t.Fatalf("admin sees %d messages, want 4", got)
	}
}

func TestMessageRateLimit(t *testing.T) {
	s := newTestServer(t, nil)
	created := s.placeOrder()
	path := "/tickets/" + created.Ticket.ID + "/messages"

	s.limiter.allow = false
	status, env, header := s.do(fiber.MethodPost, path, s.creatorUser, map[string]string{"text": "spam"})
	if status != fiber.StatusTooManyRequests || env.Error.Code != "RATE_LIMITED" {
		t.Fatalf("limited = %d %s", status, env.Error.Code)
	}
	if header.Get(fiber.HeaderRetryAfter) == "" {
		t.Fatal("Retry-After missing")
	}

	s.limiter.err = errors.New("redis down")
	status, _, _ = s.do(fiber.MethodPost, path, s.creatorUser, map[string]string{"text": "still here"})
	if status != fiber.StatusCreated {
		t.Fatalf("limiter failure should let the message through, got %d", status)
	}
}

func TestAgentEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	status, _, _ := s.do(fiber.MethodPost, "/agents", s.agent, map[string]string{"email": "nia@support.example.com", "name": "Nia", "password": "long-enough"})
	if status != fiber.StatusForbidden {
		t.Fatalf("agent creating agent = %d", status)
	}
	status, env, _ := s.do(fiber.MethodPost, "/agents", s.superAdmin, map[string]string{"email": "nia@support.example.com", "name": "Nia", "password": "long-enough"})
	if status != fiber.StatusCreated {
		t.Fatalf("create agent = %d %s", status, env.Error.Code)
	}

	status, env, _ = s.do(fiber.MethodPatch, "/agents/me/status", s.agent, map[string]any{"status": "offline"})
	if status != fiber.StatusOK {
		t.Fatalf("go offline = %d %s", status, env.Error.Code)
	}
	presence := decode[struct {
		Status   string `json:"agent_status"`
		IsOnline bool   `json:"is_online"`
	}](t, env.Data)
	if presence.Status != "offline" || presence.IsOnline {
		t.Fatalf("presence = %+v", presence)
	}

	status, _, _ = s.do(fiber.MethodPatch, "/agents/me/status", s.brandUser, map[string]any{"status": "available"})
	if status != fiber.StatusForbidden {
		t.Fatalf("brand presence update = %d", status)
	}

	status, _, _ = s.do(fiber.MethodGet, "/agents/stats", s.agent, nil)
	if status != fiber.StatusForbidden {
		t.Fatalf("agent stats = %d", status)
	}
	status, env, _ = s.do(fiber.MethodGet, "/agents/stats", s.superAdmin, nil)
	stats := decode[domain.AgentStats](t, env.Data)
	if status != fiber.StatusOK || stats.Total != 2 {
		t.Fatalf("stats = %d %+v", status, stats)
	}
}

func TestHealthAndChatToken(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})

	status, _, _ := s.do(fiber.MethodGet, "/health/live", nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("live = %d", status)
	}
	status, env, _ := s.do(fiber.MethodGet, "/health/ready", nil, nil)
	if status != fiber.StatusServiceUnavailable || env.Error.Details["postgres"] != "ok" {
		t.Fatalf("ready = %d %+v", status, env.Error)
	}

	status, env, _ = s.do(fiber.MethodGet, "/chat/token", s.creatorUser, nil)
	if status != fiber.StatusServiceUnavailable || env.Error.Code != "CHAT_UNAVAILABLE" {
		t.Fatalf("chat token = %d %s", status, env.Error.Code)
	}

	status, env, _ = s.do(fiber.MethodGet, "/metrics", nil, nil)
	snapshot := decode[observability.Snapshot](t, env.Data)
	if status != fiber.StatusOK || len(snapshot.Requests) == 0 {
		t.Fatalf("metrics = %d %+v", status, snapshot)
	}
}
