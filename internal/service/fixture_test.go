package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/auth"
	"github.com/spec-kit/marketplace-support/internal/config"
	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository/memory"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeProvisioner struct {
	err   error
	calls int
}

func (p *fakeProvisioner) CreateSeparateTicketChannels(_ context.Context, ticketID, _, _, _ string) (string, string, error) {
	p.calls++
	if p.err != nil {
		return "", "", p.err
	}
	return "ticket-" + ticketID + "-brand", "ticket-" + ticketID + "-creator", nil
}

type recordedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordedEvents) handle(_ context.Context, event events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordedEvents) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	t           *testing.T
	ctx         context.Context
	store       *memory.Store
	clock       *testClock
	provisioner *fakeProvisioner
	recorded    *recordedEvents

	agents        *AgentService
	assignment    *AssignmentService
	messages      *MessageService
	notifications *NotificationService
	tickets       *TicketService
	orders        *OrderService
	auth          *AuthService

	superAdmin  *domain.User
	brandUser   *domain.User
	creatorUser *domain.User
	brand       domain.BrandProfile
	creator     domain.CreatorProfile
	pkg         domain.Package
}

func testConfig() config.Config {
	return config.Config{
		Auth:   config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4},
		Orders: config.OrderConfig{DefaultDeliveryDays: 7},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := memory.New(memory.WithClock(clock.Now))
	dispatcher := events.NewInMemoryDispatcher()
	recorded := &recordedEvents{}
	events.SubscribeAll(dispatcher, recorded.handle)
	logger := zap.NewNop()
	cfg := testConfig()

	f := &fixture{
		t:           t,
		ctx:         context.Background(),
		store:       store,
		clock:       clock,
		provisioner: &fakeProvisioner{},
		recorded:    recorded,
	}

	f.notifications = NewNotificationService(store.Notifications(), dispatcher, logger)
	f.agents = NewAgentService(cfg, AgentDependencies{UserRepo: store.Users(), Dispatcher: dispatcher, Logger: logger, Now: clock.Now})
	f.assignment = NewAssignmentService(AssignmentDependencies{
		TicketRepo: store.Tickets(), UserRepo: store.Users(), CursorRepo: store.Cursors(),
		Dispatcher: dispatcher, Logger: logger, Now: clock.Now,
	})
	f.messages = NewMessageService(MessageDependencies{
		TicketRepo: store.Tickets(), UserRepo: store.Users(), MessageRepo: store.Messages(),
		Dispatcher: dispatcher, Logger: logger, Now: clock.Now,
	})
	f.tickets = NewTicketService(TicketDependencies{
		Tx:            store,
		TicketRepo:    store.Tickets(),
		OrderRepo:     store.Orders(),
		UserRepo:      store.Users(),
		CatalogRepo:   store.Catalog(),
		Assignment:    f.assignment,
		Messages:      f.messages,
		Notifications: f.notifications,
		Provisioner:   f.provisioner,
		Dispatcher:    dispatcher,
		Logger:        logger,
		Now:           clock.Now,
	})
	f.orders = NewOrderService(cfg, OrderDependencies{
		Tx:          store,
		OrderRepo:   store.Orders(),
		CatalogRepo: store.Catalog(),
		Tickets:     f.tickets,
		Messages:    f.messages,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Now:         clock.Now,
	})
	f.auth = NewAuthService(cfg, AuthDependencies{UserRepo: store.Users(), Logger: logger})

	f.superAdmin = f.addUser("root@example.com", "Root", domain.UserTypeSuperAdmin)
	f.brandUser = f.addUser("brand@example.com", "Brand Owner", domain.UserTypeBrand)
	f.creatorUser = f.addUser("creator@example.com", "Casey Creator", domain.UserTypeCreator)
	f.brand = store.SeedBrand(domain.BrandProfile{UserID: f.brandUser.ID, CompanyName: "Acme"})
	f.creator = store.SeedCreator(domain.CreatorProfile{UserID: f.creatorUser.ID, DisplayName: "Casey"})
	f.pkg = store.SeedPackage(domain.Package{
		CreatorID: f.creator.ID, Title: "Launch video", Price: 250, Currency: "USD", DeliveryDays: 5,
	})
	return f
}

func (f *fixture) addUser(email, name string, userType domain.UserType) *domain.User {
	f.t.Helper()
	hash, err := auth.HashPassword("correct-horse", 4)
	if err != nil {
		f.t.Fatalf("hash: %v", err)
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		UserType:     userType,
		Status:       domain.AccountStatusActive,
		Presence:     domain.OfflinePresence(),
	}
	if err := f.store.Users().Create(f.ctx, user); err != nil {
		f.t.Fatalf("create user %s: %v", email, err)
	}
	// Spread creation times so directory order is deterministic.
	f.clock.Advance(time.Second)
	return user
}

// addAgent creates an online agent.
func (f *fixture) addAgent(name string) *domain.User {
	f.t.Helper()
	agent := f.addUser(fmt.Sprintf("%s@support.example.com", name), name, domain.UserTypeAgent)
	presence := domain.Presence{Status: domain.AgentStatusAvailable, IsOnline: true}
	if err := f.store.Users().UpdatePresence(f.ctx, agent.ID, presence); err != nil {
		f.t.Fatalf("presence: %v", err)
	}
	agent.Presence = presence
	return agent
}

func (f *fixture) orderInput() CreateOrderInput {
	return CreateOrderInput{
		PackageID:   f.pkg.ID,
		BrandID:     f.brand.ID,
		CreatorID:   f.creator.ID,
		TotalAmount: 250,
		Currency:    "usd",
	}
}

func (f *fixture) createOrder() *OrderResult {
	f.t.Helper()
	result, err := f.orders.CreateOrder(f.ctx, f.brandUser, f.orderInput())
	if err != nil {
		f.t.Fatalf("create order: %v", err)
	}
	return result
}

func (f *fixture) allMessages(ticketID string) []MessageView {
	f.t.Helper()
	page, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.AdminOverride(), true, nil)
	if err != nil {
		f.t.Fatalf("list messages: %v", err)
	}
	return page.Messages
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !apperrors.HasCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func hasStep(warnings []domain.Warning, step domain.WarningStep) bool {
	for _, w := range warnings {
		if w.Step == step {
			return true
		}
	}
	return false
}

var errVendorDown = errors.New("vendor down")
