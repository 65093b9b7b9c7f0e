package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

func TestCreateOrderOpensTicketAndSummary(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")

	result := f.createOrder()
	if result.Order.Status != domain.OrderStatusPending {
		t.Fatalf("status = %s", result.Order.Status)
	}
	if result.Order.Currency != "USD" {
		t.Errorf("currency = %q", result.Order.Currency)
	}
	if result.Order.DeliveryTime != f.pkg.DeliveryDays {
		t.Errorf("delivery time = %d, want package default %d", result.Order.DeliveryTime, f.pkg.DeliveryDays)
	}
	if result.Ticket == nil || result.Ticket.Ticket.AgentID != agent.ID {
		t.Fatalf("ticket = %+v", result.Ticket)
	}
	if len(result.Warnings) != 0 {
		t.Fatalf("warnings = %+v", result.Warnings)
	}

	msgs := f.allMessages(result.Ticket.Ticket.ID)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want welcome, greeting and summary", len(msgs))
	}
	summary := msgs[2]
	if summary.SenderRole != domain.RoleSystem || summary.Channel != domain.ChannelSystem {
		t.Fatalf("summary = %+v", summary)
	}
	for _, want := range []string{"Launch video", "Acme", "Casey", "250.00 USD", "ada"} {
		if !strings.Contains(summary.Text, want) {
			t.Errorf("summary missing %q: %s", want, summary.Text)
		}
	}

	created := f.recorded.ofType(events.EventOrderCreated)
	if len(created) != 1 {
		t.Fatalf("order_created events = %d", len(created))
	}
	payload := created[0].Payload.(events.OrderCreatedPayload)
	if payload.TicketID != result.Ticket.Ticket.ID || payload.BrandName != "Acme" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	otherCreator := f.store.SeedCreator(domain.CreatorProfile{UserID: f.brandUser.ID, DisplayName: "Other"})

	cases := []struct {
		name   string
		mutate func(*CreateOrderInput)
	}{
		{"missing package", func(in *CreateOrderInput) { in.PackageID = "" }},
		{"missing brand", func(in *CreateOrderInput) { in.BrandID = "" }},
		{"zero amount", func(in *CreateOrderInput) { in.TotalAmount = 0 }},
		{"unknown package", func(in *CreateOrderInput) { in.PackageID = "nope" }},
		{"unknown brand", func(in *CreateOrderInput) { in.BrandID = "nope" }},
		{"package of another creator", func(in *CreateOrderInput) { in.CreatorID = otherCreator.ID }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := f.orderInput()
			tc.mutate(&in)
			_, err := f.orders.CreateOrder(f.ctx, f.brandUser, in)
			requireCode(t, err, apperrors.CodeInvalidOrderData)
		})
	}
}

func TestCreateOrderRoundRobin(t *testing.T) {
	f := newFixture(t)
	a := f.addAgent("ada")
	b := f.addAgent("bob")

	want := []string{a.ID, b.ID, a.ID}
	for i, agentID := range want {
		result := f.createOrder()
		if got := result.Ticket.Ticket.AgentID; got != agentID {
			t.Fatalf("order %d assigned to %s, want %s", i+1, got, agentID)
		}
	}
}

func TestCreateOrderRollsBackWithoutAgents(t *testing.T) {
	f := newFixture(t)
	_, err := f.orders.CreateOrder(f.ctx, f.brandUser, f.orderInput())
	requireCode(t, err, apperrors.CodeNoAgentsAvailable)
	if got := len(f.recorded.ofType(events.EventOrderCreated)); got != 0 {
		t.Fatalf("order_created published for a rolled back order")
	}
}

func TestAcceptOrderByAnotherCreator(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	result := f.createOrder()
	ticketID := result.Ticket.Ticket.ID
	before := f.store.MessageCount(ticketID)

	intruder := f.addUser("intruder@example.com", "Intruder", domain.UserTypeCreator)
	f.store.SeedCreator(domain.CreatorProfile{UserID: intruder.ID, DisplayName: "Intruder"})

	_, err := f.orders.AcceptOrder(f.ctx, result.Order.ID, intruder.ID)
	requireCode(t, err, apperrors.CodeUnauthorizedActor)

	order, err := f.orders.GetOrder(f.ctx, result.Order.ID)
	if err != nil || order.Status != domain.OrderStatusPending {
		t.Fatalf("order changed: %+v %v", order, err)
	}
	if f.store.MessageCount(ticketID) != before {
		t.Fatal("rejected accept must not post messages")
	}

	_, err = f.orders.AcceptOrder(f.ctx, result.Order.ID, f.brandUser.ID)
	requireCode(t, err, apperrors.CodeUnauthorizedActor)
}

func TestAcceptOrderSetsDeadlinesAndNarrates(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	result := f.createOrder()
	ticketID := result.Ticket.Ticket.ID
	acceptedAt := f.clock.Now()

	status, err := f.orders.AcceptOrder(f.ctx, result.Order.ID, f.creatorUser.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if len(status.Warnings) != 0 {
		t.Fatalf("warnings = %+v", status.Warnings)
	}
	order := status.Order
	if order.Status != domain.OrderStatusAccepted {
		t.Fatalf("status = %s", order.Status)
	}
	wantDelivery := acceptedAt.Add(5 * 24 * time.Hour)
	if order.DeliveryDeadline == nil || !order.DeliveryDeadline.Equal(wantDelivery) {
		t.Fatalf("delivery deadline = %v, want %v", order.DeliveryDeadline, wantDelivery)
	}
	if order.SubmissionDeadline == nil || !order.SubmissionDeadline.Equal(wantDelivery.Add(-24*time.Hour)) {
		t.Fatalf("submission deadline = %v", order.SubmissionDeadline)
	}

	page, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.ForUser(f.creatorUser.ID, domain.RoleCreator), true, nil)
	if err != nil {
		t.Fatalf("creator view: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("creator sees %d messages, want acceptance and reminder", len(page.Messages))
	}
	if page.Messages[0].SenderRole != domain.RoleCreator || page.Messages[0].SenderID != f.creatorUser.ID {
		t.Errorf("acceptance = %+v", page.Messages[0])
	}
	if page.Messages[1].SenderRole != domain.RoleSystem || !strings.Contains(page.Messages[1].Text, "Reminder") {
		t.Errorf("reminder = %+v", page.Messages[1])
	}

	brandPage, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.ForUser(f.brandUser.ID, domain.RoleBrand), true, nil)
	if err != nil {
		t.Fatalf("brand view: %v", err)
	}
	last := brandPage.Messages[len(brandPage.Messages)-1]
	if !strings.Contains(last.Text, "Casey accepted your order") {
		t.Errorf("brand progress = %+v", last)
	}

	system := domain.ChannelSystem
	sysPage, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.AdminOverride(), true, &system)
	if err != nil {
		t.Fatalf("system view: %v", err)
	}
	if got := sysPage.Messages[len(sysPage.Messages)-1].Text; got != statusNarration(domain.OrderStatusAccepted) {
		t.Errorf("status narration = %q", got)
	}

	_, err = f.orders.AcceptOrder(f.ctx, result.Order.ID, f.creatorUser.ID)
	requireCode(t, err, apperrors.CodeInvalidStateTransition)
}

func TestRejectOrderWithReason(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	result := f.createOrder()

	status, err := f.orders.RejectOrder(f.ctx, result.Order.ID, f.creatorUser.ID, "  fully booked ")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if status.Order.Status != domain.OrderStatusRejected {
		t.Fatalf("status = %s", status.Order.Status)
	}
	creatorChannel := domain.ChannelCreatorAgent
	page, err := f.messages.GetTicketMessages(f.ctx, result.Ticket.Ticket.ID, domain.AdminOverride(), true, &creatorChannel)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Text != "I've declined this order. Reason: fully booked" {
		t.Fatalf("messages = %+v", page.Messages)
	}

	changed := f.recorded.ofType(events.EventOrderStatusChanged)
	payload := changed[len(changed)-1].Payload.(events.OrderStatusChangedPayload)
	if payload.OldStatus != domain.OrderStatusPending || payload.NewStatus != domain.OrderStatusRejected || payload.Reason != "fully booked" {
		t.Fatalf("payload = %+v", payload)
	}

	_, err = f.orders.RejectOrder(f.ctx, result.Order.ID, f.creatorUser.ID, "")
	requireCode(t, err, apperrors.CodeInvalidStateTransition)
}

func TestUpdateOrderStatusNarrates(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")
	result := f.createOrder()

	_, err := f.orders.UpdateOrderStatus(f.ctx, agent, result.Order.ID, "shipped")
	requireCode(t, err, apperrors.CodeValidation)
	_, err = f.orders.UpdateOrderStatus(f.ctx, agent, "missing", domain.OrderStatusCompleted)
	requireCode(t, err, apperrors.CodeNotFound)

	status, err := f.orders.UpdateOrderStatus(f.ctx, agent, result.Order.ID, domain.OrderStatusCompleted)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if status.Order.Status != domain.OrderStatusCompleted || len(status.Warnings) != 0 {
		t.Fatalf("result = %+v", status)
	}
	msgs := f.allMessages(result.Ticket.Ticket.ID)
	last := msgs[len(msgs)-1]
	if last.Text != "Order Completed: all deliverables have been approved." {
		t.Fatalf("narration = %q", last.Text)
	}
	if last.SenderID != agent.ID || last.SenderRole != domain.RoleSystem || last.Channel != domain.ChannelSystem {
		t.Fatalf("narration = %+v", last)
	}
}

func TestStatusNarrationFallback(t *testing.T) {
	if got := statusNarration("on_hold"); got != "Order status updated to on_hold." {
		t.Fatalf("fallback = %q", got)
	}
	for status := range statusNarrations {
		if !status.Valid() {
			t.Errorf("narration for unknown status %s", status)
		}
	}
}

func TestAuthorizeRead(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")
	result := f.createOrder()
	order := result.Order

	allowed := []struct {
		userID string
		role   domain.Role
	}{
		{agent.ID, domain.RoleAgent},
		{f.superAdmin.ID, domain.RoleSuperAdmin},
		{f.brandUser.ID, domain.RoleBrand},
		{f.creatorUser.ID, domain.RoleCreator},
	}
	for _, a := range allowed {
		if err := f.orders.AuthorizeRead(f.ctx, order, a.userID, a.role); err != nil {
			t.Errorf("%s should read the order: %v", a.role, err)
		}
	}

	requireCode(t, f.orders.AuthorizeRead(f.ctx, order, f.brandUser.ID, domain.RoleCreator), apperrors.CodeUnauthorizedActor)
	requireCode(t, f.orders.AuthorizeRead(f.ctx, order, f.creatorUser.ID, domain.RoleBrand), apperrors.CodeUnauthorizedActor)
	requireCode(t, f.orders.AuthorizeRead(f.ctx, order, agent.ID, domain.RoleSystem), apperrors.CodeUnauthorizedActor)
}

// interleavedCatalog runs before once, after the order has been read and
// before the creator lookup returns.
type interleavedCatalog struct {
	repository.CatalogRepository
	once   sync.Once
	before func()
}

func (c *interleavedCatalog) GetCreatorByUserID(ctx context.Context, userID string) (*domain.CreatorProfile, error) {
	c.once.Do(c.before)
	return c.CatalogRepository.GetCreatorByUserID(ctx, userID)
}

func (f *fixture) ordersWithCatalog(catalog repository.CatalogRepository) *OrderService {
	return NewOrderService(testConfig(), OrderDependencies{
		Tx:          f.store,
		OrderRepo:   f.store.Orders(),
		CatalogRepo: catalog,
		Tickets:     f.tickets,
		Messages:    f.messages,
		Logger:      zap.NewNop(),
		Now:         f.clock.Now,
	})
}

func TestAcceptLosesToInterleavedReject(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	result := f.createOrder()
	orderID := result.Order.ID

	var rejectErr error
	catalog := &interleavedCatalog{CatalogRepository: f.store.Catalog(), before: func() {
		_, rejectErr = f.orders.RejectOrder(f.ctx, orderID, f.creatorUser.ID, "nope")
	}}
	_, err := f.ordersWithCatalog(catalog).AcceptOrder(f.ctx, orderID, f.creatorUser.ID)
	if rejectErr != nil {
		t.Fatalf("reject: %v", rejectErr)
	}
	requireCode(t, err, apperrors.CodeInvalidStateTransition)

	order, err := f.orders.GetOrder(f.ctx, orderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != domain.OrderStatusRejected {
		t.Fatalf("status = %s, want rejected", order.Status)
	}
	if order.DeliveryDeadline != nil || order.SubmissionDeadline != nil {
		t.Fatal("a losing accept must not leave deadlines behind")
	}
	for _, m := range f.allMessages(result.Ticket.Ticket.ID) {
		if strings.Contains(m.Text, "I've accepted") {
			t.Fatalf("losing accept narrated: %q", m.Text)
		}
	}
	if got := len(f.recorded.ofType(events.EventOrderStatusChanged)); got != 1 {
		t.Fatalf("order_status_changed events = %d, want 1", got)
	}
}

func TestRejectLosesToInterleavedAccept(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	result := f.createOrder()
	orderID := result.Order.ID

	var acceptErr error
	catalog := &interleavedCatalog{CatalogRepository: f.store.Catalog(), before: func() {
		_, acceptErr = f.orders.AcceptOrder(f.ctx, orderID, f.creatorUser.ID)
	}}
	_, err := f.ordersWithCatalog(catalog).RejectOrder(f.ctx, orderID, f.creatorUser.ID, "nope")
	if acceptErr != nil {
		t.Fatalf("accept: %v", acceptErr)
	}
	requireCode(t, err, apperrors.CodeInvalidStateTransition)

	order, err := f.orders.GetOrder(f.ctx, orderID)
	if err != nil || order.Status != domain.OrderStatusAccepted || order.DeliveryDeadline == nil {
		t.Fatalf("order = %+v %v", order, err)
	}
	for _, m := range f.allMessages(result.Ticket.Ticket.ID) {
		if strings.Contains(m.Text, "declined") {
			t.Fatalf("losing reject narrated: %q", m.Text)
		}
	}
}

func TestConcurrentDecisionsHaveOneWinner(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	orderID := f.createOrder().Order.ID

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = f.orders.AcceptOrder(f.ctx, orderID, f.creatorUser.ID)
	}()
	go func() {
		defer wg.Done()
		_, errs[1] = f.orders.RejectOrder(f.ctx, orderID, f.creatorUser.ID, "busy")
	}()
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		requireCode(t, err, apperrors.CodeInvalidStateTransition)
	}
	if winners != 1 {
		t.Fatalf("winners = %d (accept=%v reject=%v)", winners, errs[0], errs[1])
	}
	order, err := f.orders.GetOrder(f.ctx, orderID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if (order.Status == domain.OrderStatusAccepted) != (errs[0] == nil) {
		t.Fatalf("status %s does not match the winning decision", order.Status)
	}
	if order.Status == domain.OrderStatusRejected && order.DeliveryDeadline != nil {
		t.Fatal("rejected order carries accept deadlines")
	}
}
