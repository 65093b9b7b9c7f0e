package service

import (
	"testing"
	"time"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

func channel(c domain.ChannelType) *domain.ChannelType { return &c }

func TestBrandMessageRoutingAndVisibility(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")
	result := f.createOrder()
	ticketID := result.Ticket.Ticket.ID

	msg, err := f.messages.AddMessage(f.ctx, AddMessageInput{TicketID: ticketID, SenderID: f.brandUser.ID, Text: "When can we expect a draft?"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if msg.Channel != domain.ChannelBrandAgent || msg.SenderRole != domain.RoleBrand || msg.Type != domain.MessageTypeText {
		t.Fatalf("stored = %+v", msg)
	}

	creatorView, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.ForUser(f.creatorUser.ID, domain.RoleCreator), false, nil)
	if err != nil {
		t.Fatalf("creator view: %v", err)
	}
	for _, m := range creatorView.Messages {
		if m.ID == msg.ID {
			t.Fatal("creator must not see brand channel messages")
		}
	}

	agentView, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.ForUser(agent.ID, domain.RoleAgent), false, nil)
	if err != nil {
		t.Fatalf("agent view: %v", err)
	}
	found := false
	for _, m := range agentView.Messages {
		if m.ID == msg.ID {
			found = true
			if m.SenderName != "Brand Owner" || m.Timestamp == "" {
				t.Errorf("view = %+v", m)
			}
		}
	}
	if !found {
		t.Fatal("agent should see brand channel messages")
	}
	if agentView.HasOlderMessages {
		t.Error("online agent must not freeze the view")
	}

	added := f.recorded.ofType(events.EventTicketMessageAdded)
	payload := added[len(added)-1].Payload.(events.TicketMessageAddedPayload)
	if payload.MessageID != msg.ID || payload.Channel != domain.ChannelBrandAgent {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestAddMessageRejections(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")
	result := f.createOrder()
	ticketID := result.Ticket.Ticket.ID
	before := f.store.MessageCount(ticketID)

	cases := []struct {
		name  string
		input AddMessageInput
		code  string
	}{
		{"agent without channel", AddMessageInput{TicketID: ticketID, SenderID: agent.ID, Text: "hello"}, apperrors.CodeValidation},
		{"brand into creator channel", AddMessageInput{TicketID: ticketID, SenderID: f.brandUser.ID, Text: "psst", Channel: channel(domain.ChannelCreatorAgent)}, apperrors.CodeForbidden},
		{"unknown channel", AddMessageInput{TicketID: ticketID, SenderID: agent.ID, Text: "hi", Channel: channel("everyone")}, apperrors.CodeValidation},
		{"file without url", AddMessageInput{TicketID: ticketID, SenderID: f.creatorUser.ID, Type: domain.MessageTypeFile}, apperrors.CodeValidation},
		{"empty text", AddMessageInput{TicketID: ticketID, SenderID: f.creatorUser.ID, Text: "   "}, apperrors.CodeValidation},
		{"unknown type", AddMessageInput{TicketID: ticketID, SenderID: f.creatorUser.ID, Text: "x", Type: "video"}, apperrors.CodeValidation},
		{"unknown ticket", AddMessageInput{TicketID: "missing", SenderID: f.creatorUser.ID, Text: "x"}, apperrors.CodeTicketNotFound},
		{"unknown sender", AddMessageInput{TicketID: ticketID, SenderID: "ghost", Text: "x"}, apperrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.messages.AddMessage(f.ctx, tc.input)
			requireCode(t, err, tc.code)
		})
	}
	if f.store.MessageCount(ticketID) != before {
		t.Fatal("rejected messages must not be stored")
	}
}

func TestAgentReplyAndFileMessage(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")
	result := f.createOrder()
	ticketID := result.Ticket.Ticket.ID

	reply, err := f.messages.AddMessage(f.ctx, AddMessageInput{
		TicketID: ticketID, SenderID: agent.ID, Text: "Draft is due Friday", Channel: channel(domain.ChannelCreatorAgent),
	})
	if err != nil || reply.Channel != domain.ChannelCreatorAgent || reply.SenderRole != domain.RoleAgent {
		t.Fatalf("reply = %+v %v", reply, err)
	}

	url, name := "https://files.example.com/draft.mp4", "draft.mp4"
	file, err := f.messages.AddMessage(f.ctx, AddMessageInput{
		TicketID: ticketID, SenderID: f.creatorUser.ID, Type: domain.MessageTypeFile, FileURL: &url, FileName: &name,
	})
	if err != nil {
		t.Fatalf("file: %v", err)
	}

	page, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.ForUser(f.creatorUser.ID, domain.RoleCreator), false, nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Fatalf("creator sees %d messages", len(page.Messages))
	}
	view := page.Messages[1]
	if view.ID != file.ID || view.File == nil || view.File.URL != url || *view.File.Name != name {
		t.Fatalf("file view = %+v", view)
	}
}

func TestOfflineAgentFreezesConversation(t *testing.T) {
	f := newFixture(t)
	agent := f.addAgent("ada")
	order := f.seedOrder()
	result, err := f.tickets.CreateTicket(f.ctx, order.ID, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	ticketID := result.Ticket.Ticket.ID
	post := func(text string) {
		t.Helper()
		if _, err := f.messages.AddMessage(f.ctx, AddMessageInput{TicketID: ticketID, SenderID: f.creatorUser.ID, Text: text}); err != nil {
			t.Fatalf("post %q: %v", text, err)
		}
	}

	f.clock.Advance(time.Minute)
	post("before")
	f.clock.Advance(time.Minute)
	if _, err := f.agents.UpdateAgentStatus(f.ctx, agent.ID, domain.AgentStatusOffline, nil); err != nil {
		t.Fatalf("go offline: %v", err)
	}
	for _, text := range []string{"after 1", "after 2", "after 3"} {
		f.clock.Advance(time.Minute)
		post(text)
	}

	creator := domain.ForUser(f.creatorUser.ID, domain.RoleCreator)
	frozen, err := f.messages.GetTicketMessages(f.ctx, ticketID, creator, false, nil)
	if err != nil {
		t.Fatalf("frozen view: %v", err)
	}
	if len(frozen.Messages) != 1 || frozen.Messages[0].Text != "before" {
		t.Fatalf("frozen view = %+v", frozen.Messages)
	}
	if !frozen.HasOlderMessages {
		t.Fatal("has_older_messages should be set while the agent is offline")
	}
	if frozen.AgentStatus.IsOnline || frozen.AgentStatus.Status != domain.AgentStatusOffline || frozen.AgentStatus.LastOnlineAt == nil {
		t.Fatalf("agent status = %+v", frozen.AgentStatus)
	}

	full, err := f.messages.GetTicketMessages(f.ctx, ticketID, creator, true, nil)
	if err != nil {
		t.Fatalf("full view: %v", err)
	}
	if len(full.Messages) != 4 || full.HasOlderMessages {
		t.Fatalf("full view = %d messages, has_older=%v", len(full.Messages), full.HasOlderMessages)
	}

	online := true
	if _, err := f.agents.UpdateAgentStatus(f.ctx, agent.ID, domain.AgentStatusAvailable, &online); err != nil {
		t.Fatalf("back online: %v", err)
	}
	live, err := f.messages.GetTicketMessages(f.ctx, ticketID, creator, false, nil)
	if err != nil {
		t.Fatalf("live view: %v", err)
	}
	if len(live.Messages) != 4 || live.HasOlderMessages {
		t.Fatalf("live view = %d messages", len(live.Messages))
	}
}

func TestGetTicketMessagesChannelFilter(t *testing.T) {
	f := newFixture(t)
	f.addAgent("ada")
	result := f.createOrder()
	ticketID := result.Ticket.Ticket.ID

	_, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.AdminOverride(), true, channel("everyone"))
	requireCode(t, err, apperrors.CodeValidation)

	page, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.AdminOverride(), true, channel(domain.ChannelSystem))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, m := range page.Messages {
		if m.Channel != domain.ChannelSystem {
			t.Fatalf("filter leaked %+v", m)
		}
	}

	none, err := f.messages.GetTicketMessages(f.ctx, ticketID, domain.Requester{}, true, nil)
	if err != nil {
		t.Fatalf("zero requester: %v", err)
	}
	if len(none.Messages) != 0 {
		t.Fatal("an unidentified requester sees nothing")
	}
}
