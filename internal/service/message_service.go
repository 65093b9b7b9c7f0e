package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	"github.com/spec-kit/marketplace-support/internal/repository"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// MessageService appends channel-tagged messages to tickets and renders a
// ticket's history for a given reader.
type MessageService struct {
	tickets  repository.TicketRepository
	users    repository.UserRepository
	messages repository.MessageRepository
	events   publisher
	now      func() time.Time
}

// MessageDependencies bundles repositories for the message service.
type MessageDependencies struct {
	TicketRepo  repository.TicketRepository
	UserRepo    repository.UserRepository
	MessageRepo repository.MessageRepository
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Now         func() time.Time
}

// AddMessageInput describes a message to append. SenderRole is derived from
// the sender's account when nil. Channel is mandatory for agent and super
// admin senders.
type AddMessageInput struct {
	TicketID   string
	SenderID   string
	Text       string
	Type       domain.MessageType
	FileURL    *string
	FileName   *string
	SenderRole *domain.Role
	Channel    *domain.ChannelType
}

// FileRef is an attachment reference on a message view.
type FileRef struct {
	URL  string  `json:"url"`
	Name *string `json:"name,omitempty"`
}

// MessageView is the stable shape a message is rendered in.
type MessageView struct {
	ID         string             `json:"id"`
	Text       string             `json:"text"`
	SenderID   string             `json:"sender_id"`
	SenderRole domain.Role        `json:"sender_role"`
	SenderName string             `json:"sender_name"`
	Timestamp  string             `json:"timestamp"`
	Type       domain.MessageType `json:"message_type"`
	File       *FileRef           `json:"file,omitempty"`
	Channel    domain.ChannelType `json:"channel_type"`
}

// AgentPresenceView is the assigned agent's presence snapshot.
type AgentPresenceView struct {
	AgentID      string             `json:"agent_id"`
	Status       domain.AgentStatus `json:"status"`
	IsOnline     bool               `json:"is_online"`
	LastOnlineAt *string            `json:"last_online_at,omitempty"`
}

// MessagePage is one read of a ticket's conversation.
type MessagePage struct {
	Messages         []MessageView     `json:"messages"`
	AgentStatus      AgentPresenceView `json:"agent_status"`
	HasOlderMessages bool              `json:"has_older_messages"`
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &MessageService{
		tickets:  deps.TicketRepo,
		users:    deps.UserRepo,
		messages: deps.MessageRepo,
		events:   publisher{dispatcher: deps.Dispatcher, logger: deps.Logger, now: deps.Now},
		now:      deps.Now,
	}
}

// AddMessage validates, tags and stores a message.
func (s *MessageService) AddMessage(ctx context.Context, input AddMessageInput) (*domain.Message, error) {
	ticket, err := s.tickets.GetByID(ctx, input.TicketID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewTicketNotFound(input.TicketID)
		}
		return nil, apperrors.MapError(err)
	}

	sender, err := s.users.GetByID(ctx, input.SenderID)
	if err != nil {
		return nil, notFound(err, "sender", map[string]any{"sender_id": input.SenderID})
	}

	var role domain.Role
	if input.SenderRole != nil {
		role = *input.SenderRole
	} else {
		derived, ok := sender.UserType.Role()
		if !ok {
			return nil, apperrors.NewValidationError("sender has no message role", map[string]any{"user_type": sender.UserType})
		}
		role = derived
	}

	channel, err := domain.ResolveChannel(role, input.Channel)
	if err != nil {
		return nil, channelError(err, role, input.Channel)
	}

	msgType := input.Type
	if msgType == "" {
		msgType = domain.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, apperrors.NewValidationError("invalid message_type", map[string]any{"message_type": msgType})
	}
	text := strings.TrimSpace(input.Text)
	if msgType == domain.MessageTypeFile {
		if input.FileURL == nil || strings.TrimSpace(*input.FileURL) == "" {
			return nil, apperrors.NewValidationError(domain.ErrFileReferenceRequired.Error(), map[string]any{"file_url": "required"})
		}
	} else if text == "" {
		return nil, apperrors.NewValidationError("message text required", map[string]any{"text": "required"})
	}

	msg := &domain.Message{
		TicketID:   ticket.ID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: role,
		Text:       text,
		Type:       msgType,
		FileURL:    input.FileURL,
		FileName:   input.FileName,
		Channel:    channel,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, apperrors.MapError(err)
	}

	senderID := sender.ID
	s.events.publish(ctx, events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: ticket.ID,
		OrderID:  ticket.OrderID,
		Actor:    events.Actor{Role: role, UserID: &senderID},
		Payload: events.TicketMessageAddedPayload{
			MessageID:   msg.ID,
			MessageType: msg.Type,
			SenderRole:  role,
			SenderID:    sender.ID,
			Channel:     channel,
			BodyPreview: stringPreview(msg.Text, 140),
		},
	})
	return msg, nil
}

func channelError(err error, role domain.Role, channel *domain.ChannelType) error {
	details := map[string]any{"sender_role": role}
	if channel != nil {
		details["channel_type"] = *channel
	}
	switch {
	case errors.Is(err, domain.ErrChannelNotPermitted):
		return apperrors.NewForbidden(err.Error())
	case errors.Is(err, domain.ErrChannelRequired),
		errors.Is(err, domain.ErrUnknownChannel),
		errors.Is(err, domain.ErrUnknownRole):
		return apperrors.NewValidationError(err.Error(), details)
	}
	return apperrors.MapError(err)
}

// narrate posts an automated message with a fixed role and channel.
func (s *MessageService) narrate(ctx context.Context, ticketID, senderID string, role domain.Role, channel domain.ChannelType, msgType domain.MessageType, text string) error {
	_, err := s.AddMessage(ctx, AddMessageInput{
		TicketID:   ticketID,
		SenderID:   senderID,
		Text:       text,
		Type:       msgType,
		SenderRole: &role,
		Channel:    &channel,
	})
	return err
}

// GetTicketMessages returns the messages requester may read. While the
// assigned agent is offline the view freezes at the moment they went
// offline unless loadOlder is set.
func (s *MessageService) GetTicketMessages(ctx context.Context, ticketID string, requester domain.Requester, loadOlder bool, channelFilter *domain.ChannelType) (*MessagePage, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if apperrors.IsNoRows(err) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, apperrors.MapError(err)
	}
	if channelFilter != nil && !channelFilter.Valid() {
		return nil, apperrors.NewValidationError(domain.ErrUnknownChannel.Error(), map[string]any{"channel_type": *channelFilter})
	}

	agent, err := s.users.GetByID(ctx, ticket.AgentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	presence := agent.Presence
	offline := presence.Offline()

	query := repository.MessageQuery{TicketID: ticket.ID, Channel: channelFilter}
	if offline && !loadOlder {
		cutoff := presence.CutoffAt(s.now())
		query.CreatedAtOrBefore = &cutoff
	}

	stored, err := s.messages.List(ctx, query)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	views := make([]MessageView, 0, len(stored))
	for _, msg := range stored {
		if !requester.CanSee(msg.Channel) {
			continue
		}
		views = append(views, NewMessageView(msg))
	}

	return &MessagePage{
		Messages:         views,
		AgentStatus:      presenceView(agent),
		HasOlderMessages: offline && !loadOlder,
	}, nil
}

// NewMessageView renders a stored message.
func NewMessageView(msg domain.Message) MessageView {
	view := MessageView{
		ID:         msg.ID,
		Text:       msg.Text,
		SenderID:   msg.SenderID,
		SenderRole: msg.SenderRole,
		SenderName: msg.SenderName,
		Timestamp:  msg.CreatedAt.UTC().Format(time.RFC3339),
		Type:       msg.Type,
		Channel:    msg.Channel,
	}
	if msg.FileURL != nil {
		view.File = &FileRef{URL: *msg.FileURL, Name: msg.FileName}
	}
	return view
}

func presenceView(agent *domain.User) AgentPresenceView {
	view := AgentPresenceView{
		AgentID:  agent.ID,
		Status:   agent.Presence.Status,
		IsOnline: agent.Presence.IsOnline,
	}
	if agent.Presence.LastOnlineAt != nil {
		ts := agent.Presence.LastOnlineAt.UTC().Format(time.RFC3339)
		view.LastOnlineAt = &ts
	}
	return view
}
