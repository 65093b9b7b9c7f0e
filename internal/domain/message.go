package domain

import (
	"errors"
	"time"
)

// Role is the closed set of sender roles a message can carry.
type Role string

const (
	RoleBrand      Role = "brand"
	RoleCreator    Role = "creator"
	RoleAgent      Role = "agent"
	RoleSuperAdmin Role = "super_admin"
	RoleSystem     Role = "system"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleBrand, RoleCreator, RoleAgent, RoleSuperAdmin, RoleSystem:
		return true
	}
	return false
}

// ChannelType partitions a ticket's messages by audience.
type ChannelType string

const (
	ChannelBrandAgent   ChannelType = "brand_agent"
	ChannelCreatorAgent ChannelType = "creator_agent"
	ChannelSystem       ChannelType = "system"
)

// Valid reports whether c is a known channel.
func (c ChannelType) Valid() bool {
	switch c {
	case ChannelBrandAgent, ChannelCreatorAgent, ChannelSystem:
		return true
	}
	return false
}

// MessageType differentiates plain text, narration and attachments.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeSystem MessageType = "system"
	MessageTypeFile   MessageType = "file"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeSystem, MessageTypeFile:
		return true
	}
	return false
}

var (
	ErrUnknownRole           = errors.New("unknown sender role")
	ErrUnknownChannel        = errors.New("unknown channel type")
	ErrChannelRequired       = errors.New("channel_type is required for agent messages")
	ErrChannelNotPermitted   = errors.New("sender may not post to this channel")
	ErrFileReferenceRequired = errors.New("file messages require a file_url")
)

// ResolveChannel picks the channel a message is stored on. Brands and
// creators are pinned to their own channel; agents and super admins must
// name the party they are addressing.
func ResolveChannel(role Role, explicit *ChannelType) (ChannelType, error) {
	if explicit != nil && !explicit.Valid() {
		return "", ErrUnknownChannel
	}
	switch role {
	case RoleBrand:
		return pinnedChannel(ChannelBrandAgent, explicit)
	case RoleCreator:
		return pinnedChannel(ChannelCreatorAgent, explicit)
	case RoleAgent, RoleSuperAdmin:
		if explicit == nil {
			return "", ErrChannelRequired
		}
		return *explicit, nil
	case RoleSystem:
		if explicit == nil {
			return ChannelSystem, nil
		}
		return *explicit, nil
	}
	return "", ErrUnknownRole
}

func pinnedChannel(own ChannelType, explicit *ChannelType) (ChannelType, error) {
	if explicit != nil && *explicit != own {
		return "", ErrChannelNotPermitted
	}
	return own, nil
}

// Message is an append-only entry in a ticket's conversation.
type Message struct {
	ID         string
	TicketID   string
	SenderID   string
	SenderName string
	SenderRole Role
	Text       string
	Type       MessageType
	FileURL    *string
	FileName   *string
	Channel    ChannelType
	CreatedAt  time.Time
}

// Requester identifies who is reading a ticket's messages.
type Requester struct {
	userID   string
	role     Role
	override bool
}

// ForUser builds a requester scoped by the reader's role.
func ForUser(userID string, role Role) Requester {
	return Requester{userID: userID, role: role}
}

// AdminOverride is an explicit unfiltered read for operational tooling.
func AdminOverride() Requester {
	return Requester{override: true}
}

// UserID returns the reader's id, empty for AdminOverride.
func (r Requester) UserID() string { return r.userID }

// Role returns the reader's role, empty for AdminOverride.
func (r Requester) Role() Role { return r.role }

// IsOverride reports whether the requester bypasses channel filtering.
func (r Requester) IsOverride() bool { return r.override }

// CanSee reports whether the requester may read messages on channel.
func (r Requester) CanSee(channel ChannelType) bool {
	if r.override {
		return true
	}
	switch r.role {
	case RoleAgent, RoleSuperAdmin:
		return true
	case RoleBrand:
		return channel == ChannelBrandAgent
	case RoleCreator:
		return channel == ChannelCreatorAgent
	case RoleSystem:
		return channel == ChannelSystem
	}
	return false
}
