package domain

import (
	"errors"
	"time"
)

// AgentStatus is the availability an agent advertises.
type AgentStatus string

const (
	AgentStatusAvailable AgentStatus = "available"
	AgentStatusBusy      AgentStatus = "busy"
	AgentStatusAway      AgentStatus = "away"
	AgentStatusOffline   AgentStatus = "offline"
)

var (
	ErrUnknownAgentStatus         = errors.New("unknown agent status")
	ErrInvalidPresenceTransition  = errors.New("invalid presence transition")
	ErrPresenceOnlineFlagMismatch = errors.New("is_online contradicts agent status")
)

// Valid reports whether s is a known agent status.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusAvailable, AgentStatusBusy, AgentStatusAway, AgentStatusOffline:
		return true
	}
	return false
}

var presenceTransitions = map[AgentStatus][]AgentStatus{
	AgentStatusAvailable: {AgentStatusBusy, AgentStatusAway, AgentStatusOffline},
	AgentStatusBusy:      {AgentStatusAvailable, AgentStatusAway, AgentStatusOffline},
	AgentStatusAway:      {AgentStatusAvailable, AgentStatusBusy, AgentStatusOffline},
	AgentStatusOffline:   {AgentStatusAvailable},
}

// Presence is an agent's online state. IsOnline is always derived from
// Status, and LastOnlineAt is stamped when the agent goes offline.
type Presence struct {
	Status       AgentStatus
	IsOnline     bool
	LastOnlineAt *time.Time
}

// OfflinePresence is the state of a freshly created agent.
func OfflinePresence() Presence {
	return Presence{Status: AgentStatusOffline}
}

// Offline reports whether readers should see a frozen conversation.
func (p Presence) Offline() bool {
	return !p.IsOnline || p.Status == AgentStatusOffline
}

// CutoffAt returns the moment the conversation view freezes at.
func (p Presence) CutoffAt(now time.Time) time.Time {
	if p.LastOnlineAt != nil {
		return *p.LastOnlineAt
	}
	return now
}

// Transition moves the presence to next. A non-nil online flag must agree
// with the target status.
func (p Presence) Transition(next AgentStatus, online *bool, now time.Time) (Presence, error) {
	if !next.Valid() {
		return p, ErrUnknownAgentStatus
	}
	wantOnline := next != AgentStatusOffline
	if online != nil && *online != wantOnline {
		return p, ErrPresenceOnlineFlagMismatch
	}
	current := p.Status
	if current == "" {
		current = AgentStatusOffline
	}
	if current == next {
		p.Status = next
		p.IsOnline = wantOnline
		return p, nil
	}
	if !presenceTransitionAllowed(current, next) {
		return p, ErrInvalidPresenceTransition
	}

	out := Presence{Status: next, IsOnline: wantOnline, LastOnlineAt: p.LastOnlineAt}
	if next == AgentStatusOffline {
		stamp := now
		out.LastOnlineAt = &stamp
	}
	return out, nil
}

func presenceTransitionAllowed(from, to AgentStatus) bool {
	for _, candidate := range presenceTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
