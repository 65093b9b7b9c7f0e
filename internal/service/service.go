package service

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/events"
	apperrors "github.com/spec-kit/marketplace-support/pkg/util/errorutil"
)

// ChannelProvisioner creates the vendor chat channels backing a ticket.
type ChannelProvisioner interface {
	CreateSeparateTicketChannels(ctx context.Context, ticketID, agentID, brandUserID, creatorUserID string) (brandAgent, creatorAgent string, err error)
}

// publisher stamps and dispatches events. Handler failures are logged and
// never fail the operation that emitted the event.
type publisher struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

func (p publisher) publish(ctx context.Context, event events.Event) {
	if p.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now().UTC()
	}
	if err := p.dispatcher.Publish(ctx, event); err != nil {
		p.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

// warnings collects best-effort failures for one operation.
type warnings struct {
	logger *zap.Logger
	list   []domain.Warning
}

func (w *warnings) add(step domain.WarningStep, err error, fields ...zap.Field) {
	w.list = append(w.list, domain.Warning{Step: step, Message: err.Error()})
	fields = append(fields, zap.String("step", string(step)), zap.Error(err))
	w.logger.Warn("best-effort step failed", fields...)
}

func (w *warnings) merge(other []domain.Warning) {
	w.list = append(w.list, other...)
}

func (w *warnings) result() []domain.Warning {
	if w.list == nil {
		return []domain.Warning{}
	}
	return w.list
}

func userActor(user *domain.User) events.Actor {
	if user == nil {
		return systemActor()
	}
	role, _ := user.UserType.Role()
	id := user.ID
	return events.Actor{Role: role, UserID: &id}
}

func systemActor() events.Actor {
	return events.Actor{Role: domain.RoleSystem}
}

// notFound maps a missing row to a typed not-found error and anything else
// through the generic mapper.
func notFound(err error, resource string, details map[string]any) error {
	if apperrors.IsNoRows(err) {
		return apperrors.NewNotFound(resource, details)
	}
	return apperrors.MapError(err)
}

func stringPreview(body string, max int) string {
	if utf8.RuneCountInString(body) <= max {
		return body
	}
	runes := []rune(body)
	return string(runes[:max]) + "…"
}
