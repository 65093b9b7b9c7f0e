package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/repository"
)

type userRepo struct{ s *Store }

func (r *userRepo) Create(ctx context.Context, user *domain.User) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return uniqueViolation("users_email_key")
		}
	}
	now := s.now()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt, user.UpdatedAt = now, now
	s.users[user.ID] = *user
	return nil
}

func (r *userRepo) Update(ctx context.Context, user *domain.User) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.users[user.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	existing.Name = user.Name
	existing.Email = user.Email
	existing.PasswordHash = user.PasswordHash
	existing.Status = user.Status
	existing.EmailVerified = user.EmailVerified
	existing.UpdatedAt = s.now()
	s.users[user.ID] = existing
	user.UpdatedAt = existing.UpdatedAt
	return nil
}

func (r *userRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *userRepo) UpdatePresence(ctx context.Context, id string, presence domain.Presence) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	user.Presence = presence
	user.UpdatedAt = s.now()
	s.users[id] = user
	return nil
}

func (r *userRepo) ListAgents(_ context.Context, filter repository.AgentFilter) ([]domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.User
	for _, user := range s.users {
		if !user.UserType.IsAgent() {
			continue
		}
		if !filter.IncludeSuspended && user.Status == domain.AccountStatusSuspended {
			continue
		}
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *userRepo) AgentStats(_ context.Context) (domain.AgentStats, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats domain.AgentStats
	for _, user := range s.users {
		if !user.UserType.IsAgent() {
			continue
		}
		stats.Total++
		switch user.Status {
		case domain.AccountStatusActive:
			stats.Active++
		case domain.AccountStatusSuspended:
			stats.Suspended++
		case domain.AccountStatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

type catalogRepo struct{ s *Store }

func (r *catalogRepo) GetBrand(_ context.Context, id string) (*domain.BrandProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	brand, ok := r.s.brands[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &brand, nil
}

func (r *catalogRepo) GetBrandByUserID(_ context.Context, userID string) (*domain.BrandProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, brand := range r.s.brands {
		if brand.UserID == userID {
			b := brand
			return &b, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *catalogRepo) GetCreator(_ context.Context, id string) (*domain.CreatorProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	creator, ok := r.s.creators[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &creator, nil
}

func (r *catalogRepo) GetCreatorByUserID(_ context.Context, userID string) (*domain.CreatorProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, creator := range r.s.creators {
		if creator.UserID == userID {
			c := creator
			return &c, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *catalogRepo) GetPackage(_ context.Context, id string) (*domain.Package, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	pkg, ok := r.s.packages[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &pkg, nil
}

type orderRepo struct{ s *Store }

func (r *orderRepo) Create(ctx context.Context, order *domain.Order) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.References == nil {
		order.References = []string{}
	}
	order.CreatedAt, order.UpdatedAt = now, now
	stored := *order
	stored.References = append([]string(nil), order.References...)
	s.orders[order.ID] = stored
	return nil
}

func (r *orderRepo) GetByID(_ context.Context, id string) (*domain.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	order, ok := r.s.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &order, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	order.Status = status
	order.UpdatedAt = s.now()
	s.orders[id] = order
	return &order, nil
}

func (r *orderRepo) UpdateStatusFrom(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok || order.Status != from {
		return nil, pgx.ErrNoRows
	}
	order.Status = to
	order.UpdatedAt = s.now()
	s.orders[id] = order
	return &order, nil
}

func (r *orderRepo) SetDeadlines(ctx context.Context, id string, delivery, submission time.Time) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[id]
	if !ok {
		return pgx.ErrNoRows
	}
	order.DeliveryDeadline = &delivery
	order.SubmissionDeadline = &submission
	order.UpdatedAt = s.now()
	s.orders[id] = order
	return nil
}

type ticketRepo struct{ s *Store }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tickets {
		if existing.OrderID == ticket.OrderID {
			return uniqueViolation("tickets_order_id_key")
		}
	}
	now := s.now()
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	s.tickets[ticket.ID] = *ticket
	return nil
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	return r.mutate(ctx, id, func(t *domain.Ticket) { t.Status = status })
}

func (r *ticketRepo) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) (*domain.Ticket, error) {
	return r.mutate(ctx, id, func(t *domain.Ticket) { t.Priority = priority })
}

func (r *ticketRepo) UpdateAgent(ctx context.Context, id, agentID string) (*domain.Ticket, error) {
	return r.mutate(ctx, id, func(t *domain.Ticket) { t.AgentID = agentID })
}

func (r *ticketRepo) SetChannels(ctx context.Context, id, brandChannel, creatorChannel string) (*domain.Ticket, error) {
	return r.mutate(ctx, id, func(t *domain.Ticket) {
		t.BrandAgentChannel = brandChannel
		t.CreatorAgentChannel = creatorChannel
	})
}

// mutate applies change to the stored row under the lock.
func (r *ticketRepo) mutate(ctx context.Context, id string, change func(*domain.Ticket)) (*domain.Ticket, error) {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	ticket, ok := s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	change(&ticket)
	ticket.UpdatedAt = s.now()
	s.tickets[id] = ticket
	return &ticket, nil
}

func (r *ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ticket, ok := r.s.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &ticket, nil
}

func (r *ticketRepo) GetByOrderID(_ context.Context, orderID string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ticket := range r.s.tickets {
		if ticket.OrderID == orderID {
			t := ticket
			return &t, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *ticketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var result []domain.Ticket
	for _, ticket := range r.s.tickets {
		if filter.AgentID != nil && ticket.AgentID != *filter.AgentID {
			continue
		}
		if len(filter.Statuses) > 0 && !contains(filter.Statuses, ticket.Status) {
			continue
		}
		if len(filter.Priorities) > 0 && !contains(filter.Priorities, ticket.Priority) {
			continue
		}
		result = append(result, ticket)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UpdatedAt.Equal(result[j].UpdatedAt) {
			return result[i].UpdatedAt.After(result[j].UpdatedAt)
		}
		return result[i].ID < result[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(result) {
		return nil, nil
	}
	end := offset + limit
	if end > len(result) {
		end = len(result)
	}
	return result[offset:end], nil
}

func contains[T comparable](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

type cursorRepo struct{ s *Store }

func (r *cursorRepo) Advance(ctx context.Context, name string, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("cursor advance requires at least one slot")
	}
	defer r.s.lockWrites(ctx)()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	index := int(r.s.cursors[name] % int64(n))
	r.s.cursors[name] = int64(index + 1)
	return index, nil
}

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(ctx context.Context, msg *domain.Message) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.CreatedAt = s.now()
	s.messages = append(s.messages, *msg)
	return nil
}

func (r *messageRepo) List(_ context.Context, q repository.MessageQuery) ([]domain.Message, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []domain.Message
	for _, msg := range s.messages {
		if msg.TicketID != q.TicketID {
			continue
		}
		if q.CreatedAtOrBefore != nil && msg.CreatedAt.After(*q.CreatedAtOrBefore) {
			continue
		}
		if q.Channel != nil && msg.Channel != *q.Channel {
			continue
		}
		if sender, ok := s.users[msg.SenderID]; ok {
			msg.SenderName = sender.Name
		}
		result = append(result, msg)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

type notificationRepo struct{ s *Store }

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	defer r.s.lockWrites(ctx)()
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = s.now()
	s.notifications = append(s.notifications, *n)
	return nil
}

func (r *notificationRepo) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var result []domain.Notification
	for i := len(s.notifications) - 1; i >= 0 && len(result) < limit; i-- {
		n := s.notifications[i]
		if n.UserID != userID || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}
