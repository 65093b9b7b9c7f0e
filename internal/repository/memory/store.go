// Package memory is an in-process implementation of the repository
// interfaces. The API runs on it when no Postgres DSN is configured, and the
// service and handler tests use it as their fixture.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/marketplace-support/internal/domain"
	"github.com/spec-kit/marketplace-support/internal/repository"
)

type txKey struct{}

// Store holds every table in memory.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	now func() time.Time

	users         map[string]domain.User
	brands        map[string]domain.BrandProfile
	creators      map[string]domain.CreatorProfile
	packages      map[string]domain.Package
	orders        map[string]domain.Order
	tickets       map[string]domain.Ticket
	messages      []domain.Message
	notifications []domain.Notification
	cursors       map[string]int64
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    map[string]domain.User{},
		brands:   map[string]domain.BrandProfile{},
		creators: map[string]domain.CreatorProfile{},
		packages: map[string]domain.Package{},
		orders:   map[string]domain.Order{},
		tickets:  map[string]domain.Ticket{},
		cursors:  map[string]int64{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithinTx serializes units of work and restores the previous state when fn
// fails. Nested calls join the outer unit. Writes from outside the unit wait
// for it to finish, so a rollback only ever discards the unit's own rows.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// lockWrites holds the unit-of-work lock for a write made outside a unit.
// Writes inside a unit already hold it.
func (s *Store) lockWrites(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

type snapshot struct {
	users         map[string]domain.User
	orders        map[string]domain.Order
	tickets       map[string]domain.Ticket
	messages      []domain.Message
	notifications []domain.Notification
	cursors       map[string]int64
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot{
		users:         cloneMap(s.users),
		orders:        cloneMap(s.orders),
		tickets:       cloneMap(s.tickets),
		messages:      append([]domain.Message(nil), s.messages...),
		notifications: append([]domain.Notification(nil), s.notifications...),
		cursors:       cloneMap(s.cursors),
	}
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap.users
	s.orders = snap.orders
	s.tickets = snap.tickets
	s.messages = snap.messages
	s.notifications = snap.notifications
	s.cursors = snap.cursors
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Users returns the user repository view.
func (s *Store) Users() repository.UserRepository { return &userRepo{s} }

// Catalog returns the catalog repository view.
func (s *Store) Catalog() repository.CatalogRepository { return &catalogRepo{s} }

// Orders returns the order repository view.
func (s *Store) Orders() repository.OrderRepository { return &orderRepo{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return &ticketRepo{s} }

// Cursors returns the assignment cursor view.
func (s *Store) Cursors() repository.AssignmentCursorRepository { return &cursorRepo{s} }

// Messages returns the message repository view.
func (s *Store) Messages() repository.MessageRepository { return &messageRepo{s} }

// Notifications returns the notification repository view.
func (s *Store) Notifications() repository.NotificationRepository { return &notificationRepo{s} }

// SeedBrand inserts a brand profile, assigning an id when empty.
func (s *Store) SeedBrand(b domain.BrandProfile) domain.BrandProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.brands[b.ID] = b
	return b
}

// SeedCreator inserts a creator profile, assigning an id when empty.
func (s *Store) SeedCreator(c domain.CreatorProfile) domain.CreatorProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.creators[c.ID] = c
	return c
}

// SeedPackage inserts a package, assigning an id when empty.
func (s *Store) SeedPackage(p domain.Package) domain.Package {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.packages[p.ID] = p
	return p
}

// MessageCount reports how many messages a ticket holds on every channel.
func (s *Store) MessageCount(ticketID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.messages {
		if m.TicketID == ticketID {
			n++
		}
	}
	return n
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}
