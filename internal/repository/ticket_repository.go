package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// TicketFilter captures agent queue search parameters.
type TicketFilter struct {
	AgentID    *string
	Statuses   []domain.TicketStatus
	Priorities []domain.TicketPriority
	Limit      int
	Offset     int
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error)
	UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) (*domain.Ticket, error)
	UpdateAgent(ctx context.Context, id, agentID string) (*domain.Ticket, error)
	SetChannels(ctx context.Context, id, brandChannel, creatorChannel string) (*domain.Ticket, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByOrderID(ctx context.Context, orderID string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
}

type ticketRepository struct {
	pgRepo
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pgRepo{pool: pool}}
}

const ticketColumns = `id, order_id, agent_id, status, priority, brand_agent_channel,
        creator_agent_channel, legacy_channel_id, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (order_id, agent_id, status, priority, brand_agent_channel, creator_agent_channel, legacy_channel_id)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at`
	return r.db(ctx).QueryRow(ctx, query,
		ticket.OrderID,
		ticket.AgentID,
		ticket.Status,
		ticket.Priority,
		ticket.BrandAgentChannel,
		ticket.CreatorAgentChannel,
		ticket.LegacyChannelID,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

// Each mutation touches only its own columns so concurrent edits of other
// fields are never written back stale.
func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	query := `UPDATE tickets SET status=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, status, id)
}

func (r *ticketRepository) UpdatePriority(ctx context.Context, id string, priority domain.TicketPriority) (*domain.Ticket, error) {
	query := `UPDATE tickets SET priority=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, priority, id)
}

func (r *ticketRepository) UpdateAgent(ctx context.Context, id, agentID string) (*domain.Ticket, error) {
	query := `UPDATE tickets SET agent_id=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, agentID, id)
}

func (r *ticketRepository) SetChannels(ctx context.Context, id, brandChannel, creatorChannel string) (*domain.Ticket, error) {
	query := `
        UPDATE tickets SET brand_agent_channel=$1, creator_agent_channel=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING ` + ticketColumns
	return r.fetchSingle(ctx, query, brandChannel, creatorChannel, id)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetByOrderID(ctx context.Context, orderID string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE order_id=$1`, orderID)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db(ctx).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.AgentID != nil {
		args = append(args, *filter.AgentID)
		clauses = append(clauses, fmt.Sprintf("agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY updated_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.OrderID,
		&ticket.AgentID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.BrandAgentChannel,
		&ticket.CreatorAgentChannel,
		&ticket.LegacyChannelID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}
