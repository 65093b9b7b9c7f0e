package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// MessageQuery selects a ticket's messages.
type MessageQuery struct {
	TicketID string
	// CreatedAtOrBefore, when set, excludes messages newer than the instant.
	CreatedAtOrBefore *time.Time
	Channel           *domain.ChannelType
}

// MessageRepository manages ticket conversation messages. Messages are
// append-only.
type MessageRepository interface {
	Create(ctx context.Context, msg *domain.Message) error
	// List returns matching messages oldest first, with sender names resolved.
	List(ctx context.Context, query MessageQuery) ([]domain.Message, error)
}

type messageRepository struct {
	pgRepo
}

// NewMessageRepository builds repository.
func NewMessageRepository(pool *pgxpool.Pool) MessageRepository {
	return &messageRepository{pgRepo{pool: pool}}
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	const query = `
        INSERT INTO messages (ticket_id, sender_id, message_text, message_type, file_url, file_name, sender_role, channel_type)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at`
	return r.db(ctx).QueryRow(ctx, query,
		msg.TicketID,
		msg.SenderID,
		msg.Text,
		msg.Type,
		msg.FileURL,
		msg.FileName,
		msg.SenderRole,
		msg.Channel,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *messageRepository) List(ctx context.Context, q MessageQuery) ([]domain.Message, error) {
	args := []any{q.TicketID}
	clauses := []string{"m.ticket_id=$1"}

	if q.CreatedAtOrBefore != nil {
		args = append(args, *q.CreatedAtOrBefore)
		clauses = append(clauses, fmt.Sprintf("m.created_at <= $%d", len(args)))
	}
	if q.Channel != nil {
		args = append(args, *q.Channel)
		clauses = append(clauses, fmt.Sprintf("m.channel_type = $%d", len(args)))
	}

	query := `
        SELECT m.id, m.ticket_id, m.sender_id, COALESCE(u.name, ''), m.sender_role, m.message_text,
               m.message_type, m.file_url, m.file_name, m.channel_type, m.created_at
        FROM messages m
        LEFT JOIN users u ON u.id = m.sender_id
        WHERE ` + strings.Join(clauses, " AND ") + `
        ORDER BY m.created_at ASC, m.id ASC`

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Message
	for rows.Next() {
		var msg domain.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.SenderID,
			&msg.SenderName,
			&msg.SenderRole,
			&msg.Text,
			&msg.Type,
			&msg.FileURL,
			&msg.FileName,
			&msg.Channel,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}
