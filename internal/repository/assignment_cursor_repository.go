package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TicketCursor names the round-robin cursor shared by all new tickets.
const TicketCursor = "tickets"

var errCursorNeedsTx = errors.New("assignment cursor must be advanced inside a transaction")

// AssignmentCursorRepository persists the round-robin position.
type AssignmentCursorRepository interface {
	// Advance locks the cursor, returns the index to assign (cursor mod n)
	// and stores index+1. It must run inside a Transactor unit of work so
	// the lock is held until the ticket insert commits.
	Advance(ctx context.Context, name string, n int) (int, error)
}

type assignmentCursorRepository struct {
	pgRepo
}

// NewAssignmentCursorRepository builds repository.
func NewAssignmentCursorRepository(pool *pgxpool.Pool) AssignmentCursorRepository {
	return &assignmentCursorRepository{pgRepo{pool: pool}}
}

func (r *assignmentCursorRepository) Advance(ctx context.Context, name string, n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("cursor advance requires at least one slot")
	}
	if !inTx(ctx) {
		return 0, errCursorNeedsTx
	}
	q := r.db(ctx)

	if _, err := q.Exec(ctx, `INSERT INTO assignment_cursors (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, err
	}

	var current int64
	if err := q.QueryRow(ctx, `SELECT next_index FROM assignment_cursors WHERE name=$1 FOR UPDATE`, name).Scan(&current); err != nil {
		return 0, err
	}

	index := int(current % int64(n))
	if _, err := q.Exec(ctx, `UPDATE assignment_cursors SET next_index=$1, updated_at=NOW() WHERE name=$2`, index+1, name); err != nil {
		return 0, err
	}
	return index, nil
}
