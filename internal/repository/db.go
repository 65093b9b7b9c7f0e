package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-support/internal/persistence"
)

// Transactor runs fn inside a unit of work shared by every repository call
// made with the context it receives.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgRepo struct {
	pool *pgxpool.Pool
}

func (r pgRepo) db(ctx context.Context) querier {
	if tx, ok := persistence.TxFromContext(ctx); ok {
		return tx
	}
	return r.pool
}

func execOne(ctx context.Context, q querier, sql string, args ...any) error {
	cmd, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func inTx(ctx context.Context) bool {
	_, ok := persistence.TxFromContext(ctx)
	return ok
}
