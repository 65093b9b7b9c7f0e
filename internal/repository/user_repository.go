package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// AgentFilter narrows agent listings.
type AgentFilter struct {
	IncludeSuspended bool
}

// UserRepository defines persistence access for users, including agents.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	Update(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePresence(ctx context.Context, id string, presence domain.Presence) error
	// ListAgents returns agent-role users ordered by (created_at, id).
	ListAgents(ctx context.Context, filter AgentFilter) ([]domain.User, error)
	AgentStats(ctx context.Context) (domain.AgentStats, error)
}

type userRepository struct {
	pgRepo
}

// NewUserRepository returns a Postgres-backed implementation.
func NewUserRepository(pool *pgxpool.Pool) UserRepository {
	return &userRepository{pgRepo{pool: pool}}
}

const userColumns = `id, name, email, password_hash, user_type, status, email_verified,
        is_online, agent_status, last_online_at, created_by, created_at, updated_at`

func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
        INSERT INTO users (name, email, password_hash, user_type, status, email_verified,
                           is_online, agent_status, last_online_at, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        RETURNING id, created_at, updated_at`

	return r.db(ctx).QueryRow(ctx, query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.UserType,
		user.Status,
		user.EmailVerified,
		user.Presence.IsOnline,
		user.Presence.Status,
		user.Presence.LastOnlineAt,
		user.CreatedBy,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
}

func (r *userRepository) Update(ctx context.Context, user *domain.User) error {
	const query = `
        UPDATE users SET name=$1, email=$2, password_hash=$3, status=$4, email_verified=$5, updated_at=NOW()
        WHERE id=$6`

	return execOne(ctx, r.db(ctx), query,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.Status,
		user.EmailVerified,
		user.ID,
	)
}

func (r *userRepository) UpdatePresence(ctx context.Context, id string, presence domain.Presence) error {
	const query = `
        UPDATE users SET is_online=$1, agent_status=$2, last_online_at=$3, updated_at=NOW()
        WHERE id=$4`
	return execOne(ctx, r.db(ctx), query, presence.IsOnline, presence.Status, presence.LastOnlineAt, id)
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return scanUser(r.db(ctx).QueryRow(ctx, query, id))
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email)=LOWER($1)`
	return scanUser(r.db(ctx).QueryRow(ctx, query, email))
}

func (r *userRepository) ListAgents(ctx context.Context, filter AgentFilter) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE user_type IN ('agent','admin')`
	if !filter.IncludeSuspended {
		query += ` AND status <> 'suspended'`
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db(ctx).Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *user)
	}
	return result, rows.Err()
}

func (r *userRepository) AgentStats(ctx context.Context) (domain.AgentStats, error) {
	const query = `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='active'),
               COUNT(*) FILTER (WHERE status='suspended'),
               COUNT(*) FILTER (WHERE status='pending')
        FROM users WHERE user_type IN ('agent','admin')`

	var stats domain.AgentStats
	err := r.db(ctx).QueryRow(ctx, query).Scan(&stats.Total, &stats.Active, &stats.Suspended, &stats.Pending)
	return stats, err
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.UserType,
		&user.Status,
		&user.EmailVerified,
		&user.Presence.IsOnline,
		&user.Presence.Status,
		&user.Presence.LastOnlineAt,
		&user.CreatedBy,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &user, nil
}
