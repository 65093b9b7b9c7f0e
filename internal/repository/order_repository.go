package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// OrderRepository encapsulates order persistence.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error)
	// UpdateStatusFrom moves the order to status only while it is still in
	// from. It returns pgx.ErrNoRows when the order is missing or has moved on.
	UpdateStatusFrom(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error)
	SetDeadlines(ctx context.Context, id string, delivery, submission time.Time) error
}

type orderRepository struct {
	pgRepo
}

// NewOrderRepository instantiates repository.
func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &orderRepository{pgRepo{pool: pool}}
}

const orderColumns = `id, package_id, brand_id, creator_id, total_amount::float8, currency, status,
        delivery_time, additional_instructions, "references", delivery_deadline, submission_deadline,
        created_at, updated_at`

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	const query = `
        INSERT INTO orders (package_id, brand_id, creator_id, total_amount, currency, status,
                            delivery_time, additional_instructions, "references")
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        RETURNING id, created_at, updated_at`
	refs := order.References
	if refs == nil {
		refs = []string{}
	}
	return r.db(ctx).QueryRow(ctx, query,
		order.PackageID,
		order.BrandID,
		order.CreatorID,
		order.TotalAmount,
		order.Currency,
		order.Status,
		order.DeliveryTime,
		order.AdditionalInstructions,
		refs,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *orderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (*domain.Order, error) {
	query := `UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2 RETURNING ` + orderColumns
	return r.fetchSingle(ctx, query, status, id)
}

func (r *orderRepository) UpdateStatusFrom(ctx context.Context, id string, from, to domain.OrderStatus) (*domain.Order, error) {
	query := `UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3 RETURNING ` + orderColumns
	return r.fetchSingle(ctx, query, to, id, from)
}

func (r *orderRepository) SetDeadlines(ctx context.Context, id string, delivery, submission time.Time) error {
	const query = `
        UPDATE orders SET delivery_deadline=$1, submission_deadline=$2, updated_at=NOW()
        WHERE id=$3`
	return execOne(ctx, r.db(ctx), query, delivery, submission, id)
}

func (r *orderRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var order domain.Order
	if err := r.db(ctx).QueryRow(ctx, query, args...).Scan(
		&order.ID,
		&order.PackageID,
		&order.BrandID,
		&order.CreatorID,
		&order.TotalAmount,
		&order.Currency,
		&order.Status,
		&order.DeliveryTime,
		&order.AdditionalInstructions,
		&order.References,
		&order.DeliveryDeadline,
		&order.SubmissionDeadline,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &order, nil
}
