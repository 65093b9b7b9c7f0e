package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/marketplace-support/internal/domain"
)

// CatalogRepository reads brand/creator profiles and packages. Those rows
// are owned by signup and listing flows outside this service.
type CatalogRepository interface {
	GetBrand(ctx context.Context, id string) (*domain.BrandProfile, error)
	GetBrandByUserID(ctx context.Context, userID string) (*domain.BrandProfile, error)
	GetCreator(ctx context.Context, id string) (*domain.CreatorProfile, error)
	GetCreatorByUserID(ctx context.Context, userID string) (*domain.CreatorProfile, error)
	GetPackage(ctx context.Context, id string) (*domain.Package, error)
}

type catalogRepository struct {
	pgRepo
}

// NewCatalogRepository builds repository.
func NewCatalogRepository(pool *pgxpool.Pool) CatalogRepository {
	return &catalogRepository{pgRepo{pool: pool}}
}

func (r *catalogRepository) GetBrand(ctx context.Context, id string) (*domain.BrandProfile, error) {
	return r.brand(ctx, `SELECT id, user_id, company_name FROM brands WHERE id=$1`, id)
}

func (r *catalogRepository) GetBrandByUserID(ctx context.Context, userID string) (*domain.BrandProfile, error) {
	return r.brand(ctx, `SELECT id, user_id, company_name FROM brands WHERE user_id=$1`, userID)
}

func (r *catalogRepository) brand(ctx context.Context, query, arg string) (*domain.BrandProfile, error) {
	var brand domain.BrandProfile
	if err := r.db(ctx).QueryRow(ctx, query, arg).Scan(&brand.ID, &brand.UserID, &brand.CompanyName); err != nil {
		return nil, err
	}
	return &brand, nil
}

func (r *catalogRepository) GetCreator(ctx context.Context, id string) (*domain.CreatorProfile, error) {
	return r.creator(ctx, `SELECT id, user_id, display_name FROM creators WHERE id=$1`, id)
}

func (r *catalogRepository) GetCreatorByUserID(ctx context.Context, userID string) (*domain.CreatorProfile, error) {
	return r.creator(ctx, `SELECT id, user_id, display_name FROM creators WHERE user_id=$1`, userID)
}

func (r *catalogRepository) creator(ctx context.Context, query, arg string) (*domain.CreatorProfile, error) {
	var creator domain.CreatorProfile
	if err := r.db(ctx).QueryRow(ctx, query, arg).Scan(&creator.ID, &creator.UserID, &creator.DisplayName); err != nil {
		return nil, err
	}
	return &creator, nil
}

func (r *catalogRepository) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	const query = `
        SELECT id, creator_id, title, description, price::float8, currency, delivery_days
        FROM packages WHERE id=$1`
	var pkg domain.Package
	if err := r.db(ctx).QueryRow(ctx, query, id).Scan(
		&pkg.ID,
		&pkg.CreatorID,
		&pkg.Title,
		&pkg.Description,
		&pkg.Price,
		&pkg.Currency,
		&pkg.DeliveryDays,
	); err != nil {
		return nil, err
	}
	return &pkg, nil
}
