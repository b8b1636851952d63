package postgres

import (
	"context"
	"errors"
	"fmt"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// CatalogRepo implements ports.CatalogRepository. The listings and
// promotion_packages tables are owned by the marketplace application; the
// payment core only reads them.
type CatalogRepo struct {
	pool Pool
}

// NewCatalogRepo creates a new CatalogRepo.
func NewCatalogRepo(pool Pool) *CatalogRepo {
	return &CatalogRepo{pool: pool}
}

// GetPackage fetches a promotion package by id.
func (r *CatalogRepo) GetPackage(ctx context.Context, id uuid.UUID) (*domain.PromotionPackage, error) {
	query := `SELECT id, name, price, currency, duration_days FROM promotion_packages WHERE id = $1`

	p := &domain.PromotionPackage{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.Name, &p.Price, &p.Currency, &p.DurationDays)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get promotion package: %w", err)
	}
	return p, nil
}

// GetListing fetches the payment-relevant slice of a listing.
func (r *CatalogRepo) GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	query := `SELECT id, owner_id, title, views, inquiries FROM listings WHERE id = $1`

	l := &domain.Listing{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&l.ID, &l.OwnerID, &l.Title, &l.Views, &l.Inquiries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get listing: %w", err)
	}
	return l, nil
}
