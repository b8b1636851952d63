package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PromotionRepo implements ports.PromotionRepository.
type PromotionRepo struct {
	pool Pool
}

// NewPromotionRepo creates a new PromotionRepo.
func NewPromotionRepo(pool Pool) *PromotionRepo {
	return &PromotionRepo{pool: pool}
}

const promotionColumns = `id, listing_id, package_id, transaction_ref, status, starts_at, expires_at,
		views_before, views_during, inquiries_before, inquiries_during, created_at`

// CreateIfAbsent inserts a promotion unless one already exists for the same
// payment transaction. The unique constraint on transaction_ref is the
// idempotency guard: a replayed activation inserts nothing and returns false.
// The partial unique index on (listing_id) WHERE status = 'active' enforces
// one live promotion per listing; losing that race also returns false.
func (r *PromotionRepo) CreateIfAbsent(ctx context.Context, p *domain.ListingPromotion) (bool, error) {
	query := `INSERT INTO listing_promotions (id, listing_id, package_id, transaction_ref, status,
		starts_at, expires_at, views_before, views_during, inquiries_before, inquiries_during, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (transaction_ref) DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		p.ID, p.ListingID, p.PackageID, p.TransactionRef, p.Status,
		p.StartsAt, p.ExpiresAt, p.ViewsBefore, p.ViewsDuring,
		p.InquiriesBefore, p.InquiriesDuring, p.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("insert promotion: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetByTransactionRef fetches the promotion paid for by a transaction.
func (r *PromotionRepo) GetByTransactionRef(ctx context.Context, transactionRef string) (*domain.ListingPromotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM listing_promotions WHERE transaction_ref = $1`
	return scanPromotion(r.pool.QueryRow(ctx, query, transactionRef))
}

// GetActiveByListing fetches a listing's currently active promotion, if any.
func (r *PromotionRepo) GetActiveByListing(ctx context.Context, listingID uuid.UUID) (*domain.ListingPromotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM listing_promotions
		WHERE listing_id = $1 AND status = 'active'`
	return scanPromotion(r.pool.QueryRow(ctx, query, listingID))
}

// ExpireOverdue sweeps every active promotion past its expiry to expired.
// The status guard makes overlapping sweeps harmless.
func (r *PromotionRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE listing_promotions SET status = 'expired' WHERE status = 'active' AND expires_at < $1`

	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire overdue promotions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanPromotion(row pgx.Row) (*domain.ListingPromotion, error) {
	p := &domain.ListingPromotion{}
	err := row.Scan(
		&p.ID, &p.ListingID, &p.PackageID, &p.TransactionRef, &p.Status,
		&p.StartsAt, &p.ExpiresAt, &p.ViewsBefore, &p.ViewsDuring,
		&p.InquiriesBefore, &p.InquiriesDuring, &p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan promotion: %w", err)
	}
	return p, nil
}
