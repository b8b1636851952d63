package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

const transactionColumns = `id, reference, provider_ref, user_id, amount, currency, method, type, status,
		listing_id, package_id, provider_response, failure_reason, created_at, expires_at, completed_at,
		claimed_at, claimed_by`

// Create inserts a new payment transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error {
	query := `INSERT INTO payment_transactions (id, reference, provider_ref, user_id, amount, currency,
		method, type, status, listing_id, package_id, provider_response, failure_reason, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.Reference, t.ProviderRef, t.UserID, t.Amount, t.Currency,
		t.Method, t.Type, t.Status, t.ListingID, t.PackageID,
		t.ProviderResponse, t.FailureReason, t.CreatedAt, t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment transaction: %w", err)
	}
	return nil
}

// GetByReference fetches a transaction by its internal reference.
func (r *TransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE reference = $1`
	return scanTransaction(r.pool.QueryRow(ctx, query, reference))
}

// GetByProviderRef fetches a transaction by method and provider reference.
func (r *TransactionRepo) GetByProviderRef(ctx context.Context, method domain.PaymentMethod, providerRef string) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions WHERE method = $1 AND provider_ref = $2`
	return scanTransaction(r.pool.QueryRow(ctx, query, method, providerRef))
}

// SetProviderRef records the reference the provider assigned at initiate.
func (r *TransactionRepo) SetProviderRef(ctx context.Context, id uuid.UUID, providerRef string) error {
	query := `UPDATE payment_transactions SET provider_ref = $1 WHERE id = $2`

	tag, err := r.pool.Exec(ctx, query, providerRef, id)
	if err != nil {
		return fmt.Errorf("set provider ref: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction not found: %s", id)
	}
	return nil
}

// Transition conditionally moves a transaction between statuses. The WHERE
// clause on the current status makes the update a compare-and-swap: when two
// actors race, exactly one sees RowsAffected == 1.
func (r *TransactionRepo) Transition(ctx context.Context, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, providerResponse, failureReason *string) (bool, error) {
	var completedAt *time.Time
	if to == domain.StatusCompleted || to == domain.StatusRefunded {
		now := time.Now().UTC()
		completedAt = &now
	}

	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	query := `UPDATE payment_transactions
		SET status = $1,
			provider_response = COALESCE($2, provider_response),
			failure_reason = COALESCE($3, failure_reason),
			completed_at = COALESCE($4, completed_at),
			claimed_at = NULL,
			claimed_by = NULL
		WHERE id = $5 AND status = ANY($6)`

	tag, err := r.pool.Exec(ctx, query, to, providerResponse, failureReason, completedAt, id, fromStrs)
	if err != nil {
		return false, fmt.Errorf("transition transaction status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindStalePending returns pending/processing transactions older than the cutoff.
func (r *TransactionRepo) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentTransaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM payment_transactions
		WHERE status IN ('pending', 'processing') AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("find stale pending: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

// ClaimStale stamps a batch of stale transactions with this worker's claim
// and returns them. SKIP LOCKED plus the claimed_at guard keeps two
// overlapping sweeps from picking up the same rows.
func (r *TransactionRepo) ClaimStale(ctx context.Context, workerID string, olderThan, claimedBefore time.Time, limit int) ([]domain.PaymentTransaction, error) {
	query := `UPDATE payment_transactions
		SET claimed_at = NOW(), claimed_by = $1
		WHERE id IN (
			SELECT id FROM payment_transactions
			WHERE status IN ('pending', 'processing')
				AND created_at < $2
				AND (claimed_at IS NULL OR claimed_at < $3)
			ORDER BY created_at
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + transactionColumns

	rows, err := r.pool.Query(ctx, query, workerID, olderThan, claimedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("claim stale transactions: %w", err)
	}
	defer rows.Close()

	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.PaymentTransaction, error) {
	var out []domain.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	t := &domain.PaymentTransaction{}
	err := row.Scan(
		&t.ID, &t.Reference, &t.ProviderRef, &t.UserID, &t.Amount, &t.Currency,
		&t.Method, &t.Type, &t.Status, &t.ListingID, &t.PackageID,
		&t.ProviderResponse, &t.FailureReason, &t.CreatedAt, &t.ExpiresAt,
		&t.CompletedAt, &t.ClaimedAt, &t.ClaimedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment transaction: %w", err)
	}
	return t, nil
}
