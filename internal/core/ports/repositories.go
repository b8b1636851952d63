package ports

import (
	"context"
	"time"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransactionRepository is the canonical store of payment intents.
// After creation, only status, provider reference/response and completion
// time may change; every status mutation goes through Transition so the
// state machine is enforced at the storage boundary.
type TransactionRepository interface {
	Create(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error
	GetByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error)
	GetByProviderRef(ctx context.Context, method domain.PaymentMethod, providerRef string) (*domain.PaymentTransaction, error)
	SetProviderRef(ctx context.Context, id uuid.UUID, providerRef string) error

	// Transition conditionally moves a transaction from one of the given
	// statuses to the target status, recording the provider response and
	// failure reason when present. Returns false when no row matched,
	// meaning another actor already moved it — callers treat that as
	// "somebody else won" and do nothing.
	Transition(ctx context.Context, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, providerResponse, failureReason *string) (bool, error)

	// FindStalePending returns pending/processing transactions created
	// before the cutoff (read-only, no claim).
	FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentTransaction, error)

	// ClaimStale atomically claims a batch of stale pending/processing
	// transactions for one reconciler worker. Rows claimed less than the
	// claim TTL ago are skipped, so overlapping sweeps cannot double-process.
	ClaimStale(ctx context.Context, workerID string, olderThan, claimedBefore time.Time, limit int) ([]domain.PaymentTransaction, error)
}

// WalletRepository persists user wallets. The ForUpdate variant takes a
// pessimistic row lock and must run inside a transaction; it is the point
// where concurrent spends against one wallet serialize.
type WalletRepository interface {
	CreateTx(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error)
	UpdateBalances(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, available, locked decimal.Decimal) error
}

// LedgerRepository appends wallet audit rows. Entries are append-only and
// written in the same database transaction as the balance update.
type LedgerRepository interface {
	Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int64, error)
}

// PromotionRepository persists listing promotions. CreateIfAbsent relies on
// the unique constraint on transaction_ref: it reports whether this call
// actually created the row, which makes activation idempotent.
type PromotionRepository interface {
	CreateIfAbsent(ctx context.Context, p *domain.ListingPromotion) (bool, error)
	GetByTransactionRef(ctx context.Context, transactionRef string) (*domain.ListingPromotion, error)
	GetActiveByListing(ctx context.Context, listingID uuid.UUID) (*domain.ListingPromotion, error)

	// ExpireOverdue flips every active promotion whose expiry has passed to
	// expired, returning the number of rows swept.
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

// CatalogRepository is the read-only boundary to listing and package data
// owned by the marketplace application.
type CatalogRepository interface {
	GetPackage(ctx context.Context, id uuid.UUID) (*domain.PromotionPackage, error)
	GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error)
}

// IdempotencyRepository is the durable backup of initiate-response caching.
type IdempotencyRepository interface {
	Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error
	Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
