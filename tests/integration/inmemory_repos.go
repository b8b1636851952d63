package integration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Transaction Repo ---

type inMemoryTransactionRepo struct {
	mu           sync.RWMutex
	transactions map[uuid.UUID]*domain.PaymentTransaction
}

func newInMemoryTransactionRepo() *inMemoryTransactionRepo {
	return &inMemoryTransactionRepo{transactions: make(map[uuid.UUID]*domain.PaymentTransaction)}
}

func (r *inMemoryTransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.transactions[t.ID] = &cp
	return nil
}

func (r *inMemoryTransactionRepo) GetByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Reference == reference {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) GetByProviderRef(ctx context.Context, method domain.PaymentMethod, providerRef string) (*domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.transactions {
		if t.Method == method && t.ProviderRef != nil && *t.ProviderRef == providerRef {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTransactionRepo) SetProviderRef(ctx context.Context, id uuid.UUID, providerRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return fmt.Errorf("transaction not found")
	}
	t.ProviderRef = &providerRef
	return nil
}

func (r *inMemoryTransactionRepo) Transition(ctx context.Context, id uuid.UUID, from []domain.TransactionStatus, to domain.TransactionStatus, providerResponse, failureReason *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.transactions[id]
	if !ok {
		return false, nil
	}
	matched := false
	for _, s := range from {
		if t.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return false, nil
	}
	t.Status = to
	if providerResponse != nil {
		t.ProviderResponse = providerResponse
	}
	if failureReason != nil {
		t.FailureReason = failureReason
	}
	if to == domain.StatusCompleted {
		now := time.Now()
		t.CompletedAt = &now
	}
	return true, nil
}

func (r *inMemoryTransactionRepo) FindStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.PaymentTransaction
	for _, t := range r.transactions {
		if t.Status.IsSettleable() && t.CreatedAt.Before(olderThan) && len(result) < limit {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (r *inMemoryTransactionRepo) ClaimStale(ctx context.Context, workerID string, olderThan, claimedBefore time.Time, limit int) ([]domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.PaymentTransaction
	now := time.Now()
	for _, t := range r.transactions {
		if len(result) >= limit {
			break
		}
		if !t.Status.IsSettleable() || !t.CreatedAt.Before(olderThan) {
			continue
		}
		if t.ClaimedAt != nil && t.ClaimedAt.After(claimedBefore) {
			continue
		}
		t.ClaimedAt = &now
		t.ClaimedBy = &workerID
		result = append(result, *t)
	}
	return result, nil
}

// --- In-Memory Wallet Repo ---

type inMemoryWalletRepo struct {
	mu      sync.RWMutex
	wallets map[uuid.UUID]*domain.Wallet
}

func newInMemoryWalletRepo() *inMemoryWalletRepo {
	return &inMemoryWalletRepo{wallets: make(map[uuid.UUID]*domain.Wallet)}
}

func (r *inMemoryWalletRepo) CreateTx(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.ID] = &cp
	return nil
}

func (r *inMemoryWalletRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, w := range r.wallets {
		if w.UserID == userID {
			cp := *w
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryWalletRepo) GetByUserIDForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*domain.Wallet, error) {
	// Row locking is emulated by the serializing transactor.
	return r.GetByUserID(ctx, userID)
}

func (r *inMemoryWalletRepo) UpdateBalances(ctx context.Context, tx pgx.Tx, walletID uuid.UUID, available, locked decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[walletID]
	if !ok {
		return fmt.Errorf("wallet not found")
	}
	w.Available = available
	w.Locked = locked
	w.UpdatedAt = time.Now()
	return nil
}

// --- In-Memory Ledger Repo ---

type inMemoryLedgerRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{}
}

func (r *inMemoryLedgerRepo) Append(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryLedgerRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var all []domain.LedgerEntry
	for _, e := range r.entries {
		if e.WalletID == walletID {
			all = append(all, e)
		}
	}
	total := int64(len(all))
	if offset >= len(all) {
		return []domain.LedgerEntry{}, total, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], total, nil
}

// --- In-Memory Promotion Repo ---

type inMemoryPromotionRepo struct {
	mu         sync.RWMutex
	promotions map[string]*domain.ListingPromotion // keyed by transaction ref
}

func newInMemoryPromotionRepo() *inMemoryPromotionRepo {
	return &inMemoryPromotionRepo{promotions: make(map[string]*domain.ListingPromotion)}
}

func (r *inMemoryPromotionRepo) CreateIfAbsent(ctx context.Context, p *domain.ListingPromotion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.promotions[p.TransactionRef]; exists {
		return false, nil
	}
	// Mirrors the partial unique index on (listing_id) WHERE status = 'active'.
	for _, existing := range r.promotions {
		if existing.ListingID == p.ListingID && existing.Status == domain.PromotionActive {
			return false, nil
		}
	}
	cp := *p
	r.promotions[p.TransactionRef] = &cp
	return true, nil
}

func (r *inMemoryPromotionRepo) GetByTransactionRef(ctx context.Context, transactionRef string) (*domain.ListingPromotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.promotions[transactionRef]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryPromotionRepo) GetActiveByListing(ctx context.Context, listingID uuid.UUID) (*domain.ListingPromotion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.promotions {
		if p.ListingID == listingID && p.Status == domain.PromotionActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPromotionRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var swept int64
	for _, p := range r.promotions {
		if p.Status == domain.PromotionActive && now.After(p.ExpiresAt) {
			p.Status = domain.PromotionExpired
			swept++
		}
	}
	return swept, nil
}

// --- In-Memory Catalog Repo ---

type inMemoryCatalogRepo struct {
	mu       sync.RWMutex
	packages map[uuid.UUID]*domain.PromotionPackage
	listings map[uuid.UUID]*domain.Listing
}

func newInMemoryCatalogRepo() *inMemoryCatalogRepo {
	return &inMemoryCatalogRepo{
		packages: make(map[uuid.UUID]*domain.PromotionPackage),
		listings: make(map[uuid.UUID]*domain.Listing),
	}
}

func (r *inMemoryCatalogRepo) addPackage(p domain.PromotionPackage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.packages[p.ID] = &p
}

func (r *inMemoryCatalogRepo) addListing(l domain.Listing) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listings[l.ID] = &l
}

func (r *inMemoryCatalogRepo) GetPackage(ctx context.Context, id uuid.UUID) (*domain.PromotionPackage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.packages[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryCatalogRepo) GetListing(ctx context.Context, id uuid.UUID) (*domain.Listing, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.listings[id]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) Create(ctx context.Context, tx pgx.Tx, rec *domain.IdempotencyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[rec.Key]; exists {
		return fmt.Errorf("duplicate idempotency key")
	}
	cp := *rec
	r.records[rec.Key] = &cp
	return nil
}

func (r *inMemoryIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// --- Serializing Transactor ---

// serializingTransactor emulates the row-level serialization SELECT FOR
// UPDATE provides in production: one logical transaction at a time. The
// concurrency tests depend on this behaving like the real lock.
type serializingTransactor struct {
	mu sync.Mutex
}

func newSerializingTransactor() *serializingTransactor {
	return &serializingTransactor{}
}

func (t *serializingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	tx := &memTx{}
	tx.release = func() { t.mu.Unlock() }
	return tx, nil
}

// memTx is a minimal pgx.Tx whose Commit/Rollback release the transactor
// lock exactly once.
type memTx struct {
	release func()
	once    sync.Once
}

func (t *memTx) done() {
	t.once.Do(t.release)
}

func (t *memTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *memTx) Commit(ctx context.Context) error          { t.done(); return nil }
func (t *memTx) Rollback(ctx context.Context) error        { t.done(); return nil }
func (t *memTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *memTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *memTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *memTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *memTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *memTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *memTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *memTx) Conn() *pgx.Conn { return nil }
