package service

import (
	"context"
	"fmt"
	"time"

	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// defaultCurrency is the wallet currency for lazily created wallets.
const defaultCurrency = "RWF"

// LedgerService implements ports.WalletLedger. Every operation is one
// database transaction: the wallet row is read FOR UPDATE, the new balance
// pair is computed and checked, and the balance update plus the ledger append
// commit together or not at all. Concurrent operations on one wallet
// serialize on the row lock.
type LedgerService struct {
	walletRepo ports.WalletRepository
	ledgerRepo ports.LedgerRepository
	transactor ports.DBTransactor
	log        zerolog.Logger
}

// NewLedgerService creates the wallet ledger service.
func NewLedgerService(
	walletRepo ports.WalletRepository,
	ledgerRepo ports.LedgerRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerService {
	return &LedgerService{
		walletRepo: walletRepo,
		ledgerRepo: ledgerRepo,
		transactor: transactor,
		log:        log,
	}
}

// Lock moves amount from available to locked ahead of a wallet payment.
// Insufficient available balance fails with the exact shortfall.
func (s *LedgerService) Lock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error) {
	return s.apply(ctx, userID, domain.LedgerLock, amount, transactionRef)
}

// Unlock releases locked funds back to available after a failed, cancelled or
// expired wallet payment.
func (s *LedgerService) Unlock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error) {
	return s.apply(ctx, userID, domain.LedgerUnlock, amount, transactionRef)
}

// Debit consumes locked funds when a wallet payment settles.
func (s *LedgerService) Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error) {
	return s.apply(ctx, userID, domain.LedgerPayment, amount, transactionRef)
}

// Credit adds funds to the available balance. The entry type distinguishes
// top-up deposits from refund credits in the audit trail.
func (s *LedgerService) Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string, entryType domain.LedgerEntryType) (*domain.LedgerEntry, error) {
	if entryType != domain.LedgerDeposit && entryType != domain.LedgerRefund {
		return nil, apperror.ErrLedgerInvariant(fmt.Sprintf("credit with entry type %s", entryType))
	}
	return s.apply(ctx, userID, entryType, amount, transactionRef)
}

// Balance returns the wallet, creating it lazily so a fresh user sees zero
// balances instead of a not-found error.
func (s *LedgerService) Balance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet != nil {
		return wallet, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet = s.newWallet(userID)
	if err := s.walletRepo.CreateTx(ctx, dbTx, wallet); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return wallet, nil
}

// History lists the wallet's ledger entries, newest first.
func (s *LedgerService) History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int64, error) {
	wallet, err := s.walletRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("get wallet: %w", err))
	}
	if wallet == nil {
		return []domain.LedgerEntry{}, 0, nil
	}
	entries, total, err := s.ledgerRepo.ListByWallet(ctx, wallet.ID, limit, offset)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list ledger: %w", err))
	}
	return entries, total, nil
}

// apply runs one balance mutation atomically.
func (s *LedgerService) apply(ctx context.Context, userID uuid.UUID, entryType domain.LedgerEntryType, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	wallet, err := s.walletRepo.GetByUserIDForUpdate(ctx, dbTx, userID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		wallet = s.newWallet(userID)
		if err := s.walletRepo.CreateTx(ctx, dbTx, wallet); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("create wallet: %w", err))
		}
	}

	newAvailable, newLocked, ok := domain.Apply(entryType, wallet.Available, wallet.Locked, amount)
	if !ok {
		if entryType == domain.LedgerLock || entryType == domain.LedgerWithdrawal {
			return nil, apperror.ErrInsufficientBalance(amount.Sub(wallet.Available))
		}
		// Unlocking or debiting more than is locked means the books are off.
		s.log.Error().
			Str("wallet_id", wallet.ID.String()).
			Str("entry_type", string(entryType)).
			Str("amount", amount.String()).
			Str("locked", wallet.Locked.String()).
			Msg("ledger operation would drive a balance negative")
		return nil, apperror.ErrLedgerInvariant(fmt.Sprintf("%s of %s exceeds locked balance %s", entryType, amount, wallet.Locked))
	}

	if err := s.walletRepo.UpdateBalances(ctx, dbTx, wallet.ID, newAvailable, newLocked); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update balances: %w", err))
	}

	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		WalletID:       wallet.ID,
		Type:           entryType,
		Amount:         amount,
		PrevAvailable:  wallet.Available,
		NewAvailable:   newAvailable,
		PrevLocked:     wallet.Locked,
		NewLocked:      newLocked,
		TransactionRef: transactionRef,
		CreatedAt:      time.Now(),
	}
	if err := s.ledgerRepo.Append(ctx, dbTx, entry); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("append ledger entry: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Debug().
		Str("wallet_id", wallet.ID.String()).
		Str("entry_type", string(entryType)).
		Str("amount", amount.String()).
		Str("transaction_ref", transactionRef).
		Msg("ledger entry applied")

	return entry, nil
}

func (s *LedgerService) newWallet(userID uuid.UUID) *domain.Wallet {
	now := time.Now()
	return &domain.Wallet{
		ID:        uuid.New(),
		UserID:    userID,
		Available: decimal.Zero,
		Locked:    decimal.Zero,
		Currency:  defaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
