package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet holds a user's internal balance, split between funds available for
// spending and funds locked behind a pending payment. Both parts must stay
// non-negative; every mutation goes through the wallet ledger.
type Wallet struct {
	ID        uuid.UUID       `json:"id"`
	UserID    uuid.UUID       `json:"user_id"`
	Available decimal.Decimal `json:"available_balance"`
	Locked    decimal.Decimal `json:"locked_balance"`
	Currency  string          `json:"currency"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// LedgerEntryType classifies a wallet ledger entry.
type LedgerEntryType string

const (
	LedgerDeposit    LedgerEntryType = "deposit"    // available += amount
	LedgerWithdrawal LedgerEntryType = "withdrawal" // available -= amount
	LedgerLock       LedgerEntryType = "lock"       // available -= amount, locked += amount
	LedgerUnlock     LedgerEntryType = "unlock"     // locked -= amount, available += amount
	LedgerPayment    LedgerEntryType = "payment"    // locked -= amount (settlement debit)
	LedgerRefund     LedgerEntryType = "refund"     // available += amount
)

// LedgerEntry is one append-only row of the wallet audit trail. It records
// the balance pair before and after the operation so the full sequence for a
// wallet replays exactly to its current (available, locked) state.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	WalletID       uuid.UUID       `json:"wallet_id"`
	Type           LedgerEntryType `json:"type"`
	Amount         decimal.Decimal `json:"amount"`
	PrevAvailable  decimal.Decimal `json:"previous_available"`
	NewAvailable   decimal.Decimal `json:"new_available"`
	PrevLocked     decimal.Decimal `json:"previous_locked"`
	NewLocked      decimal.Decimal `json:"new_locked"`
	TransactionRef string          `json:"transaction_ref"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Apply returns the balance pair after applying an entry of the given type,
// or false if the result would drive either side negative.
func Apply(entryType LedgerEntryType, available, locked, amount decimal.Decimal) (newAvailable, newLocked decimal.Decimal, ok bool) {
	switch entryType {
	case LedgerDeposit, LedgerRefund:
		return available.Add(amount), locked, true
	case LedgerWithdrawal:
		newAvailable = available.Sub(amount)
		return newAvailable, locked, !newAvailable.IsNegative()
	case LedgerLock:
		newAvailable = available.Sub(amount)
		return newAvailable, locked.Add(amount), !newAvailable.IsNegative()
	case LedgerUnlock:
		newLocked = locked.Sub(amount)
		return available.Add(amount), newLocked, !newLocked.IsNegative()
	case LedgerPayment:
		newLocked = locked.Sub(amount)
		return available, newLocked, !newLocked.IsNegative()
	}
	return available, locked, false
}
