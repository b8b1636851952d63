package postgres

import (
	"context"
	"testing"
	"time"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLedgerEntry(walletID uuid.UUID) *domain.LedgerEntry {
	return &domain.LedgerEntry{
		ID:             uuid.New(),
		WalletID:       walletID,
		Type:           domain.LedgerLock,
		Amount:         decimal.RequireFromString("15000"),
		PrevAvailable:  decimal.RequireFromString("20000"),
		NewAvailable:   decimal.RequireFromString("5000"),
		PrevLocked:     decimal.Zero,
		NewLocked:      decimal.RequireFromString("15000"),
		TransactionRef: "PAY-TEST",
		CreatedAt:      time.Now().UTC().Truncate(time.Microsecond),
	}
}

func ledgerRow(e *domain.LedgerEntry) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "wallet_id", "type", "amount", "previous_available", "new_available",
		"previous_locked", "new_locked", "transaction_ref", "created_at",
	}).AddRow(
		e.ID, e.WalletID, e.Type, e.Amount, e.PrevAvailable, e.NewAvailable,
		e.PrevLocked, e.NewLocked, e.TransactionRef, e.CreatedAt,
	)
}

func TestLedgerRepo_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	e := newTestLedgerEntry(uuid.New())

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_transactions").
		WithArgs(e.ID, e.WalletID, e.Type, e.Amount,
			e.PrevAvailable, e.NewAvailable, e.PrevLocked, e.NewLocked,
			e.TransactionRef, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Append(context.Background(), tx, e)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerRepo_ListByWallet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewLedgerRepo(mock)
	walletID := uuid.New()
	e := newTestLedgerEntry(walletID)

	mock.ExpectQuery("SELECT COUNT").
		WithArgs(walletID).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT .+ FROM wallet_transactions").
		WithArgs(walletID, 20, 0).
		WillReturnRows(ledgerRow(e))

	entries, total, err := repo.ListByWallet(context.Background(), walletID, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerLock, entries[0].Type)
	assert.True(t, e.NewLocked.Equal(entries[0].NewLocked))
	assert.NoError(t, mock.ExpectationsWereMet())
}
