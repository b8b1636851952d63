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

func newTestTransaction() *domain.PaymentTransaction {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: domain.NewReference(),
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("15000"),
		Currency:  "RWF",
		Method:    domain.MethodMTN,
		Type:      domain.TypeListingPromotion,
		Status:    domain.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
}

func transactionColumnNames() []string {
	return []string{
		"id", "reference", "provider_ref", "user_id", "amount", "currency", "method", "type", "status",
		"listing_id", "package_id", "provider_response", "failure_reason", "created_at", "expires_at",
		"completed_at", "claimed_at", "claimed_by",
	}
}

func transactionRow(t *domain.PaymentTransaction) *pgxmock.Rows {
	return pgxmock.NewRows(transactionColumnNames()).AddRow(
		t.ID, t.Reference, t.ProviderRef, t.UserID, t.Amount, t.Currency, t.Method, t.Type, t.Status,
		t.ListingID, t.PackageID, t.ProviderResponse, t.FailureReason, t.CreatedAt, t.ExpiresAt,
		t.CompletedAt, t.ClaimedAt, t.ClaimedBy,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO payment_transactions").
		WithArgs(txn.ID, txn.Reference, txn.ProviderRef, txn.UserID, txn.Amount, txn.Currency,
			txn.Method, txn.Type, txn.Status, txn.ListingID, txn.PackageID,
			txn.ProviderResponse, txn.FailureReason, txn.CreatedAt, txn.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()

	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE reference").
		WithArgs(txn.Reference).
		WillReturnRows(transactionRow(txn))

	result, err := repo.GetByReference(context.Background(), txn.Reference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, domain.StatusPending, result.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByReference_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM payment_transactions WHERE reference").
		WithArgs("PAY-MISSING").
		WillReturnRows(pgxmock.NewRows(transactionColumnNames()))

	result, err := repo.GetByReference(context.Background(), "PAY-MISSING")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_SetProviderRef(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE payment_transactions SET provider_ref").
		WithArgs("MTN-REF-1", id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.SetProviderRef(context.Background(), id, "MTN-REF-1")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Transition_Wins(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()
	raw := `{"status":"SUCCESSFUL"}`

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs(domain.StatusCompleted, &raw, (*string)(nil), pgxmock.AnyArg(), id, []string{"pending", "processing"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.Transition(context.Background(), id,
		[]domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing},
		domain.StatusCompleted, &raw, nil)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Transition_AlreadyMoved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE payment_transactions").
		WithArgs(domain.StatusExpired, (*string)(nil), (*string)(nil), pgxmock.AnyArg(), id, []string{"pending", "processing"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err := repo.Transition(context.Background(), id,
		[]domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing},
		domain.StatusExpired, nil, nil)
	require.NoError(t, err)
	assert.False(t, ok, "losing the compare-and-swap is not an error")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_FindStalePending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()
	cutoff := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM payment_transactions").
		WithArgs(cutoff, 50).
		WillReturnRows(transactionRow(txn))

	result, err := repo.FindStalePending(context.Background(), cutoff, 50)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, txn.Reference, result[0].Reference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ClaimStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction()
	olderThan := time.Now().UTC().Add(-2 * time.Minute)
	claimedBefore := time.Now().UTC().Add(-10 * time.Minute)

	mock.ExpectQuery("UPDATE payment_transactions").
		WithArgs("worker-1", olderThan, claimedBefore, 50).
		WillReturnRows(transactionRow(txn))

	result, err := repo.ClaimStale(context.Background(), "worker-1", olderThan, claimedBefore, 50)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, txn.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
