package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    TransactionStatus
		to      TransactionStatus
		allowed bool
	}{
		{"pending to processing", StatusPending, StatusProcessing, true},
		{"pending to completed", StatusPending, StatusCompleted, true},
		{"pending to failed", StatusPending, StatusFailed, true},
		{"pending to expired", StatusPending, StatusExpired, true},
		{"processing to completed", StatusProcessing, StatusCompleted, true},
		{"processing to failed", StatusProcessing, StatusFailed, true},
		{"processing to expired", StatusProcessing, StatusExpired, true},
		{"completed to refunded", StatusCompleted, StatusRefunded, true},
		{"completed to pending", StatusCompleted, StatusPending, false},
		{"completed to failed", StatusCompleted, StatusFailed, false},
		{"failed to anything", StatusFailed, StatusPending, false},
		{"failed to completed", StatusFailed, StatusCompleted, false},
		{"refunded is terminal", StatusRefunded, StatusCompleted, false},
		{"expired is terminal", StatusExpired, StatusProcessing, false},
		{"processing backward to pending", StatusProcessing, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTransactionStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusRefunded.IsTerminal())
	assert.True(t, StatusExpired.IsTerminal())

	assert.True(t, StatusPending.IsSettleable())
	assert.True(t, StatusProcessing.IsSettleable())
	assert.False(t, StatusCompleted.IsSettleable())
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod("MTN_MOMO")
	require.NoError(t, err)
	assert.Equal(t, MethodMTN, m)

	_, err = ParseMethod("paypal")
	assert.Error(t, err)
}

func TestNewReference_Shape(t *testing.T) {
	ref := NewReference()
	assert.True(t, strings.HasPrefix(ref, "PAY-"))
	assert.Len(t, ref, 20)
	assert.NotEqual(t, ref, NewReference())
}

func TestPaymentTransaction_IsOverdue(t *testing.T) {
	now := time.Now()
	txn := &PaymentTransaction{Status: StatusPending, ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, txn.IsOverdue(now))

	txn.Status = StatusCompleted
	assert.False(t, txn.IsOverdue(now), "terminal transactions never expire")

	txn.Status = StatusProcessing
	txn.ExpiresAt = now.Add(time.Hour)
	assert.False(t, txn.IsOverdue(now))
}

func TestApply_BalanceMath(t *testing.T) {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }

	tests := []struct {
		name      string
		entryType LedgerEntryType
		available string
		locked    string
		amount    string
		wantAvail string
		wantLock  string
		ok        bool
	}{
		{"deposit adds to available", LedgerDeposit, "100", "0", "50", "150", "0", true},
		{"refund adds to available", LedgerRefund, "0", "0", "25", "25", "0", true},
		{"withdrawal within balance", LedgerWithdrawal, "100", "0", "100", "0", "0", true},
		{"withdrawal overdraw rejected", LedgerWithdrawal, "100", "0", "100.01", "", "", false},
		{"lock moves available to locked", LedgerLock, "20000", "0", "15000", "5000", "15000", true},
		{"lock overdraw rejected", LedgerLock, "5000", "0", "15000", "", "", false},
		{"unlock returns locked funds", LedgerUnlock, "5000", "15000", "15000", "20000", "0", true},
		{"unlock beyond locked rejected", LedgerUnlock, "0", "10", "11", "", "", false},
		{"payment debits locked", LedgerPayment, "5000", "15000", "15000", "5000", "0", true},
		{"payment beyond locked rejected", LedgerPayment, "0", "10", "20", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			avail, locked, ok := Apply(tt.entryType, d(tt.available), d(tt.locked), d(tt.amount))
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, d(tt.wantAvail).Equal(avail), "available: want %s got %s", tt.wantAvail, avail)
				assert.True(t, d(tt.wantLock).Equal(locked), "locked: want %s got %s", tt.wantLock, locked)
			}
		})
	}
}

func TestApply_ReplaySequence(t *testing.T) {
	// Replaying a full lock/debit sequence from zero must land on the
	// wallet's final balance pair.
	avail, locked := decimal.Zero, decimal.Zero
	steps := []struct {
		entryType LedgerEntryType
		amount    string
	}{
		{LedgerDeposit, "20000"},
		{LedgerLock, "15000"},
		{LedgerPayment, "15000"},
		{LedgerDeposit, "1000"},
		{LedgerLock, "500"},
		{LedgerUnlock, "500"},
	}
	for _, s := range steps {
		var ok bool
		avail, locked, ok = Apply(s.entryType, avail, locked, decimal.RequireFromString(s.amount))
		require.True(t, ok)
	}
	assert.True(t, decimal.RequireFromString("6000").Equal(avail))
	assert.True(t, decimal.Zero.Equal(locked))
}
