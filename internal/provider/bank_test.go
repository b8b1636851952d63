package provider

import (
	"context"
	"testing"
	"time"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bankTestConfig() config.BankConfig {
	return config.BankConfig{
		BankName:      "Bank of Kigali",
		AccountName:   "IkazeProperty Ltd",
		AccountNumber: "00012345678",
	}
}

func TestBankAdapter_Initiate_Instructions(t *testing.T) {
	adapter := NewBankAdapter(bankTestConfig())

	txn := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: "PAY-bank0001",
		UserID:    uuid.New(),
		Amount:    decimal.NewFromInt(250000),
		Currency:  "RWF",
		Method:    domain.MethodBank,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	result, err := adapter.Initiate(context.Background(), ports.InitiateRequest{Transaction: txn})
	require.NoError(t, err)

	assert.False(t, result.Accepted, "bank transfers stay pending until confirmed")
	assert.Contains(t, result.Instructions, "Bank of Kigali")
	assert.Contains(t, result.Instructions, "00012345678")
	assert.Contains(t, result.Instructions, "PAY-bank0001")
	assert.Contains(t, result.Instructions, "250000 RWF")
}

func TestBankAdapter_Verify_AlwaysPending(t *testing.T) {
	adapter := NewBankAdapter(bankTestConfig())

	result, err := adapter.Verify(context.Background(), &domain.PaymentTransaction{Reference: "PAY-x"})
	require.NoError(t, err)
	assert.Equal(t, ports.ProviderPending, result.Status)
}

func TestBankAdapter_Refund_Rejected(t *testing.T) {
	adapter := NewBankAdapter(bankTestConfig())

	err := adapter.Refund(context.Background(), &domain.PaymentTransaction{}, decimal.NewFromInt(100))
	assert.Error(t, err)
}

func TestBankAdapter_ParseWebhook(t *testing.T) {
	adapter := NewBankAdapter(bankTestConfig())

	tests := []struct {
		name     string
		payload  string
		expected ports.ProviderStatus
	}{
		{"received", `{"reference":"PAY-1","status":"received","bank_ref":"BK-9"}`, ports.ProviderCompleted},
		{"rejected", `{"reference":"PAY-1","status":"rejected","reason":"no matching deposit"}`, ports.ProviderFailed},
		{"unknown", `{"reference":"PAY-1","status":"under_review"}`, ports.ProviderPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := adapter.ParseWebhook([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, "PAY-1", event.Reference)
			assert.Equal(t, tt.expected, event.Status)
		})
	}

	_, err := adapter.ParseWebhook([]byte(`{"status":"received"}`))
	assert.Error(t, err, "webhook without a reference must be rejected")
}
