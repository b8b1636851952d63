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

// fixedRateSource always returns the same fiat-per-crypto rate.
type fixedRateSource struct {
	rate decimal.Decimal
	err  error
}

func (s fixedRateSource) Rate(ctx context.Context, fiatCurrency, cryptoCurrency string) (decimal.Decimal, error) {
	return s.rate, s.err
}

func cryptoTestConfig() config.CryptoConfig {
	return config.CryptoConfig{
		Currency:         "USDT",
		Network:          "ethereum",
		ReceivingAddress: "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed",
		MinConfirmations: 12,
		FallbackRate:     "1350",
	}
}

func TestChecksumAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed", "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{"0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359", "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359"},
		{"0xDBF03B407C01E7CD3CBEA99509D93F8DDDC8C6FB", "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB"},
	}
	for _, tt := range tests {
		got, err := ChecksumAddress(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestChecksumAddress_Invalid(t *testing.T) {
	_, err := ChecksumAddress("0x1234")
	assert.Error(t, err)

	_, err = ChecksumAddress("0xzzzzb6053f3e94c9b9a09f33669435e7ef1beaed")
	assert.Error(t, err)
}

func TestCryptoAdapter_Initiate_QuotesAmount(t *testing.T) {
	adapter, err := NewCryptoAdapter(cryptoTestConfig(), fixedRateSource{rate: decimal.NewFromInt(1350)}, testLogger())
	require.NoError(t, err)

	txn := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: domain.NewReference(),
		UserID:    uuid.New(),
		Amount:    decimal.NewFromInt(13500),
		Currency:  "RWF",
		Method:    domain.MethodCrypto,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	result, err := adapter.Initiate(context.Background(), ports.InitiateRequest{Transaction: txn})
	require.NoError(t, err)

	require.NotNil(t, result.CryptoAmount)
	assert.True(t, result.CryptoAmount.Equal(decimal.NewFromInt(10)), "13500 RWF at 1350 should quote 10 USDT, got %s", result.CryptoAmount)
	assert.Equal(t, "USDT", result.CryptoCurrency)
	assert.Equal(t, "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed", result.CryptoAddress)
	assert.False(t, result.Accepted, "crypto payments stay pending until confirmed on chain")
}

func TestCryptoAdapter_Initiate_RateUnavailable(t *testing.T) {
	adapter, err := NewCryptoAdapter(cryptoTestConfig(), fixedRateSource{err: context.DeadlineExceeded}, testLogger())
	require.NoError(t, err)

	_, err = adapter.Initiate(context.Background(), ports.InitiateRequest{
		Transaction: &domain.PaymentTransaction{Amount: decimal.NewFromInt(1000), Currency: "RWF"},
	})
	assert.Error(t, err)
}

func TestCryptoAdapter_ParseWebhook_ConfirmationThreshold(t *testing.T) {
	adapter, err := NewCryptoAdapter(cryptoTestConfig(), fixedRateSource{rate: decimal.NewFromInt(1350)}, testLogger())
	require.NoError(t, err)

	tests := []struct {
		name     string
		payload  string
		expected ports.ProviderStatus
	}{
		{
			"enough confirmations",
			`{"reference":"PAY-1","tx_hash":"0xabc","confirmations":12,"status":"confirmed"}`,
			ports.ProviderCompleted,
		},
		{
			"below threshold stays pending",
			`{"reference":"PAY-1","tx_hash":"0xabc","confirmations":3,"status":"confirmed"}`,
			ports.ProviderPending,
		},
		{
			"failed on chain",
			`{"reference":"PAY-1","tx_hash":"0xabc","confirmations":0,"status":"failed","reason":"reverted"}`,
			ports.ProviderFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := adapter.ParseWebhook([]byte(tt.payload))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, event.Status)
			assert.Equal(t, "0xabc", event.ProviderRef)
		})
	}
}

func TestCryptoAdapter_ParseWebhook_Invalid(t *testing.T) {
	adapter, err := NewCryptoAdapter(cryptoTestConfig(), fixedRateSource{rate: decimal.NewFromInt(1350)}, testLogger())
	require.NoError(t, err)

	_, err = adapter.ParseWebhook([]byte(`{"confirmations":12}`))
	assert.Error(t, err, "webhook without reference or tx hash must be rejected")
}

func TestNewCryptoAdapter_InvalidAddress(t *testing.T) {
	cfg := cryptoTestConfig()
	cfg.ReceivingAddress = "not-an-address"

	_, err := NewCryptoAdapter(cfg, fixedRateSource{rate: decimal.NewFromInt(1350)}, testLogger())
	assert.Error(t, err)
}
