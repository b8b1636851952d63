package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// timeoutClient simulates a client-side deadline on every request.
type timeoutClient struct{}

func (timeoutClient) Do(req *http.Request) (*http.Response, error) {
	return nil, context.DeadlineExceeded
}

func mtnTestTransaction() *domain.PaymentTransaction {
	return &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: domain.NewReference(),
		UserID:    uuid.New(),
		Amount:    decimal.NewFromInt(5000),
		Currency:  "RWF",
		Method:    domain.MethodMTN,
		Type:      domain.TypeListingPromotion,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestMTNAdapter_Initiate_Accepted(t *testing.T) {
	var gotReferenceID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/requesttopay", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		gotReferenceID = r.Header.Get("X-Reference-Id")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	adapter := NewMTNAdapter(config.MobileMoneyConfig{
		BaseURL:         server.URL,
		SubscriptionKey: "test-key",
	}, server.Client(), testLogger())

	txn := mtnTestTransaction()
	result, err := adapter.Initiate(context.Background(), ports.InitiateRequest{
		Transaction: txn,
		PhoneNumber: "250788123456",
	})
	require.NoError(t, err)

	assert.True(t, result.Accepted)
	assert.Equal(t, gotReferenceID, result.ProviderRef)
	assert.NotEmpty(t, result.Instructions)
}

func TestMTNAdapter_Initiate_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "payer not found", http.StatusBadRequest)
	}))
	defer server.Close()

	adapter := NewMTNAdapter(config.MobileMoneyConfig{BaseURL: server.URL}, server.Client(), testLogger())

	_, err := adapter.Initiate(context.Background(), ports.InitiateRequest{
		Transaction: mtnTestTransaction(),
		PhoneNumber: "250788123456",
	})
	require.Error(t, err)

	appErr, ok := apperror.FromError(err)
	require.True(t, ok)
	assert.Equal(t, "PRV_002", appErr.Code)
}

func TestMTNAdapter_Initiate_TimeoutStaysPending(t *testing.T) {
	adapter := NewMTNAdapter(config.MobileMoneyConfig{BaseURL: "http://mtn.invalid"}, timeoutClient{}, testLogger())

	result, err := adapter.Initiate(context.Background(), ports.InitiateRequest{
		Transaction: mtnTestTransaction(),
		PhoneNumber: "250788123456",
	})
	require.NoError(t, err, "a timeout must not fail the intent")
	assert.False(t, result.Accepted)
	assert.NotEmpty(t, result.ProviderRef)
}

func TestMTNAdapter_Initiate_DeterministicProviderRef(t *testing.T) {
	ref := domain.NewReference()
	assert.Equal(t, mtnProviderReference(ref), mtnProviderReference(ref))
	assert.NotEqual(t, mtnProviderReference(ref), mtnProviderReference(domain.NewReference()))
}

func TestMTNAdapter_Verify_StatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected ports.ProviderStatus
	}{
		{"successful", `{"status":"SUCCESSFUL"}`, ports.ProviderCompleted},
		{"failed", `{"status":"FAILED","reason":"PAYER_DECLINED"}`, ports.ProviderFailed},
		{"pending", `{"status":"PENDING"}`, ports.ProviderPending},
		{"unknown", `{"status":"SOMETHING_ELSE"}`, ports.ProviderPending},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			adapter := NewMTNAdapter(config.MobileMoneyConfig{BaseURL: server.URL}, server.Client(), testLogger())

			result, err := adapter.Verify(context.Background(), mtnTestTransaction())
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result.Status)
		})
	}
}

func TestMTNAdapter_Verify_NotFoundIsPending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	adapter := NewMTNAdapter(config.MobileMoneyConfig{BaseURL: server.URL}, server.Client(), testLogger())

	result, err := adapter.Verify(context.Background(), mtnTestTransaction())
	require.NoError(t, err)
	assert.Equal(t, ports.ProviderPending, result.Status)
}

func TestMTNAdapter_Verify_TimeoutIsPending(t *testing.T) {
	adapter := NewMTNAdapter(config.MobileMoneyConfig{BaseURL: "http://mtn.invalid"}, timeoutClient{}, testLogger())

	result, err := adapter.Verify(context.Background(), mtnTestTransaction())
	require.NoError(t, err)
	assert.Equal(t, ports.ProviderPending, result.Status)
}

func TestMTNAdapter_ParseWebhook(t *testing.T) {
	adapter := NewMTNAdapter(config.MobileMoneyConfig{}, nil, testLogger())

	event, err := adapter.ParseWebhook([]byte(`{
		"referenceId": "6f2f44d0-0000-0000-0000-000000000000",
		"externalId": "PAY-abc123",
		"status": "SUCCESSFUL"
	}`))
	require.NoError(t, err)

	assert.Equal(t, "PAY-abc123", event.Reference)
	assert.Equal(t, "6f2f44d0-0000-0000-0000-000000000000", event.ProviderRef)
	assert.Equal(t, ports.ProviderCompleted, event.Status)
}

func TestMTNAdapter_ParseWebhook_Invalid(t *testing.T) {
	adapter := NewMTNAdapter(config.MobileMoneyConfig{}, nil, testLogger())

	_, err := adapter.ParseWebhook([]byte(`not json`))
	assert.Error(t, err)

	_, err = adapter.ParseWebhook([]byte(`{"status":"SUCCESSFUL"}`))
	assert.Error(t, err, "webhook without any reference must be rejected")
}
