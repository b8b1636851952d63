package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name:     "without wrapped error",
			appErr:   New("PAY_001", "Insufficient wallet balance", http.StatusPaymentRequired),
			expected: "[PAY_001] Insufficient wallet balance",
		},
		{
			name:     "with wrapped error",
			appErr:   Wrap("SYS_001", "DB error", http.StatusInternalServerError, fmt.Errorf("connection refused")),
			expected: "[SYS_001] DB error: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.appErr.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	inner := fmt.Errorf("inner error")
	appErr := Wrap("SYS_001", "wrapped", http.StatusInternalServerError, inner)

	assert.True(t, errors.Is(appErr, inner))
	assert.Nil(t, New("VAL_001", "test", http.StatusBadRequest).Unwrap())
}

func TestInsufficientBalance_CarriesShortfall(t *testing.T) {
	err := ErrInsufficientBalance(decimal.RequireFromString("10000"))
	assert.Equal(t, "PAY_001", err.Code)
	assert.Equal(t, http.StatusPaymentRequired, err.HTTPStatus)
	assert.Equal(t, "10000", err.Details["shortfall"])
}

func TestErrorCatalog(t *testing.T) {
	tests := []struct {
		name       string
		err        *AppError
		code       string
		httpStatus int
	}{
		{"Validation", Validation("bad field"), "VAL_001", 400},
		{"InvalidAmount", ErrInvalidAmount(), "VAL_002", 400},
		{"UnsupportedMethod", ErrUnsupportedMethod("paypal"), "VAL_003", 400},
		{"NotFound", ErrNotFound("wallet"), "PAY_002", 404},
		{"NotCancellable", ErrNotCancellable(), "PAY_003", 409},
		{"InvalidRefund", ErrInvalidRefund(), "PAY_004", 400},
		{"RefundAmountExceeds", ErrRefundAmountExceedsOriginal(), "PAY_005", 400},
		{"IllegalTransition", ErrIllegalTransition("completed", "pending"), "PAY_006", 409},
		{"ProviderUnavailable", ErrProviderUnavailable(fmt.Errorf("timeout")), "PRV_001", 202},
		{"ProviderRejected", ErrProviderRejected("declined"), "PRV_002", 422},
		{"InvalidWebhook", ErrInvalidWebhook(), "PRV_003", 401},
		{"DuplicateActivation", ErrDuplicateActivation("PAY-X"), "INV_001", 409},
		{"LedgerInvariant", ErrLedgerInvariant("negative locked"), "INV_002", 500},
		{"InvalidToken", ErrInvalidToken(), "AUTH_001", 401},
		{"Forbidden", ErrForbidden(), "AUTH_002", 403},
		{"RateLimit", ErrRateLimitExceeded(), "RATE_001", 429},
		{"Internal", InternalError(fmt.Errorf("boom")), "SYS_001", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.httpStatus, tt.err.HTTPStatus)
		})
	}
}

func TestUnsupportedMethod_NamesMethod(t *testing.T) {
	err := ErrUnsupportedMethod("cash")
	assert.Contains(t, err.Message, "cash")
}
