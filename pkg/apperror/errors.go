package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string         `json:"error_code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"` // wrapped internal error, never exposed
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Validation (VAL) ----

// Validation rejects a malformed request before any state is created.
func Validation(message string) *AppError {
	return New("VAL_001", message, http.StatusBadRequest)
}

func ErrInvalidAmount() *AppError {
	return New("VAL_002", "Amount must be positive", http.StatusBadRequest)
}

func ErrUnsupportedMethod(method string) *AppError {
	return New("VAL_003", fmt.Sprintf("Unsupported payment method: %s", method), http.StatusBadRequest)
}

// ---- Payment Business Logic (PAY) ----

// ErrInsufficientBalance carries the shortfall so the caller can show the
// user exactly how much is missing.
func ErrInsufficientBalance(shortfall decimal.Decimal) *AppError {
	e := New("PAY_001", "Insufficient wallet balance", http.StatusPaymentRequired)
	e.Details = map[string]any{"shortfall": shortfall.String()}
	return e
}

func ErrNotFound(entity string) *AppError {
	return New("PAY_002", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

func ErrNotCancellable() *AppError {
	return New("PAY_003", "Transaction can no longer be cancelled", http.StatusConflict)
}

func ErrInvalidRefund() *AppError {
	return New("PAY_004", "Transaction not eligible for refund", http.StatusBadRequest)
}

func ErrRefundAmountExceedsOriginal() *AppError {
	return New("PAY_005", "Refund amount exceeds original transaction amount", http.StatusBadRequest)
}

func ErrIllegalTransition(from, to string) *AppError {
	return New("PAY_006", fmt.Sprintf("Illegal status transition %s -> %s", from, to), http.StatusConflict)
}

// ErrListingAlreadyPromoted rejects paying for a listing that already has an
// active promotion. Only one promotion may run per listing at a time.
func ErrListingAlreadyPromoted() *AppError {
	return New("PAY_007", "Listing already has an active promotion", http.StatusConflict)
}

// ---- Provider (PRV) ----

// ErrProviderUnavailable marks a transient provider failure. The transaction
// stays pending and the reconciler retries; it is never a hard failure on the
// first attempt.
func ErrProviderUnavailable(err error) *AppError {
	return Wrap("PRV_001", "Payment provider temporarily unavailable", http.StatusAccepted, err)
}

// ErrProviderRejected marks an explicit decline by the provider.
func ErrProviderRejected(reason string) *AppError {
	return New("PRV_002", fmt.Sprintf("Payment rejected by provider: %s", reason), http.StatusUnprocessableEntity)
}

func ErrInvalidWebhook() *AppError {
	return New("PRV_003", "Webhook payload failed authenticity checks", http.StatusUnauthorized)
}

// ---- Invariant breaches (INV) ----

// ErrDuplicateActivation signals that the activation idempotency guard was
// violated. This must never surface in normal operation; it is logged as a
// fatal invariant breach, not swallowed.
func ErrDuplicateActivation(transactionRef string) *AppError {
	return New("INV_001", fmt.Sprintf("Duplicate promotion activation for %s", transactionRef), http.StatusConflict)
}

// ErrLedgerInvariant signals a wallet mutation that would break the
// non-negative balance invariant outside the expected lock path.
func ErrLedgerInvariant(detail string) *AppError {
	return New("INV_002", fmt.Sprintf("Wallet ledger invariant violated: %s", detail), http.StatusInternalServerError)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrForbidden() *AppError {
	return New("AUTH_002", "Not allowed for this user", http.StatusForbidden)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// FromError extracts an *AppError from an error chain.
func FromError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
