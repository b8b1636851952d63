package ports

import (
	"context"
	"time"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProviderStatus is the answer a provider gives when asked about a payment.
// A payment the provider does not know about yet is pending, never an error:
// providers may lag behind our initiate call.
type ProviderStatus string

const (
	ProviderPending   ProviderStatus = "pending"
	ProviderCompleted ProviderStatus = "completed"
	ProviderFailed    ProviderStatus = "failed"
)

// InitiateRequest is the adapter-facing slice of a new payment intent.
type InitiateRequest struct {
	Transaction    *domain.PaymentTransaction
	PhoneNumber    string // mobile money only
	IdempotencyKey string // forwarded so provider-side retries cannot double-charge
}

// InitiateResult is what an adapter reports after submitting an intent.
type InitiateResult struct {
	ProviderRef  string
	Instructions string
	// Accepted means the provider (or the wallet lock) acknowledged the
	// intent synchronously, moving the transaction to processing.
	Accepted bool
	// Crypto payments additionally carry the converted amount and the
	// receiving address the payer must send to.
	CryptoAmount   *decimal.Decimal
	CryptoAddress  string
	CryptoCurrency string
	Raw            string
}

// VerifyResult is the provider's answer to a status re-check.
type VerifyResult struct {
	Status ProviderStatus
	Reason string // provider-side failure reason, when failed
	Raw    string
}

// WebhookEvent is a parsed, authenticated provider push.
type WebhookEvent struct {
	Reference   string // our internal reference, when the provider echoes it
	ProviderRef string
	Status      ProviderStatus
	Reason      string
	Raw         string
}

// ProviderAdapter translates generic payment operations into one provider's
// API. Initiate is retry-safe under the same idempotency key. Verify treats
// network timeouts as pending. Refund applies only to completed payments.
type ProviderAdapter interface {
	Method() domain.PaymentMethod
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, t *domain.PaymentTransaction) (*VerifyResult, error)
	Refund(ctx context.Context, t *domain.PaymentTransaction, amount decimal.Decimal) error
	ParseWebhook(payload []byte) (*WebhookEvent, error)
}

// ProviderRegistry resolves the adapter for a payment method. Lookup of an
// unregistered method is a hard error, never a silent no-op.
type ProviderRegistry interface {
	Get(method domain.PaymentMethod) (ProviderAdapter, error)
}

// WalletLedger applies atomic balance mutations. Each operation is one
// database transaction: row-locked read, invariant check, balance update and
// ledger append — all or nothing. The wallet is created lazily on first use.
type WalletLedger interface {
	Lock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error)
	Unlock(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string) (*domain.LedgerEntry, error)
	Credit(ctx context.Context, userID uuid.UUID, amount decimal.Decimal, transactionRef string, entryType domain.LedgerEntryType) (*domain.LedgerEntry, error)
	Balance(ctx context.Context, userID uuid.UUID) (*domain.Wallet, error)
	History(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int64, error)
}

// PromotionActivator activates the promotion paid for by a completed
// transaction, exactly once no matter how often it is invoked.
type PromotionActivator interface {
	Activate(ctx context.Context, txn *domain.PaymentTransaction) error
}

// SettlementService applies the terminal outcome of a payment: the status
// transition plus its side effects (wallet debit/unlock/credit, promotion
// activation, notification). Used by both the webhook path and the
// reconciler; all methods are idempotent.
type SettlementService interface {
	SettleCompleted(ctx context.Context, txn *domain.PaymentTransaction, raw string) error
	SettleFailed(ctx context.Context, txn *domain.PaymentTransaction, reason string) error
	Expire(ctx context.Context, txn *domain.PaymentTransaction) error
}

// --- Payment API (consumed by the HTTP layer) ---

// InitiatePaymentRequest holds validated input for a new payment intent.
type InitiatePaymentRequest struct {
	UserID         uuid.UUID
	Method         domain.PaymentMethod
	Type           domain.TransactionType
	Amount         decimal.Decimal // wallet top-ups; promotions price from the package
	Currency       string
	PhoneNumber    string
	ListingID      *uuid.UUID
	PackageID      *uuid.UUID
	IdempotencyKey string
}

// InitiatePaymentResponse is returned to the caller and cached under the
// idempotency key.
type InitiatePaymentResponse struct {
	Reference      string                   `json:"reference"`
	Status         domain.TransactionStatus `json:"status"`
	Instructions   string                   `json:"instructions"`
	ExpiresAt      time.Time                `json:"expires_at"`
	CryptoAmount   *decimal.Decimal         `json:"crypto_amount,omitempty"`
	CryptoAddress  string                   `json:"crypto_address,omitempty"`
	CryptoCurrency string                   `json:"crypto_currency,omitempty"`
}

// PaymentStatusResponse is the lifecycle view returned by verify.
type PaymentStatusResponse struct {
	Reference     string                   `json:"reference"`
	Status        domain.TransactionStatus `json:"status"`
	Method        domain.PaymentMethod     `json:"method"`
	Type          domain.TransactionType   `json:"type"`
	Amount        decimal.Decimal          `json:"amount"`
	Currency      string                   `json:"currency"`
	FailureReason *string                  `json:"failure_reason,omitempty"`
	CreatedAt     time.Time                `json:"created_at"`
	ExpiresAt     time.Time                `json:"expires_at"`
	CompletedAt   *time.Time               `json:"completed_at,omitempty"`
}

// RefundPaymentRequest holds validated input for an admin refund.
type RefundPaymentRequest struct {
	Reference string
	Amount    *decimal.Decimal // nil = full refund
	Reason    string
}

// RefundResponse reports the applied refund.
type RefundResponse struct {
	Reference string                   `json:"reference"`
	Status    domain.TransactionStatus `json:"status"`
	Amount    decimal.Decimal          `json:"amount"`
}

// PaymentService is the core payment business logic.
type PaymentService interface {
	Initiate(ctx context.Context, req InitiatePaymentRequest) (*InitiatePaymentResponse, error)
	Verify(ctx context.Context, userID uuid.UUID, reference string) (*PaymentStatusResponse, error)
	Cancel(ctx context.Context, userID uuid.UUID, reference string) error
	Refund(ctx context.Context, req RefundPaymentRequest) (*RefundResponse, error)
	HandleWebhook(ctx context.Context, method domain.PaymentMethod, payload []byte) error
}

// --- External collaborators ---

// Notifier dispatches user-facing events, fire-and-forget: a notification
// failure never rolls back a payment state transition.
type Notifier interface {
	Emit(ctx context.Context, userID uuid.UUID, kind string, payload map[string]string) error
}

// Notification event kinds.
const (
	NotifyPaymentInitiated = "payment_initiated"
	NotifyPaymentCompleted = "payment_completed"
	NotifyPaymentFailed    = "payment_failed"
	NotifyPaymentExpired   = "payment_expired"
	NotifyPaymentRefunded  = "payment_refunded"
	NotifyPromotionActive  = "promotion_activated"
	NotifyWalletCredited   = "wallet_credited"
)

// RateSource resolves a fiat price for one unit of a cryptocurrency.
type RateSource interface {
	Rate(ctx context.Context, fiatCurrency, cryptoCurrency string) (decimal.Decimal, error)
}

// TokenClaims is the identity the marketplace resolved for a request.
type TokenClaims struct {
	UserID uuid.UUID
	Role   string // "user" or "admin"
}

// TokenService validates marketplace-issued JWTs. The core never
// authenticates credentials itself.
type TokenService interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// IdempotencyCache is the fast-path (Redis) initiate-response cache.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// NonceStore tracks webhook nonces to reject replayed pushes.
type NonceStore interface {
	// CheckAndSet atomically records a nonce. Returns true if the nonce is
	// new (valid), false if already used.
	CheckAndSet(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}
