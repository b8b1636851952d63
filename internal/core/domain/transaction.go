package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentMethod identifies the provider that moves the money.
type PaymentMethod string

const (
	MethodMTN    PaymentMethod = "mtn_momo"
	MethodAirtel PaymentMethod = "airtel_money"
	MethodBank   PaymentMethod = "bank_transfer"
	MethodCrypto PaymentMethod = "crypto"
	MethodWallet PaymentMethod = "wallet"
)

// KnownMethods lists every method the core can dispatch on.
func KnownMethods() []PaymentMethod {
	return []PaymentMethod{MethodMTN, MethodAirtel, MethodBank, MethodCrypto, MethodWallet}
}

// ParseMethod validates a raw method string.
func ParseMethod(raw string) (PaymentMethod, error) {
	m := PaymentMethod(strings.ToLower(raw))
	for _, known := range KnownMethods() {
		if m == known {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown payment method %q", raw)
}

// TransactionType says what a completed payment pays for.
type TransactionType string

const (
	TypeListingPromotion TransactionType = "listing_promotion"
	TypeWalletTopup      TransactionType = "wallet_topup"
)

// TransactionStatus is the lifecycle state of a payment transaction.
type TransactionStatus string

const (
	StatusPending    TransactionStatus = "pending"
	StatusProcessing TransactionStatus = "processing"
	StatusCompleted  TransactionStatus = "completed"
	StatusFailed     TransactionStatus = "failed"
	StatusRefunded   TransactionStatus = "refunded"
	StatusExpired    TransactionStatus = "expired"
)

// transitions encodes the legal status edges. Transitions are monotonic:
// pending -> processing -> {completed|failed|expired}, with the single
// backward edge completed -> refunded for admin refunds.
var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusFailed, StatusExpired},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusExpired},
	StatusCompleted:  {StatusRefunded},
	StatusFailed:     {},
	StatusRefunded:   {},
	StatusExpired:    {},
}

// CanTransitionTo reports whether the edge s -> next is legal.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no forward edge except refund.
func (s TransactionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed ||
		s == StatusRefunded || s == StatusExpired
}

// IsSettleable reports whether the reconciler may still act on this status.
func (s TransactionStatus) IsSettleable() bool {
	return s == StatusPending || s == StatusProcessing
}

// PaymentTransaction is the canonical record of a payment intent. Rows are
// never deleted; after creation only status, provider reference/response and
// completion time may change.
type PaymentTransaction struct {
	ID               uuid.UUID         `json:"id"`
	Reference        string            `json:"reference"` // internal, unique
	ProviderRef      *string           `json:"provider_ref,omitempty"`
	UserID           uuid.UUID         `json:"user_id"`
	Amount           decimal.Decimal   `json:"amount"`
	Currency         string            `json:"currency"`
	Method           PaymentMethod     `json:"method"`
	Type             TransactionType   `json:"type"`
	Status           TransactionStatus `json:"status"`
	ListingID        *uuid.UUID        `json:"listing_id,omitempty"`
	PackageID        *uuid.UUID        `json:"package_id,omitempty"`
	ProviderResponse *string           `json:"-"` // raw provider blob, audit only
	FailureReason    *string           `json:"failure_reason,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
	CompletedAt      *time.Time        `json:"completed_at,omitempty"`
	ClaimedAt        *time.Time        `json:"-"` // reconciler claim marker
	ClaimedBy        *string           `json:"-"`
}

// NewReference generates an internal payment reference.
func NewReference() string {
	return "PAY-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:16])
}

// IsRefundable reports whether an admin refund may be applied.
func (t *PaymentTransaction) IsRefundable() bool {
	return t.Status == StatusCompleted
}

// IsCancellable reports whether the user may still cancel.
func (t *PaymentTransaction) IsCancellable() bool {
	return t.Status.IsSettleable()
}

// IsOverdue reports whether the intent outlived its expiry without a
// definitive provider answer.
func (t *PaymentTransaction) IsOverdue(now time.Time) bool {
	return t.Status.IsSettleable() && now.After(t.ExpiresAt)
}

// HoldsWalletLock reports whether funds are locked in a user wallet for this
// transaction and must be released on failure or expiry.
func (t *PaymentTransaction) HoldsWalletLock() bool {
	return t.Method == MethodWallet && t.Status.IsSettleable()
}
