package dto

import (
	"time"

	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InitiatePaymentRequest is the request body for creating a payment intent.
// Promotions take listing_id and package_id; wallet top-ups take an amount.
type InitiatePaymentRequest struct {
	Method      string  `json:"method" binding:"required,payment_method"`
	Type        string  `json:"type" binding:"required,oneof=listing_promotion wallet_topup"`
	Amount      *string `json:"amount,omitempty" binding:"omitempty,decimal_amount"`
	Currency    string  `json:"currency,omitempty" binding:"omitempty,len=3"`
	PhoneNumber string  `json:"phone_number,omitempty" binding:"omitempty,rw_phone"`
	ListingID   *string `json:"listing_id,omitempty" binding:"omitempty,uuid"`
	PackageID   *string `json:"package_id,omitempty" binding:"omitempty,uuid"`
}

// ToPorts converts the validated body into the service-level request.
func (r InitiatePaymentRequest) ToPorts(userID uuid.UUID, idempotencyKey string) (ports.InitiatePaymentRequest, error) {
	req := ports.InitiatePaymentRequest{
		UserID:         userID,
		Method:         domain.PaymentMethod(r.Method),
		Type:           domain.TransactionType(r.Type),
		Currency:       r.Currency,
		PhoneNumber:    r.PhoneNumber,
		IdempotencyKey: idempotencyKey,
	}
	if r.Amount != nil {
		amount, err := decimal.NewFromString(*r.Amount)
		if err != nil {
			return req, err
		}
		req.Amount = amount
	}
	if r.ListingID != nil {
		id, err := uuid.Parse(*r.ListingID)
		if err != nil {
			return req, err
		}
		req.ListingID = &id
	}
	if r.PackageID != nil {
		id, err := uuid.Parse(*r.PackageID)
		if err != nil {
			return req, err
		}
		req.PackageID = &id
	}
	return req, nil
}

// RefundRequest is the request body for an admin refund.
type RefundRequest struct {
	Amount *string `json:"amount,omitempty" binding:"omitempty,decimal_amount"`
	Reason string  `json:"reason" binding:"required,max=500"`
}

// WalletBalanceResponse is the response for a balance query.
type WalletBalanceResponse struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Currency  string `json:"currency"`
}

// LedgerEntryResponse is one row of wallet history.
type LedgerEntryResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	Amount         string `json:"amount"`
	TransactionRef string `json:"transaction_ref,omitempty"`
	AvailableAfter string `json:"available_after"`
	LockedAfter    string `json:"locked_after"`
	CreatedAt      string `json:"created_at"`
}

// WalletHistoryResponse wraps a paginated ledger listing.
type WalletHistoryResponse struct {
	Items    []LedgerEntryResponse `json:"items"`
	Total    int64                 `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// FromLedgerEntry maps a domain ledger entry to its response shape.
func FromLedgerEntry(e domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:             e.ID.String(),
		Type:           string(e.Type),
		Amount:         e.Amount.String(),
		TransactionRef: e.TransactionRef,
		AvailableAfter: e.NewAvailable.String(),
		LockedAfter:    e.NewLocked.String(),
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339),
	}
}
