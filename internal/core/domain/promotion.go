package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PromotionStatus is the lifecycle state of a listing promotion.
type PromotionStatus string

const (
	PromotionActive    PromotionStatus = "active"
	PromotionExpired   PromotionStatus = "expired"
	PromotionCancelled PromotionStatus = "cancelled"
)

// ListingPromotion marks a listing as promoted for a paid period. At most one
// active promotion exists per listing; the unique constraint on
// TransactionRef makes activation idempotent. Rows are never deleted.
type ListingPromotion struct {
	ID              uuid.UUID       `json:"id"`
	ListingID       uuid.UUID       `json:"listing_id"`
	PackageID       uuid.UUID       `json:"package_id"`
	TransactionRef  string          `json:"transaction_ref"` // unique
	Status          PromotionStatus `json:"status"`
	StartsAt        time.Time       `json:"starts_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ViewsBefore     int64           `json:"views_before"`
	ViewsDuring     int64           `json:"views_during"`
	InquiriesBefore int64           `json:"inquiries_before"`
	InquiriesDuring int64           `json:"inquiries_during"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PromotionPackage is a purchasable promotion tier (read-only catalog data).
type PromotionPackage struct {
	ID           uuid.UUID       `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
}

// Listing is the slice of listing data the payment core reads.
type Listing struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"`
	Title     string    `json:"title"`
	Views     int64     `json:"views"`
	Inquiries int64     `json:"inquiries"`
}
