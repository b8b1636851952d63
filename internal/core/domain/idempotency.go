package domain

import (
	"time"

	"github.com/google/uuid"
)

// IdempotencyRecord caches the response of a completed initiate call so a
// retried request with the same key returns the original result instead of
// creating a second intent.
type IdempotencyRecord struct {
	Key           string    `json:"key"` // "user_id:idempotency_key"
	TransactionID uuid.UUID `json:"transaction_id"`
	ResponseJSON  []byte    `json:"response_json"`
	CreatedAt     time.Time `json:"created_at"`
}

// BuildIdempotencyKey constructs the standard key format.
func BuildIdempotencyKey(userID uuid.UUID, idempotencyKey string) string {
	return userID.String() + ":" + idempotencyKey
}
