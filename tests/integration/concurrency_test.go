package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"ikaze-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestConcurrentWalletSpends fires 10 simultaneous wallet-funded promotions
// against a balance that covers only 6 of them. Row locking must serialize
// the spends: exactly 6 succeed, the rest fail with the shortfall error, and
// the balance never goes negative.
func TestConcurrentWalletSpends(t *testing.T) {
	app := newTestApp(t)
	userID := uuid.New()
	token := userToken(t, userID, "user")
	app.seedWalletFunds(t, userID, 10000)

	concurrency := 10
	type attempt struct {
		listingID uuid.UUID
		packageID uuid.UUID
	}
	attempts := make([]attempt, concurrency)
	for i := range attempts {
		listingID, packageID := app.seedPromotion(userID, 1500)
		attempts[i] = attempt{listingID: listingID, packageID: packageID}
	}

	var wg sync.WaitGroup
	var successCount, shortfallCount atomic.Int64

	for _, a := range attempts {
		wg.Add(1)
		go func(a attempt) {
			defer wg.Done()
			resp := app.do(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
				"method":     "wallet",
				"type":       "listing_promotion",
				"listing_id": a.listingID.String(),
				"package_id": a.packageID.String(),
			}, nil)
			defer resp.Body.Close()
			switch resp.StatusCode {
			case http.StatusCreated:
				successCount.Add(1)
			case http.StatusPaymentRequired:
				shortfallCount.Add(1)
			default:
				t.Errorf("unexpected status %d", resp.StatusCode)
			}
		}(a)
	}
	wg.Wait()

	// 10000 / 1500 = 6 affordable spends, 1000 left over.
	assert.EqualValues(t, 6, successCount.Load())
	assert.EqualValues(t, 4, shortfallCount.Load())

	bal := app.balance(t, token)
	assert.Equal(t, "1000", bal.Available)
	assert.Equal(t, "0", bal.Locked)
}

// TestConcurrentWebhookSettlement delivers the same success event through
// multiple goroutines at once. The status transition is a compare-and-swap,
// so the wallet is credited exactly once however many deliveries race.
func TestConcurrentWebhookSettlement(t *testing.T) {
	app := newTestApp(t)
	userID := uuid.New()
	token := userToken(t, userID, "user")

	resp := app.do(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
		"method":       "mtn_momo",
		"type":         "wallet_topup",
		"amount":       "5000",
		"phone_number": "+250788123456",
	}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var initiated struct {
		Reference string `json:"reference"`
	}
	decodeData(t, resp, &initiated)

	payload, err := json.Marshal(map[string]string{
		"externalId": initiated.Reference,
		"status":     "SUCCESSFUL",
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := app.paymentSvc.HandleWebhook(context.Background(), domain.MethodMTN, payload)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	txn, err := app.txRepo.GetByReference(context.Background(), initiated.Reference)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, txn.Status)
	assert.Equal(t, "5000", app.balance(t, token).Available)
}

// TestLedgerReplaysToFinalBalance runs a mixed workload and then replays the
// append-only ledger from zero, expecting to land exactly on the wallet's
// final balance pair.
func TestLedgerReplaysToFinalBalance(t *testing.T) {
	app := newTestApp(t)
	userID := uuid.New()
	token := userToken(t, userID, "user")
	app.seedWalletFunds(t, userID, 20000)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		listingID, packageID := app.seedPromotion(userID, 3000)
		wg.Add(1)
		go func(listingID, packageID uuid.UUID) {
			defer wg.Done()
			resp := app.do(t, http.MethodPost, "/api/v1/payments", token, map[string]any{
				"method":     "wallet",
				"type":       "listing_promotion",
				"listing_id": listingID.String(),
				"package_id": packageID.String(),
			}, nil)
			resp.Body.Close()
		}(listingID, packageID)
	}
	wg.Wait()

	wallet, err := app.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)

	entries, _, err := app.ledger.History(context.Background(), userID, 1000, 0)
	require.NoError(t, err)

	available, locked := decimal.Zero, decimal.Zero
	for _, e := range entries {
		assert.True(t, available.Equal(e.PrevAvailable), "entry %s prev available mismatch", e.Type)
		assert.True(t, locked.Equal(e.PrevLocked), "entry %s prev locked mismatch", e.Type)
		var ok bool
		available, locked, ok = domain.Apply(e.Type, available, locked, e.Amount)
		require.True(t, ok)
		assert.True(t, available.Equal(e.NewAvailable))
		assert.True(t, locked.Equal(e.NewLocked))
	}

	assert.True(t, available.Equal(wallet.Available), "replayed %s vs wallet %s", available, wallet.Available)
	assert.True(t, locked.Equal(wallet.Locked))
	assert.False(t, wallet.Available.IsNegative())
}
