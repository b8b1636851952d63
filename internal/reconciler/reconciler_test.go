package reconciler

import (
	"context"
	"testing"
	"time"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/internal/core/ports/mocks"
	"ikaze-payments/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/mock/gomock"
)

type reconcilerTestDeps struct {
	rec        *Reconciler
	txRepo     *mocks.MockTransactionRepository
	registry   *mocks.MockProviderRegistry
	adapter    *mocks.MockProviderAdapter
	settlement *mocks.MockSettlementService
	promoRepo  *mocks.MockPromotionRepository
}

func setupReconciler(t *testing.T) *reconcilerTestDeps {
	ctrl := gomock.NewController(t)
	d := &reconcilerTestDeps{
		txRepo:     mocks.NewMockTransactionRepository(ctrl),
		registry:   mocks.NewMockProviderRegistry(ctrl),
		adapter:    mocks.NewMockProviderAdapter(ctrl),
		settlement: mocks.NewMockSettlementService(ctrl),
		promoRepo:  mocks.NewMockPromotionRepository(ctrl),
	}
	cfg := config.ReconcilerConfig{
		Interval:   time.Minute,
		StaleAfter: 2 * time.Minute,
		ClaimTTL:   10 * time.Minute,
		BatchSize:  50,
	}
	d.rec = New(d.txRepo, d.registry, d.settlement, d.promoRepo, cfg, metrics.New(), zerolog.Nop())
	return d
}

func staleTxn(method domain.PaymentMethod, expiresAt time.Time) domain.PaymentTransaction {
	return domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: domain.NewReference(),
		UserID:    uuid.New(),
		Method:    method,
		Type:      domain.TypeListingPromotion,
		Status:    domain.StatusProcessing,
		CreatedAt: time.Now().Add(-10 * time.Minute),
		ExpiresAt: expiresAt,
	}
}

func TestReconciler_Sweep_SettlesCompletedTransaction(t *testing.T) {
	d := setupReconciler(t)
	ctx := context.Background()
	txn := staleTxn(domain.MethodMTN, time.Now().Add(time.Hour))

	d.txRepo.EXPECT().
		ClaimStale(ctx, gomock.Any(), gomock.Any(), gomock.Any(), 50).
		Return([]domain.PaymentTransaction{txn}, nil)
	d.registry.EXPECT().Get(domain.MethodMTN).Return(d.adapter, nil)
	d.adapter.EXPECT().
		Verify(ctx, gomock.Any()).
		Return(&ports.VerifyResult{Status: ports.ProviderCompleted, Raw: `{"status":"SUCCESSFUL"}`}, nil)
	d.settlement.EXPECT().SettleCompleted(ctx, gomock.Any(), `{"status":"SUCCESSFUL"}`).Return(nil)
	d.promoRepo.EXPECT().ExpireOverdue(ctx, gomock.Any()).Return(int64(0), nil)

	d.rec.Sweep(ctx)
}

func TestReconciler_Sweep_ExpiresOverdueTransaction(t *testing.T) {
	d := setupReconciler(t)
	ctx := context.Background()
	txn := staleTxn(domain.MethodAirtel, time.Now().Add(-time.Minute))

	d.txRepo.EXPECT().
		ClaimStale(ctx, gomock.Any(), gomock.Any(), gomock.Any(), 50).
		Return([]domain.PaymentTransaction{txn}, nil)
	// Overdue rows are expired without a provider round trip.
	d.settlement.EXPECT().Expire(ctx, gomock.Any()).Return(nil)
	d.promoRepo.EXPECT().ExpireOverdue(ctx, gomock.Any()).Return(int64(0), nil)

	d.rec.Sweep(ctx)
}

func TestReconciler_Sweep_PendingAnswerLeavesRow(t *testing.T) {
	d := setupReconciler(t)
	ctx := context.Background()
	txn := staleTxn(domain.MethodMTN, time.Now().Add(time.Hour))

	d.txRepo.EXPECT().
		ClaimStale(ctx, gomock.Any(), gomock.Any(), gomock.Any(), 50).
		Return([]domain.PaymentTransaction{txn}, nil)
	d.registry.EXPECT().Get(domain.MethodMTN).Return(d.adapter, nil)
	d.adapter.EXPECT().
		Verify(ctx, gomock.Any()).
		Return(&ports.VerifyResult{Status: ports.ProviderPending}, nil)
	d.promoRepo.EXPECT().ExpireOverdue(ctx, gomock.Any()).Return(int64(0), nil)

	d.rec.Sweep(ctx)
}

func TestReconciler_Sweep_FailedVerifyDoesNotBlockBatch(t *testing.T) {
	d := setupReconciler(t)
	ctx := context.Background()
	broken := staleTxn(domain.MethodMTN, time.Now().Add(time.Hour))
	healthy := staleTxn(domain.MethodAirtel, time.Now().Add(time.Hour))

	d.txRepo.EXPECT().
		ClaimStale(ctx, gomock.Any(), gomock.Any(), gomock.Any(), 50).
		Return([]domain.PaymentTransaction{broken, healthy}, nil)
	d.registry.EXPECT().Get(domain.MethodMTN).Return(d.adapter, nil)
	d.adapter.EXPECT().Verify(ctx, gomock.Any()).Return(nil, context.DeadlineExceeded)
	d.registry.EXPECT().Get(domain.MethodAirtel).Return(d.adapter, nil)
	d.adapter.EXPECT().
		Verify(ctx, gomock.Any()).
		Return(&ports.VerifyResult{Status: ports.ProviderFailed, Reason: "TF"}, nil)
	d.settlement.EXPECT().SettleFailed(ctx, gomock.Any(), "TF").Return(nil)
	d.promoRepo.EXPECT().ExpireOverdue(ctx, gomock.Any()).Return(int64(0), nil)

	d.rec.Sweep(ctx)
}

func TestReconciler_Sweep_ExpiresOverduePromotions(t *testing.T) {
	d := setupReconciler(t)
	ctx := context.Background()

	d.txRepo.EXPECT().
		ClaimStale(ctx, gomock.Any(), gomock.Any(), gomock.Any(), 50).
		Return(nil, nil)
	d.promoRepo.EXPECT().ExpireOverdue(ctx, gomock.Any()).Return(int64(3), nil)

	d.rec.Sweep(ctx)
}

func TestReconciler_Run_StopsOnContextCancel(t *testing.T) {
	d := setupReconciler(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		d.rec.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop on context cancellation")
	}
}
