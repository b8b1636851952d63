package reconciler

import (
	"context"
	"fmt"
	"os"
	"time"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Reconciler is the safety net behind webhooks: it periodically claims stale
// pending transactions, re-verifies them against their provider and settles
// the outcome. It also sweeps listing promotions past their expiry. Every
// action funnels through the same idempotent settlement service the webhook
// path uses, so a webhook and a sweep racing on the same transaction cannot
// double-apply.
type Reconciler struct {
	txRepo     ports.TransactionRepository
	registry   ports.ProviderRegistry
	settlement ports.SettlementService
	promoRepo  ports.PromotionRepository
	cfg        config.ReconcilerConfig
	metrics    *metrics.Metrics
	log        zerolog.Logger
	workerID   string
}

// New creates a reconciler with a unique worker identity, so claims made by
// concurrent instances stay distinguishable.
func New(
	txRepo ports.TransactionRepository,
	registry ports.ProviderRegistry,
	settlement ports.SettlementService,
	promoRepo ports.PromotionRepository,
	cfg config.ReconcilerConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *Reconciler {
	host, _ := os.Hostname()
	return &Reconciler{
		txRepo:     txRepo,
		registry:   registry,
		settlement: settlement,
		promoRepo:  promoRepo,
		cfg:        cfg,
		metrics:    m,
		log:        log.With().Str("component", "reconciler").Logger(),
		workerID:   fmt.Sprintf("%s-%s", host, uuid.NewString()[:8]),
	}
}

// Run executes sweeps on the configured interval until the context ends.
// Intended to be started as a goroutine from main.
func (r *Reconciler) Run(ctx context.Context) {
	r.log.Info().
		Str("worker_id", r.workerID).
		Dur("interval", r.cfg.Interval).
		Msg("reconciler started")

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reconciliation pass: stale transactions first, then the
// promotion expiry sweep.
func (r *Reconciler) Sweep(ctx context.Context) {
	r.metrics.ReconcilerRuns.Inc()

	now := time.Now()
	claimed, err := r.txRepo.ClaimStale(ctx, r.workerID, now.Add(-r.cfg.StaleAfter), now.Add(-r.cfg.ClaimTTL), r.cfg.BatchSize)
	if err != nil {
		r.log.Error().Err(err).Msg("claiming stale transactions failed")
	} else {
		r.metrics.ReconcilerClaims.Add(float64(len(claimed)))
		for i := range claimed {
			if err := r.reconcile(ctx, &claimed[i]); err != nil {
				r.log.Warn().Err(err).Str("reference", claimed[i].Reference).Msg("reconcile failed, will retry next sweep")
			}
		}
	}

	swept, err := r.promoRepo.ExpireOverdue(ctx, now)
	if err != nil {
		r.log.Error().Err(err).Msg("promotion expiry sweep failed")
		return
	}
	if swept > 0 {
		r.metrics.PromotionsExpired.Add(float64(swept))
		r.log.Info().Int64("count", swept).Msg("promotions expired")
	}
}

// reconcile settles one claimed transaction. Past the expiry deadline the
// transaction is expired without asking the provider; otherwise the provider
// has the last word, and a still-pending answer leaves the row for the next
// sweep.
func (r *Reconciler) reconcile(ctx context.Context, txn *domain.PaymentTransaction) error {
	if txn.IsOverdue(time.Now()) {
		return r.settlement.Expire(ctx, txn)
	}

	adapter, err := r.registry.Get(txn.Method)
	if err != nil {
		return err
	}
	result, err := adapter.Verify(ctx, txn)
	if err != nil {
		return err
	}

	switch result.Status {
	case ports.ProviderCompleted:
		return r.settlement.SettleCompleted(ctx, txn, result.Raw)
	case ports.ProviderFailed:
		return r.settlement.SettleFailed(ctx, txn, result.Reason)
	default:
		r.log.Debug().Str("reference", txn.Reference).Msg("provider still pending")
		return nil
	}
}
