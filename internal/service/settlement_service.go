package service

import (
	"context"
	"fmt"

	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"
	"ikaze-payments/pkg/metrics"

	"github.com/rs/zerolog"
)

// SettlementServiceImpl implements ports.SettlementService. Both the webhook
// path and the reconciler settle through it; the conditional status
// transition in the store decides which caller wins, so every outcome is
// applied exactly once regardless of races or replays.
type SettlementServiceImpl struct {
	txRepo    ports.TransactionRepository
	ledger    ports.WalletLedger
	activator ports.PromotionActivator
	notifier  ports.Notifier
	metrics   *metrics.Metrics
	log       zerolog.Logger
}

// NewSettlementService creates the settlement service.
func NewSettlementService(
	txRepo ports.TransactionRepository,
	ledger ports.WalletLedger,
	activator ports.PromotionActivator,
	notifier ports.Notifier,
	m *metrics.Metrics,
	log zerolog.Logger,
) *SettlementServiceImpl {
	return &SettlementServiceImpl{
		txRepo:    txRepo,
		ledger:    ledger,
		activator: activator,
		notifier:  notifier,
		metrics:   m,
		log:       log,
	}
}

// settleableStatuses are the statuses a settlement may move away from.
var settleableStatuses = []domain.TransactionStatus{domain.StatusPending, domain.StatusProcessing}

// SettleCompleted moves the transaction to completed and applies the
// side effects: wallet debit for wallet-funded payments, promotion activation
// or top-up credit depending on the transaction type, and a notification.
// A transaction already settled by another actor is left untouched.
func (s *SettlementServiceImpl) SettleCompleted(ctx context.Context, txn *domain.PaymentTransaction, raw string) error {
	var providerResponse *string
	if raw != "" {
		providerResponse = &raw
	}

	moved, err := s.txRepo.Transition(ctx, txn.ID, settleableStatuses, domain.StatusCompleted, providerResponse, nil)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("transition to completed: %w", err))
	}
	if !moved {
		s.log.Debug().Str("reference", txn.Reference).Msg("settlement replay, transaction already terminal")
		return nil
	}

	if txn.Method == domain.MethodWallet {
		if _, err := s.ledger.Debit(ctx, txn.UserID, txn.Amount, txn.Reference); err != nil {
			// The transition committed; the debit must not be lost. Surface
			// the error so the caller retries against the now-idempotent path.
			s.log.Error().Err(err).Str("reference", txn.Reference).Msg("wallet debit failed after completion")
			return err
		}
		s.metrics.WalletOperations.WithLabelValues(string(domain.LedgerPayment)).Inc()
	}

	switch txn.Type {
	case domain.TypeListingPromotion:
		if err := s.activator.Activate(ctx, txn); err != nil {
			s.log.Error().Err(err).Str("reference", txn.Reference).Msg("promotion activation failed")
			return err
		}
	case domain.TypeWalletTopup:
		if _, err := s.ledger.Credit(ctx, txn.UserID, txn.Amount, txn.Reference, domain.LedgerDeposit); err != nil {
			s.log.Error().Err(err).Str("reference", txn.Reference).Msg("top-up credit failed")
			return err
		}
		s.metrics.WalletOperations.WithLabelValues(string(domain.LedgerDeposit)).Inc()
		s.emit(ctx, txn, ports.NotifyWalletCredited, map[string]string{
			"amount":   txn.Amount.String(),
			"currency": txn.Currency,
		})
	}

	s.metrics.PaymentsSettled.WithLabelValues(string(txn.Method)).Inc()
	s.log.Info().
		Str("reference", txn.Reference).
		Str("method", string(txn.Method)).
		Str("type", string(txn.Type)).
		Msg("payment settled")

	s.emit(ctx, txn, ports.NotifyPaymentCompleted, map[string]string{
		"reference": txn.Reference,
		"amount":    txn.Amount.String(),
		"currency":  txn.Currency,
	})
	return nil
}

// SettleFailed moves the transaction to failed and releases any wallet lock.
func (s *SettlementServiceImpl) SettleFailed(ctx context.Context, txn *domain.PaymentTransaction, reason string) error {
	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}

	moved, err := s.txRepo.Transition(ctx, txn.ID, settleableStatuses, domain.StatusFailed, nil, failureReason)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("transition to failed: %w", err))
	}
	if !moved {
		return nil
	}

	if err := s.releaseLock(ctx, txn); err != nil {
		return err
	}

	s.metrics.PaymentsFailed.WithLabelValues(string(txn.Method)).Inc()
	s.log.Info().
		Str("reference", txn.Reference).
		Str("reason", reason).
		Msg("payment failed")

	s.emit(ctx, txn, ports.NotifyPaymentFailed, map[string]string{
		"reference": txn.Reference,
		"reason":    reason,
	})
	return nil
}

// Expire moves an overdue transaction to expired and releases any wallet lock.
func (s *SettlementServiceImpl) Expire(ctx context.Context, txn *domain.PaymentTransaction) error {
	moved, err := s.txRepo.Transition(ctx, txn.ID, settleableStatuses, domain.StatusExpired, nil, nil)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("transition to expired: %w", err))
	}
	if !moved {
		return nil
	}

	if err := s.releaseLock(ctx, txn); err != nil {
		return err
	}

	s.metrics.PaymentsExpired.WithLabelValues(string(txn.Method)).Inc()
	s.log.Info().Str("reference", txn.Reference).Msg("payment expired")

	s.emit(ctx, txn, ports.NotifyPaymentExpired, map[string]string{
		"reference": txn.Reference,
	})
	return nil
}

func (s *SettlementServiceImpl) releaseLock(ctx context.Context, txn *domain.PaymentTransaction) error {
	if txn.Method != domain.MethodWallet {
		return nil
	}
	if _, err := s.ledger.Unlock(ctx, txn.UserID, txn.Amount, txn.Reference); err != nil {
		s.log.Error().Err(err).Str("reference", txn.Reference).Msg("wallet unlock failed")
		return err
	}
	s.metrics.WalletOperations.WithLabelValues(string(domain.LedgerUnlock)).Inc()
	return nil
}

// emit sends a notification without letting a failure surface: settlement
// outcomes never roll back because the notification service is down.
func (s *SettlementServiceImpl) emit(ctx context.Context, txn *domain.PaymentTransaction, kind string, payload map[string]string) {
	if err := s.notifier.Emit(ctx, txn.UserID, kind, payload); err != nil {
		s.log.Warn().Err(err).Str("reference", txn.Reference).Str("kind", kind).Msg("notification failed")
	}
}
