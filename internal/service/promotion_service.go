package service

import (
	"context"
	"fmt"
	"time"

	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PromotionService implements ports.PromotionActivator. Activation is
// idempotent: the promotion row is keyed by the payment transaction
// reference, so replays of the same completed payment are no-ops.
type PromotionService struct {
	promoRepo   ports.PromotionRepository
	catalogRepo ports.CatalogRepository
	notifier    ports.Notifier
	log         zerolog.Logger
}

// NewPromotionService creates the promotion activator.
func NewPromotionService(
	promoRepo ports.PromotionRepository,
	catalogRepo ports.CatalogRepository,
	notifier ports.Notifier,
	log zerolog.Logger,
) *PromotionService {
	return &PromotionService{
		promoRepo:   promoRepo,
		catalogRepo: catalogRepo,
		notifier:    notifier,
		log:         log,
	}
}

// Activate creates the promotion paid for by a completed transaction.
// Repeat invocations with the same transaction return without effect.
func (s *PromotionService) Activate(ctx context.Context, txn *domain.PaymentTransaction) error {
	if txn.ListingID == nil || txn.PackageID == nil {
		return apperror.ErrLedgerInvariant(fmt.Sprintf("promotion payment %s has no listing or package", txn.Reference))
	}

	pkg, err := s.catalogRepo.GetPackage(ctx, *txn.PackageID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get package: %w", err))
	}
	if pkg == nil {
		return apperror.ErrNotFound("promotion package")
	}

	listing, err := s.catalogRepo.GetListing(ctx, *txn.ListingID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get listing: %w", err))
	}
	if listing == nil {
		return apperror.ErrNotFound("listing")
	}

	// At most one active promotion per listing. A replay of the payment that
	// owns the active promotion is a no-op; a different payment racing past
	// the initiate check is skipped, never stacked.
	active, err := s.promoRepo.GetActiveByListing(ctx, *txn.ListingID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("check active promotion: %w", err))
	}
	if active != nil {
		if active.TransactionRef == txn.Reference {
			s.log.Debug().Str("transaction_ref", txn.Reference).Msg("promotion already active, activation replayed")
			return nil
		}
		s.log.Warn().
			Str("listing_id", txn.ListingID.String()).
			Str("transaction_ref", txn.Reference).
			Str("active_transaction_ref", active.TransactionRef).
			Msg("listing already promoted by another payment, activation skipped")
		return nil
	}

	now := time.Now()
	promo := &domain.ListingPromotion{
		ID:              uuid.New(),
		ListingID:       *txn.ListingID,
		PackageID:       pkg.ID,
		TransactionRef:  txn.Reference,
		Status:          domain.PromotionActive,
		StartsAt:        now,
		ExpiresAt:       now.AddDate(0, 0, pkg.DurationDays),
		ViewsBefore:     listing.Views,
		InquiriesBefore: listing.Inquiries,
		CreatedAt:       now,
	}

	created, err := s.promoRepo.CreateIfAbsent(ctx, promo)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("create promotion: %w", err))
	}
	if !created {
		// Replay of an already-activated payment.
		existing, err := s.promoRepo.GetByTransactionRef(ctx, txn.Reference)
		if err == nil && existing != nil && existing.ListingID != promo.ListingID {
			s.log.Error().
				Str("transaction_ref", txn.Reference).
				Str("existing_listing", existing.ListingID.String()).
				Str("requested_listing", promo.ListingID.String()).
				Msg("activation replay targets a different listing")
			return apperror.ErrDuplicateActivation(txn.Reference)
		}
		s.log.Debug().Str("transaction_ref", txn.Reference).Msg("promotion already active, activation replayed")
		return nil
	}

	s.log.Info().
		Str("transaction_ref", txn.Reference).
		Str("listing_id", promo.ListingID.String()).
		Time("expires_at", promo.ExpiresAt).
		Msg("promotion activated")

	if err := s.notifier.Emit(ctx, txn.UserID, ports.NotifyPromotionActive, map[string]string{
		"listing_id": promo.ListingID.String(),
		"expires_at": promo.ExpiresAt.Format(time.RFC3339),
	}); err != nil {
		s.log.Warn().Err(err).Str("transaction_ref", txn.Reference).Msg("promotion notification failed")
	}

	return nil
}
