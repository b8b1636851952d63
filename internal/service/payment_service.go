package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"
	"ikaze-payments/pkg/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const idempotencyTTL = 24 * time.Hour

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	registry    ports.ProviderRegistry
	txRepo      ports.TransactionRepository
	catalogRepo ports.CatalogRepository
	promoRepo   ports.PromotionRepository
	idempRepo   ports.IdempotencyRepository
	idempCache  ports.IdempotencyCache
	settlement  ports.SettlementService
	ledger      ports.WalletLedger
	notifier    ports.Notifier
	transactor  ports.DBTransactor
	pendingTTL  time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
}

// NewPaymentService creates the payment service.
func NewPaymentService(
	registry ports.ProviderRegistry,
	txRepo ports.TransactionRepository,
	catalogRepo ports.CatalogRepository,
	promoRepo ports.PromotionRepository,
	idempRepo ports.IdempotencyRepository,
	idempCache ports.IdempotencyCache,
	settlement ports.SettlementService,
	ledger ports.WalletLedger,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	pendingTTL time.Duration,
	m *metrics.Metrics,
	log zerolog.Logger,
) *PaymentServiceImpl {
	return &PaymentServiceImpl{
		registry:    registry,
		txRepo:      txRepo,
		catalogRepo: catalogRepo,
		promoRepo:   promoRepo,
		idempRepo:   idempRepo,
		idempCache:  idempCache,
		settlement:  settlement,
		ledger:      ledger,
		notifier:    notifier,
		transactor:  transactor,
		pendingTTL:  pendingTTL,
		metrics:     m,
		log:         log,
	}
}

// Initiate creates a payment intent and submits it to the provider. Retries
// under the same idempotency key replay the original response without
// creating a second intent.
func (s *PaymentServiceImpl) Initiate(ctx context.Context, req ports.InitiatePaymentRequest) (*ports.InitiatePaymentResponse, error) {
	// Replay before validation: a retry of a payment that already went
	// through must get the original response, not a fresh rejection.
	idempKey := ""
	if req.IdempotencyKey != "" {
		idempKey = domain.BuildIdempotencyKey(req.UserID, req.IdempotencyKey)

		// Layer 1: Redis idempotency check
		cached, err := s.idempCache.Get(ctx, idempKey)
		if err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("redis idempotency check failed, falling through to DB")
		}
		if cached != nil {
			return unmarshalCachedResponse(cached)
		}

		// Layer 2: DB idempotency check
		record, err := s.idempRepo.Get(ctx, idempKey)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("db idempotency check: %w", err))
		}
		if record != nil {
			return unmarshalCachedResponse(record.ResponseJSON)
		}
	}

	txn, err := s.buildTransaction(ctx, req)
	if err != nil {
		return nil, err
	}

	adapter, err := s.registry.Get(txn.Method)
	if err != nil {
		return nil, err
	}

	// For the wallet method this locks the funds synchronously; a shortfall
	// fails here, before any transaction row exists.
	result, err := adapter.Initiate(ctx, ports.InitiateRequest{
		Transaction:    txn,
		PhoneNumber:    req.PhoneNumber,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, err
	}

	if result.ProviderRef != "" {
		txn.ProviderRef = &result.ProviderRef
	}
	if result.Accepted {
		txn.Status = domain.StatusProcessing
	}

	// For wallet payments the funds are locked at this point but no row
	// exists yet, so a failure below must release the lock: the reconciler
	// only sees transactions that made it into the store.
	abort := func(cause error) (*ports.InitiatePaymentResponse, error) {
		if txn.Method == domain.MethodWallet {
			if _, uerr := s.ledger.Unlock(ctx, txn.UserID, txn.Amount, txn.Reference); uerr != nil {
				s.log.Error().Err(uerr).Str("reference", txn.Reference).Msg("releasing wallet lock after failed initiate")
			}
		}
		return nil, cause
	}

	resp := &ports.InitiatePaymentResponse{
		Reference:      txn.Reference,
		Status:         txn.Status,
		Instructions:   result.Instructions,
		ExpiresAt:      txn.ExpiresAt,
		CryptoAmount:   result.CryptoAmount,
		CryptoAddress:  result.CryptoAddress,
		CryptoCurrency: result.CryptoCurrency,
	}
	respJSON, err := json.Marshal(resp)
	if err != nil {
		return abort(apperror.InternalError(fmt.Errorf("marshal response: %w", err)))
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return abort(apperror.InternalError(fmt.Errorf("begin tx: %w", err)))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, txn); err != nil {
		return abort(apperror.InternalError(fmt.Errorf("create transaction: %w", err)))
	}
	if idempKey != "" {
		rec := &domain.IdempotencyRecord{
			Key:           idempKey,
			TransactionID: txn.ID,
			ResponseJSON:  respJSON,
			CreatedAt:     time.Now(),
		}
		if err := s.idempRepo.Create(ctx, dbTx, rec); err != nil {
			return abort(apperror.InternalError(fmt.Errorf("create idempotency record: %w", err)))
		}
	}
	if err := dbTx.Commit(ctx); err != nil {
		return abort(apperror.InternalError(fmt.Errorf("commit tx: %w", err)))
	}

	s.metrics.PaymentsInitiated.WithLabelValues(string(txn.Method)).Inc()
	s.log.Info().
		Str("reference", txn.Reference).
		Str("method", string(txn.Method)).
		Str("type", string(txn.Type)).
		Str("amount", txn.Amount.String()).
		Msg("payment initiated")

	// Wallet payments settle on the spot: the funds are already locked. If
	// settlement fails the reconciler finishes the job.
	if txn.Method == domain.MethodWallet {
		if err := s.settlement.SettleCompleted(ctx, txn, ""); err != nil {
			s.log.Error().Err(err).Str("reference", txn.Reference).Msg("synchronous wallet settlement failed, deferring to reconciler")
		} else {
			resp.Status = domain.StatusCompleted
			respJSON, _ = json.Marshal(resp)
		}
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, respJSON, idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Msg("caching idempotent response failed")
		}
	}

	if err := s.notifier.Emit(ctx, txn.UserID, ports.NotifyPaymentInitiated, map[string]string{
		"reference": txn.Reference,
		"method":    string(txn.Method),
		"amount":    txn.Amount.String(),
	}); err != nil {
		s.log.Warn().Err(err).Str("reference", txn.Reference).Msg("initiate notification failed")
	}

	return resp, nil
}

// buildTransaction validates the request and constructs the pending intent.
// For listing promotions the package price is authoritative, never the
// client-supplied amount, and only the listing owner may promote it.
func (s *PaymentServiceImpl) buildTransaction(ctx context.Context, req ports.InitiatePaymentRequest) (*domain.PaymentTransaction, error) {
	now := time.Now()
	txn := &domain.PaymentTransaction{
		ID:        uuid.New(),
		Reference: domain.NewReference(),
		UserID:    req.UserID,
		Currency:  req.Currency,
		Method:    req.Method,
		Type:      req.Type,
		Status:    domain.StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(s.pendingTTL),
	}
	if txn.Currency == "" {
		txn.Currency = defaultCurrency
	}

	switch req.Type {
	case domain.TypeListingPromotion:
		if req.ListingID == nil || req.PackageID == nil {
			return nil, apperror.Validation("listing_id and package_id are required for listing promotions")
		}
		pkg, err := s.catalogRepo.GetPackage(ctx, *req.PackageID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get package: %w", err))
		}
		if pkg == nil {
			return nil, apperror.ErrNotFound("promotion package")
		}
		listing, err := s.catalogRepo.GetListing(ctx, *req.ListingID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get listing: %w", err))
		}
		if listing == nil {
			return nil, apperror.ErrNotFound("listing")
		}
		if listing.OwnerID != req.UserID {
			return nil, apperror.ErrForbidden()
		}
		// One promotion per listing at a time. The partial unique index on
		// active promotions backstops the race this check cannot close.
		active, err := s.promoRepo.GetActiveByListing(ctx, *req.ListingID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("check active promotion: %w", err))
		}
		if active != nil {
			return nil, apperror.ErrListingAlreadyPromoted()
		}
		txn.Amount = pkg.Price
		txn.Currency = pkg.Currency
		txn.ListingID = req.ListingID
		txn.PackageID = req.PackageID

	case domain.TypeWalletTopup:
		if req.Method == domain.MethodWallet {
			return nil, apperror.Validation("a wallet cannot be topped up from itself")
		}
		if req.Amount.LessThanOrEqual(decimal.Zero) {
			return nil, apperror.ErrInvalidAmount()
		}
		txn.Amount = req.Amount

	default:
		return nil, apperror.Validation(fmt.Sprintf("unknown transaction type %q", req.Type))
	}

	if txn.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}
	return txn, nil
}

// Verify returns the current lifecycle state. A transaction still awaiting
// its provider is re-checked on the spot and settled if the provider already
// knows the outcome; one past its expiry is expired.
func (s *PaymentServiceImpl) Verify(ctx context.Context, userID uuid.UUID, reference string) (*ports.PaymentStatusResponse, error) {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if txn.UserID != userID {
		return nil, apperror.ErrForbidden()
	}

	if txn.Status.IsSettleable() {
		if err := s.refresh(ctx, txn); err != nil {
			s.log.Warn().Err(err).Str("reference", reference).Msg("verify refresh failed, returning stored state")
		}
		fresh, err := s.txRepo.GetByReference(ctx, reference)
		if err == nil && fresh != nil {
			txn = fresh
		}
	}

	return &ports.PaymentStatusResponse{
		Reference:     txn.Reference,
		Status:        txn.Status,
		Method:        txn.Method,
		Type:          txn.Type,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		FailureReason: txn.FailureReason,
		CreatedAt:     txn.CreatedAt,
		ExpiresAt:     txn.ExpiresAt,
		CompletedAt:   txn.CompletedAt,
	}, nil
}

// refresh asks the provider for the current status and settles accordingly.
func (s *PaymentServiceImpl) refresh(ctx context.Context, txn *domain.PaymentTransaction) error {
	if txn.IsOverdue(time.Now()) {
		return s.settlement.Expire(ctx, txn)
	}

	adapter, err := s.registry.Get(txn.Method)
	if err != nil {
		return err
	}
	result, err := adapter.Verify(ctx, txn)
	if err != nil {
		return err
	}

	switch result.Status {
	case ports.ProviderCompleted:
		return s.settlement.SettleCompleted(ctx, txn, result.Raw)
	case ports.ProviderFailed:
		return s.settlement.SettleFailed(ctx, txn, result.Reason)
	}
	return nil
}

// Cancel lets the owner abort a payment that has not settled. Funds locked in
// the wallet are released.
func (s *PaymentServiceImpl) Cancel(ctx context.Context, userID uuid.UUID, reference string) error {
	txn, err := s.txRepo.GetByReference(ctx, reference)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return apperror.ErrNotFound("transaction")
	}
	if txn.UserID != userID {
		return apperror.ErrForbidden()
	}
	if !txn.IsCancellable() {
		return apperror.ErrNotCancellable()
	}
	return s.settlement.SettleFailed(ctx, txn, "cancelled by user")
}

// Refund applies an admin refund to a completed transaction, full or partial.
// The transaction moves to refunded either way; a second refund is illegal.
func (s *PaymentServiceImpl) Refund(ctx context.Context, req ports.RefundPaymentRequest) (*ports.RefundResponse, error) {
	txn, err := s.txRepo.GetByReference(ctx, req.Reference)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
	}
	if txn == nil {
		return nil, apperror.ErrNotFound("transaction")
	}
	if !txn.IsRefundable() {
		return nil, apperror.ErrInvalidRefund()
	}

	amount := txn.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrInvalidAmount()
	}
	if amount.GreaterThan(txn.Amount) {
		return nil, apperror.ErrRefundAmountExceedsOriginal()
	}

	adapter, err := s.registry.Get(txn.Method)
	if err != nil {
		return nil, err
	}
	if err := adapter.Refund(ctx, txn, amount); err != nil {
		return nil, err
	}

	reason := req.Reason
	var failureReason *string
	if reason != "" {
		failureReason = &reason
	}
	moved, err := s.txRepo.Transition(ctx, txn.ID, []domain.TransactionStatus{domain.StatusCompleted}, domain.StatusRefunded, nil, failureReason)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("transition to refunded: %w", err))
	}
	if !moved {
		// Raced with another refund.
		return nil, apperror.ErrInvalidRefund()
	}

	// Wallet-funded payments are credited back directly; external methods
	// return the money through the provider.
	if txn.Method == domain.MethodWallet {
		if _, err := s.ledger.Credit(ctx, txn.UserID, amount, txn.Reference, domain.LedgerRefund); err != nil {
			s.log.Error().Err(err).Str("reference", txn.Reference).Msg("refund credit failed")
			return nil, err
		}
		s.metrics.WalletOperations.WithLabelValues(string(domain.LedgerRefund)).Inc()
	}

	s.log.Info().
		Str("reference", txn.Reference).
		Str("amount", amount.String()).
		Str("reason", reason).
		Msg("payment refunded")

	if err := s.notifier.Emit(ctx, txn.UserID, ports.NotifyPaymentRefunded, map[string]string{
		"reference": txn.Reference,
		"amount":    amount.String(),
	}); err != nil {
		s.log.Warn().Err(err).Str("reference", txn.Reference).Msg("refund notification failed")
	}

	return &ports.RefundResponse{
		Reference: txn.Reference,
		Status:    domain.StatusRefunded,
		Amount:    amount,
	}, nil
}

// HandleWebhook applies an authenticated provider push. Signature, timestamp
// and nonce checks happen in the webhook middleware before this point.
func (s *PaymentServiceImpl) HandleWebhook(ctx context.Context, method domain.PaymentMethod, payload []byte) error {
	adapter, err := s.registry.Get(method)
	if err != nil {
		return err
	}
	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		return err
	}

	txn, err := s.lookupWebhookTransaction(ctx, method, event)
	if err != nil {
		return err
	}
	if txn == nil {
		s.log.Warn().
			Str("method", string(method)).
			Str("reference", event.Reference).
			Str("provider_ref", event.ProviderRef).
			Msg("webhook for unknown transaction")
		return apperror.ErrNotFound("transaction")
	}

	if event.ProviderRef != "" && txn.ProviderRef == nil {
		if err := s.txRepo.SetProviderRef(ctx, txn.ID, event.ProviderRef); err != nil {
			s.log.Warn().Err(err).Str("reference", txn.Reference).Msg("recording provider ref failed")
		}
	}

	switch event.Status {
	case ports.ProviderCompleted:
		return s.settlement.SettleCompleted(ctx, txn, event.Raw)
	case ports.ProviderFailed:
		return s.settlement.SettleFailed(ctx, txn, event.Reason)
	default:
		// An acknowledgement moves a fresh intent into processing.
		if txn.Status == domain.StatusPending {
			if _, err := s.txRepo.Transition(ctx, txn.ID, []domain.TransactionStatus{domain.StatusPending}, domain.StatusProcessing, nil, nil); err != nil {
				return apperror.InternalError(fmt.Errorf("transition to processing: %w", err))
			}
		}
		return nil
	}
}

func (s *PaymentServiceImpl) lookupWebhookTransaction(ctx context.Context, method domain.PaymentMethod, event *ports.WebhookEvent) (*domain.PaymentTransaction, error) {
	if event.Reference != "" {
		txn, err := s.txRepo.GetByReference(ctx, event.Reference)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get transaction: %w", err))
		}
		if txn != nil {
			return txn, nil
		}
	}
	if event.ProviderRef != "" {
		txn, err := s.txRepo.GetByProviderRef(ctx, method, event.ProviderRef)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get transaction by provider ref: %w", err))
		}
		return txn, nil
	}
	return nil, nil
}

func unmarshalCachedResponse(data []byte) (*ports.InitiatePaymentResponse, error) {
	var resp ports.InitiatePaymentResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached response: %w", err))
	}
	return &resp, nil
}
