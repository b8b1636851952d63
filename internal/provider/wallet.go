package provider

import (
	"context"

	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// WalletAdapter implements ports.ProviderAdapter for the internal wallet.
// Unlike the external providers it settles synchronously: Initiate locks the
// funds inside the ledger and an insufficient balance fails the intent on the
// spot, before any transaction row exists.
type WalletAdapter struct {
	ledger ports.WalletLedger
	log    zerolog.Logger
}

// NewWalletAdapter creates the internal wallet adapter.
func NewWalletAdapter(ledger ports.WalletLedger, log zerolog.Logger) *WalletAdapter {
	return &WalletAdapter{ledger: ledger, log: log}
}

func (a *WalletAdapter) Method() domain.PaymentMethod {
	return domain.MethodWallet
}

// Initiate moves the amount from available to locked. The lock error
// (including the insufficient-balance shortfall) passes through untouched.
func (a *WalletAdapter) Initiate(ctx context.Context, req ports.InitiateRequest) (*ports.InitiateResult, error) {
	t := req.Transaction
	if _, err := a.ledger.Lock(ctx, t.UserID, t.Amount, t.Reference); err != nil {
		return nil, err
	}
	return &ports.InitiateResult{
		ProviderRef: t.Reference,
		Accepted:    true,
	}, nil
}

// Verify reports completed: a wallet transaction only exists once its funds
// are locked, so a stale one found by the reconciler is a settlement that was
// interrupted mid-flight and should be finished, not failed.
func (a *WalletAdapter) Verify(ctx context.Context, t *domain.PaymentTransaction) (*ports.VerifyResult, error) {
	return &ports.VerifyResult{Status: ports.ProviderCompleted}, nil
}

// Refund is a no-op at the adapter level. The settlement layer credits the
// wallet directly through the ledger.
func (a *WalletAdapter) Refund(ctx context.Context, t *domain.PaymentTransaction, amount decimal.Decimal) error {
	return nil
}

// ParseWebhook never succeeds: the wallet has no external push source.
func (a *WalletAdapter) ParseWebhook(payload []byte) (*ports.WebhookEvent, error) {
	return nil, apperror.ErrInvalidWebhook()
}
