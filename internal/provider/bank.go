package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/shopspring/decimal"
)

// BankAdapter implements ports.ProviderAdapter for manual bank transfers.
// There is no API call: initiate hands the payer transfer instructions and
// the transaction completes only when the back office (or the bank's
// notification feed) confirms receipt through the webhook route.
type BankAdapter struct {
	cfg config.BankConfig
}

// NewBankAdapter creates the bank transfer adapter.
func NewBankAdapter(cfg config.BankConfig) *BankAdapter {
	return &BankAdapter{cfg: cfg}
}

func (a *BankAdapter) Method() domain.PaymentMethod {
	return domain.MethodBank
}

// Initiate returns wire instructions. Nothing is submitted anywhere, so the
// intent stays pending until confirmed.
func (a *BankAdapter) Initiate(ctx context.Context, req ports.InitiateRequest) (*ports.InitiateResult, error) {
	t := req.Transaction
	instructions := fmt.Sprintf(
		"Transfer %s %s to %s, account %s (%s). Use %s as the payment reference.",
		t.Amount.StringFixed(0), t.Currency,
		a.cfg.BankName, a.cfg.AccountNumber, a.cfg.AccountName,
		t.Reference,
	)
	return &ports.InitiateResult{Instructions: instructions}, nil
}

// Verify cannot observe a manual transfer; the answer is always pending.
// Confirmation arrives through the webhook route, and unconfirmed transfers
// expire through the reconciler.
func (a *BankAdapter) Verify(ctx context.Context, t *domain.PaymentTransaction) (*ports.VerifyResult, error) {
	return &ports.VerifyResult{Status: ports.ProviderPending}, nil
}

// Refund of a bank transfer is an out-of-band wire back to the payer.
func (a *BankAdapter) Refund(ctx context.Context, t *domain.PaymentTransaction, amount decimal.Decimal) error {
	return apperror.ErrProviderRejected("bank transfer refunds are settled manually")
}

type bankWebhook struct {
	Reference string `json:"reference"`
	Status    string `json:"status"` // received, rejected
	BankRef   string `json:"bank_ref"`
	Reason    string `json:"reason"`
}

// ParseWebhook decodes a back-office confirmation push.
func (a *BankAdapter) ParseWebhook(payload []byte) (*ports.WebhookEvent, error) {
	var hook bankWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperror.ErrInvalidWebhook()
	}
	if hook.Reference == "" {
		return nil, apperror.ErrInvalidWebhook()
	}

	status := ports.ProviderPending
	switch strings.ToLower(hook.Status) {
	case "received":
		status = ports.ProviderCompleted
	case "rejected":
		status = ports.ProviderFailed
	}

	return &ports.WebhookEvent{
		Reference:   hook.Reference,
		ProviderRef: hook.BankRef,
		Status:      status,
		Reason:      hook.Reason,
		Raw:         string(payload),
	}, nil
}
