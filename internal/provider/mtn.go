package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// MTNAdapter implements ports.ProviderAdapter for the MTN MoMo collections
// API. The request-to-pay call is asynchronous: MTN pushes the payer an
// approval prompt and reports the outcome via webhook or polling.
type MTNAdapter struct {
	cfg    config.MobileMoneyConfig
	client HTTPClient
	log    zerolog.Logger
}

// NewMTNAdapter creates the MTN mobile money adapter.
func NewMTNAdapter(cfg config.MobileMoneyConfig, client HTTPClient, log zerolog.Logger) *MTNAdapter {
	return &MTNAdapter{cfg: cfg, client: client, log: log}
}

func (a *MTNAdapter) Method() domain.PaymentMethod {
	return domain.MethodMTN
}

type mtnRequestToPay struct {
	Amount       string   `json:"amount"`
	Currency     string   `json:"currency"`
	ExternalID   string   `json:"externalId"`
	Payer        mtnPayer `json:"payer"`
	PayerMessage string   `json:"payerMessage"`
	PayeeNote    string   `json:"payeeNote"`
}

type mtnPayer struct {
	PartyIDType string `json:"partyIdType"`
	PartyID     string `json:"partyId"`
}

type mtnStatusResponse struct {
	ExternalID string `json:"externalId"`
	Status     string `json:"status"` // PENDING, SUCCESSFUL, FAILED
	Reason     string `json:"reason"`
}

// providerReference derives the MTN X-Reference-Id deterministically from our
// transaction reference, so a retried initiate reuses the same provider-side
// idempotency key.
func mtnProviderReference(reference string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("mtn:"+reference)).String()
}

// Initiate submits a request-to-pay. A timeout leaves the intent pending; an
// explicit rejection surfaces as a provider error.
func (a *MTNAdapter) Initiate(ctx context.Context, req ports.InitiateRequest) (*ports.InitiateResult, error) {
	t := req.Transaction
	providerRef := mtnProviderReference(t.Reference)

	body := mtnRequestToPay{
		Amount:       t.Amount.StringFixed(0),
		Currency:     t.Currency,
		ExternalID:   t.Reference,
		Payer:        mtnPayer{PartyIDType: "MSISDN", PartyID: req.PhoneNumber},
		PayerMessage: "IkazeProperty payment",
		PayeeNote:    t.Reference,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling mtn request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/requesttopay", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building mtn request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Reference-Id", providerRef)
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			// The prompt may have reached the payer; reconciliation decides.
			a.log.Warn().Str("reference", t.Reference).Msg("mtn initiate timed out, leaving pending")
			return &ports.InitiateResult{
				ProviderRef:  providerRef,
				Instructions: "Approve the payment prompt on your phone",
			}, nil
		}
		return nil, apperror.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, apperror.ErrProviderUnavailable(fmt.Errorf("mtn responded %d", resp.StatusCode))
		}
		return nil, apperror.ErrProviderRejected(strings.TrimSpace(string(raw)))
	}

	return &ports.InitiateResult{
		ProviderRef:  providerRef,
		Instructions: "Approve the payment prompt on your phone",
		Accepted:     true,
	}, nil
}

// Verify polls the request-to-pay status. Unknown or unreachable means
// pending.
func (a *MTNAdapter) Verify(ctx context.Context, t *domain.PaymentTransaction) (*ports.VerifyResult, error) {
	providerRef := mtnProviderReference(t.Reference)
	if t.ProviderRef != nil {
		providerRef = *t.ProviderRef
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/requesttopay/"+providerRef, nil)
	if err != nil {
		return nil, fmt.Errorf("building mtn status request: %w", err)
	}
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			return &ports.VerifyResult{Status: ports.ProviderPending}, nil
		}
		return nil, apperror.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return &ports.VerifyResult{Status: ports.ProviderPending, Raw: string(raw)}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("mtn status responded %d", resp.StatusCode))
	}

	var status mtnStatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("decoding mtn status: %w", err)
	}
	return &ports.VerifyResult{
		Status: mtnStatus(status.Status),
		Reason: status.Reason,
		Raw:    string(raw),
	}, nil
}

// Refund issues a disbursement back to the payer for a completed collection.
func (a *MTNAdapter) Refund(ctx context.Context, t *domain.PaymentTransaction, amount decimal.Decimal) error {
	if t.ProviderRef == nil {
		return apperror.ErrInvalidRefund()
	}
	body := map[string]string{
		"amount":              amount.StringFixed(0),
		"currency":            t.Currency,
		"externalId":          t.Reference,
		"referenceIdToRefund": *t.ProviderRef,
	}
	payload, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/refund", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building mtn refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Reference-Id", uuid.NewSHA1(uuid.NameSpaceOID, []byte("mtn-refund:"+t.Reference)).String())
	httpReq.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.SubscriptionKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return apperror.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		raw, _ := io.ReadAll(resp.Body)
		return apperror.ErrProviderRejected(strings.TrimSpace(string(raw)))
	}
	return nil
}

type mtnWebhook struct {
	ReferenceID string `json:"referenceId"`
	ExternalID  string `json:"externalId"`
	Status      string `json:"status"`
	Reason      string `json:"reason"`
}

// ParseWebhook decodes an MTN callback. Signature validation happens in the
// webhook middleware before the payload reaches the adapter.
func (a *MTNAdapter) ParseWebhook(payload []byte) (*ports.WebhookEvent, error) {
	var hook mtnWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperror.ErrInvalidWebhook()
	}
	if hook.ExternalID == "" && hook.ReferenceID == "" {
		return nil, apperror.ErrInvalidWebhook()
	}
	return &ports.WebhookEvent{
		Reference:   hook.ExternalID,
		ProviderRef: hook.ReferenceID,
		Status:      mtnStatus(hook.Status),
		Reason:      hook.Reason,
		Raw:         string(payload),
	}, nil
}

func mtnStatus(s string) ports.ProviderStatus {
	switch strings.ToUpper(s) {
	case "SUCCESSFUL":
		return ports.ProviderCompleted
	case "FAILED":
		return ports.ProviderFailed
	default:
		return ports.ProviderPending
	}
}
