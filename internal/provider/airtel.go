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

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AirtelAdapter implements ports.ProviderAdapter for the Airtel Money
// merchant payments API. Flow mirrors MTN: asynchronous USSD push, outcome
// via webhook or polling.
type AirtelAdapter struct {
	cfg    config.MobileMoneyConfig
	client HTTPClient
	log    zerolog.Logger
}

// NewAirtelAdapter creates the Airtel Money adapter.
func NewAirtelAdapter(cfg config.MobileMoneyConfig, client HTTPClient, log zerolog.Logger) *AirtelAdapter {
	return &AirtelAdapter{cfg: cfg, client: client, log: log}
}

func (a *AirtelAdapter) Method() domain.PaymentMethod {
	return domain.MethodAirtel
}

type airtelPaymentRequest struct {
	Reference   string            `json:"reference"`
	Subscriber  airtelSubscriber  `json:"subscriber"`
	Transaction airtelTransaction `json:"transaction"`
}

type airtelSubscriber struct {
	Msisdn string `json:"msisdn"`
}

type airtelTransaction struct {
	ID       string `json:"id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Country  string `json:"country"`
}

type airtelStatusEnvelope struct {
	Data struct {
		Transaction struct {
			ID      string `json:"id"`
			Status  string `json:"status"` // TIP, TS, TF
			Message string `json:"message"`
		} `json:"transaction"`
	} `json:"data"`
}

// Initiate pushes a USSD payment prompt to the subscriber. Airtel uses our
// reference as the transaction id, so retries are provider-side idempotent.
func (a *AirtelAdapter) Initiate(ctx context.Context, req ports.InitiateRequest) (*ports.InitiateResult, error) {
	t := req.Transaction

	body := airtelPaymentRequest{
		Reference:  "IkazeProperty payment",
		Subscriber: airtelSubscriber{Msisdn: req.PhoneNumber},
		Transaction: airtelTransaction{
			ID:       t.Reference,
			Amount:   t.Amount.StringFixed(0),
			Currency: t.Currency,
			Country:  "RW",
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling airtel request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/payments", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building airtel request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.SubscriptionKey)
	httpReq.Header.Set("X-Country", "RW")
	httpReq.Header.Set("X-Currency", t.Currency)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if isTimeout(err) {
			a.log.Warn().Str("reference", t.Reference).Msg("airtel initiate timed out, leaving pending")
			return &ports.InitiateResult{
				ProviderRef:  t.Reference,
				Instructions: "Enter your Airtel Money PIN to approve the payment",
			}, nil
		}
		return nil, apperror.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			return nil, apperror.ErrProviderUnavailable(fmt.Errorf("airtel responded %d", resp.StatusCode))
		}
		return nil, apperror.ErrProviderRejected(strings.TrimSpace(string(raw)))
	}

	return &ports.InitiateResult{
		ProviderRef:  t.Reference,
		Instructions: "Enter your Airtel Money PIN to approve the payment",
		Accepted:     true,
	}, nil
}

// Verify polls the payment status by transaction id.
func (a *AirtelAdapter) Verify(ctx context.Context, t *domain.PaymentTransaction) (*ports.VerifyResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.BaseURL+"/payments/"+t.Reference, nil)
	if err != nil {
		return nil, fmt.Errorf("building airtel status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.SubscriptionKey)
	httpReq.Header.Set("X-Country", "RW")
	httpReq.Header.Set("X-Currency", t.Currency)

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
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("airtel status responded %d", resp.StatusCode))
	}

	var envelope airtelStatusEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding airtel status: %w", err)
	}
	return &ports.VerifyResult{
		Status: airtelStatus(envelope.Data.Transaction.Status),
		Reason: envelope.Data.Transaction.Message,
		Raw:    string(raw),
	}, nil
}

// Refund issues a refund for a completed Airtel collection.
func (a *AirtelAdapter) Refund(ctx context.Context, t *domain.PaymentTransaction, amount decimal.Decimal) error {
	body := map[string]any{
		"transaction": map[string]string{
			"airtel_money_id": t.Reference,
			"amount":          amount.StringFixed(0),
		},
	}
	payload, _ := json.Marshal(body)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/payments/refund", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building airtel refund request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.SubscriptionKey)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return apperror.ErrProviderUnavailable(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return apperror.ErrProviderRejected(strings.TrimSpace(string(raw)))
	}
	return nil
}

type airtelWebhook struct {
	Transaction struct {
		ID         string `json:"id"`
		AirtelRef  string `json:"airtel_money_id"`
		StatusCode string `json:"status_code"`
		Message    string `json:"message"`
	} `json:"transaction"`
}

// ParseWebhook decodes an Airtel callback.
func (a *AirtelAdapter) ParseWebhook(payload []byte) (*ports.WebhookEvent, error) {
	var hook airtelWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperror.ErrInvalidWebhook()
	}
	if hook.Transaction.ID == "" {
		return nil, apperror.ErrInvalidWebhook()
	}
	return &ports.WebhookEvent{
		Reference:   hook.Transaction.ID,
		ProviderRef: hook.Transaction.AirtelRef,
		Status:      airtelStatus(hook.Transaction.StatusCode),
		Reason:      hook.Transaction.Message,
		Raw:         string(payload),
	}, nil
}

func airtelStatus(code string) ports.ProviderStatus {
	switch strings.ToUpper(code) {
	case "TS": // transaction success
		return ports.ProviderCompleted
	case "TF": // transaction failed
		return ports.ProviderFailed
	default: // TIP and anything unknown stays in progress
		return ports.ProviderPending
	}
}
