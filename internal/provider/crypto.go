package provider

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"ikaze-payments/config"
	"ikaze-payments/internal/core/domain"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"
)

// cryptoAmountPlaces is the precision quoted to the payer. Stablecoin
// transfers below 6 decimals are not representable on most networks anyway.
const cryptoAmountPlaces = 6

// CryptoAdapter implements ports.ProviderAdapter for on-chain stablecoin
// payments. Initiate quotes a crypto amount at the current rate and hands out
// the receiving address; settlement is observed by a chain watcher that
// pushes webhooks as confirmations accumulate.
type CryptoAdapter struct {
	cfg   config.CryptoConfig
	rates ports.RateSource
	log   zerolog.Logger

	receivingAddress string
}

// NewCryptoAdapter creates the crypto adapter. The configured receiving
// address must be a valid EIP-55 address.
func NewCryptoAdapter(cfg config.CryptoConfig, rates ports.RateSource, log zerolog.Logger) (*CryptoAdapter, error) {
	addr, err := ChecksumAddress(cfg.ReceivingAddress)
	if err != nil {
		return nil, fmt.Errorf("invalid receiving address: %w", err)
	}
	return &CryptoAdapter{cfg: cfg, rates: rates, log: log, receivingAddress: addr}, nil
}

func (a *CryptoAdapter) Method() domain.PaymentMethod {
	return domain.MethodCrypto
}

// Initiate converts the fiat amount at the current rate and returns the
// receiving address. The payment stays pending until the chain watcher
// reports enough confirmations.
func (a *CryptoAdapter) Initiate(ctx context.Context, req ports.InitiateRequest) (*ports.InitiateResult, error) {
	t := req.Transaction

	rate, err := a.rates.Rate(ctx, t.Currency, a.cfg.Currency)
	if err != nil {
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("resolving %s/%s rate: %w", t.Currency, a.cfg.Currency, err))
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return nil, apperror.ErrProviderUnavailable(fmt.Errorf("non-positive %s/%s rate", t.Currency, a.cfg.Currency))
	}

	cryptoAmount := t.Amount.DivRound(rate, cryptoAmountPlaces)

	a.log.Info().
		Str("reference", t.Reference).
		Str("rate", rate.String()).
		Str("crypto_amount", cryptoAmount.String()).
		Msg("crypto payment quoted")

	return &ports.InitiateResult{
		Instructions: fmt.Sprintf(
			"Send exactly %s %s on %s to %s. The payment completes after %d confirmations.",
			cryptoAmount.String(), a.cfg.Currency, a.cfg.Network, a.receivingAddress, a.cfg.MinConfirmations,
		),
		CryptoAmount:   &cryptoAmount,
		CryptoAddress:  a.receivingAddress,
		CryptoCurrency: a.cfg.Currency,
	}, nil
}

// Verify has no chain client to ask; on-chain progress arrives only through
// the watcher's webhooks, so the answer is always pending.
func (a *CryptoAdapter) Verify(ctx context.Context, t *domain.PaymentTransaction) (*ports.VerifyResult, error) {
	return &ports.VerifyResult{Status: ports.ProviderPending}, nil
}

// Refund of an on-chain payment is a manual outbound transfer.
func (a *CryptoAdapter) Refund(ctx context.Context, t *domain.PaymentTransaction, amount decimal.Decimal) error {
	return apperror.ErrProviderRejected("crypto refunds are settled manually")
}

type cryptoWebhook struct {
	Reference     string `json:"reference"`
	TxHash        string `json:"tx_hash"`
	Confirmations int    `json:"confirmations"`
	Status        string `json:"status"` // confirmed, failed
	Reason        string `json:"reason"`
}

// ParseWebhook decodes a chain watcher push. Confirmations below the
// configured threshold keep the payment pending.
func (a *CryptoAdapter) ParseWebhook(payload []byte) (*ports.WebhookEvent, error) {
	var hook cryptoWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, apperror.ErrInvalidWebhook()
	}
	if hook.Reference == "" || hook.TxHash == "" {
		return nil, apperror.ErrInvalidWebhook()
	}

	status := ports.ProviderPending
	switch strings.ToLower(hook.Status) {
	case "failed":
		status = ports.ProviderFailed
	case "confirmed":
		if hook.Confirmations >= a.cfg.MinConfirmations {
			status = ports.ProviderCompleted
		}
	}

	return &ports.WebhookEvent{
		Reference:   hook.Reference,
		ProviderRef: hook.TxHash,
		Status:      status,
		Reason:      hook.Reason,
		Raw:         string(payload),
	}, nil
}

// ChecksumAddress validates a hex Ethereum address and returns it in EIP-55
// mixed-case checksum form.
func ChecksumAddress(address string) (string, error) {
	addr := strings.TrimPrefix(strings.TrimSpace(address), "0x")
	if len(addr) != 40 {
		return "", fmt.Errorf("address must be 40 hex characters, got %d", len(addr))
	}
	lower := strings.ToLower(addr)
	if _, err := hex.DecodeString(lower); err != nil {
		return "", fmt.Errorf("address is not valid hex")
	}

	hash := sha3.NewLegacyKeccak256()
	hash.Write([]byte(lower))
	digest := hash.Sum(nil)

	var b strings.Builder
	b.WriteString("0x")
	for i, c := range lower {
		if c >= 'a' && c <= 'f' {
			// Uppercase when the corresponding hash nibble is >= 8.
			nibble := digest[i/2]
			if i%2 == 0 {
				nibble >>= 4
			}
			if nibble&0x0f >= 8 {
				b.WriteRune(c - 32)
				continue
			}
		}
		b.WriteRune(c)
	}
	return b.String(), nil
}
