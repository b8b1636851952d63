package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"ikaze-payments/config"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// rateCacheTTL bounds how long a fetched rate is reused before the source is
// asked again.
const rateCacheTTL = 5 * time.Minute

// HTTPRateSource implements ports.RateSource against a price feed endpoint.
// A fetched rate is cached; when the feed is unreachable the last good rate
// is reused, and the configured fallback rate covers a cold start.
type HTTPRateSource struct {
	cfg    config.CryptoConfig
	client HTTPClient
	log    zerolog.Logger

	mu        sync.Mutex
	cached    decimal.Decimal
	fetchedAt time.Time
}

// NewHTTPRateSource creates a rate source backed by the configured feed URL.
func NewHTTPRateSource(cfg config.CryptoConfig, client HTTPClient, log zerolog.Logger) *HTTPRateSource {
	return &HTTPRateSource{cfg: cfg, client: client, log: log}
}

type rateResponse struct {
	Rate string `json:"rate"`
}

// Rate returns the fiat price of one crypto unit.
func (s *HTTPRateSource) Rate(ctx context.Context, fiatCurrency, cryptoCurrency string) (decimal.Decimal, error) {
	s.mu.Lock()
	if !s.fetchedAt.IsZero() && time.Since(s.fetchedAt) < rateCacheTTL {
		rate := s.cached
		s.mu.Unlock()
		return rate, nil
	}
	s.mu.Unlock()

	rate, err := s.fetch(ctx, fiatCurrency, cryptoCurrency)
	if err != nil {
		s.log.Warn().Err(err).Msg("rate fetch failed, using fallback")
		return s.fallback()
	}

	s.mu.Lock()
	s.cached = rate
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return rate, nil
}

func (s *HTTPRateSource) fetch(ctx context.Context, fiatCurrency, cryptoCurrency string) (decimal.Decimal, error) {
	if s.cfg.RateURL == "" {
		return decimal.Zero, fmt.Errorf("no rate url configured")
	}

	url := fmt.Sprintf("%s?base=%s&quote=%s", s.cfg.RateURL, cryptoCurrency, fiatCurrency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("building rate request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetching rate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rate feed responded %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading rate response: %w", err)
	}
	var body rateResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return decimal.Zero, fmt.Errorf("decoding rate response: %w", err)
	}

	rate, err := decimal.NewFromString(body.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing rate %q: %w", body.Rate, err)
	}
	if rate.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("non-positive rate %s", rate)
	}
	return rate, nil
}

// fallback prefers the last successfully fetched rate over the static
// configured one.
func (s *HTTPRateSource) fallback() (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.fetchedAt.IsZero() {
		return s.cached, nil
	}
	rate, err := decimal.NewFromString(s.cfg.FallbackRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing fallback rate %q: %w", s.cfg.FallbackRate, err)
	}
	return rate, nil
}
