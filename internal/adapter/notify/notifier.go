package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"ikaze-payments/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// retryIntervals spaces out redelivery attempts after a failed push.
var retryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	5 * time.Minute,
}

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Event is the JSON structure posted to the marketplace notification service.
type Event struct {
	UserID    string            `json:"user_id"`
	Kind      string            `json:"kind"`
	Payload   map[string]string `json:"payload"`
	Timestamp int64             `json:"timestamp"`
}

// HTTPNotifier implements ports.Notifier by posting events to the
// marketplace's notification service. Delivery is asynchronous: Emit returns
// after the event is handed to a delivery goroutine, and failed deliveries
// are retried on a fixed schedule. The notification service fans out to
// email, SMS and in-app channels itself.
type HTTPNotifier struct {
	cfg       config.NotifyConfig
	client    HTTPClient
	log       zerolog.Logger
	intervals []time.Duration
}

// NewHTTPNotifier creates the marketplace notifier.
func NewHTTPNotifier(cfg config.NotifyConfig, client HTTPClient, log zerolog.Logger) *HTTPNotifier {
	return &HTTPNotifier{
		cfg:       cfg,
		client:    client,
		log:       log,
		intervals: retryIntervals,
	}
}

// Emit queues a notification for delivery. A blank base URL disables
// notifications entirely, which keeps local development quiet.
func (n *HTTPNotifier) Emit(ctx context.Context, userID uuid.UUID, kind string, payload map[string]string) error {
	if n.cfg.BaseURL == "" {
		n.log.Debug().Str("kind", kind).Msg("notify: no endpoint configured, skipping")
		return nil
	}

	event := Event{
		UserID:    userID.String(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().Unix(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	go n.deliverWithRetries(body, kind)
	return nil
}

// deliverWithRetries posts the event until the notification service accepts
// it or the retry schedule runs out.
func (n *HTTPNotifier) deliverWithRetries(body []byte, kind string) {
	url := n.cfg.BaseURL + "/internal/notifications"

	for attempt := 0; attempt <= len(n.intervals); attempt++ {
		if attempt > 0 {
			time.Sleep(n.intervals[attempt-1])
		}

		ctx, cancel := context.WithTimeout(context.Background(), n.cfg.Timeout)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			cancel()
			n.log.Error().Err(err).Str("kind", kind).Msg("notify: building request failed")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-Key", n.cfg.APIKey)

		resp, err := n.client.Do(req)
		cancel()
		if err != nil {
			n.log.Warn().Err(err).Str("kind", kind).Int("attempt", attempt+1).Msg("notify: delivery failed")
			continue
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			n.log.Debug().Str("kind", kind).Int("attempt", attempt+1).Msg("notify: delivered")
			return
		}
		n.log.Warn().Str("kind", kind).Int("attempt", attempt+1).Int("status", resp.StatusCode).Msg("notify: non-2xx response, retrying")
	}

	n.log.Error().Str("kind", kind).Msg("notify: all retry attempts exhausted")
}
