package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math"
	"strconv"
	"time"

	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/apperror"
	"ikaze-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	// Header names for webhook authentication
	HeaderSignature = "X-Webhook-Signature"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderNonce     = "X-Webhook-Nonce"

	// Max timestamp drift allowed
	maxTimestampDrift = 5 * time.Minute

	// Nonce TTL; must outlive the drift window
	nonceTTL = 10 * time.Minute
)

// SecretLookup resolves the shared webhook secret for a payment method.
type SecretLookup func(method string) string

// WebhookAuth verifies provider pushes on /webhooks/:method.
// Pipeline: check timestamp -> check nonce -> verify HMAC-SHA256 signature
// over "timestamp.nonce.body" with the provider's shared secret.
//
// failClosed decides what a nonce store outage means: rejected (replay
// protection is mandatory) or allowed with the signature and timestamp
// checks still standing (providers retry undelivered webhooks, a rejected
// push is only delayed).
func WebhookAuth(secrets SecretLookup, nonceStore ports.NonceStore, failClosed bool, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Param("method")
		signature := c.GetHeader(HeaderSignature)
		timestampStr := c.GetHeader(HeaderTimestamp)
		nonce := c.GetHeader(HeaderNonce)

		if signature == "" || timestampStr == "" || nonce == "" {
			response.Error(c, apperror.ErrInvalidWebhook())
			c.Abort()
			return
		}

		secret := secrets(method)
		if secret == "" {
			response.Error(c, apperror.ErrUnsupportedMethod(method))
			c.Abort()
			return
		}

		timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
		if err != nil {
			response.Error(c, apperror.ErrInvalidWebhook())
			c.Abort()
			return
		}
		if math.Abs(float64(time.Now().Unix()-timestamp)) > maxTimestampDrift.Seconds() {
			response.Error(c, apperror.ErrInvalidWebhook())
			c.Abort()
			return
		}

		isNew, err := nonceStore.CheckAndSet(c.Request.Context(), method, nonce, nonceTTL)
		if err != nil {
			if failClosed {
				log.Warn().Err(err).Str("method", method).Msg("nonce store error, rejecting request")
				response.Error(c, apperror.ErrInvalidWebhook())
				c.Abort()
				return
			}
			log.Warn().Err(err).Str("method", method).Msg("nonce store error, allowing request")
		} else if !isNew {
			response.Error(c, apperror.ErrInvalidWebhook())
			c.Abort()
			return
		}

		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, apperror.Validation("cannot read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		if !verifySignature(secret, timestampStr, nonce, bodyBytes, signature) {
			log.Warn().Str("method", method).Msg("webhook signature mismatch")
			response.Error(c, apperror.ErrInvalidWebhook())
			c.Abort()
			return
		}

		c.Next()
	}
}

// SignWebhook computes the signature a provider must send. Exposed for tests
// and for local provider simulators.
func SignWebhook(secret, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write([]byte(nonce))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret, timestamp, nonce string, body []byte, signature string) bool {
	expected := SignWebhook(secret, timestamp, nonce, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
