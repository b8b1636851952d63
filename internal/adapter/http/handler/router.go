package handler

import (
	"ikaze-payments/internal/adapter/http/middleware"
	redisStore "ikaze-payments/internal/adapter/storage/redis"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	WalletLedger   ports.WalletLedger
	TokenSvc       ports.TokenService
	NonceStore     ports.NonceStore
	WebhookSecrets middleware.SecretLookup
	// WebhookFailClosed rejects pushes outright when the nonce store is down.
	WebhookFailClosed bool
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Metrics
	Mode           string
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(64 << 10))

	// Health check (deep: verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	paymentHandler := NewPaymentHandler(deps.PaymentSvc)
	walletHandler := NewWalletHandler(deps.WalletLedger)

	// --- Provider pushes (HMAC-authenticated, no user token) ---
	webhookAuth := middleware.WebhookAuth(deps.WebhookSecrets, deps.NonceStore, deps.WebhookFailClosed, deps.Logger)
	r.POST("/webhooks/:method", rl("webhooks"), webhookAuth, paymentHandler.Webhook)

	// --- JWT-authenticated user routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	v1 := r.Group("/api/v1")

	payments := v1.Group("/payments", jwtAuth)
	{
		payments.POST("", rl("payments"), paymentHandler.Initiate)
		payments.GET("/:reference", rl("payments_read"), paymentHandler.GetStatus)
		payments.POST("/:reference/cancel", rl("payments"), paymentHandler.Cancel)
	}

	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("", rl("wallet"), walletHandler.GetBalance)
		wallet.GET("/transactions", rl("wallet"), walletHandler.GetHistory)
	}

	// --- Admin routes ---
	admin := v1.Group("/admin", jwtAuth, middleware.RequireAdmin())
	{
		admin.POST("/payments/:reference/refund", rl("admin_refund"), paymentHandler.Refund)
	}

	return r
}
