package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ikaze-payments/config"
	httpHandler "ikaze-payments/internal/adapter/http/handler"
	"ikaze-payments/internal/adapter/notify"
	pgStorage "ikaze-payments/internal/adapter/storage/postgres"
	redisStorage "ikaze-payments/internal/adapter/storage/redis"
	"ikaze-payments/internal/core/ports"
	"ikaze-payments/internal/provider"
	"ikaze-payments/internal/reconciler"
	"ikaze-payments/internal/service"
	"ikaze-payments/pkg/logger"
	"ikaze-payments/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("ikaze-payments", cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Ikaze payments service")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories
	txRepo := pgStorage.NewTransactionRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	promoRepo := pgStorage.NewPromotionRepo(pool)
	catalogRepo := pgStorage.NewCatalogRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	idempotencyCache := redisStorage.NewIdempotencyCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	m := metrics.New()
	httpClient := &http.Client{Timeout: 10 * time.Second}

	// Core services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Issuer)
	notifier := notify.NewHTTPNotifier(cfg.Notify, httpClient, log)
	ledgerSvc := service.NewLedgerService(walletRepo, ledgerRepo, transactor, log)
	promotionSvc := service.NewPromotionService(promoRepo, catalogRepo, notifier, log)
	settlementSvc := service.NewSettlementService(txRepo, ledgerSvc, promotionSvc, notifier, m, log)

	// Provider adapters
	rateSource := provider.NewHTTPRateSource(cfg.Providers.Crypto, httpClient, log)
	cryptoAdapter, err := provider.NewCryptoAdapter(cfg.Providers.Crypto, rateSource, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid crypto provider configuration")
	}
	registry := provider.NewRegistry(
		provider.NewMTNAdapter(cfg.Providers.MTN, httpClient, log),
		provider.NewAirtelAdapter(cfg.Providers.Airtel, httpClient, log),
		provider.NewBankAdapter(cfg.Providers.Bank),
		cryptoAdapter,
		provider.NewWalletAdapter(ledgerSvc, log),
	)

	paymentSvc := service.NewPaymentService(
		registry,
		txRepo,
		catalogRepo,
		promoRepo,
		idempotencyRepo,
		idempotencyCache,
		settlementSvc,
		ledgerSvc,
		notifier,
		transactor,
		cfg.Providers.PendingTTL,
		m,
		log,
	)

	// Reconciler: the safety net for missed webhooks and overdue intents.
	reconcileCtx, stopReconciler := context.WithCancel(ctx)
	rec := reconciler.New(txRepo, registry, settlementSvc, promoRepo, cfg.Reconciler, m, log)
	go rec.Run(reconcileCtx)

	// Health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentSvc:        paymentSvc,
		WalletLedger:      ledgerSvc,
		TokenSvc:          tokenSvc,
		NonceStore:        nonceStore,
		WebhookSecrets:    cfg.Providers.WebhookSecret,
		WebhookFailClosed: cfg.Providers.WebhookFailClosed,
		RateLimitStore:    rateLimitStore,
		HealthCheckers:    []ports.HealthChecker{pgHealth, redisHealth},
		Metrics:           m,
		Mode:              cfg.Server.Mode,
		Logger:            log,
	})

	// HTTP server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopReconciler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
