package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Reconciler ReconcilerConfig `mapstructure:"reconciler"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// ProvidersConfig configures every payment provider adapter.
type ProvidersConfig struct {
	MTN    MobileMoneyConfig `mapstructure:"mtn"`
	Airtel MobileMoneyConfig `mapstructure:"airtel"`
	Bank   BankConfig        `mapstructure:"bank"`
	Crypto CryptoConfig      `mapstructure:"crypto"`

	// PendingTTL bounds how long an intent may sit without a definitive
	// provider answer before the reconciler expires it.
	PendingTTL time.Duration `mapstructure:"pending_ttl"`

	// WebhookFailClosed rejects webhook pushes when the nonce store is
	// unreachable instead of allowing them on signature alone. Providers
	// retry rejected deliveries, so the cost of closing is latency.
	WebhookFailClosed bool `mapstructure:"webhook_fail_closed"`
}

// MobileMoneyConfig covers the MTN and Airtel collections APIs.
type MobileMoneyConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	SubscriptionKey string        `mapstructure:"subscription_key"`
	WebhookSecret   string        `mapstructure:"webhook_secret"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type BankConfig struct {
	BankName      string `mapstructure:"bank_name"`
	AccountName   string `mapstructure:"account_name"`
	AccountNumber string `mapstructure:"account_number"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type CryptoConfig struct {
	Currency         string        `mapstructure:"currency"` // e.g. USDT
	Network          string        `mapstructure:"network"`
	ReceivingAddress string        `mapstructure:"receiving_address"`
	MinConfirmations int           `mapstructure:"min_confirmations"`
	RateURL          string        `mapstructure:"rate_url"`
	FallbackRate     string        `mapstructure:"fallback_rate"` // fiat per crypto unit
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// ReconcilerConfig drives the periodic reconciliation loop.
type ReconcilerConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	StaleAfter time.Duration `mapstructure:"stale_after"` // age before a pending intent is re-verified
	ClaimTTL   time.Duration `mapstructure:"claim_ttl"`   // how long a claim shields a row from other workers
	BatchSize  int           `mapstructure:"batch_size"`
}

type NotifyConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: IKZ.
// Nested keys use underscore: IKZ_DATABASE_HOST, IKZ_PROVIDERS_MTN_BASE_URL.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "ikaze_payments")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "ikazeproperty")
	v.SetDefault("providers.pending_ttl", "1h")
	v.SetDefault("providers.webhook_fail_closed", false)
	v.SetDefault("providers.mtn.base_url", "https://momodeveloper.mtn.com/collection/v1")
	v.SetDefault("providers.mtn.timeout", "10s")
	v.SetDefault("providers.airtel.base_url", "https://openapi.airtel.africa/merchant/v1")
	v.SetDefault("providers.airtel.timeout", "10s")
	v.SetDefault("providers.bank.bank_name", "Bank of Kigali")
	v.SetDefault("providers.crypto.currency", "USDT")
	v.SetDefault("providers.crypto.network", "ethereum")
	v.SetDefault("providers.crypto.min_confirmations", 12)
	v.SetDefault("providers.crypto.fallback_rate", "1350")
	v.SetDefault("providers.crypto.timeout", "10s")
	v.SetDefault("reconciler.interval", "3m")
	v.SetDefault("reconciler.stale_after", "2m")
	v.SetDefault("reconciler.claim_ttl", "10m")
	v.SetDefault("reconciler.batch_size", 50)
	v.SetDefault("notify.base_url", "")
	v.SetDefault("notify.timeout", "5s")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: IKZ_DATABASE_HOST -> database.host
	v.SetEnvPrefix("IKZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required — env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// WebhookSecret returns the shared secret for a provider's webhook pushes,
// keyed by method name as used in routes.
func (p ProvidersConfig) WebhookSecret(method string) string {
	switch method {
	case "mtn_momo":
		return p.MTN.WebhookSecret
	case "airtel_money":
		return p.Airtel.WebhookSecret
	case "bank_transfer":
		return p.Bank.WebhookSecret
	case "crypto":
		return p.Crypto.WebhookSecret
	}
	return ""
}
