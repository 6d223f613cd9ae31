/**
 * @description
 * This package handles the configuration management for the payout gateway. It uses the
 * Viper library to read configuration from environment variables or an optional .env
 * file, and turns the raw routing settings into an immutable payout policy.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 * - github.com/shopspring/decimal: For the decimal payout ceiling.
 */

package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/transfa/payout-gateway/internal/domain"
)

const (
	defaultSupportedCurrencies = "USD,EUR,GBP"
	defaultEURDailyLimit       = "5000.00"
	defaultIdempotencyPrefix   = "payout_gateway:idempotency"
)

// Config holds all the configuration variables for the payout gateway.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	SharedSecret             string `mapstructure:"FIM_SHARED_SECRET"`
	SignatureHeader          string `mapstructure:"SIGNATURE_HEADER"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisIdempotencyPrefix   string `mapstructure:"REDIS_IDEMPOTENCY_PREFIX"`
	IdempotencyTTLMinutes    int    `mapstructure:"IDEMPOTENCY_TTL_MINUTES"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	PayoutEventsExchange     string `mapstructure:"PAYOUT_EVENTS_EXCHANGE"`
	PayoutAPIBaseURL         string `mapstructure:"PAYOUT_API_BASE_URL"`
	PayoutAPIKey             string `mapstructure:"PAYOUT_API_KEY"`
	PayoutMethod             string `mapstructure:"PAYOUT_METHOD"`
	PayoutStatementDesc      string `mapstructure:"PAYOUT_STATEMENT_DESCRIPTOR"`
	SupportedCurrencies      string `mapstructure:"SUPPORTED_CURRENCIES"`
	EURDailyLimit            string `mapstructure:"EUR_DAILY_LIMIT"`
	LedgerTimeoutSeconds     int    `mapstructure:"LEDGER_TIMEOUT_SECONDS"`
	PayoutTimeoutSeconds     int    `mapstructure:"PAYOUT_TIMEOUT_SECONDS"`
	MaxBodyBytes             int64  `mapstructure:"MAX_BODY_BYTES"`
	AdminJWTSecret           string `mapstructure:"ADMIN_JWT_SECRET"`
	LedgerDigestSchedule     string `mapstructure:"LEDGER_DIGEST_SCHEDULE"`

	// DestinationAccountByCode is filled from <CCY>_BANK_ID for each supported currency.
	DestinationAccountByCode map[string]string `mapstructure:"-"`
}

// LoadConfig reads configuration from environment variables from the given path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SIGNATURE_HEADER", "X-FIM-Signature")
	viper.SetDefault("REDIS_IDEMPOTENCY_PREFIX", defaultIdempotencyPrefix)
	viper.SetDefault("IDEMPOTENCY_TTL_MINUTES", 1440)
	viper.SetDefault("PAYOUT_EVENTS_EXCHANGE", "payout_events")
	viper.SetDefault("PAYOUT_API_BASE_URL", "https://api.stripe.com")
	viper.SetDefault("PAYOUT_METHOD", "standard")
	viper.SetDefault("PAYOUT_STATEMENT_DESCRIPTOR", "Payouts")
	viper.SetDefault("SUPPORTED_CURRENCIES", defaultSupportedCurrencies)
	viper.SetDefault("EUR_DAILY_LIMIT", defaultEURDailyLimit)
	viper.SetDefault("LEDGER_TIMEOUT_SECONDS", 5)
	viper.SetDefault("PAYOUT_TIMEOUT_SECONDS", 15)
	viper.SetDefault("MAX_BODY_BYTES", 1<<20)
	viper.SetDefault("LEDGER_DIGEST_SCHEDULE", "5 0 * * *")

	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("FIM_SHARED_SECRET", "FIM_SHARED_SECRET", "FIMSHAREDSECRET")
	_ = viper.BindEnv("SIGNATURE_HEADER")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("REDIS_URL")
	_ = viper.BindEnv("REDIS_IDEMPOTENCY_PREFIX")
	_ = viper.BindEnv("IDEMPOTENCY_TTL_MINUTES")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("PAYOUT_EVENTS_EXCHANGE")
	_ = viper.BindEnv("PAYOUT_API_BASE_URL")
	_ = viper.BindEnv("PAYOUT_API_KEY", "PAYOUT_API_KEY", "STRIPE_SECRET_KEY")
	_ = viper.BindEnv("PAYOUT_METHOD")
	_ = viper.BindEnv("PAYOUT_STATEMENT_DESCRIPTOR")
	_ = viper.BindEnv("SUPPORTED_CURRENCIES")
	_ = viper.BindEnv("EUR_DAILY_LIMIT")
	_ = viper.BindEnv("LEDGER_TIMEOUT_SECONDS")
	_ = viper.BindEnv("PAYOUT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("MAX_BODY_BYTES")
	_ = viper.BindEnv("ADMIN_JWT_SECRET")
	_ = viper.BindEnv("LEDGER_DIGEST_SCHEDULE")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.SharedSecret = strings.TrimSpace(config.SharedSecret)
	config.PayoutAPIKey = strings.TrimSpace(config.PayoutAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisIdempotencyPrefix = strings.TrimSpace(config.RedisIdempotencyPrefix)
	if config.RedisIdempotencyPrefix == "" {
		config.RedisIdempotencyPrefix = defaultIdempotencyPrefix
	}
	if strings.TrimSpace(config.SupportedCurrencies) == "" {
		config.SupportedCurrencies = defaultSupportedCurrencies
	}
	if config.IdempotencyTTLMinutes <= 0 {
		config.IdempotencyTTLMinutes = 1440
	}
	if config.LedgerTimeoutSeconds <= 0 {
		config.LedgerTimeoutSeconds = 5
	}
	if config.PayoutTimeoutSeconds <= 0 {
		config.PayoutTimeoutSeconds = 15
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}

	config.DestinationAccountByCode = make(map[string]string)
	for _, code := range config.CurrencyCodes() {
		key := code + "_BANK_ID"
		_ = viper.BindEnv(key)
		if dest := strings.TrimSpace(viper.GetString(key)); dest != "" {
			config.DestinationAccountByCode[code] = dest
		}
	}

	return
}

// CurrencyCodes returns the normalized supported currency list.
func (c Config) CurrencyCodes() []string {
	var codes []string
	seen := make(map[string]struct{})
	for _, raw := range strings.Split(c.SupportedCurrencies, ",") {
		code := strings.ToUpper(strings.TrimSpace(raw))
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// PayoutPolicy builds the immutable routing policy from the loaded settings.
func (c Config) PayoutPolicy() (domain.PayoutPolicy, error) {
	limitRaw := strings.TrimSpace(c.EURDailyLimit)
	if limitRaw == "" {
		limitRaw = defaultEURDailyLimit
	}
	ceiling, err := decimal.NewFromString(limitRaw)
	if err != nil {
		return domain.PayoutPolicy{}, fmt.Errorf("invalid EUR_DAILY_LIMIT %q: %w", limitRaw, err)
	}
	if !ceiling.IsPositive() {
		return domain.PayoutPolicy{}, fmt.Errorf("EUR_DAILY_LIMIT must be positive, got %s", limitRaw)
	}

	supported := make(map[string]struct{})
	for _, code := range c.CurrencyCodes() {
		supported[code] = struct{}{}
	}
	destinations := make(map[string]string, len(c.DestinationAccountByCode))
	for code, dest := range c.DestinationAccountByCode {
		destinations[strings.ToUpper(code)] = dest
	}

	return domain.PayoutPolicy{
		SupportedCurrencies: supported,
		Destinations:        destinations,
		EURDailyCeiling:     domain.QuantizeAmount(ceiling),
		Method:              c.PayoutMethod,
		Descriptor:          c.PayoutStatementDesc,
	}, nil
}

// LedgerTimeout bounds a single ledger call.
func (c Config) LedgerTimeout() time.Duration {
	return time.Duration(c.LedgerTimeoutSeconds) * time.Second
}

// PayoutTimeout bounds a single provider call.
func (c Config) PayoutTimeout() time.Duration {
	return time.Duration(c.PayoutTimeoutSeconds) * time.Second
}

// IdempotencyTTL is how long a completed payout leg is replayable.
func (c Config) IdempotencyTTL() time.Duration {
	return time.Duration(c.IdempotencyTTLMinutes) * time.Minute
}
