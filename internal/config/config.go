package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	MigrationsPath     string
	CORSAllowedOrigins []string
	AdminAPIToken      string
	PublicBaseURL      string
	AlertEmail         string

	CurrencyCode string
	VATRateBps   int
	// AmountTolerances maps an ISO currency code to the permitted absolute
	// deviation, in minor units, between a reported and an expected amount.
	AmountTolerances map[string]int64

	// Legacy bank gateway (IPC protocol).
	IPCBaseURL         string
	IPCMerchantSID     string
	IPCWalletNumber    string
	IPCKeyIndex        string
	IPCVersion         string
	IPCPrivateKeyPEM   string
	IPCGatewayCertPEM  string
	IPCCallbackBaseURL string

	// Modern checkout gateway.
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeBaseURL       string
	StripeSigTolerance  time.Duration

	// Trademark filing fee schedule, minor units.
	TMBaseFee            int64
	TMClassFee           int64
	TMPriorityFee        int64
	TMCollectiveBaseFee  int64
	TMCollectiveClassFee int64
	TMIncludedClasses    int

	LedgerRetention time.Duration
	IdempotencyTTL  time.Duration

	OutboundTimeout     time.Duration
	RetryMaxAttempts    int
	RetryBase           time.Duration
	RetryJitterPercent  float64
	CircuitMinRequests  int
	CircuitFailureRatio float64
	CircuitOpenFor      time.Duration

	CreateOrderRateLimit string
}

// Load reads configuration from environment variables and optional .env files.
// Missing gateway credentials are a startup failure rather than a per-request
// one.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		MigrationsPath:     valueOrDefault(k.String("MIGRATIONS_PATH"), "migrations"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AdminAPIToken:      k.String("ADMIN_API_TOKEN"),
		PublicBaseURL:      valueOrDefault(k.String("PUBLIC_BASE_URL"), "http://localhost:8080"),
		AlertEmail:         k.String("ALERT_EMAIL"),

		CurrencyCode:     valueOrDefault(k.String("CURRENCY_CODE"), "EUR"),
		VATRateBps:       intOrDefault(k.String("PRICING_VAT_RATE_BPS"), 2000),
		AmountTolerances: parseTolerances(k.String("AMOUNT_TOLERANCE_MINOR")),

		IPCBaseURL:         valueOrDefault(k.String("IPC_BASE_URL"), "https://ipc.bankgateway.example/ipcmethod"),
		IPCMerchantSID:     k.String("IPC_MERCHANT_SID"),
		IPCWalletNumber:    k.String("IPC_WALLET_NUMBER"),
		IPCKeyIndex:        valueOrDefault(k.String("IPC_KEY_INDEX"), "1"),
		IPCVersion:         valueOrDefault(k.String("IPC_VERSION"), "1.4"),
		IPCPrivateKeyPEM:   readMaybeFile(k.String("IPC_PRIVATE_KEY")),
		IPCGatewayCertPEM:  readMaybeFile(k.String("IPC_GATEWAY_CERT")),
		IPCCallbackBaseURL: k.String("IPC_CALLBACK_BASE_URL"),

		StripeSecretKey:     k.String("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: k.String("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:       valueOrDefault(k.String("STRIPE_BASE_URL"), "https://api.stripe.com"),
		StripeSigTolerance:  parseDuration(k.String("STRIPE_SIG_TOLERANCE"), "5m"),

		TMBaseFee:            int64OrDefault(k.String("TM_BASE_FEE_MINOR"), 120_000),
		TMClassFee:           int64OrDefault(k.String("TM_CLASS_FEE_MINOR"), 15_000),
		TMPriorityFee:        int64OrDefault(k.String("TM_PRIORITY_FEE_MINOR"), 10_000),
		TMCollectiveBaseFee:  int64OrDefault(k.String("TM_COLLECTIVE_BASE_FEE_MINOR"), 240_000),
		TMCollectiveClassFee: int64OrDefault(k.String("TM_COLLECTIVE_CLASS_FEE_MINOR"), 30_000),
		TMIncludedClasses:    intOrDefault(k.String("TM_INCLUDED_CLASSES"), 3),

		LedgerRetention: parseDuration(k.String("LEDGER_RETENTION"), "72h"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		OutboundTimeout:     parseDuration(k.String("OUTBOUND_TIMEOUT"), "15s"),
		RetryMaxAttempts:    intOrDefault(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryJitterPercent:  floatOrDefault(k.String("RETRY_JITTER_PCT"), 0.2),
		CircuitMinRequests:  intOrDefault(k.String("CIRCUIT_MIN_REQUESTS"), 10),
		CircuitFailureRatio: floatOrDefault(k.String("CIRCUIT_FAILURE_RATIO"), 0.5),
		CircuitOpenFor:      parseDuration(k.String("CIRCUIT_OPEN_FOR"), "30s"),

		CreateOrderRateLimit: valueOrDefault(k.String("CREATE_ORDER_RATE_LIMIT"), "30-M"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.AdminAPIToken == "" {
		return nil, errors.New("ADMIN_API_TOKEN is required")
	}
	if cfg.IPCMerchantSID == "" || cfg.IPCPrivateKeyPEM == "" || cfg.IPCGatewayCertPEM == "" {
		return nil, errors.New("IPC_MERCHANT_SID, IPC_PRIVATE_KEY and IPC_GATEWAY_CERT are required")
	}
	if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
		return nil, errors.New("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET are required")
	}
	if cfg.VATRateBps < 0 || cfg.VATRateBps > 10000 {
		return nil, fmt.Errorf("PRICING_VAT_RATE_BPS out of range: %d", cfg.VATRateBps)
	}

	return cfg, nil
}

// ToleranceFor returns the fraud-check tolerance in minor units for the given
// currency, defaulting to one minor unit when the currency is not configured.
func (c *Config) ToleranceFor(currency string) int64 {
	code := strings.ToUpper(strings.TrimSpace(currency))
	if v, ok := c.AmountTolerances[code]; ok {
		return v
	}
	return 1
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// parseTolerances parses "EUR:1,USD:1" style overrides.
func parseTolerances(value string) map[string]int64 {
	out := map[string]int64{}
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		code := strings.ToUpper(strings.TrimSpace(parts[0]))
		v, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
		if err != nil || code == "" || v < 0 {
			continue
		}
		out[code] = v
	}
	return out
}

// readMaybeFile treats the value as a path when it points at an existing file,
// otherwise returns it verbatim (inline PEM).
func readMaybeFile(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	if strings.Contains(trimmed, "-----BEGIN") {
		return trimmed
	}
	if data, err := os.ReadFile(trimmed); err == nil {
		return string(data)
	}
	return trimmed
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func intOrDefault(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func int64OrDefault(value string, fallback int64) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func floatOrDefault(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
