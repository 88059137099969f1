package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server.
type Config struct {
	Env     string
	Port    string
	SiteURL string

	DatabaseDriver string
	DatabaseURL    string

	RedisURL           string
	RateLimitPerMinute int

	StripeSecretKey     string
	StripeWebhookSecret string
	StripePriceID       string

	SupabaseJWTSecret string
	SupabaseJWKSURL   string
	JWTIssuer         string
	JWTAudience       string
	AuthDisabled      bool

	CreditsPerPurchase int
	RechargeAmount     int64
	Currency           string
	FreeMax            int
	FreeWindow         time.Duration

	LogLevel  string
	LogFormat string

	AWSRegion    string
	AWSBucket    string
	AWSAccessKey string
	AWSSecretKey string

	AllowedOrigin string
}

// Load reads configuration from an optional .env file and the environment.
// All missing required variables are reported together.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	var invalid []string
	cfg := Config{
		Env:                 strings.ToLower(getEnv("ENV", "production")),
		Port:                getEnv("PORT", "8080"),
		SiteURL:             strings.TrimRight(getEnv("SITE_URL", os.Getenv("NEXT_PUBLIC_SITE_URL")), "/"),
		DatabaseDriver:      strings.ToLower(getEnv("DATABASE_DRIVER", "postgres")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		RedisURL:            os.Getenv("REDIS_URL"),
		RateLimitPerMinute:  getInt("RATE_LIMIT_PER_MINUTE", 100, &invalid),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		StripePriceID:       os.Getenv("STRIPE_PRICE_ID_PRO"),
		SupabaseJWTSecret:   os.Getenv("SUPABASE_JWT_SECRET"),
		SupabaseJWKSURL:     os.Getenv("SUPABASE_JWKS_URL"),
		JWTIssuer:           os.Getenv("SUPABASE_JWT_ISSUER"),
		JWTAudience:         getEnv("SUPABASE_JWT_AUDIENCE", "authenticated"),
		CreditsPerPurchase:  getInt("PRO_CREDITS_PER_PURCHASE", 30, &invalid),
		RechargeAmount:      getInt64("PRO_AMOUNT", 3500, &invalid),
		Currency:            strings.ToLower(getEnv("PRO_CURRENCY", "huf")),
		FreeMax:             getInt("FREE_MAX", 10, &invalid),
		FreeWindow:          time.Hour * time.Duration(getInt("FREE_WINDOW_HOURS", 48, &invalid)),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogFormat:           getEnv("LOG_FORMAT", "json"),
		AWSRegion:           os.Getenv("AWS_REGION"),
		AWSBucket:           os.Getenv("AWS_BUCKET_NAME"),
		AWSAccessKey:        os.Getenv("AWS_S3_BUCKET_ACCESS_KEY"),
		AWSSecretKey:        os.Getenv("AWS_S3_BUCKET_SECRET_ACCESS_KEY"),
		AllowedOrigin:       os.Getenv("CORS_ALLOWED_ORIGIN"),
	}
	cfg.AuthDisabled = getBool("AUTH_DISABLED", false, &invalid) && cfg.Env == "local"

	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.StripeSecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if cfg.StripePriceID == "" {
		missing = append(missing, "STRIPE_PRICE_ID_PRO")
	}
	if cfg.SupabaseJWTSecret == "" && cfg.SupabaseJWKSURL == "" && !cfg.AuthDisabled {
		missing = append(missing, "SUPABASE_JWT_SECRET or SUPABASE_JWKS_URL")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("invalid environment variables: %v", invalid)
	}

	if cfg.DatabaseDriver != "postgres" && cfg.DatabaseDriver != "sqlite" {
		return Config{}, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", cfg.DatabaseDriver)
	}
	if cfg.CreditsPerPurchase <= 0 || cfg.RechargeAmount <= 0 || cfg.FreeMax <= 0 || cfg.FreeWindow <= 0 {
		return Config{}, errors.New("PRO_CREDITS_PER_PURCHASE, PRO_AMOUNT, FREE_MAX and FREE_WINDOW_HOURS must be positive")
	}

	return cfg, nil
}

// LoadDatabase reads only the database settings, for commands such as
// migrate that do not talk to Stripe or verify tokens.
func LoadDatabase() (driver, dsn string, err error) {
	if err := loadEnvFile(); err != nil {
		return "", "", err
	}

	driver = strings.ToLower(getEnv("DATABASE_DRIVER", "postgres"))
	dsn = os.Getenv("DATABASE_URL")
	if dsn == "" {
		return "", "", errors.New("missing required environment variables: [DATABASE_URL]")
	}
	if driver != "postgres" && driver != "sqlite" {
		return "", "", fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", driver)
	}
	return driver, dsn, nil
}

// ArchiveEnabled reports whether plan results should be offloaded to S3.
func (c Config) ArchiveEnabled() bool {
	return c.AWSRegion != "" && c.AWSBucket != "" && c.AWSAccessKey != "" && c.AWSSecretKey != ""
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// getInt and friends return fallback only when key is unset. A value that
// does not parse is recorded in invalid.
func getInt(key string, fallback int, invalid *[]string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*invalid = append(*invalid, key)
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64, invalid *[]string) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*invalid = append(*invalid, key)
		return fallback
	}
	return i
}

func getBool(key string, fallback bool, invalid *[]string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*invalid = append(*invalid, key)
		return fallback
	}
	return b
}

// loadEnvFile loads the first .env it finds. Running without one is fine;
// the environment alone can carry the configuration.
func loadEnvFile() error {
	var candidates []string
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates, ".env", filepath.Join("backend", ".env"))

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
