package config

import (
	"errors"
	"fmt"
	"log"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration values. It is built once at process start and
// passed by reference to every component that needs it.
type Config struct {
	AppPort           string `mapstructure:"APP_PORT"`
	Env               string `mapstructure:"ENV"`
	LogLevel          string `mapstructure:"LOG_LEVEL"`
	MaxRequestsPerMin int    `mapstructure:"MAX_REQUESTS_PER_MIN"`
	JWTSecret         string `mapstructure:"JWT_SECRET"`

	// MongoDB.
	DatabaseURL  string `mapstructure:"DATABASE_URL"`
	DatabaseName string `mapstructure:"DATABASE_NAME"`

	// Redis configuration.
	RedisAddr      string        `mapstructure:"REDIS_ADDR"`
	RedisPassword  string        `mapstructure:"REDIS_PASSWORD"`
	RedisCacheDB   int           `mapstructure:"REDIS_CACHE_DB"`
	RedisQueueDB   int           `mapstructure:"REDIS_QUEUE_DB"`
	StatusCacheTTL time.Duration `mapstructure:"STATUS_CACHE_TTL"`

	// Stripe checkout.
	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	CheckoutSuccessURL  string `mapstructure:"CHECKOUT_SUCCESS_URL"` // {RESERVATION_ID} is substituted
	CheckoutCancelURL   string `mapstructure:"CHECKOUT_CANCEL_URL"`
	DefaultCurrency     string `mapstructure:"DEFAULT_CURRENCY"`

	// Reservation engine.
	ReservationTTL     time.Duration `mapstructure:"RESERVATION_TTL"`
	PaidGrace          time.Duration `mapstructure:"PAID_GRACE"`
	GatewayMaxAttempts int           `mapstructure:"GATEWAY_MAX_ATTEMPTS"`
	GatewayBaseBackoff time.Duration `mapstructure:"GATEWAY_BASE_BACKOFF"`
	SuggestionLimit    int           `mapstructure:"SUGGESTION_LIMIT"`
	SuggestionDays     int           `mapstructure:"SUGGESTION_DAYS"`

	// Background worker.
	SweepInterval     time.Duration `mapstructure:"SWEEP_INTERVAL"`
	WorkerConcurrency int           `mapstructure:"WORKER_CONCURRENCY"`
}

// MinReservationTTL is the shortest lifetime Stripe accepts for a checkout session.
const MinReservationTTL = 30 * time.Minute

var defaults = map[string]interface{}{
	"APP_PORT":              "8080",
	"ENV":                   "development",
	"LOG_LEVEL":             "info",
	"MAX_REQUESTS_PER_MIN":  100,
	"JWT_SECRET":            "",
	"DATABASE_URL":          "mongodb://localhost:27017/?replicaSet=rs0",
	"DATABASE_NAME":         "mentorbook",
	"REDIS_ADDR":            "localhost:6379",
	"REDIS_PASSWORD":        "",
	"REDIS_CACHE_DB":        0,
	"REDIS_QUEUE_DB":        1,
	"STATUS_CACHE_TTL":      "10m",
	"STRIPE_SECRET_KEY":     "",
	"STRIPE_WEBHOOK_SECRET": "",
	"CHECKOUT_SUCCESS_URL":  "",
	"CHECKOUT_CANCEL_URL":   "",
	"DEFAULT_CURRENCY":      "usd",
	"RESERVATION_TTL":       "30m",
	"PAID_GRACE":            "10m",
	"GATEWAY_MAX_ATTEMPTS":  4,
	"GATEWAY_BASE_BACKOFF":  "250ms",
	"SUGGESTION_LIMIT":      8,
	"SUGGESTION_DAYS":       3,
	"SWEEP_INTERVAL":        "1m",
	"WORKER_CONCURRENCY":    10,
}

// LoadConfig reads an optional .env file and config.yaml, then environment variables,
// and validates the result.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	// Every key needs a default, otherwise Unmarshal never consults the environment.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		log.Println("No config file found, using environment variables only")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.DefaultCurrency = strings.ToLower(cfg.DefaultCurrency)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate fails fast on values every request would otherwise trip over.
func (c *Config) Validate() error {
	var missing []string
	required := map[string]string{
		"JWT_SECRET":            c.JWTSecret,
		"STRIPE_SECRET_KEY":     c.StripeSecretKey,
		"STRIPE_WEBHOOK_SECRET": c.StripeWebhookSecret,
		"CHECKOUT_SUCCESS_URL":  c.CheckoutSuccessURL,
		"CHECKOUT_CANCEL_URL":   c.CheckoutCancelURL,
		"DATABASE_URL":          c.DatabaseURL,
		"DATABASE_NAME":         c.DatabaseName,
	}
	for _, key := range slices.Sorted(maps.Keys(required)) {
		if strings.TrimSpace(required[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	var errs []error
	if c.ReservationTTL < MinReservationTTL {
		errs = append(errs, fmt.Errorf("RESERVATION_TTL must be at least %s, got %s", MinReservationTTL, c.ReservationTTL))
	}
	if c.GatewayMaxAttempts < 1 {
		errs = append(errs, errors.New("GATEWAY_MAX_ATTEMPTS must be positive"))
	}
	if c.SuggestionLimit < 0 || c.SuggestionDays < 0 {
		errs = append(errs, errors.New("SUGGESTION_LIMIT and SUGGESTION_DAYS must not be negative"))
	}
	if c.MaxRequestsPerMin < 1 {
		errs = append(errs, errors.New("MAX_REQUESTS_PER_MIN must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
