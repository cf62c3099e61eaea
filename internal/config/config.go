package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverPgx          = "pgx"
	DriverGormPostgres = "gorm-postgres"
	DriverSQLite       = "sqlite"
)

type Config struct {
	AppEnv   string
	LogLevel string
	Port     int

	DbDriver   string
	DbUser     string
	DbPassword string
	DbHost     string
	DbName     string
	DbPort     string
	SSLMode    string
	SQLitePath string

	PaystackSecretKey   string
	PaystackBaseURL     string
	PaystackCallbackURL string

	StripeSecretKey     string
	StripeWebhookSecret string
	StripeSuccessURL    string
	StripeCancelURL     string

	JWTSecret string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	RateLimitPayments int
	RateLimitWebhooks int
	RateLimitWindow   time.Duration
	TrustedProxies    []string

	ProcessorTimeout  time.Duration
	ReconcileAfter    time.Duration
	ReconcileInterval time.Duration
}

func Load() (*Config, error) {
	// Load .env file (only in development)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using system environment variables")
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", 8080)
	v.SetDefault("DB_DRIVER", DriverPgx)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("SSL_MODE", "disable")
	v.SetDefault("SQLITE_PATH", "payments.db")
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("KAFKA_TOPIC", "payment.status_changed")
	v.SetDefault("RATE_LIMIT_PAYMENTS", 10)
	v.SetDefault("RATE_LIMIT_WEBHOOKS", 120)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("PROCESSOR_TIMEOUT", 10*time.Second)
	v.SetDefault("RECONCILE_AFTER", 15*time.Minute)
	v.SetDefault("RECONCILE_INTERVAL", time.Duration(0))

	cfg := &Config{
		AppEnv:   v.GetString("APP_ENV"),
		LogLevel: v.GetString("LOG_LEVEL"),
		Port:     v.GetInt("PORT"),

		DbDriver:   strings.ToLower(v.GetString("DB_DRIVER")),
		DbUser:     v.GetString("DB_USER"),
		DbPassword: v.GetString("DB_PASSWORD"),
		DbHost:     v.GetString("DB_HOST"),
		DbName:     v.GetString("DB_NAME"),
		DbPort:     v.GetString("DB_PORT"),
		SSLMode:    v.GetString("SSL_MODE"),
		SQLitePath: v.GetString("SQLITE_PATH"),

		PaystackSecretKey:   v.GetString("PAYSTACK_SECRET_KEY"),
		PaystackBaseURL:     v.GetString("PAYSTACK_BASE_URL"),
		PaystackCallbackURL: v.GetString("PAYSTACK_CALLBACK_URL"),

		StripeSecretKey:     v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripeSuccessURL:    v.GetString("STRIPE_SUCCESS_URL"),
		StripeCancelURL:     v.GetString("STRIPE_CANCEL_URL"),

		JWTSecret: v.GetString("JWT_SECRET"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),

		KafkaBrokers: splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:   v.GetString("KAFKA_TOPIC"),

		RateLimitPayments: v.GetInt("RATE_LIMIT_PAYMENTS"),
		RateLimitWebhooks: v.GetInt("RATE_LIMIT_WEBHOOKS"),
		RateLimitWindow:   v.GetDuration("RATE_LIMIT_WINDOW"),
		TrustedProxies:    splitList(v.GetString("TRUSTED_PROXIES")),

		ProcessorTimeout:  v.GetDuration("PROCESSOR_TIMEOUT"),
		ReconcileAfter:    v.GetDuration("RECONCILE_AFTER"),
		ReconcileInterval: v.GetDuration("RECONCILE_INTERVAL"),
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}

	return cfg, nil
}

// Validate checks the settings needed to serve traffic.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.PaystackSecretKey == "" && c.StripeSecretKey == "" {
		errs = append(errs, errors.New("at least one of PAYSTACK_SECRET_KEY or STRIPE_SECRET_KEY is required"))
	}
	if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when Stripe is enabled"))
	}
	switch c.DbDriver {
	case DriverPgx, DriverGormPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DbDriver))
	}
	if c.RateLimitPayments <= 0 || c.RateLimitWebhooks <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate limits and window must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s&connect_timeout=180",
		c.DbUser,
		c.DbPassword,
		c.DbHost,
		c.DbPort,
		c.DbName,
		c.SSLMode,
	)
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// String hides secrets so the config can be logged at startup.
func (c *Config) String() string {
	return fmt.Sprintf("env=%s port=%d db_driver=%s db_host=%s db_name=%s paystack=%t stripe=%t redis=%t kafka=%t",
		c.AppEnv, c.Port, c.DbDriver, c.DbHost, c.DbName,
		c.PaystackSecretKey != "", c.StripeSecretKey != "", c.RedisAddr != "", len(c.KafkaBrokers) > 0)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
