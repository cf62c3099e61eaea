package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/adapters"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/config"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/core"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/events"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/logging"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ports"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/repository"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/service"
)

// app holds everything the commands share. close releases it in reverse
// order of acquisition.
type app struct {
	cfg       *config.Config
	service   *service.PaymentService
	providers *core.ProviderRegistry
	closers   []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warn().Err(err).Msg("error during shutdown")
		}
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logging.Setup(cfg.LogLevel, cfg.IsDevelopment())
	return cfg, nil
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	transactions, err := a.openStore()
	if err != nil {
		a.close()
		return nil, err
	}

	a.providers = newProviderRegistry(cfg)
	if a.providers.Len() == 0 {
		a.close()
		return nil, errors.New("no payment processor configured")
	}

	publisher := a.openPublisher()
	a.service = service.NewPaymentService(a.providers, transactions, publisher, service.Options{
		ProcessorTimeout: cfg.ProcessorTimeout,
	})

	log.Info().Strs("providers", a.providers.Names()).Str("config", cfg.String()).Msg("application ready")
	return a, nil
}

func (a *app) openStore() (ports.ITransactionRepository, error) {
	switch a.cfg.DbDriver {
	case config.DriverPgx:
		pool, err := config.InitPostgresPool(a.cfg.PostgresURL())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		return repository.NewTransactionRepository(pool), nil

	case config.DriverGormPostgres, config.DriverSQLite:
		db, err := config.OpenGorm(a.cfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get database handle: %w", err)
		}
		a.closers = append(a.closers, sqlDB.Close)

		repo := repository.NewGormTransactionRepository(db)
		if a.cfg.DbDriver == config.DriverSQLite {
			// sqlite has no SQL migrations; the table comes from the model
			if err := repo.AutoMigrate(); err != nil {
				return nil, fmt.Errorf("failed to migrate sqlite schema: %w", err)
			}
		}
		return repo, nil

	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", a.cfg.DbDriver)
	}
}

func newProviderRegistry(cfg *config.Config) *core.ProviderRegistry {
	registry := core.NewProviderRegistry()
	if cfg.PaystackSecretKey != "" {
		registry.Register(adapters.NewPaystackAdapter(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.PaystackCallbackURL, cfg.ProcessorTimeout))
	}
	if cfg.StripeSecretKey != "" {
		registry.Register(adapters.NewStripeAdapter(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripeSuccessURL, cfg.StripeCancelURL))
	}
	return registry
}

// openPublisher falls back to logging when Kafka is absent or unreachable.
// Status events are notifications; the row is the source of truth.
func (a *app) openPublisher() ports.IEventPublisher {
	if len(a.cfg.KafkaBrokers) == 0 {
		return events.LogPublisher{}
	}
	publisher, err := events.NewKafkaPublisher(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, 5)
	if err != nil {
		log.Error().Err(err).Msg("kafka unavailable, status events will only be logged")
		return events.LogPublisher{}
	}
	a.closers = append(a.closers, publisher.Close)
	return publisher
}

func withApp(ctx context.Context, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
