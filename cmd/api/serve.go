package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/controller"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ratelimit"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()
			return runServer(ctx, a)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg

	limiter, err := a.openLimiter(ctx)
	if err != nil {
		return err
	}

	if cfg.ReconcileInterval > 0 {
		log.Info().Dur("interval", cfg.ReconcileInterval).Dur("older_than", cfg.ReconcileAfter).Msg("reconciler enabled")
		go a.service.RunReconciler(ctx, cfg.ReconcileInterval, cfg.ReconcileAfter, reconcileBatch)
	}

	handler := controller.NewRouter(controller.NewPaymentController(a.service), controller.RouterConfig{
		JWTSecret:         cfg.JWTSecret,
		Limiter:           limiter,
		RateLimitPayments: cfg.RateLimitPayments,
		RateLimitWebhooks: cfg.RateLimitWebhooks,
		RateLimitWindow:   cfg.RateLimitWindow,
		TrustedProxies:    cfg.TrustedProxies,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server running")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server")
	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

// openLimiter shares counters through Redis when REDIS_ADDR is set. Without
// it each replica counts on its own.
func (a *app) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	if a.cfg.RedisAddr == "" {
		limiter := ratelimit.NewMemoryLimiter()
		go limiter.Run(ctx, a.cfg.RateLimitWindow)
		log.Warn().Msg("REDIS_ADDR not set, rate limits are per process")
		return limiter, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	return ratelimit.NewRedisLimiter(client, "payments:ratelimit:"), nil
}
