package controller

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/danielmoisemontezima/compliance-payment-service/internal/auth"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/logging"
	"github.com/danielmoisemontezima/compliance-payment-service/internal/ratelimit"
)

type RouterConfig struct {
	JWTSecret         string
	Limiter           ratelimit.Limiter
	RateLimitPayments int
	RateLimitWebhooks int
	RateLimitWindow   time.Duration
	TrustedProxies    []string
}

func NewRouter(c *PaymentController, cfg RouterConfig) http.Handler {
	paymentsLimit := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{
		Name:   "payments",
		Limit:  cfg.RateLimitPayments,
		Window: cfg.RateLimitWindow,
		Key:    ratelimit.ByIdentity(auth.FromRequest, cfg.TrustedProxies),
	})
	webhooksLimit := ratelimit.Middleware(cfg.Limiter, ratelimit.Rule{
		Name:   "webhooks",
		Limit:  cfg.RateLimitWebhooks,
		Window: cfg.RateLimitWindow,
		Key:    ratelimit.ByIP(cfg.TrustedProxies),
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/payments/health", c.GetHealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.JWTSecret))
		r.Get("/payments/transactions/{reference}", c.GetTransaction)

		r.With(paymentsLimit).Post("/payments/{provider}/initialize", c.InitializePayment)
		r.With(paymentsLimit).Post("/payments/verify", c.VerifyPayment)
	})

	r.With(webhooksLimit).Post("/webhooks/{provider}", c.HandleWebhook)
	return r
}
