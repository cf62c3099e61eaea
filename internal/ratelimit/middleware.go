package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/danielmoisemontezima/compliance-payment-service/pkg/utils"
)

// KeyFunc derives the identity a request is counted against.
type KeyFunc func(r *http.Request) string

type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	Key    KeyFunc
}

// Middleware denies requests over the rule's budget with 429 and a
// Retry-After header. Limiter errors fail open.
func Middleware(l Limiter, rule Rule) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rule.Limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			key := rule.Name + ":" + rule.Key(r)
			allowed, err := l.Allow(r.Context(), key, rule.Limit, rule.Window)
			if err != nil {
				log.Error().Err(err).Str("rule", rule.Name).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				wait, err := l.TimeUntilReset(r.Context(), key)
				if err != nil || wait <= 0 {
					wait = rule.Window
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				log.Warn().Str("rule", rule.Name).Str("key", key).Dur("retry_after", wait).Msg("rate limited")
				utils.RespondWithError(w, http.StatusTooManyRequests, "too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ByIP keys requests on the client address.
func ByIP(trustedProxies []string) KeyFunc {
	return func(r *http.Request) string {
		return "ip:" + utils.ClientIP(r, trustedProxies)
	}
}

// ByIdentity prefers the authenticated identity and falls back to the client address.
func ByIdentity(identity func(r *http.Request) string, trustedProxies []string) KeyFunc {
	byIP := ByIP(trustedProxies)
	return func(r *http.Request) string {
		if id := identity(r); id != "" {
			return "user:" + id
		}
		return byIP(r)
	}
}
