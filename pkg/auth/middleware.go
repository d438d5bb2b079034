package auth

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/observability"
	"github.com/rhuss/weiche/pkg/transport"
)

// DefaultBypassEndpoints are served without authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/metrics"}

// MiddlewareConfig configures Middleware.
type MiddlewareConfig struct {
	// Authenticator decides who the caller is. Usually a *Chain.
	Authenticator Authenticator

	// Limiter is optional; nil disables rate limiting.
	Limiter RateLimiter

	// Bypass lists request paths that skip authentication.
	Bypass []string
}

// Middleware authenticates each request, applies the rate limit and puts
// the identity into the request context. CORS preflight requests and
// bypassed paths pass through untouched.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(cfg.Bypass))
	for _, p := range cfg.Bypass {
		bypass[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := cfg.Authenticator.Authenticate(r.Context(), r)
			if res.Decision != Accept || res.Identity == nil || res.Identity.Subject == "" {
				slog.Warn("request not authenticated",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"decision", res.Decision.String(),
					"error", res.Err,
				)
				transport.WriteAPIError(w, api.NewUnauthorizedError(ErrUnauthenticated.Error()))
				return
			}
			id := res.Identity

			if cfg.Limiter != nil {
				if err := cfg.Limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.Tier())
					observability.RateLimitRejectedTotal.Inc()
					var rle *RateLimitError
					if errors.As(err, &rle) && rle.RetryAfter > 0 {
						secs := int(math.Ceil(rle.RetryAfter.Seconds()))
						w.Header().Set("Retry-After", strconv.Itoa(secs))
					}
					transport.WriteAPIError(w, api.NewTooManyRequestsError(ErrTooManyRequests.Error()))
					return
				}
			}

			slog.Debug("request authenticated", "subject", id.Subject, "tier", id.Tier())
			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
		})
	}
}
