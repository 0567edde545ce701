package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/huddle-backend/api/responses"
	"github.com/angelmondragon/huddle-backend/internal/ratelimit"
	pkgerrors "github.com/angelmondragon/huddle-backend/pkg/errors"
	"github.com/angelmondragon/huddle-backend/pkg/logger"
	"github.com/angelmondragon/huddle-backend/pkg/metrics"
)

// RateLimit throttles requests per user, falling back to the client IP for
// unauthenticated routes. Denied requests get 429 with Retry-After.
func RateLimit(limiter *ratelimit.Limiter, m *metrics.RealtimeMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := rateLimitKey(r)
			if limiter.Allow(key) {
				next.ServeHTTP(w, r)
				return
			}

			wait := limiter.RetryAfter(key)
			seconds := int(math.Ceil(wait.Seconds()))
			if seconds < 1 {
				seconds = 1
			}
			m.IncRateLimited()
			ctx := r.Context()
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"limit_key":   key,
					"retry_after": seconds,
				}), "rate_limit.blocked")
			}
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").
				WithDetails(map[string]any{"retryAfterSeconds": seconds}))
		})
	}
}

func rateLimitKey(r *http.Request) string {
	if userID := UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	return "ip:" + clientIP(r)
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
