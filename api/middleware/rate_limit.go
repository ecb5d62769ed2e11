package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/pkg/config"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

type throttleStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	CounterKey(name string) string
}

// RateLimit throttles requests with a per-user counter over a rolling window.
// Requests without a user identity are counted by client IP instead.
func RateLimit(cfg config.RateLimitConfig, store throttleStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			subject := clientIP(r)
			if userID := UserIDFromContext(ctx); userID != uuid.Nil {
				subject = userID.String()
			}

			key := store.CounterKey(fmt.Sprintf("requests:%s", subject))
			count, err := store.IncrWithTTL(ctx, key, cfg.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if count > int64(cfg.RequestsPerWindow) {
				logCtx := logg.WithFields(ctx, map[string]any{
					"subject":        subject,
					"requests":       count,
					"limit":          cfg.RequestsPerWindow,
					"window_seconds": int(cfg.Window.Seconds()),
				})
				logg.Warn(logCtx, "request rate limit exceeded")
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimited, "rate limit exceeded, slow down"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
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
