package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/responses"
	pkgauth "github.com/GoldenRal/modSTR/pkg/auth"
	"github.com/GoldenRal/modSTR/pkg/config"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := pkgauth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			if claims.UserID == uuid.Nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user identity"))
				return
			}

			ctx := WithUserID(r.Context(), claims.UserID)
			ctx = WithPlanID(ctx, claims.PlanID)

			if logg != nil {
				ctx = logg.WithUserID(ctx, claims.UserID.String())
				if claims.PlanID != "" {
					ctx = logg.WithField(ctx, "plan_id", claims.PlanID)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
