package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/middleware"
	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/db/models"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// UsageService is the slice of the quota service the usage endpoints need.
type UsageService interface {
	GetUsage(ctx context.Context, userID uuid.UUID) (*quota.UsageSummary, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
}

// ListPlans returns the catalog of subscription plans.
func ListPlans(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := svc.ListPlans(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"plans": plans})
	}
}

// GetUsage returns the caller's plan, monthly ledger, and today's counters.
func GetUsage(svc UsageService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
			return
		}

		summary, err := svc.GetUsage(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, summary)
	}
}
