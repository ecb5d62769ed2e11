package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/api/responses"
	"github.com/GoldenRal/modSTR/api/validators"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/pkg/enums"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// ReportService generates and reformats title-search reports.
type ReportService interface {
	Generate(ctx context.Context, userID, projectID uuid.UUID, format enums.ReportFormat) (*projects.Report, error)
	Reformat(ctx context.Context, userID, projectID uuid.UUID, format enums.ReportFormat) (*projects.Report, error)
}

// InstructionStore persists advocate instructions ahead of report generation.
type InstructionStore interface {
	SetAdvocateInstructions(ctx context.Context, userID, projectID uuid.UUID, instructions string) error
}

type reportRequest struct {
	Format               string `json:"format" validate:"omitempty,oneof=STANDARD DETAILED BANK_SUBMISSION"`
	AdvocateInstructions string `json:"advocate_instructions" validate:"max=2000"`
}

// GenerateReport drafts a fresh report for a project.
func GenerateReport(svc ReportService, store InstructionStore, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(svc.Generate, store, logg)
}

// ReformatReport restates the project's existing report in another format.
func ReformatReport(svc ReportService, store InstructionStore, logg *logger.Logger) http.HandlerFunc {
	return reportHandler(svc.Reformat, store, logg)
}

func reportHandler(call func(context.Context, uuid.UUID, uuid.UUID, enums.ReportFormat) (*projects.Report, error), store InstructionStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		projectID, ok := pathUUID(w, r, logg, "projectId")
		if !ok {
			return
		}

		payload := reportRequest{}
		if r.ContentLength > 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		if instructions := strings.TrimSpace(payload.AdvocateInstructions); instructions != "" {
			if err := store.SetAdvocateInstructions(r.Context(), userID, projectID, instructions); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		report, err := call(r.Context(), userID, projectID, enums.ParseReportFormat(payload.Format))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}
