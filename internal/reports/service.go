package reports

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/internal/ai"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/enums"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// reportOutputBudget is the completion reservation for one report call.
const reportOutputBudget = 8192

type projectStore interface {
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*projects.Project, error)
	SetReport(ctx context.Context, userID, projectID uuid.UUID, report *projects.Report) error
}

type gateway interface {
	GenerateReport(ctx context.Context, req ai.ReportRequest) ai.ReportResult
	ReformatReport(ctx context.Context, req ai.ReportRequest) ai.ReportResult
	Model() string
}

type allowanceService interface {
	CheckAllowance(ctx context.Context, userID uuid.UUID, usageType enums.UsageType, value int64) (quota.Decision, error)
	RecordUsage(ctx context.Context, input quota.RecordUsageInput) error
}

// Service generates and reformats title-search reports.
type Service interface {
	Generate(ctx context.Context, userID, projectID uuid.UUID, format enums.ReportFormat) (*projects.Report, error)
	Reformat(ctx context.Context, userID, projectID uuid.UUID, format enums.ReportFormat) (*projects.Report, error)
}

type service struct {
	store   projectStore
	gateway gateway
	quota   allowanceService
	logger  *logger.Logger
	now     func() time.Time
}

// Params configures the report service.
type Params struct {
	Store   projectStore
	Gateway gateway
	Quota   allowanceService
	Logger  *logger.Logger
	Now     func() time.Time
}

// NewService builds the report service.
func NewService(p Params) (Service, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("project store required")
	}
	if p.Gateway == nil {
		return nil, fmt.Errorf("ai gateway required")
	}
	if p.Quota == nil {
		return nil, fmt.Errorf("quota service required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		store:   p.Store,
		gateway: p.Gateway,
		quota:   p.Quota,
		logger:  p.Logger,
		now:     p.Now,
	}, nil
}

func (s *service) Generate(ctx context.Context, userID, projectID uuid.UUID, format enums.ReportFormat) (*projects.Report, error) {
	project, err := s.store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	text := groundingText(project)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict,
			"report needs at least one processed document with extracted text")
	}

	if err := s.gate(ctx, userID, text); err != nil {
		return nil, err
	}

	result := s.gateway.GenerateReport(ctx, ai.ReportRequest{
		Text:         text,
		Format:       format,
		Instructions: project.AdvocateInstructions,
	})
	return s.finish(ctx, userID, projectID, quota.OpGenerateReport, format, result)
}

func (s *service) Reformat(ctx context.Context, userID, projectID uuid.UUID, format enums.ReportFormat) (*projects.Report, error) {
	project, err := s.store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	if project.Report == nil || strings.TrimSpace(project.Report.Content) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "no existing report to reformat")
	}

	if err := s.gate(ctx, userID, project.Report.Content); err != nil {
		return nil, err
	}

	result := s.gateway.ReformatReport(ctx, ai.ReportRequest{
		Text:         project.Report.Content,
		Format:       format,
		Instructions: project.AdvocateInstructions,
	})
	return s.finish(ctx, userID, projectID, quota.OpReformatReport, format, result)
}

// gate runs the STR credit and token allowance checks.
func (s *service) gate(ctx context.Context, userID uuid.UUID, text string) error {
	checks := []struct {
		usageType enums.UsageType
		value     int64
	}{
		{enums.UsageTypeSTRGeneration, 1},
		{enums.UsageTypeInputTokens, ai.EstimateTokens(len(text))},
		{enums.UsageTypeOutputTokens, reportOutputBudget},
	}
	for _, check := range checks {
		decision, err := s.quota.CheckAllowance(ctx, userID, check.usageType, check.value)
		if err != nil {
			return err
		}
		if !decision.Allowed {
			return pkgerrors.New(pkgerrors.CodeQuota, decision.Message)
		}
	}
	return nil
}

func (s *service) finish(ctx context.Context, userID, projectID uuid.UUID, op string, format enums.ReportFormat, result ai.ReportResult) (*projects.Report, error) {
	s.recordUsage(ctx, userID, op, result)

	switch result.Outcome {
	case ai.OutcomeRateLimited:
		return nil, pkgerrors.New(pkgerrors.CodeRateLimited, result.Message)
	case ai.OutcomeSuccess:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeProvider, result.Message)
	}

	report := &projects.Report{
		Content:      result.Content,
		Summary:      result.Summary,
		RiskCategory: result.RiskCategory,
		RiskFlags:    result.RiskFlags,
		Format:       format,
		GeneratedAt:  s.now(),
	}
	if err := s.store.SetReport(ctx, userID, projectID, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *service) recordUsage(ctx context.Context, userID uuid.UUID, op string, result ai.ReportResult) {
	err := s.quota.RecordUsage(ctx, quota.RecordUsageInput{
		UserID:           userID,
		Operation:        op,
		Model:            s.gateway.Model(),
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		Success:          result.Outcome == ai.OutcomeSuccess,
		ErrorText:        result.Message,
	})
	if err != nil {
		s.logger.Error(ctx, "record report usage", err)
	}
}

// groundingText aggregates the processed documents' text with filename
// labels, mirroring what the deriver feeds the provider.
func groundingText(project *projects.Project) string {
	chunks := project.ProcessedText()
	if len(chunks) == 0 {
		return ""
	}
	var b strings.Builder
	for i, chunk := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "=== %s ===\n%s", chunk.FileName, chunk.Text)
	}
	return b.String()
}
