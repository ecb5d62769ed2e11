package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/GoldenRal/modSTR/pkg/db/models"
	"github.com/GoldenRal/modSTR/pkg/enums"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

const (
	// OpGenerateReport and OpReformatReport are the operations that consume
	// an STR generation credit.
	OpGenerateReport = "generate_report"
	OpReformatReport = "reformat_report"

	OpExtract        = "extract"
	OpClassify       = "classify"
	OpDeriveMetadata = "derive_metadata"

	bytesPerMB = int64(1024 * 1024)
)

type ledgerRepository interface {
	FindPlan(ctx context.Context, planID string) (*models.Plan, error)
	FindDefaultPlan(ctx context.Context) (*models.Plan, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	FindLimits(ctx context.Context, userID uuid.UUID) (*models.ApiLimits, error)
	SaveLimits(ctx context.Context, limits *models.ApiLimits) error
	FindDailyUsage(ctx context.Context, userID uuid.UUID, day time.Time) (*models.DailyUsage, error)
	ApplyCounters(ctx context.Context, limits *models.ApiLimits, day time.Time, strDelta int, inputDelta, outputDelta int64) error
	AppendUsageLog(ctx context.Context, row *models.AIUsageLog) error
	ListStaleLimits(ctx context.Context, now time.Time) ([]models.ApiLimits, error)
}

// Decision is the outcome of an allowance check.
type Decision struct {
	Allowed   bool            `json:"allowed"`
	UsageType enums.UsageType `json:"usage_type"`
	Current   int64           `json:"current"`
	Requested int64           `json:"requested"`
	Limit     int64           `json:"limit"`
	Message   string          `json:"message,omitempty"`
}

// RecordUsageInput captures one AI call for metering and audit.
type RecordUsageInput struct {
	UserID           uuid.UUID
	Operation        string
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Success          bool
	ErrorText        string
}

// UsageSummary is the ledger view returned to clients.
type UsageSummary struct {
	Plan   *models.Plan       `json:"plan"`
	Limits *models.ApiLimits  `json:"limits"`
	Today  *models.DailyUsage `json:"today,omitempty"`
}

// Service meters AI usage against plan caps.
type Service interface {
	CheckAllowance(ctx context.Context, userID uuid.UUID, usageType enums.UsageType, value int64) (Decision, error)
	RecordUsage(ctx context.Context, input RecordUsageInput) error
	GetUsage(ctx context.Context, userID uuid.UUID) (*UsageSummary, error)
	ListPlans(ctx context.Context) ([]models.Plan, error)
	RolloverStale(ctx context.Context, now time.Time) error
}

type service struct {
	repo          ledgerRepository
	logger        *logger.Logger
	defaultPlanID string
	now           func() time.Time
}

// Params configures the quota service.
type Params struct {
	Repo          ledgerRepository
	Logger        *logger.Logger
	DefaultPlanID string
	Now           func() time.Time
}

// NewService builds the quota service.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("quota repository required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.DefaultPlanID == "" {
		p.DefaultPlanID = "free"
	}
	if p.Now == nil {
		p.Now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:          p.Repo,
		logger:        p.Logger,
		defaultPlanID: p.DefaultPlanID,
		now:           p.Now,
	}, nil
}

func (s *service) CheckAllowance(ctx context.Context, userID uuid.UUID, usageType enums.UsageType, value int64) (Decision, error) {
	if userID == uuid.Nil {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if !usageType.IsValid() {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown usage type %q", usageType))
	}
	if value < 0 {
		return Decision{}, pkgerrors.New(pkgerrors.CodeValidation, "usage value must be non-negative")
	}

	limits, plan, err := s.ensureLedger(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	switch usageType {
	case enums.UsageTypeSTRGeneration:
		return s.checkSTRGeneration(ctx, userID, limits, plan, value)
	case enums.UsageTypeInputTokens:
		return budgetDecision(usageType, limits.InputTokensUsedMonthly, value, plan.MaxInputTokensPerMonth,
			"monthly input token cap"), nil
	case enums.UsageTypeOutputTokens:
		return budgetDecision(usageType, limits.OutputTokensUsedMonthly, value, plan.MaxOutputTokensPerMonth,
			"monthly output token cap"), nil
	case enums.UsageTypeFileSizePerDocument:
		return sizeDecision(usageType, value, int64(plan.MaxFileSizeMBPerDocument)*bytesPerMB,
			"per-document size cap"), nil
	case enums.UsageTypeFileSizeTotalPerProject:
		return sizeDecision(usageType, value, int64(plan.MaxTotalUploadMBPerSTR)*bytesPerMB,
			"per-project upload cap"), nil
	}
	return Decision{}, pkgerrors.New(pkgerrors.CodeInternal, "unreachable usage type")
}

func (s *service) checkSTRGeneration(ctx context.Context, userID uuid.UUID, limits *models.ApiLimits, plan *models.Plan, value int64) (Decision, error) {
	monthly := budgetDecision(enums.UsageTypeSTRGeneration, int64(limits.STRsUsedMonthly), value,
		int64(plan.MaxSTRsPerMonth), "monthly report cap")
	if !monthly.Allowed {
		return monthly, nil
	}

	// Daily usage is read fresh on every check so concurrent sessions see
	// each other's consumption.
	var usedToday int64
	daily, err := s.repo.FindDailyUsage(ctx, userID, s.today())
	switch {
	case err == nil:
		usedToday = int64(daily.STRCount)
	case errors.Is(err, gorm.ErrRecordNotFound):
		usedToday = 0
	default:
		return Decision{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read daily usage")
	}

	dailyDecision := budgetDecision(enums.UsageTypeSTRGeneration, usedToday, value,
		int64(plan.MaxSTRsPerDay), "daily report cap")
	if !dailyDecision.Allowed {
		return dailyDecision, nil
	}
	return monthly, nil
}

func (s *service) RecordUsage(ctx context.Context, input RecordUsageInput) error {
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	if input.Operation == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation is required")
	}

	if input.Success {
		if err := s.applyCounters(ctx, input); err != nil {
			// Metering failures never surface to the caller; the AI work
			// already happened.
			s.logger.Error(s.logger.WithUserID(ctx, input.UserID.String()), "apply usage counters", err)
		}
	}

	row := &models.AIUsageLog{
		UserID:           input.UserID,
		Operation:        input.Operation,
		Model:            input.Model,
		PromptTokens:     input.PromptTokens,
		CompletionTokens: input.CompletionTokens,
		Success:          input.Success,
		ErrorText:        input.ErrorText,
	}
	if err := s.repo.AppendUsageLog(ctx, row); err != nil {
		s.logger.Error(s.logger.WithUserID(ctx, input.UserID.String()), "append usage log", err)
	}
	return nil
}

func (s *service) applyCounters(ctx context.Context, input RecordUsageInput) error {
	limits, _, err := s.ensureLedger(ctx, input.UserID)
	if err != nil {
		return err
	}

	limits.InputTokensUsedMonthly += input.PromptTokens
	limits.OutputTokensUsedMonthly += input.CompletionTokens

	strDelta := 0
	if isSTROperation(input.Operation) {
		limits.STRsUsedMonthly++
		strDelta = 1
	}

	// Both writes commit together; a half-applied ledger would let the
	// allowance check disagree with the daily counters.
	if err := s.repo.ApplyCounters(ctx, limits, s.today(), strDelta, input.PromptTokens, input.CompletionTokens); err != nil {
		return fmt.Errorf("apply counters: %w", err)
	}
	return nil
}

func (s *service) GetUsage(ctx context.Context, userID uuid.UUID) (*UsageSummary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user identity missing")
	}
	limits, plan, err := s.ensureLedger(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{Plan: plan, Limits: limits}
	daily, err := s.repo.FindDailyUsage(ctx, userID, s.today())
	switch {
	case err == nil:
		summary.Today = daily
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read daily usage")
	}
	return summary, nil
}

func (s *service) ListPlans(ctx context.Context) ([]models.Plan, error) {
	plans, err := s.repo.ListPlans(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return plans, nil
}

// RolloverStale zeroes monthly counters for every ledger whose reset date
// fell in a previous month. The scheduler drives this each minute; the lazy
// per-read rollover covers the gap in between.
func (s *service) RolloverStale(ctx context.Context, now time.Time) error {
	rows, err := s.repo.ListStaleLimits(ctx, now)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale ledgers")
	}

	var errs error
	for i := range rows {
		row := rows[i]
		s.resetCounters(&row, now)
		if err := s.repo.SaveLimits(ctx, &row); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rollover ledger %s: %w", row.UserID, err))
		}
	}
	return errs
}

// ensureLedger loads the user's ledger, applying the lazy month rollover and
// synthesizing a default-plan ledger when none exists yet.
func (s *service) ensureLedger(ctx context.Context, userID uuid.UUID) (*models.ApiLimits, *models.Plan, error) {
	now := s.now()

	limits, err := s.repo.FindLimits(ctx, userID)
	switch {
	case err == nil:
		if s.rolloverIfStale(limits, now) {
			if saveErr := s.repo.SaveLimits(ctx, limits); saveErr != nil {
				s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "persist ledger rollover", saveErr)
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		limits = &models.ApiLimits{
			UserID:    userID,
			PlanID:    s.defaultPlanID,
			ResetDate: monthStart(now),
		}
		if saveErr := s.repo.SaveLimits(ctx, limits); saveErr != nil {
			// Keep accounting in memory for this request even when the
			// insert fails.
			s.logger.Error(s.logger.WithUserID(ctx, userID.String()), "persist synthesized ledger", saveErr)
		}
	default:
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read ledger")
	}

	plan, err := s.repo.FindPlan(ctx, limits.PlanID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read plan")
		}
		plan, err = s.repo.FindDefaultPlan(ctx)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read default plan")
		}
	}
	return limits, plan, nil
}

func (s *service) rolloverIfStale(limits *models.ApiLimits, now time.Time) bool {
	if limits.ResetDate.Year() == now.Year() && limits.ResetDate.Month() == now.Month() {
		return false
	}
	s.resetCounters(limits, now)
	return true
}

func (s *service) resetCounters(limits *models.ApiLimits, now time.Time) {
	limits.STRsUsedMonthly = 0
	limits.InputTokensUsedMonthly = 0
	limits.OutputTokensUsedMonthly = 0
	limits.ResetDate = monthStart(now)
}

func (s *service) today() time.Time {
	now := s.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func isSTROperation(op string) bool {
	return op == OpGenerateReport || op == OpReformatReport
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func budgetDecision(usageType enums.UsageType, current, requested, limit int64, capName string) Decision {
	d := Decision{
		Allowed:   current+requested <= limit,
		UsageType: usageType,
		Current:   current,
		Requested: requested,
		Limit:     limit,
	}
	if !d.Allowed {
		d.Message = fmt.Sprintf("%s reached (%d of %d used); upgrade your plan or wait for the next period", capName, current, limit)
	}
	return d
}

func sizeDecision(usageType enums.UsageType, value, limit int64, capName string) Decision {
	d := Decision{
		Allowed:   value <= limit,
		UsageType: usageType,
		Current:   value,
		Requested: value,
		Limit:     limit,
	}
	if !d.Allowed {
		d.Message = fmt.Sprintf("%s exceeded (%d of %d bytes); remove or shrink files before retrying", capName, value, limit)
	}
	return d
}
