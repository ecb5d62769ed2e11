package metadata

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/GoldenRal/modSTR/internal/ai"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/enums"
	pkgerrors "github.com/GoldenRal/modSTR/pkg/errors"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

// deriveOutputBudget caps the completion we ask the allowance check to
// reserve for one derivation.
const deriveOutputBudget = 512

type projectStore interface {
	GetProject(ctx context.Context, userID, projectID uuid.UUID) (*projects.Project, error)
	MutateProject(ctx context.Context, userID, projectID uuid.UUID, fn func(*projects.Project)) error
}

type gateway interface {
	DeriveMetadata(ctx context.Context, text string) ai.MetadataResult
	AnalyzeCompleteness(present []enums.DocumentType, scenario enums.Scenario) []enums.DocumentType
	Model() string
}

type allowanceService interface {
	CheckAllowance(ctx context.Context, userID uuid.UUID, usageType enums.UsageType, value int64) (quota.Decision, error)
	RecordUsage(ctx context.Context, input quota.RecordUsageInput) error
}

// Deriver re-derives project metadata from processed document text. At most
// one derivation runs per project; triggers for a busy project are dropped
// rather than queued.
type Deriver struct {
	store   projectStore
	gateway gateway
	quota   allowanceService
	logger  *logger.Logger

	backoff    time.Duration
	maxRetries uint64

	mu       sync.Mutex
	inFlight map[uuid.UUID]struct{}
}

// DeriverParams configures the metadata deriver.
type DeriverParams struct {
	Store   projectStore
	Gateway gateway
	Quota   allowanceService
	Logger  *logger.Logger
	// Backoff is the wait between rate-limited attempts.
	Backoff time.Duration
	// MaxRetries bounds the rate-limit retry loop.
	MaxRetries uint64
}

// NewDeriver builds the metadata deriver.
func NewDeriver(p DeriverParams) (*Deriver, error) {
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
	if p.Backoff <= 0 {
		p.Backoff = 20 * time.Second
	}
	if p.MaxRetries == 0 {
		p.MaxRetries = 90
	}
	return &Deriver{
		store:      p.Store,
		gateway:    p.Gateway,
		quota:      p.Quota,
		logger:     p.Logger,
		backoff:    p.Backoff,
		maxRetries: p.MaxRetries,
		inFlight:   make(map[uuid.UUID]struct{}),
	}, nil
}

// Trigger starts a derivation in the background. Triggers for a project
// already deriving are dropped.
func (d *Deriver) Trigger(userID, projectID uuid.UUID) {
	if !d.acquire(projectID) {
		return
	}
	go func() {
		defer d.release(projectID)
		ctx := d.projectCtx(context.Background(), userID, projectID)
		if err := d.derive(ctx, userID, projectID); err != nil {
			d.logger.Error(ctx, "background metadata derivation", err)
		}
	}()
}

// DeriveNow runs a derivation synchronously for the manual API path. A busy
// project yields a conflict instead of queueing a second run.
func (d *Deriver) DeriveNow(ctx context.Context, userID, projectID uuid.UUID) error {
	if !d.acquire(projectID) {
		return pkgerrors.New(pkgerrors.CodeConflict, "metadata derivation already in progress")
	}
	defer d.release(projectID)
	return d.derive(d.projectCtx(ctx, userID, projectID), userID, projectID)
}

// Deriving reports whether the project currently holds the guard.
func (d *Deriver) Deriving(projectID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inFlight[projectID]
	return ok
}

func (d *Deriver) acquire(projectID uuid.UUID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, busy := d.inFlight[projectID]; busy {
		return false
	}
	d.inFlight[projectID] = struct{}{}
	return true
}

func (d *Deriver) release(projectID uuid.UUID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.inFlight, projectID)
}

func (d *Deriver) derive(ctx context.Context, userID, projectID uuid.UUID) error {
	project, err := d.store.GetProject(ctx, userID, projectID)
	if err != nil {
		return err
	}

	aggregated := aggregateText(project.ProcessedText())
	if aggregated == "" {
		// Nothing to derive from, but completeness still reflects the
		// current labels and scenario.
		return d.refreshCompleteness(ctx, userID, projectID)
	}

	decision, err := d.quota.CheckAllowance(ctx, userID, enums.UsageTypeInputTokens, ai.EstimateTokens(len(aggregated)))
	if err != nil {
		return err
	}
	if decision.Allowed {
		decision, err = d.quota.CheckAllowance(ctx, userID, enums.UsageTypeOutputTokens, deriveOutputBudget)
		if err != nil {
			return err
		}
	}
	if !decision.Allowed {
		d.logger.Warn(ctx, "metadata derivation skipped: "+decision.Message)
		return nil
	}

	var result ai.MetadataResult
	backoff := retry.WithMaxRetries(d.maxRetries, retry.NewConstant(d.backoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		result = d.gateway.DeriveMetadata(ctx, aggregated)
		if result.Outcome == ai.OutcomeRateLimited {
			// The guard stays held across the wait so no second derivation
			// can slip in.
			return retry.RetryableError(fmt.Errorf("derivation rate limited"))
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.recordUsage(ctx, userID, result)
	if result.Outcome != ai.OutcomeSuccess {
		return pkgerrors.New(pkgerrors.CodeProvider, result.Message)
	}

	return d.merge(ctx, userID, projectID, result.Fields)
}

// merge applies the derived fields. Non-empty fields overwrite; absent ones
// keep their prior values; scenario is always overwritten. Completeness is
// recomputed only when the merge changed something.
func (d *Deriver) merge(ctx context.Context, userID, projectID uuid.UUID, fields ai.DerivedFields) error {
	return d.store.MutateProject(ctx, userID, projectID, func(project *projects.Project) {
		changed := false

		overwrite := func(target *string, value string) {
			if value != "" && *target != value {
				*target = value
				changed = true
			}
		}
		overwrite(&project.Name, fields.Name)
		overwrite(&project.Address, fields.Address)
		overwrite(&project.Client, fields.Client)
		overwrite(&project.SearchPeriod, fields.SearchPeriod)

		if project.Scenario != fields.Scenario {
			project.Scenario = fields.Scenario
			changed = true
		}

		if changed {
			project.MissingDocuments = d.gateway.AnalyzeCompleteness(project.PresentDocTypes(), project.Scenario)
		}
	})
}

func (d *Deriver) refreshCompleteness(ctx context.Context, userID, projectID uuid.UUID) error {
	return d.store.MutateProject(ctx, userID, projectID, func(project *projects.Project) {
		project.MissingDocuments = d.gateway.AnalyzeCompleteness(project.PresentDocTypes(), project.Scenario)
	})
}

func (d *Deriver) recordUsage(ctx context.Context, userID uuid.UUID, result ai.MetadataResult) {
	err := d.quota.RecordUsage(ctx, quota.RecordUsageInput{
		UserID:           userID,
		Operation:        quota.OpDeriveMetadata,
		Model:            d.gateway.Model(),
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		Success:          result.Outcome == ai.OutcomeSuccess,
		ErrorText:        result.Message,
	})
	if err != nil {
		d.logger.Error(ctx, "record derivation usage", err)
	}
}

func (d *Deriver) projectCtx(ctx context.Context, userID, projectID uuid.UUID) context.Context {
	ctx = d.logger.WithUserID(ctx, userID.String())
	return d.logger.WithProjectID(ctx, projectID.String())
}

// aggregateText joins the processed chunks, labeling each with its filename
// so the model can attribute statements.
func aggregateText(chunks []projects.LabeledText) string {
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
