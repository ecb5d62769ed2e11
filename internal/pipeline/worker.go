package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/internal/ai"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/config"
	"github.com/GoldenRal/modSTR/pkg/enums"
	"github.com/GoldenRal/modSTR/pkg/logger"
	"github.com/GoldenRal/modSTR/pkg/metrics"
)

type documentStore interface {
	DocumentExists(ctx context.Context, userID, projectID, docID uuid.UUID) bool
	GetDocument(ctx context.Context, userID, projectID, docID uuid.UUID) (*projects.Document, error)
	DocumentContent(ctx context.Context, userID, projectID, docID uuid.UUID) ([]byte, error)
	MutateDocument(ctx context.Context, userID, projectID, docID uuid.UUID, fn func(*projects.Document)) error
}

type gateway interface {
	Extract(ctx context.Context, fileName, mimeType string, content []byte) ai.ExtractResult
	Classify(ctx context.Context, text string) ai.ClassifyResult
	Model() string
}

type allowanceService interface {
	CheckAllowance(ctx context.Context, userID uuid.UUID, usageType enums.UsageType, value int64) (quota.Decision, error)
	RecordUsage(ctx context.Context, input quota.RecordUsageInput) error
}

type deriverTrigger interface {
	Trigger(userID, projectID uuid.UUID)
}

// jobOutcome tells the run loop whether to advance past the head job.
type jobOutcome int

const (
	outcomeAdvance jobOutcome = iota
	outcomeBackoff
)

// Worker drains the document queue one job at a time. A single worker
// goroutine system-wide keeps document processing strictly serialized.
type Worker struct {
	queue   *Queue
	store   documentStore
	gateway gateway
	quota   allowanceService
	deriver deriverTrigger
	metrics *metrics.PipelineMetrics
	logger  *logger.Logger
	cfg     config.PipelineConfig

	sleep func(ctx context.Context, d time.Duration)
}

// WorkerParams configures the pipeline worker.
type WorkerParams struct {
	Queue   *Queue
	Store   documentStore
	Gateway gateway
	Quota   allowanceService
	Deriver deriverTrigger
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
	Config  config.PipelineConfig
}

// NewWorker builds the pipeline worker.
func NewWorker(p WorkerParams) (*Worker, error) {
	if p.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if p.Store == nil {
		return nil, fmt.Errorf("document store required")
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
	if p.Metrics == nil {
		p.Metrics = metrics.NewPipelineMetrics(nil)
	}
	if p.Config.PollInterval <= 0 {
		p.Config.PollInterval = 500 * time.Millisecond
	}
	if p.Config.RateLimitBackoff <= 0 {
		p.Config.RateLimitBackoff = 20 * time.Second
	}
	if p.Config.ClassifyTokenBudget <= 0 {
		p.Config.ClassifyTokenBudget = 64
	}
	if p.Config.ExtractTokenBudget <= 0 {
		p.Config.ExtractTokenBudget = 8192
	}
	return &Worker{
		queue:   p.Queue,
		store:   p.Store,
		gateway: p.Gateway,
		quota:   p.Quota,
		deriver: p.Deriver,
		metrics: p.Metrics,
		logger:  p.Logger,
		cfg:     p.Config,
		sleep:   sleepCtx,
	}, nil
}

// Run processes jobs until the context ends.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info(ctx, "pipeline worker started")
	for ctx.Err() == nil {
		job, ok := w.queue.Peek()
		if !ok {
			w.sleep(ctx, w.cfg.PollInterval)
			continue
		}

		switch w.runJob(ctx, job) {
		case outcomeBackoff:
			// The head job keeps its place; the whole queue waits out the
			// provider's rate limit.
			w.sleep(ctx, w.cfg.RateLimitBackoff)
		default:
			w.queue.Pop()
			w.metrics.SetQueueDepth(w.queue.Len())
		}
	}
	w.logger.Info(ctx, "pipeline worker stopped")
}

// runJob shields the loop from panics in job processing.
func (w *Worker) runJob(ctx context.Context, job Job) (outcome jobOutcome) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error(w.jobCtx(ctx, job), "pipeline job panicked", fmt.Errorf("%v", r))
			w.failDocument(ctx, job, "internal processing failure")
			w.metrics.IncFailure("pipeline")
			outcome = outcomeAdvance
		}
	}()
	return w.process(ctx, job)
}

func (w *Worker) process(ctx context.Context, job Job) jobOutcome {
	ctx = w.jobCtx(ctx, job)

	if !w.store.DocumentExists(ctx, job.UserID, job.ProjectID, job.DocumentID) {
		// Deleted while queued; drop silently.
		return outcomeAdvance
	}

	doc, err := w.store.GetDocument(ctx, job.UserID, job.ProjectID, job.DocumentID)
	if err != nil {
		return outcomeAdvance
	}

	// A rate-limited classify leaves the document classifying with its text
	// already stored. The retry resumes there; re-running extraction would
	// meter a second provider call for work that already succeeded.
	if doc.Status == enums.DocumentStatusClassifying && doc.ExtractedText != "" {
		return w.classifyStage(ctx, job, doc.ExtractedText)
	}

	text, outcome := w.extractStage(ctx, job, doc)
	if outcome != outcomeAdvance || text == "" {
		return outcome
	}
	return w.classifyStage(ctx, job, text)
}

// extractStage runs the allowance gate and text extraction. It returns the
// extracted text when the job should continue to classification.
func (w *Worker) extractStage(ctx context.Context, job Job, doc *projects.Document) (string, jobOutcome) {
	w.setStatus(ctx, job, enums.DocumentStatusExtracting)

	estimate := ai.EstimateTokens(int(doc.SizeBytes))
	if !w.allow(ctx, job, enums.UsageTypeInputTokens, estimate) ||
		!w.allow(ctx, job, enums.UsageTypeOutputTokens, int64(w.cfg.ExtractTokenBudget)) {
		w.metrics.IncFailure("extract")
		return "", outcomeAdvance
	}

	content, err := w.store.DocumentContent(ctx, job.UserID, job.ProjectID, job.DocumentID)
	if err != nil {
		w.failDocument(ctx, job, "document content unavailable")
		w.metrics.IncFailure("extract")
		return "", outcomeAdvance
	}

	start := time.Now()
	result := w.gateway.Extract(ctx, doc.FileName, doc.MIMEType, content)
	w.metrics.ObserveDuration("extract", time.Since(start))

	switch result.Outcome {
	case ai.OutcomeRateLimited:
		// Status stays extracting; the retry repeats the stage.
		return "", outcomeBackoff

	case ai.OutcomeUnsupported:
		// No provider call happened, so nothing is metered.
		w.mutate(ctx, job, func(d *projects.Document) {
			d.Status = enums.DocumentStatusUnsupported
			d.ExtractedText = result.Text
			d.ErrorMessage = result.Message
			d.Content = nil
		})
		w.metrics.IncSuccess("extract")
		return "", outcomeAdvance

	case ai.OutcomeError:
		w.recordUsage(ctx, job, quota.OpExtract, result.Usage, false, result.Message)
		w.failDocument(ctx, job, result.Message)
		w.metrics.IncFailure("extract")
		return "", outcomeAdvance
	}

	w.recordUsage(ctx, job, quota.OpExtract, result.Usage, true, "")
	w.mutate(ctx, job, func(d *projects.Document) {
		d.ExtractedText = result.Text
		d.Status = enums.DocumentStatusClassifying
	})
	w.metrics.IncSuccess("extract")
	return result.Text, outcomeAdvance
}

func (w *Worker) classifyStage(ctx context.Context, job Job, text string) jobOutcome {
	if !w.allow(ctx, job, enums.UsageTypeInputTokens, ai.EstimateTokens(len(text))) ||
		!w.allow(ctx, job, enums.UsageTypeOutputTokens, int64(w.cfg.ClassifyTokenBudget)) {
		w.metrics.IncFailure("classify")
		return outcomeAdvance
	}

	start := time.Now()
	result := w.gateway.Classify(ctx, text)
	w.metrics.ObserveDuration("classify", time.Since(start))

	switch result.Outcome {
	case ai.OutcomeRateLimited:
		return outcomeBackoff

	case ai.OutcomeError, ai.OutcomeUnsupported:
		w.recordUsage(ctx, job, quota.OpClassify, result.Usage, false, result.Message)
		w.failDocument(ctx, job, result.Message)
		w.metrics.IncFailure("classify")
		return outcomeAdvance
	}

	w.recordUsage(ctx, job, quota.OpClassify, result.Usage, true, "")
	w.mutate(ctx, job, func(d *projects.Document) {
		// The automated label is replaced wholesale; manual assignments are
		// preserved by keeping any labels a user added.
		d.DocTypes = replaceAutomatedLabel(d.DocTypes, result.Label)
		d.Status = enums.DocumentStatusProcessed
		d.ErrorMessage = ""
		d.Content = nil
	})
	w.metrics.IncSuccess("classify")

	if w.deriver != nil {
		w.deriver.Trigger(job.UserID, job.ProjectID)
	}
	return outcomeAdvance
}

// replaceAutomatedLabel puts the classifier's label first, keeping any other
// labels already assigned manually.
func replaceAutomatedLabel(existing []enums.DocumentType, label enums.DocumentType) []enums.DocumentType {
	out := []enums.DocumentType{label}
	for _, docType := range existing {
		if docType != label {
			out = append(out, docType)
		}
	}
	return out
}

func (w *Worker) allow(ctx context.Context, job Job, usageType enums.UsageType, value int64) bool {
	decision, err := w.quota.CheckAllowance(ctx, job.UserID, usageType, value)
	if err != nil {
		w.logger.Error(ctx, "allowance check failed", err)
		w.failDocument(ctx, job, "usage check unavailable, try again later")
		return false
	}
	if !decision.Allowed {
		w.failDocument(ctx, job, decision.Message)
		return false
	}
	return true
}

func (w *Worker) recordUsage(ctx context.Context, job Job, op string, usage ai.Usage, success bool, errText string) {
	err := w.quota.RecordUsage(ctx, quota.RecordUsageInput{
		UserID:           job.UserID,
		Operation:        op,
		Model:            w.gateway.Model(),
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Success:          success,
		ErrorText:        errText,
	})
	if err != nil {
		w.logger.Error(ctx, "record usage", err)
	}
}

func (w *Worker) setStatus(ctx context.Context, job Job, status enums.DocumentStatus) {
	w.mutate(ctx, job, func(d *projects.Document) {
		d.Status = status
	})
}

func (w *Worker) failDocument(ctx context.Context, job Job, message string) {
	w.mutate(ctx, job, func(d *projects.Document) {
		d.Status = enums.DocumentStatusError
		d.ErrorMessage = message
		d.Content = nil
	})
}

func (w *Worker) mutate(ctx context.Context, job Job, fn func(*projects.Document)) {
	if err := w.store.MutateDocument(ctx, job.UserID, job.ProjectID, job.DocumentID, fn); err != nil {
		w.logger.Error(ctx, "mutate document", err)
	}
}

func (w *Worker) jobCtx(ctx context.Context, job Job) context.Context {
	ctx = w.logger.WithUserID(ctx, job.UserID.String())
	ctx = w.logger.WithProjectID(ctx, job.ProjectID.String())
	return w.logger.WithDocumentID(ctx, job.DocumentID.String())
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
