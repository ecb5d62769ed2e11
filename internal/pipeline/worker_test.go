package pipeline

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/GoldenRal/modSTR/internal/ai"
	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/internal/quota"
	"github.com/GoldenRal/modSTR/pkg/config"
	"github.com/GoldenRal/modSTR/pkg/enums"
	"github.com/GoldenRal/modSTR/pkg/logger"
)

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[uuid.UUID]*projects.Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[uuid.UUID]*projects.Document{}}
}

func (f *fakeDocStore) add(doc *projects.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[doc.ID] = doc
}

func (f *fakeDocStore) get(id uuid.UUID) *projects.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func (f *fakeDocStore) DocumentExists(_ context.Context, _, _, docID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.docs[docID]
	return ok
}

func (f *fakeDocStore) GetDocument(_ context.Context, _, _, docID uuid.UUID) (*projects.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *f.docs[docID]
	return &copied, nil
}

func (f *fakeDocStore) DocumentContent(_ context.Context, _, _, docID uuid.UUID) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[docID].Content, nil
}

func (f *fakeDocStore) MutateDocument(_ context.Context, _, _, docID uuid.UUID, fn func(*projects.Document)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f.docs[docID])
	return nil
}

type fakeGateway struct {
	extract  ai.ExtractResult
	classify ai.ClassifyResult
	// rateLimitExtracts and rateLimitClassifies make the first n calls of
	// the matching stage rate-limited.
	rateLimitExtracts   int
	rateLimitClassifies int
	extractCalls        int
	classifyCalls       int
	panics              bool
}

func (f *fakeGateway) Extract(_ context.Context, _, _ string, _ []byte) ai.ExtractResult {
	if f.panics {
		panic("boom")
	}
	f.extractCalls++
	if f.extractCalls <= f.rateLimitExtracts {
		return ai.ExtractResult{Outcome: ai.OutcomeRateLimited, Message: "provider is busy, try again shortly"}
	}
	return f.extract
}

func (f *fakeGateway) Classify(_ context.Context, _ string) ai.ClassifyResult {
	f.classifyCalls++
	if f.classifyCalls <= f.rateLimitClassifies {
		return ai.ClassifyResult{Outcome: ai.OutcomeRateLimited, Message: "provider is busy, try again shortly"}
	}
	return f.classify
}

func (f *fakeGateway) Model() string { return "gemini-test" }

type fakeQuotaService struct {
	denied  map[enums.UsageType]string
	records []quota.RecordUsageInput
}

func (f *fakeQuotaService) CheckAllowance(_ context.Context, _ uuid.UUID, usageType enums.UsageType, value int64) (quota.Decision, error) {
	if message, ok := f.denied[usageType]; ok {
		return quota.Decision{Allowed: false, UsageType: usageType, Message: message}, nil
	}
	return quota.Decision{Allowed: true, UsageType: usageType}, nil
}

func (f *fakeQuotaService) RecordUsage(_ context.Context, input quota.RecordUsageInput) error {
	f.records = append(f.records, input)
	return nil
}

type fakeDeriver struct {
	mu       sync.Mutex
	triggers int
}

func (f *fakeDeriver) Trigger(_, _ uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.triggers++
}

func (f *fakeDeriver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.triggers
}

func newTestWorker(t *testing.T, store *fakeDocStore, gw *fakeGateway, q *Queue, qs *fakeQuotaService, d *fakeDeriver) *Worker {
	t.Helper()
	worker, err := NewWorker(WorkerParams{
		Queue:   q,
		Store:   store,
		Gateway: gw,
		Quota:   qs,
		Deriver: d,
		Logger:  logger.New(logger.Options{ServiceName: "pipeline-test", Output: io.Discard}),
		Config:  config.PipelineConfig{PollInterval: time.Millisecond, RateLimitBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("NewWorker returned error: %v", err)
	}
	worker.sleep = func(context.Context, time.Duration) {}
	return worker
}

func seedJob(store *fakeDocStore) (Job, *projects.Document) {
	doc := &projects.Document{
		ID:        uuid.New(),
		FileName:  "deed.pdf",
		MIMEType:  "application/pdf",
		SizeBytes: 4096,
		Content:   []byte("pdf bytes"),
		Status:    enums.DocumentStatusUploaded,
	}
	store.add(doc)
	return Job{UserID: uuid.New(), ProjectID: uuid.New(), DocumentID: doc.ID}, doc
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	first := Job{DocumentID: uuid.New()}
	second := Job{DocumentID: uuid.New()}
	q.Push(first)
	q.Push(second)

	head, ok := q.Peek()
	if !ok || head.DocumentID != first.DocumentID {
		t.Fatal("peek must return the first job")
	}
	if q.Len() != 2 {
		t.Fatalf("expected len 2, got %d", q.Len())
	}

	popped, _ := q.Pop()
	if popped.DocumentID != first.DocumentID {
		t.Fatal("pop must return the first job")
	}
	head, _ = q.Peek()
	if head.DocumentID != second.DocumentID {
		t.Fatal("second job must move to head")
	}
}

func TestWorkerProcessesDocumentEndToEnd(t *testing.T) {
	store := newFakeDocStore()
	job, _ := seedJob(store)
	gw := &fakeGateway{
		extract:  ai.ExtractResult{Outcome: ai.OutcomeSuccess, Text: "THIS SALE DEED...", Usage: ai.Usage{PromptTokens: 800, CompletionTokens: 300}},
		classify: ai.ClassifyResult{Outcome: ai.OutcomeSuccess, Label: enums.DocumentTypeSaleDeed, Usage: ai.Usage{PromptTokens: 100, CompletionTokens: 4}},
	}
	qs := &fakeQuotaService{}
	deriver := &fakeDeriver{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, deriver)

	if got := worker.process(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance, got %v", got)
	}

	doc := store.get(job.DocumentID)
	if doc.Status != enums.DocumentStatusProcessed {
		t.Fatalf("expected processed, got %s (%s)", doc.Status, doc.ErrorMessage)
	}
	if doc.ExtractedText == "" {
		t.Fatal("extracted text must be stored")
	}
	if len(doc.DocTypes) != 1 || doc.DocTypes[0] != enums.DocumentTypeSaleDeed {
		t.Fatalf("unexpected labels %v", doc.DocTypes)
	}
	if doc.Content != nil {
		t.Fatal("content must be dropped at terminal status")
	}
	if len(qs.records) != 2 {
		t.Fatalf("expected extract+classify usage records, got %d", len(qs.records))
	}
	if deriver.count() != 1 {
		t.Fatalf("expected one deriver trigger, got %d", deriver.count())
	}
}

func TestWorkerDropsDeletedJobSilently(t *testing.T) {
	store := newFakeDocStore()
	gw := &fakeGateway{}
	qs := &fakeQuotaService{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	job := Job{UserID: uuid.New(), ProjectID: uuid.New(), DocumentID: uuid.New()}
	if got := worker.process(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance, got %v", got)
	}
	if gw.extractCalls != 0 {
		t.Fatal("deleted document must not reach the provider")
	}
}

func TestWorkerRateLimitKeepsJobAtHead(t *testing.T) {
	store := newFakeDocStore()
	job, _ := seedJob(store)
	gw := &fakeGateway{
		rateLimitExtracts: 1,
		extract:           ai.ExtractResult{Outcome: ai.OutcomeSuccess, Text: "text"},
		classify:          ai.ClassifyResult{Outcome: ai.OutcomeSuccess, Label: enums.DocumentTypeWill},
	}
	qs := &fakeQuotaService{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	if got := worker.process(context.Background(), job); got != outcomeBackoff {
		t.Fatalf("expected backoff, got %v", got)
	}
	doc := store.get(job.DocumentID)
	if doc.Status != enums.DocumentStatusExtracting {
		t.Fatalf("rate limited document must stay extracting, got %s", doc.Status)
	}

	// The retry after the backoff succeeds.
	if got := worker.process(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance on retry, got %v", got)
	}
	if store.get(job.DocumentID).Status != enums.DocumentStatusProcessed {
		t.Fatalf("expected processed after retry, got %s", store.get(job.DocumentID).Status)
	}
}

func TestWorkerClassifyRateLimitResumesAtClassify(t *testing.T) {
	store := newFakeDocStore()
	job, _ := seedJob(store)
	gw := &fakeGateway{
		rateLimitClassifies: 1,
		extract:             ai.ExtractResult{Outcome: ai.OutcomeSuccess, Text: "THIS SALE DEED...", Usage: ai.Usage{PromptTokens: 800, CompletionTokens: 300}},
		classify:            ai.ClassifyResult{Outcome: ai.OutcomeSuccess, Label: enums.DocumentTypeSaleDeed},
	}
	qs := &fakeQuotaService{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	if got := worker.process(context.Background(), job); got != outcomeBackoff {
		t.Fatalf("expected backoff, got %v", got)
	}
	doc := store.get(job.DocumentID)
	if doc.Status != enums.DocumentStatusClassifying {
		t.Fatalf("rate limited document must stay classifying, got %s", doc.Status)
	}

	if got := worker.process(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance on retry, got %v", got)
	}
	if gw.extractCalls != 1 {
		t.Fatalf("retry must not re-run extraction, got %d extract calls", gw.extractCalls)
	}
	if gw.classifyCalls != 2 {
		t.Fatalf("expected 2 classify calls, got %d", gw.classifyCalls)
	}

	var extractRecords int
	for _, record := range qs.records {
		if record.Operation == quota.OpExtract {
			extractRecords++
		}
	}
	if extractRecords != 1 {
		t.Fatalf("extraction must be metered once, got %d records", extractRecords)
	}
	if store.get(job.DocumentID).Status != enums.DocumentStatusProcessed {
		t.Fatalf("expected processed after retry, got %s", store.get(job.DocumentID).Status)
	}
}

func TestWorkerUnsupportedIsTerminal(t *testing.T) {
	store := newFakeDocStore()
	job, doc := seedJob(store)
	doc.FileName = "chain.docx"
	doc.MIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	gw := &fakeGateway{
		extract: ai.ExtractResult{
			Outcome: ai.OutcomeUnsupported,
			Text:    "[Document \"chain.docx\" is a docx file and could not be read automatically.]",
			Message: "docx files cannot be read",
		},
	}
	qs := &fakeQuotaService{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	if got := worker.process(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance, got %v", got)
	}
	got := store.get(job.DocumentID)
	if got.Status != enums.DocumentStatusUnsupported {
		t.Fatalf("expected unsupported, got %s", got.Status)
	}
	if got.ExtractedText == "" {
		t.Fatal("placeholder text must be stored")
	}
	if gw.classifyCalls != 0 {
		t.Fatal("unsupported document must not be classified")
	}
}

func TestWorkerAllowanceDenialFailsDocument(t *testing.T) {
	store := newFakeDocStore()
	job, _ := seedJob(store)
	gw := &fakeGateway{}
	qs := &fakeQuotaService{denied: map[enums.UsageType]string{
		enums.UsageTypeInputTokens: "monthly input token cap reached",
	}}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	if got := worker.process(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance, got %v", got)
	}
	doc := store.get(job.DocumentID)
	if doc.Status != enums.DocumentStatusError {
		t.Fatalf("expected error, got %s", doc.Status)
	}
	if doc.ErrorMessage == "" {
		t.Fatal("denial message must be stored on the document")
	}
	if gw.extractCalls != 0 {
		t.Fatal("denied job must not reach the provider")
	}
}

func TestWorkerPanicRecovery(t *testing.T) {
	store := newFakeDocStore()
	job, _ := seedJob(store)
	gw := &fakeGateway{panics: true}
	qs := &fakeQuotaService{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	if got := worker.runJob(context.Background(), job); got != outcomeAdvance {
		t.Fatalf("expected advance after panic, got %v", got)
	}
	doc := store.get(job.DocumentID)
	if doc.Status != enums.DocumentStatusError {
		t.Fatalf("expected error status after panic, got %s", doc.Status)
	}
}

func TestWorkerFailedClassificationRecordsUsage(t *testing.T) {
	store := newFakeDocStore()
	job, _ := seedJob(store)
	gw := &fakeGateway{
		extract:  ai.ExtractResult{Outcome: ai.OutcomeSuccess, Text: "text", Usage: ai.Usage{PromptTokens: 10}},
		classify: ai.ClassifyResult{Outcome: ai.OutcomeError, Message: "provider exploded", Usage: ai.Usage{PromptTokens: 5}},
	}
	qs := &fakeQuotaService{}
	worker := newTestWorker(t, store, gw, NewQueue(), qs, &fakeDeriver{})

	worker.process(context.Background(), job)

	if len(qs.records) != 2 {
		t.Fatalf("expected 2 usage records, got %d", len(qs.records))
	}
	last := qs.records[len(qs.records)-1]
	if last.Success || last.ErrorText != "provider exploded" {
		t.Fatalf("failed classify must be audited, got %+v", last)
	}
	if store.get(job.DocumentID).Status != enums.DocumentStatusError {
		t.Fatal("failed classify must error the document")
	}
}

func TestUploaderSuccessEnqueues(t *testing.T) {
	store := newFakeDocStore()
	doc := &projects.Document{
		ID:       uuid.New(),
		FileName: "tax.pdf",
		Status:   enums.DocumentStatusUploading,
		Content:  []byte("bytes"),
	}
	store.add(doc)
	q := NewQueue()

	uploader, err := NewUploader(UploaderParams{
		Store:  store,
		Queue:  q,
		Logger: logger.New(logger.Options{ServiceName: "upload-test", Output: io.Discard}),
		Config: config.PipelineConfig{UploadFailureChance: 0},
	})
	if err != nil {
		t.Fatalf("NewUploader returned error: %v", err)
	}
	uploader.sleep = func(context.Context, time.Duration) {}

	job := Job{UserID: uuid.New(), ProjectID: uuid.New(), DocumentID: doc.ID}
	uploader.stage(context.Background(), job)

	got := store.get(doc.ID)
	if got.Status != enums.DocumentStatusUploaded {
		t.Fatalf("expected uploaded, got %s", got.Status)
	}
	if got.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", got.Progress)
	}
	if q.Len() != 1 {
		t.Fatalf("expected enqueued job, got %d", q.Len())
	}
}

func TestUploaderFailureMarksError(t *testing.T) {
	store := newFakeDocStore()
	doc := &projects.Document{
		ID:      uuid.New(),
		Status:  enums.DocumentStatusUploading,
		Content: []byte("bytes"),
	}
	store.add(doc)
	q := NewQueue()

	uploader, err := NewUploader(UploaderParams{
		Store:  store,
		Queue:  q,
		Logger: logger.New(logger.Options{ServiceName: "upload-test", Output: io.Discard}),
		Config: config.PipelineConfig{UploadFailureChance: 1.0},
	})
	if err != nil {
		t.Fatalf("NewUploader returned error: %v", err)
	}
	uploader.sleep = func(context.Context, time.Duration) {}

	job := Job{UserID: uuid.New(), ProjectID: uuid.New(), DocumentID: doc.ID}
	uploader.stage(context.Background(), job)

	got := store.get(doc.ID)
	if got.Status != enums.DocumentStatusError {
		t.Fatalf("expected error, got %s", got.Status)
	}
	if q.Len() != 0 {
		t.Fatal("failed upload must not enqueue")
	}
}
