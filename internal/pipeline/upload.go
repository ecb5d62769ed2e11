package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/GoldenRal/modSTR/internal/projects"
	"github.com/GoldenRal/modSTR/pkg/config"
	"github.com/GoldenRal/modSTR/pkg/enums"
	"github.com/GoldenRal/modSTR/pkg/logger"
	"github.com/GoldenRal/modSTR/pkg/metrics"
)

// Uploader simulates the staging upload for a freshly added document:
// variable-speed progress, a configurable failure chance, and on success a
// hand-off into the processing queue.
type Uploader struct {
	store   documentStore
	queue   *Queue
	metrics *metrics.PipelineMetrics
	logger  *logger.Logger
	cfg     config.PipelineConfig

	mu    sync.Mutex
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration)
}

// UploaderParams configures the upload simulator.
type UploaderParams struct {
	Store   documentStore
	Queue   *Queue
	Metrics *metrics.PipelineMetrics
	Logger  *logger.Logger
	Config  config.PipelineConfig
}

// NewUploader builds the upload simulator.
func NewUploader(p UploaderParams) (*Uploader, error) {
	if p.Store == nil {
		return nil, fmt.Errorf("document store required")
	}
	if p.Queue == nil {
		return nil, fmt.Errorf("queue required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Metrics == nil {
		p.Metrics = metrics.NewPipelineMetrics(nil)
	}
	return &Uploader{
		store:   p.Store,
		queue:   p.Queue,
		metrics: p.Metrics,
		logger:  p.Logger,
		cfg:     p.Config,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}, nil
}

// Begin starts the simulated upload in its own goroutine and returns
// immediately.
func (u *Uploader) Begin(ctx context.Context, job Job) {
	go u.stage(ctx, job)
}

func (u *Uploader) stage(ctx context.Context, job Job) {
	start := time.Now()
	fails := u.random() < u.cfg.UploadFailureChance
	failAt := 10 + int(u.random()*80)

	progress := 0
	for progress < 100 {
		if ctx.Err() != nil {
			return
		}
		if !u.store.DocumentExists(ctx, job.UserID, job.ProjectID, job.DocumentID) {
			return
		}

		step := 5 + int(u.random()*20)
		progress += step
		if progress > 100 {
			progress = 100
		}

		if fails && progress >= failAt {
			u.fail(ctx, job, "upload failed, please retry")
			u.metrics.IncFailure("upload")
			return
		}

		current := progress
		u.mutate(ctx, job, func(d *projects.Document) {
			d.Progress = current
		})
		u.sleep(ctx, time.Duration(50+int(u.random()*200))*time.Millisecond)
	}

	u.mutate(ctx, job, func(d *projects.Document) {
		d.Status = enums.DocumentStatusUploaded
		d.Progress = 100
	})
	u.metrics.ObserveDuration("upload", time.Since(start))
	u.metrics.IncSuccess("upload")

	u.queue.Push(job)
	u.metrics.SetQueueDepth(u.queue.Len())
}

func (u *Uploader) fail(ctx context.Context, job Job, message string) {
	u.mutate(ctx, job, func(d *projects.Document) {
		d.Status = enums.DocumentStatusError
		d.ErrorMessage = message
		d.Progress = 0
		d.Content = nil
	})
}

func (u *Uploader) mutate(ctx context.Context, job Job, fn func(*projects.Document)) {
	if err := u.store.MutateDocument(ctx, job.UserID, job.ProjectID, job.DocumentID, fn); err != nil {
		u.logger.Error(ctx, "mutate uploading document", err)
	}
}

func (u *Uploader) random() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.rng.Float64()
}
