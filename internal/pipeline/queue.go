package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job identifies one document awaiting processing.
type Job struct {
	UserID     uuid.UUID
	ProjectID  uuid.UUID
	DocumentID uuid.UUID
	EnqueuedAt time.Time
}

// Queue is the FIFO of pending documents. The worker peeks the head and
// only pops it once the job finishes or fails terminally, so a rate-limited
// job keeps its place.
type Queue struct {
	mu   sync.Mutex
	jobs []Job
}

// NewQueue builds an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends a job.
func (q *Queue) Push(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now().UTC()
	}
	q.jobs = append(q.jobs, job)
}

// Peek returns the head job without removing it.
func (q *Queue) Peek() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	return q.jobs[0], true
}

// Pop removes the head job.
func (q *Queue) Pop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		return Job{}, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}

// Len reports the number of pending jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}
