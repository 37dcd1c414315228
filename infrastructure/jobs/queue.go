// Package jobs implements the asynchronous job queue backing long-running
// comparisons. Job state lives in memory for speed and is snapshotted to
// the shared cache store on every mutation, so status queries survive a
// process restart for the snapshot TTL.
package jobs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/crosscheck-ai/crosscheck/infrastructure/cache"
	"github.com/crosscheck-ai/crosscheck/internal/ports"
)

// SnapshotTTL is how long a job snapshot outlives its last mutation.
const SnapshotTTL = 24 * time.Hour

// State is a job lifecycle phase. Transitions run strictly
// pending -> running -> one of the terminal states; terminal states
// never change again.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Job is one tracked unit of asynchronous work. PartialResult
// accumulates per-item output while the job runs, so a status poll
// shows everything finished so far.
type Job struct {
	ID             string         `json:"id"`
	Kind           string         `json:"kind"`
	State          State          `json:"state"`
	Percent        int            `json:"percent"`
	CompletedItems int            `json:"completed_items"`
	TotalItems     int            `json:"total_items"`
	PartialResult  map[string]any `json:"partial_result,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Queue tracks jobs in memory with durable snapshots in a CacheStore.
type Queue struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	store  ports.CacheStore
	logger zerolog.Logger
	now    func() time.Time
}

// NewQueue builds an empty queue over the given snapshot store.
func NewQueue(store ports.CacheStore, logger zerolog.Logger) *Queue {
	return &Queue{
		jobs:   make(map[string]*Job),
		store:  store,
		logger: logger.With().Str("component", "jobs").Logger(),
		now:    time.Now,
	}
}

// Create registers a new pending job and returns its ID.
func (q *Queue) Create(ctx context.Context, kind string, totalItems int) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	job := &Job{
		ID:         uuid.NewString(),
		Kind:       kind,
		State:      StatePending,
		TotalItems: totalItems,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	q.jobs[job.ID] = job
	q.persist(ctx, job)
	q.logger.Info().Str("job_id", job.ID).Str("kind", kind).Int("total", totalItems).Msg("job created")
	return job.ID
}

// Start moves a pending job to running. Starting a job in any other
// state is a no-op returning false.
func (q *Queue) Start(ctx context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.State != StatePending {
		return false
	}
	job.State = StateRunning
	job.UpdatedAt = q.now()
	q.persist(ctx, job)
	return true
}

// UpdateProgress records one finished item, merging its partial output.
// Percent is the integer floor of completed/total. When every item is
// in, the job auto-completes with the accumulated partial result.
func (q *Queue) UpdateProgress(ctx context.Context, id string, partial map[string]any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.State != StateRunning {
		return false
	}

	job.CompletedItems++
	if job.TotalItems > 0 {
		job.Percent = job.CompletedItems * 100 / job.TotalItems
	}
	if len(partial) > 0 {
		if job.PartialResult == nil {
			job.PartialResult = make(map[string]any, len(partial))
		}
		for k, v := range partial {
			job.PartialResult[k] = v
		}
	}
	job.UpdatedAt = q.now()

	if job.TotalItems > 0 && job.CompletedItems >= job.TotalItems {
		job.State = StateCompleted
		job.Percent = 100
		job.Result = job.PartialResult
		q.logger.Info().Str("job_id", id).Msg("job completed")
	}
	q.persist(ctx, job)
	return true
}

// Complete finishes a running job with its final result.
func (q *Queue) Complete(ctx context.Context, id string, result map[string]any) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.State.Terminal() {
		return false
	}
	job.State = StateCompleted
	job.Percent = 100
	job.CompletedItems = job.TotalItems
	job.Result = result
	job.UpdatedAt = q.now()
	q.persist(ctx, job)
	q.logger.Info().Str("job_id", id).Msg("job completed")
	return true
}

// Fail terminates a job with an error message. Partial results already
// recorded stay visible on the failed job.
func (q *Queue) Fail(ctx context.Context, id, errMsg string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.State.Terminal() {
		return false
	}
	job.State = StateFailed
	job.Error = errMsg
	job.UpdatedAt = q.now()
	q.persist(ctx, job)
	q.logger.Warn().Str("job_id", id).Str("error", errMsg).Msg("job failed")
	return true
}

// Cancel requests cooperative cancellation. It returns false without
// mutating anything when the job is unknown or already terminal, so
// cancelling a completed job can never erase its result.
func (q *Queue) Cancel(ctx context.Context, id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[id]
	if !ok || job.State.Terminal() {
		return false
	}
	job.State = StateCancelled
	job.UpdatedAt = q.now()
	q.persist(ctx, job)
	q.logger.Info().Str("job_id", id).Msg("job cancelled")
	return true
}

// Status returns a copy of the job. On a memory miss it falls back to
// the snapshot store, so restarts keep recent jobs queryable.
func (q *Queue) Status(ctx context.Context, id string) (Job, bool) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if ok {
		snapshot := *job
		q.mu.Unlock()
		return snapshot, true
	}
	q.mu.Unlock()

	raw, found, err := q.store.Get(ctx, snapshotKey(id))
	if err != nil || !found {
		return Job{}, false
	}
	var restored Job
	if err := json.Unmarshal(raw, &restored); err != nil {
		q.logger.Warn().Str("job_id", id).Err(err).Msg("corrupt job snapshot")
		return Job{}, false
	}
	return restored, true
}

// persist writes the snapshot under the queue lock. Snapshot failures
// are logged, not surfaced; the in-memory copy stays authoritative.
func (q *Queue) persist(ctx context.Context, job *Job) {
	if err := q.store.Set(ctx, snapshotKey(job.ID), job, SnapshotTTL); err != nil {
		q.logger.Warn().Str("job_id", job.ID).Err(err).Msg("job snapshot write failed")
	}
}

func snapshotKey(id string) string {
	return cache.Key("job", id)
}
