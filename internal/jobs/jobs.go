// Package jobs records background extraction runs and executes them on
// goroutines detached from the triggering request.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/taskhive/taskhive/internal/apperr"
	"github.com/taskhive/taskhive/internal/docstore"
	"github.com/taskhive/taskhive/internal/models"
)

const collection = "jobs"

// DefaultTimeout bounds one run.
const DefaultTimeout = 2 * time.Minute

// Func is the work a job performs. The returned text becomes the job result.
type Func func(ctx context.Context) (string, error)

// Observer is told about every finished run.
type Observer interface {
	ObserveJob(kind models.JobKind, status models.JobStatus, elapsed time.Duration)
}

// Runner creates job records and runs their work in the background.
type Runner struct {
	store    docstore.Store
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer Observer

	wg sync.WaitGroup
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the per-run timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithObserver registers a run observer.
func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observer = o }
}

// NewRunner creates a runner persisting job records in store.
func NewRunner(store docstore.Store, opts ...Option) *Runner {
	r := &Runner{
		store:   store,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Submit records a pending job for owner and starts fn in the background.
// fn runs on a context that keeps ctx's values but not its cancellation,
// bounded by the runner timeout.
func (r *Runner) Submit(ctx context.Context, owner string, kind models.JobKind, fn Func) (*models.Job, error) {
	now := docstore.FormatTime(r.now())
	job := models.Job{
		UserID:    owner,
		Kind:      kind,
		Status:    models.JobPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := r.store.Add(ctx, collection, job)
	if err != nil {
		return nil, fmt.Errorf("jobs: create: %w", err)
	}
	job.ID = id

	runCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(runCtx, job, fn)
	}()
	return &job, nil
}

func (r *Runner) run(ctx context.Context, job models.Job, fn Func) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()

	r.update(ctx, job.ID, map[string]any{"status": models.JobRunning})

	result, err := fn(ctx)
	status := models.JobDone
	patch := map[string]any{"result": result}
	if err != nil {
		status = models.JobFailed
		patch["error"] = err.Error()
		r.logger.Error("jobs: run failed",
			slog.String("job", job.ID),
			slog.String("kind", string(job.Kind)),
			slog.String("error", err.Error()))
	} else {
		r.logger.Info("jobs: run finished",
			slog.String("job", job.ID),
			slog.String("kind", string(job.Kind)),
			slog.String("result", result))
	}
	patch["status"] = status

	// The run context may have expired; the final record must still land.
	r.update(context.WithoutCancel(ctx), job.ID, patch)
	if r.observer != nil {
		r.observer.ObserveJob(job.Kind, status, time.Since(start))
	}
}

func (r *Runner) update(ctx context.Context, id string, patch map[string]any) {
	patch["updatedAt"] = r.now()
	if err := r.store.Update(ctx, collection, id, patch); err != nil {
		r.logger.Warn("jobs: update record failed", slog.String("job", id), slog.String("error", err.Error()))
	}
}

// Get returns owner's job.
func (r *Runner) Get(ctx context.Context, owner, id string) (*models.Job, error) {
	doc, err := r.store.Get(ctx, collection, id)
	if err != nil {
		return nil, err
	}
	var job models.Job
	if err := doc.Decode(&job); err != nil {
		return nil, err
	}
	if job.UserID != owner {
		return nil, fmt.Errorf("jobs: %s: %w", id, apperr.ErrNotFound)
	}
	return &job, nil
}

// Wait blocks until every submitted run has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("jobs: runs still in flight"), ctx.Err())
	}
}
