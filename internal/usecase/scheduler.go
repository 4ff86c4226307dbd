package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/cjhyy/interview-QA-help/internal/domain"
	"github.com/cjhyy/interview-QA-help/internal/ports"
)

const (
	DefaultStaleAfter   = 10 * time.Minute
	defaultReclaimBatch = 20
)

// Reclaimer resumes tasks whose run died before reaching a terminal state.
type Reclaimer struct {
	driver     ports.Scheduler
	tasks      ports.TaskRepository
	pipeline   *Pipeline
	staleAfter time.Duration
	logger     *slog.Logger
}

// NewReclaimer wires the ticker driver with the pipeline.
func NewReclaimer(driver ports.Scheduler, tasks ports.TaskRepository, pipeline *Pipeline, staleAfter time.Duration, logger *slog.Logger) *Reclaimer {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Reclaimer{driver: driver, tasks: tasks, pipeline: pipeline, staleAfter: staleAfter, logger: logger}
}

// Start registers the sweep with the scheduler.
func (r *Reclaimer) Start(ctx context.Context) error {
	if r.driver == nil || r.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		if _, err := r.Sweep(ctx, trigger); err != nil && r.logger != nil {
			r.logger.Warn("reclaim sweep failed", "error", err)
		}
	}

	return r.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (r *Reclaimer) Stop(ctx context.Context) error {
	if r.driver == nil {
		return nil
	}

	return r.driver.Stop(ctx)
}

// Sweep claims every stale task and runs it to completion, returning how
// many it resumed. A task claimed by another worker is skipped.
func (r *Reclaimer) Sweep(ctx context.Context, now time.Time) (int, error) {
	r.purgeCache(ctx)

	cutoff := now.Add(-r.staleAfter)
	stale, err := r.tasks.Stale(ctx, cutoff, defaultReclaimBatch)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, task := range stale {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}
		ok, err := r.tasks.Claim(ctx, task.ID, ports.ClaimCondition{
			From:          []domain.TaskStatus{domain.StatusPending, domain.StatusProcessing},
			UpdatedBefore: cutoff,
		})
		if err != nil {
			return resumed, err
		}
		if !ok {
			continue
		}
		if r.logger != nil {
			r.logger.Info("resuming stale task", "task", task.ID, "status", task.Status, "updated_at", task.UpdatedAt)
		}
		if err := r.pipeline.Process(context.WithoutCancel(ctx), task); err != nil {
			return resumed, err
		}
		resumed++
	}
	return resumed, nil
}

// purgeCache drops expired summaries when the cache supports bulk expiry.
// Failures are logged only.
func (r *Reclaimer) purgeCache(ctx context.Context) {
	if r.pipeline == nil {
		return
	}
	purger, ok := r.pipeline.cache.(ports.CachePurger)
	if !ok {
		return
	}
	removed, err := purger.Purge(ctx)
	if r.logger == nil {
		return
	}
	if err != nil {
		r.logger.Warn("cache purge failed", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Info("expired cache entries purged", "removed", removed)
	}
}
