package queue

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
)

// Pool manages the queue workers and the cron scheduler for one process.
type Pool struct {
	profile   *profile.Profile
	store     *store.Store
	workers   []*Worker
	scheduler *Scheduler
	started   bool
}

// NewPool builds the worker pool from the profile: QueueWorkers polling
// goroutines sharing a MaxJobs in-flight cap.
func NewPool(p *profile.Profile, s *store.Store, runner Runner) *Pool {
	inflight := semaphore.NewWeighted(int64(max(p.MaxJobs, 1)))
	workers := make([]*Worker, 0, p.QueueWorkers)
	for i := 0; i < max(p.QueueWorkers, 1); i++ {
		workers = append(workers, NewWorker(fmt.Sprintf("worker-%d", i), s, runner, inflight))
	}
	return &Pool{
		profile:   p,
		store:     s,
		workers:   workers,
		scheduler: NewScheduler(s),
	}
}

// Start spawns the workers and the scheduler. Duplicate calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	if p.started {
		slog.Warn("worker pool already started, ignoring duplicate Start call")
		return
	}
	p.started = true

	slog.Info("starting worker pool",
		slog.Int("workers", len(p.workers)),
		slog.Int("max_jobs", p.profile.MaxJobs))
	for _, w := range p.workers {
		w.Start(ctx)
	}
	p.scheduler.Start(ctx)
}

// Stop signals everything to stop and waits; in-flight jobs run to
// completion first.
func (p *Pool) Stop() {
	slog.Info("stopping worker pool gracefully")
	p.scheduler.Stop()
	for _, w := range p.workers {
		w.Stop()
	}
	slog.Info("worker pool stopped")
}
