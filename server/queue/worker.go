package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/store"
)

// JobStore is the queue surface of the store used by workers.
type JobStore interface {
	ClaimJob(ctx context.Context, now time.Time) (*store.Job, error)
	CompleteJob(ctx context.Context, id string, status store.JobStatus) error
	RescheduleJob(ctx context.Context, id string, runAt time.Time) error
}

// Runner executes one claimed job.
type Runner interface {
	Dispatch(ctx context.Context, job *store.Job) error
}

// Worker is a single polling worker: it claims one runnable job at a time
// and runs it to completion before polling again.
type Worker struct {
	id       string
	store    JobStore
	runner   Runner
	inflight *semaphore.Weighted
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewWorker creates a queue worker. The inflight semaphore is shared across
// the pool and bounds concurrent jobs per process.
func NewWorker(id string, s JobStore, runner Runner, inflight *semaphore.Weighted) *Worker {
	return &Worker{
		id:       id,
		store:    s,
		runner:   runner,
		inflight: inflight,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the polling loop in a goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the current job to finish.
// Safe to call multiple times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	w.wg.Wait()
}

func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	log := slog.With(slog.String("worker", w.id))
	log.Info("queue worker started")

	for {
		select {
		case <-w.stopCh:
			log.Info("queue worker shutting down")
			return
		case <-ctx.Done():
			log.Info("context cancelled, queue worker shutting down")
			return
		default:
			if !w.pollAndProcess(ctx) {
				w.sleep(pollInterval)
			}
		}
	}
}

// pollAndProcess claims and runs one job. It returns false when there was
// nothing to do, so the loop backs off.
func (w *Worker) pollAndProcess(ctx context.Context) bool {
	if !w.inflight.TryAcquire(1) {
		return false
	}
	defer w.inflight.Release(1)

	job, err := w.store.ClaimJob(ctx, time.Now())
	if err != nil {
		slog.Error("failed to claim job", slog.String("worker", w.id), slog.String("error", err.Error()))
		return false
	}
	if job == nil {
		return false
	}

	w.process(ctx, job)
	return true
}

func (w *Worker) process(ctx context.Context, job *store.Job) {
	log := slog.With(
		slog.String("worker", w.id),
		slog.String("job", job.ID),
		slog.String("kind", job.Kind),
		slog.Int("attempt", job.Attempts))

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout(job.Kind))
	defer cancel()

	start := time.Now()
	err := w.runner.Dispatch(jobCtx, job)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		log.Info("job completed", slog.Duration("elapsed", elapsed))
		metrics.Default().RecordJob(job.Kind, "done", elapsed)
		w.finish(ctx, job.ID, store.JobStatusDone)

	case llm.IsTransient(err) && job.Attempts < job.MaxAttempts:
		runAt := time.Now().Add(retryDefer(job.Kind))
		log.Warn("transient failure, job rescheduled",
			slog.Time("run_at", runAt),
			slog.String("error", err.Error()))
		metrics.Default().RecordJob(job.Kind, "retried", elapsed)
		if rErr := w.store.RescheduleJob(ctx, job.ID, runAt); rErr != nil {
			log.Error("failed to reschedule job", slog.String("error", rErr.Error()))
			w.finish(ctx, job.ID, store.JobStatusError)
		}

	default:
		// Non-transient failures consume the job; the next scheduled run
		// sees the same source data.
		log.Error("job failed", slog.Duration("elapsed", elapsed), slog.String("error", err.Error()))
		metrics.Default().RecordJob(job.Kind, "error", elapsed)
		w.finish(ctx, job.ID, store.JobStatusError)
	}
}

func (w *Worker) finish(ctx context.Context, id string, status store.JobStatus) {
	if err := w.store.CompleteJob(ctx, id, status); err != nil {
		slog.Error("failed to finalize job",
			slog.String("job", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

// sleep waits for d or until stop is signalled.
func (w *Worker) sleep(d time.Duration) {
	select {
	case <-w.stopCh:
	case <-time.After(d):
	}
}
