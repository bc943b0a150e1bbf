package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hrygo/mnemo/store"
)

// Scheduler enqueues the periodic maintenance jobs on a fixed UTC cron:
// optimization fanout every six hours, decay daily at 03:00, consolidation
// fanout weekly on Sunday at 02:00.
type Scheduler struct {
	store    *store.Store
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewScheduler(s *store.Store) *Scheduler {
	return &Scheduler{
		store:  s,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
}

// Start begins the minute tick loop in a goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop signals the scheduler to stop and waits for it to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()
	slog.Info("scheduler started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	var lastFired time.Time
	for {
		select {
		case <-s.stopCh:
			slog.Info("scheduler shutting down")
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			minute := s.now().UTC().Truncate(time.Minute)
			if minute.Equal(lastFired) {
				continue
			}
			lastFired = minute
			s.fire(ctx, minute)
		}
	}
}

// fire enqueues every job due at the given UTC minute.
func (s *Scheduler) fire(ctx context.Context, minute time.Time) {
	for _, kind := range dueKinds(minute) {
		if _, err := Enqueue(ctx, s.store, kind, nil); err != nil {
			slog.Error("failed to enqueue scheduled job",
				slog.String("kind", kind),
				slog.String("error", err.Error()))
			continue
		}
		slog.Info("scheduled job enqueued", slog.String("kind", kind), slog.Time("tick", minute))
	}
}

// dueKinds returns the job kinds scheduled for the given UTC minute.
func dueKinds(minute time.Time) []string {
	if minute.Minute() != 0 {
		return nil
	}
	var kinds []string
	if minute.Hour()%6 == 0 {
		kinds = append(kinds, store.JobKindOptimizeFanout)
	}
	if minute.Hour() == 3 {
		kinds = append(kinds, store.JobKindDecayStale)
	}
	if minute.Weekday() == time.Sunday && minute.Hour() == 2 {
		kinds = append(kinds, store.JobKindConsolidateFanout)
	}
	return kinds
}
