package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/consolidation"
	"github.com/hrygo/mnemo/ai/extraction"
	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

// activityWindow selects which users the weekly consolidation fanout visits.
const activityWindow = 7 * 24 * time.Hour

// Dispatcher routes claimed jobs to the worker implementing their kind.
type Dispatcher struct {
	store       *store.Store
	extract     *extraction.Worker
	consolidate *consolidation.Worker
	optimize    *consolidation.OptimizeWorker
	decay       *consolidation.DecayWorker
}

// NewDispatcher wires the job kinds to their workers. llmService may be nil;
// the workers then skip their model stages.
func NewDispatcher(s *store.Store, llmService llm.Service) *Dispatcher {
	return &Dispatcher{
		store:       s,
		extract:     extraction.NewWorker(s, llmService),
		consolidate: consolidation.NewWorker(s, llmService),
		optimize:    consolidation.NewOptimizeWorker(s, llmService),
		decay:       consolidation.NewDecayWorker(s),
	}
}

// Dispatch runs one job to completion. Errors propagate to the worker loop,
// which decides between retry and failure.
func (d *Dispatcher) Dispatch(ctx context.Context, job *store.Job) error {
	switch job.Kind {
	case store.JobKindExtractFacts:
		var payload ExtractFactsPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrap(err, "invalid extract payload")
		}
		return d.extract.Run(ctx, payload.SessionID)

	case store.JobKindConsolidateUser:
		var payload UserPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrap(err, "invalid consolidate payload")
		}
		return d.consolidate.Run(ctx, payload.UserID)

	case store.JobKindOptimizeUser:
		var payload UserPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return errors.Wrap(err, "invalid optimize payload")
		}
		return d.optimize.Run(ctx, payload.UserID)

	case store.JobKindDecayStale:
		return d.decay.Run(ctx)

	case store.JobKindConsolidateFanout:
		return d.fanoutConsolidate(ctx)

	case store.JobKindOptimizeFanout:
		return d.fanoutOptimize(ctx)
	}
	return errors.Errorf("unknown job kind %q", job.Kind)
}

// fanoutConsolidate enqueues one consolidation job per recently active user.
func (d *Dispatcher) fanoutConsolidate(ctx context.Context) error {
	userIDs, err := d.store.ListActiveUserIDs(ctx, time.Now().Add(-activityWindow))
	if err != nil {
		return errors.Wrap(err, "failed to list active users")
	}
	for _, userID := range userIDs {
		if _, err := Enqueue(ctx, d.store, store.JobKindConsolidateUser, UserPayload{UserID: userID}); err != nil {
			return errors.Wrapf(err, "failed to enqueue consolidation for user %s", userID)
		}
	}
	slog.Info("consolidation fanout enqueued", slog.Int("users", len(userIDs)))
	return nil
}

// fanoutOptimize enqueues one optimization job per user that has any facts.
func (d *Dispatcher) fanoutOptimize(ctx context.Context) error {
	userIDs, err := d.store.ListUserIDsWithFacts(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to list users with facts")
	}
	for _, userID := range userIDs {
		if _, err := Enqueue(ctx, d.store, store.JobKindOptimizeUser, UserPayload{UserID: userID}); err != nil {
			return errors.Wrapf(err, "failed to enqueue optimization for user %s", userID)
		}
	}
	slog.Info("optimization fanout enqueued", slog.Int("users", len(userIDs)))
	return nil
}
