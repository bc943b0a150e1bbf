package consolidation

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"
)

const (
	// decayStaleAfter is how long a fact can go unrefreshed before its
	// confidence starts eroding.
	decayStaleAfter = 30 * 24 * time.Hour
	decayFactor     = 0.9
	decayFloor      = 0.1
)

// DecayStore is the subset of the store the decay pass needs.
type DecayStore interface {
	DecayFacts(ctx context.Context, staleBefore time.Time, factor, floor float64) (int64, error)
}

// DecayWorker erodes the confidence of facts nobody has refreshed lately.
type DecayWorker struct {
	store DecayStore
	now   func() time.Time
}

func NewDecayWorker(s DecayStore) *DecayWorker {
	return &DecayWorker{store: s, now: time.Now}
}

// Run applies one decay step to every active fact stale for more than the
// staleness window. The step multiplies confidence by the decay factor,
// never dropping below the floor.
func (w *DecayWorker) Run(ctx context.Context) error {
	staleBefore := w.now().Add(-decayStaleAfter)
	decayed, err := w.store.DecayFacts(ctx, staleBefore, decayFactor, decayFloor)
	if err != nil {
		return errors.Wrap(err, "failed to decay facts")
	}
	if decayed > 0 {
		slog.Info("decayed stale facts", slog.Int64("count", decayed))
	}
	return nil
}
