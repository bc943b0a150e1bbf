package consolidation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDecayStore struct {
	staleBefore time.Time
	factor      float64
	floor       float64
}

func (r *recordingDecayStore) DecayFacts(_ context.Context, staleBefore time.Time, factor, floor float64) (int64, error) {
	r.staleBefore = staleBefore
	r.factor = factor
	r.floor = floor
	return 3, nil
}

func TestDecayUsesStalenessWindow(t *testing.T) {
	now := time.Date(2026, 8, 24, 3, 0, 0, 0, time.UTC)
	s := &recordingDecayStore{}
	w := NewDecayWorker(s)
	w.now = func() time.Time { return now }

	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, now.Add(-30*24*time.Hour), s.staleBefore)
	assert.Equal(t, 0.9, s.factor)
	assert.Equal(t, 0.1, s.floor)
}
