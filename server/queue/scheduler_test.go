package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/mnemo/store"
)

func utcMinute(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestDueKinds(t *testing.T) {
	// 2026-08-23 is a Sunday.
	sunday := func(hour, minute int) time.Time { return utcMinute(2026, time.August, 23, hour, minute) }
	monday := func(hour, minute int) time.Time { return utcMinute(2026, time.August, 24, hour, minute) }

	// Optimization fires every six hours on the hour.
	assert.Equal(t, []string{store.JobKindOptimizeFanout}, dueKinds(monday(0, 0)))
	assert.Equal(t, []string{store.JobKindOptimizeFanout}, dueKinds(monday(6, 0)))
	assert.Equal(t, []string{store.JobKindOptimizeFanout}, dueKinds(monday(12, 0)))
	assert.Equal(t, []string{store.JobKindOptimizeFanout}, dueKinds(monday(18, 0)))

	// Decay fires daily at 03:00.
	assert.Equal(t, []string{store.JobKindDecayStale}, dueKinds(monday(3, 0)))

	// Consolidation fires only on Sunday at 02:00.
	assert.Equal(t, []string{store.JobKindConsolidateFanout}, dueKinds(sunday(2, 0)))
	assert.Empty(t, dueKinds(monday(2, 0)))

	// Nothing fires off the hour.
	assert.Empty(t, dueKinds(monday(3, 30)))
	assert.Empty(t, dueKinds(monday(7, 0)))
}
