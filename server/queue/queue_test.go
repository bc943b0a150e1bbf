package queue

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/store"
	"github.com/hrygo/mnemo/store/db/sqlite"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "queue_test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })

	s := store.New(driver, p)
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestEnqueueWithoutPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Scheduled maintenance kinds carry no payload; the stored document must
	// still satisfy the NOT NULL payload column and stay valid JSON.
	job, err := Enqueue(ctx, s, store.JobKindDecayStale, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), job.Payload)

	claimed, err := s.ClaimJob(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, store.JobKindDecayStale, claimed.Kind)
	assert.JSONEq(t, "{}", string(claimed.Payload))
}

func TestEnqueueMarshalsPayload(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := Enqueue(ctx, s, store.JobKindExtractFacts, ExtractFactsPayload{SessionID: "sess-1"})
	require.NoError(t, err)

	claimed, err := s.ClaimJob(ctx, time.Now())
	require.NoError(t, err)
	require.NotNil(t, claimed)

	var payload ExtractFactsPayload
	require.NoError(t, json.Unmarshal(claimed.Payload, &payload))
	assert.Equal(t, "sess-1", payload.SessionID)
	assert.Equal(t, defaultMaxAttempts, claimed.MaxAttempts)
}
