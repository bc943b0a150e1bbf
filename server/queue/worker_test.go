package queue

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

type fakeJobStore struct {
	jobs        []*store.Job
	completed   map[string]store.JobStatus
	rescheduled map[string]time.Time
}

func newFakeJobStore(jobs ...*store.Job) *fakeJobStore {
	return &fakeJobStore{
		jobs:        jobs,
		completed:   make(map[string]store.JobStatus),
		rescheduled: make(map[string]time.Time),
	}
}

func (f *fakeJobStore) ClaimJob(_ context.Context, _ time.Time) (*store.Job, error) {
	if len(f.jobs) == 0 {
		return nil, nil
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	job.Status = store.JobStatusRunning
	job.Attempts++
	return job, nil
}

func (f *fakeJobStore) CompleteJob(_ context.Context, id string, status store.JobStatus) error {
	f.completed[id] = status
	return nil
}

func (f *fakeJobStore) RescheduleJob(_ context.Context, id string, runAt time.Time) error {
	f.rescheduled[id] = runAt
	return nil
}

type fakeRunner struct {
	err  error
	seen []*store.Job
}

func (f *fakeRunner) Dispatch(_ context.Context, job *store.Job) error {
	f.seen = append(f.seen, job)
	return f.err
}

func testJob(kind string) *store.Job {
	return &store.Job{ID: "job-1", Kind: kind, Status: store.JobStatusPending, MaxAttempts: 5}
}

func newTestWorker(s JobStore, r Runner) *Worker {
	return NewWorker("test-worker", s, r, semaphore.NewWeighted(1))
}

func TestWorkerCompletesSuccessfulJob(t *testing.T) {
	s := newFakeJobStore(testJob(store.JobKindExtractFacts))
	r := &fakeRunner{}
	w := newTestWorker(s, r)

	require.True(t, w.pollAndProcess(context.Background()))
	require.Len(t, r.seen, 1)
	assert.Equal(t, store.JobStatusDone, s.completed["job-1"])
	assert.Empty(t, s.rescheduled)
}

func TestWorkerReschedulesTransientFailure(t *testing.T) {
	s := newFakeJobStore(testJob(store.JobKindExtractFacts))
	r := &fakeRunner{err: &llm.Error{Op: "chat", Err: errors.New("rate limited"), Transient: true}}
	w := newTestWorker(s, r)

	before := time.Now()
	require.True(t, w.pollAndProcess(context.Background()))
	runAt, ok := s.rescheduled["job-1"]
	require.True(t, ok)
	assert.WithinDuration(t, before.Add(extractRetryDefer), runAt, 2*time.Second)
	assert.Empty(t, s.completed)
}

func TestWorkerConsumesExhaustedRetries(t *testing.T) {
	job := testJob(store.JobKindExtractFacts)
	job.Attempts = 4 // claim bumps it to MaxAttempts
	s := newFakeJobStore(job)
	r := &fakeRunner{err: &llm.Error{Op: "chat", Err: errors.New("rate limited"), Transient: true}}
	w := newTestWorker(s, r)

	require.True(t, w.pollAndProcess(context.Background()))
	assert.Equal(t, store.JobStatusError, s.completed["job-1"])
	assert.Empty(t, s.rescheduled)
}

func TestWorkerConsumesPermanentFailure(t *testing.T) {
	s := newFakeJobStore(testJob(store.JobKindExtractFacts))
	r := &fakeRunner{err: errors.New("malformed payload")}
	w := newTestWorker(s, r)

	require.True(t, w.pollAndProcess(context.Background()))
	assert.Equal(t, store.JobStatusError, s.completed["job-1"])
	assert.Empty(t, s.rescheduled)
}

func TestWorkerIdleWhenQueueEmpty(t *testing.T) {
	s := newFakeJobStore()
	r := &fakeRunner{}
	w := newTestWorker(s, r)

	assert.False(t, w.pollAndProcess(context.Background()))
	assert.Empty(t, r.seen)
}

func TestConsolidationUsesLongerDefer(t *testing.T) {
	assert.Equal(t, consolidateRetryDefer, retryDefer(store.JobKindConsolidateUser))
	assert.Equal(t, extractRetryDefer, retryDefer(store.JobKindExtractFacts))
	assert.Equal(t, consolidateJobTimeout, jobTimeout(store.JobKindConsolidateUser))
	assert.Equal(t, defaultJobTimeout, jobTimeout(store.JobKindExtractFacts))
}
