// Package queue is the asynchronous job fabric: a database-backed FIFO of
// tagged work items with delayed retry, a bounded worker pool, and a cron
// scheduler that fans out the periodic maintenance jobs.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

const (
	// defaultMaxAttempts bounds how often one job is retried.
	defaultMaxAttempts = 5

	// Per-kind retry defers for transient model failures.
	extractRetryDefer     = 30 * time.Second
	consolidateRetryDefer = 60 * time.Second

	// Per-kind job timeouts.
	defaultJobTimeout     = 120 * time.Second
	consolidateJobTimeout = 180 * time.Second

	pollInterval = time.Second
)

// ExtractFactsPayload triggers fact extraction over a session's tail.
type ExtractFactsPayload struct {
	SessionID string `json:"session_id"`
}

// UserPayload addresses per-user maintenance jobs.
type UserPayload struct {
	UserID string `json:"user_id"`
}

// Enqueue creates a pending job of the given kind, runnable immediately.
// A payload-less job stores an empty JSON document; a nil slice would bind
// as SQL NULL and fail the NOT NULL payload column.
func Enqueue(ctx context.Context, s *store.Store, kind string, payload any) (*store.Job, error) {
	raw := []byte("{}")
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to marshal %s payload", kind)
		}
	}
	now := time.Now()
	return s.EnqueueJob(ctx, &store.Job{
		ID:          shortuuid.New(),
		Kind:        kind,
		Payload:     raw,
		Status:      store.JobStatusPending,
		MaxAttempts: defaultMaxAttempts,
		ScheduledTs: now,
		CreatedTs:   now,
		UpdatedTs:   now,
	})
}

func jobTimeout(kind string) time.Duration {
	switch kind {
	case store.JobKindConsolidateUser, store.JobKindConsolidateFanout:
		return consolidateJobTimeout
	}
	return defaultJobTimeout
}

func retryDefer(kind string) time.Duration {
	switch kind {
	case store.JobKindConsolidateUser:
		return consolidateRetryDefer
	}
	return extractRetryDefer
}
