package store

import "time"

// JobStatus represents the lifecycle state of a queued job.
type JobStatus string

// Job statuses.
const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusError   JobStatus = "error"
)

// Job kinds dispatched by the workers.
const (
	JobKindExtractFacts      = "extract_facts"
	JobKindConsolidateUser   = "consolidate_user"
	JobKindOptimizeUser      = "optimize_user"
	JobKindDecayStale        = "decay_stale"
	JobKindConsolidateFanout = "consolidate_fanout"
	JobKindOptimizeFanout    = "optimize_fanout"
)

// Job is one tagged work item on the queue. Payload holds a JSON document
// specific to the kind. ScheduledTs implements delayed retry: a pending job
// is only claimable once its scheduled time has passed.
type Job struct {
	ID          string
	Kind        string
	Payload     []byte
	Status      JobStatus
	Attempts    int
	MaxAttempts int
	ScheduledTs time.Time
	CreatedTs   time.Time
	UpdatedTs   time.Time
}
