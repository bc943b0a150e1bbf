package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

func (d *DB) EnqueueJob(ctx context.Context, create *store.Job) (*store.Job, error) {
	stmt := `
		INSERT INTO jobs (id, kind, payload, status, attempts, max_attempts, scheduled_ts, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.Kind,
		string(create.Payload),
		create.Status,
		create.Attempts,
		create.MaxAttempts,
		toTs(create.ScheduledTs),
		toTs(create.CreatedTs),
		toTs(create.UpdatedTs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enqueue job")
	}
	return create, nil
}

// ClaimJob claims the oldest runnable pending job. The driver holds a single
// connection, so the select-then-update pair is not racy within one process;
// SQLite deployments run a single process by policy.
func (d *DB) ClaimJob(ctx context.Context, now time.Time) (*store.Job, error) {
	query := `
		SELECT id, kind, payload, status, attempts, max_attempts, scheduled_ts, created_ts, updated_ts
		FROM jobs
		WHERE status = 'pending' AND scheduled_ts <= ?
		ORDER BY created_ts
		LIMIT 1
	`
	var job store.Job
	var payload string
	var scheduledTs, createdTs, updatedTs int64
	err := d.db.QueryRowContext(ctx, query, toTs(now)).Scan(
		&job.ID,
		&job.Kind,
		&payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&scheduledTs,
		&createdTs,
		&updatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job")
	}
	job.Payload = []byte(payload)
	job.ScheduledTs = fromTs(scheduledTs)
	job.CreatedTs = fromTs(createdTs)
	job.UpdatedTs = fromTs(updatedTs)

	result, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'running', attempts = attempts + 1, updated_ts = ? WHERE id = ? AND status = 'pending'`,
		toTs(now), job.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to mark job running")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		// Claimed by a concurrent worker goroutine; let the caller poll again.
		return nil, nil
	}
	job.Status = store.JobStatusRunning
	job.Attempts++
	return &job, nil
}

func (d *DB) CompleteJob(ctx context.Context, id string, status store.JobStatus) error {
	if _, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_ts = ? WHERE id = ?`, status, toTs(time.Now()), id); err != nil {
		return errors.Wrap(err, "failed to complete job")
	}
	return nil
}

// RescheduleJob returns a claimed job to the pending state to run at runAt.
func (d *DB) RescheduleJob(ctx context.Context, id string, runAt time.Time) error {
	if _, err := d.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'pending', scheduled_ts = ?, updated_ts = ? WHERE id = ?`,
		toTs(runAt), toTs(time.Now()), id); err != nil {
		return errors.Wrap(err, "failed to reschedule job")
	}
	return nil
}

func (d *DB) CountPendingJobs(ctx context.Context) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'pending'`).Scan(&count)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count pending jobs")
	}
	return count, nil
}
