package postgres

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
		VALUES (` + placeholders(9) + `)
		RETURNING created_ts, updated_ts
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.Kind,
		create.Payload,
		create.Status,
		create.Attempts,
		create.MaxAttempts,
		create.ScheduledTs,
		create.CreatedTs,
		create.UpdatedTs,
	).Scan(&create.CreatedTs, &create.UpdatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to enqueue job")
	}
	return create, nil
}

// ClaimJob atomically claims the oldest runnable pending job. SKIP LOCKED
// keeps parallel worker processes from claiming the same row. Returns
// (nil, nil) when the queue is empty.
func (d *DB) ClaimJob(ctx context.Context, now time.Time) (*store.Job, error) {
	stmt := `
		UPDATE jobs
		SET status = 'running', attempts = attempts + 1, updated_ts = ` + placeholder(1) + `
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND scheduled_ts <= ` + placeholder(2) + `
			ORDER BY created_ts
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, status, attempts, max_attempts, scheduled_ts, created_ts, updated_ts
	`
	var job store.Job
	err := d.db.QueryRowContext(ctx, stmt, now, now).Scan(
		&job.ID,
		&job.Kind,
		&job.Payload,
		&job.Status,
		&job.Attempts,
		&job.MaxAttempts,
		&job.ScheduledTs,
		&job.CreatedTs,
		&job.UpdatedTs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to claim job")
	}
	return &job, nil
}

func (d *DB) CompleteJob(ctx context.Context, id string, status store.JobStatus) error {
	stmt := `UPDATE jobs SET status = ` + placeholder(1) + `, updated_ts = now() WHERE id = ` + placeholder(2)
	if _, err := d.db.ExecContext(ctx, stmt, status, id); err != nil {
		return errors.Wrap(err, "failed to complete job")
	}
	return nil
}

// RescheduleJob returns a claimed job to the pending state to run at runAt.
func (d *DB) RescheduleJob(ctx context.Context, id string, runAt time.Time) error {
	stmt := `
		UPDATE jobs
		SET status = 'pending', scheduled_ts = ` + placeholder(1) + `, updated_ts = now()
		WHERE id = ` + placeholder(2)
	if _, err := d.db.ExecContext(ctx, stmt, runAt, id); err != nil {
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
