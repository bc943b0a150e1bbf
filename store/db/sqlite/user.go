package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

func (d *DB) CreateUser(ctx context.Context, create *store.User) (*store.User, error) {
	stmt := `
		INSERT INTO users (id, api_key_hash, created_ts, last_active_ts)
		VALUES (?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.APIKeyHash,
		toTs(create.CreatedTs),
		toTs(create.LastActiveTs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create user")
	}
	return create, nil
}

func (d *DB) ListUsers(ctx context.Context, find *store.FindUser) ([]*store.User, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.APIKeyHash != nil {
		where, args = append(where, "api_key_hash = ?"), append(args, *find.APIKeyHash)
	}

	query := `
		SELECT id, api_key_hash, created_ts, last_active_ts
		FROM users
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	list := []*store.User{}
	for rows.Next() {
		var user store.User
		var createdTs, lastActiveTs int64
		if err := rows.Scan(&user.ID, &user.APIKeyHash, &createdTs, &lastActiveTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		user.CreatedTs = fromTs(createdTs)
		user.LastActiveTs = fromTs(lastActiveTs)
		list = append(list, &user)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateUser(ctx context.Context, update *store.UpdateUser) (*store.User, error) {
	set, args := []string{}, []any{}

	if update.SetAPIKeyHash {
		set, args = append(set, "api_key_hash = ?"), append(args, update.APIKeyHash)
	}
	if update.LastActiveTs != nil {
		set, args = append(set, "last_active_ts = ?"), append(args, toTs(*update.LastActiveTs))
	}
	if len(set) == 0 {
		return nil, errors.New("no fields to update")
	}

	stmt := `UPDATE users SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	args = append(args, update.ID)

	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to update user")
	}

	list, err := d.ListUsers(ctx, &store.FindUser{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("user %s not found", update.ID)
	}
	return list[0], nil
}

// ListActiveUserIDs returns the IDs of users with chat activity after cutoff.
func (d *DB) ListActiveUserIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id FROM users WHERE last_active_ts >= ? ORDER BY last_active_ts DESC`, toTs(cutoff))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list active user ids")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan user id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListUserIDsWithFacts returns the IDs of users owning at least one fact.
func (d *DB) ListUserIDsWithFacts(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM memory_facts`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user ids with facts")
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan user id")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
