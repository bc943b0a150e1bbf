package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	stmt := `INSERT INTO sessions (id, user_id, created_ts) VALUES (?, ?, ?)`
	_, err := d.db.ExecContext(ctx, stmt, create.ID, create.UserID, toTs(create.CreatedTs))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session")
	}
	return create, nil
}

func (d *DB) ListSessions(ctx context.Context, find *store.FindSession) ([]*store.Session, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}

	query := `
		SELECT id, user_id, created_ts
		FROM sessions
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC
	`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list sessions")
	}
	defer rows.Close()

	list := []*store.Session{}
	for rows.Next() {
		var session store.Session
		var createdTs int64
		if err := rows.Scan(&session.ID, &session.UserID, &createdTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan session")
		}
		session.CreatedTs = fromTs(createdTs)
		list = append(list, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
