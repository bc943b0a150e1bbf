package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

func (d *DB) CreateChatLog(ctx context.Context, create *store.ChatLog) (*store.ChatLog, error) {
	stmt := `
		INSERT INTO chat_logs (id, session_id, role, content, created_ts)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := d.db.ExecContext(ctx, stmt,
		create.ID,
		create.SessionID,
		create.Role,
		create.Content,
		toTs(create.CreatedTs),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat log")
	}
	return create, nil
}

func (d *DB) ListChatLogs(ctx context.Context, find *store.FindChatLog) ([]*store.ChatLog, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = ?"), append(args, *find.SessionID)
	}

	order := "ASC"
	if find.Descending {
		order = "DESC"
	}

	query := `
		SELECT id, session_id, role, content, created_ts
		FROM chat_logs
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts ` + order
	if find.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chat logs")
	}
	defer rows.Close()

	list := []*store.ChatLog{}
	for rows.Next() {
		var log store.ChatLog
		var createdTs int64
		if err := rows.Scan(&log.ID, &log.SessionID, &log.Role, &log.Content, &createdTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat log")
		}
		log.CreatedTs = fromTs(createdTs)
		list = append(list, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
