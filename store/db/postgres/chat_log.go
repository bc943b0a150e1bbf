package postgres

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

func (d *DB) CreateChatLog(ctx context.Context, create *store.ChatLog) (*store.ChatLog, error) {
	stmt := `
		INSERT INTO chat_logs (id, session_id, role, content, created_ts)
		VALUES (` + placeholders(5) + `)
		RETURNING created_ts
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.ID,
		create.SessionID,
		create.Role,
		create.Content,
		create.CreatedTs,
	).Scan(&create.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create chat log")
	}
	return create, nil
}

func (d *DB) ListChatLogs(ctx context.Context, find *store.FindChatLog) ([]*store.ChatLog, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.SessionID != nil {
		where, args = append(where, "session_id = "+placeholder(len(args)+1)), append(args, *find.SessionID)
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
		query += ` LIMIT ` + placeholder(len(args)+1)
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
		if err := rows.Scan(&log.ID, &log.SessionID, &log.Role, &log.Content, &log.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat log")
		}
		list = append(list, &log)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}
