package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

// nullVector scans a nullable pgvector column.
type nullVector struct {
	vector pgvector.Vector
	valid  bool
}

func (v *nullVector) Scan(src any) error {
	if src == nil {
		v.valid = false
		return nil
	}
	if err := v.vector.Scan(src); err != nil {
		return err
	}
	v.valid = true
	return nil
}

// Slice returns the embedding as a float32 slice, or nil for NULL.
func (v *nullVector) Slice() []float32 {
	if !v.valid {
		return nil
	}
	return v.vector.Slice()
}

// embeddingArg converts a fact embedding to a bind parameter.
func embeddingArg(embedding []float32) any {
	if embedding == nil {
		return nil
	}
	return pgvector.NewVector(embedding)
}

const factColumns = `id, user_id, category, content, confidence, slot_hint, temporal_state,
		is_essential, source_message_id, superseded_by, expires_ts, last_refreshed_ts, created_ts, embedding`

func scanFact(scan func(dest ...any) error) (*store.Fact, error) {
	var fact store.Fact
	var vector nullVector
	err := scan(
		&fact.ID,
		&fact.UserID,
		&fact.Category,
		&fact.Content,
		&fact.Confidence,
		&fact.SlotHint,
		&fact.TemporalState,
		&fact.IsEssential,
		&fact.SourceMessageID,
		&fact.SupersededBy,
		&fact.ExpiresAt,
		&fact.LastRefreshedTs,
		&fact.CreatedTs,
		&vector,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan fact")
	}
	fact.Embedding = vector.Slice()
	return &fact, nil
}

func (d *DB) CreateFact(ctx context.Context, create *store.Fact) (*store.Fact, error) {
	if err := d.insertFact(ctx, d.db, create); err != nil {
		return nil, err
	}
	return create, nil
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) insertFact(ctx context.Context, ex execer, create *store.Fact) error {
	stmt := `
		INSERT INTO memory_facts (
			id, user_id, category, content, confidence, slot_hint, temporal_state,
			is_essential, source_message_id, superseded_by, expires_ts,
			last_refreshed_ts, created_ts, embedding
		)
		VALUES (` + placeholders(14) + `)
	`
	_, err := ex.ExecContext(ctx, stmt,
		create.ID,
		create.UserID,
		create.Category,
		create.Content,
		create.Confidence,
		create.SlotHint,
		create.TemporalState,
		create.IsEssential,
		create.SourceMessageID,
		create.SupersededBy,
		create.ExpiresAt,
		create.LastRefreshedTs,
		create.CreatedTs,
		embeddingArg(create.Embedding),
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert fact")
	}
	return nil
}

func factWhere(find *store.FindFact) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
	}
	if len(find.Categories) > 0 {
		where = append(where, "category IN ("+placeholderList(len(args)+1, len(find.Categories))+")")
		for _, c := range find.Categories {
			args = append(args, c)
		}
	}
	if find.SlotHint != nil {
		where, args = append(where, "slot_hint = "+placeholder(len(args)+1)), append(args, *find.SlotHint)
	}
	if find.IsEssential != nil {
		where, args = append(where, "is_essential = "+placeholder(len(args)+1)), append(args, *find.IsEssential)
	}
	if find.NotSuperseded {
		where = append(where, "superseded_by IS NULL")
	}
	if find.NotExpired {
		where = append(where, "expires_ts IS NULL")
	}
	if find.HasEmbedding {
		where = append(where, "embedding IS NOT NULL")
	}
	if len(find.ExcludeStates) > 0 {
		where = append(where, "temporal_state NOT IN ("+placeholderList(len(args)+1, len(find.ExcludeStates))+")")
		for _, t := range find.ExcludeStates {
			args = append(args, t)
		}
	}
	if find.MinConfidence != nil {
		where, args = append(where, "confidence >= "+placeholder(len(args)+1)), append(args, *find.MinConfidence)
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *find.CreatedAfter)
	}
	if find.RefreshedAfter != nil {
		where, args = append(where, "last_refreshed_ts >= "+placeholder(len(args)+1)), append(args, *find.RefreshedAfter)
	}
	if len(find.ExcludeIDs) > 0 {
		where = append(where, "id NOT IN ("+placeholderList(len(args)+1, len(find.ExcludeIDs))+")")
		for _, id := range find.ExcludeIDs {
			args = append(args, id)
		}
	}

	return where, args
}

func factOrderClause(order store.FactOrder) string {
	switch order {
	case store.OrderSalience:
		return "is_essential DESC, confidence DESC, created_ts DESC"
	case store.OrderConfidenceDesc:
		return "confidence DESC, created_ts DESC"
	default:
		return "created_ts DESC"
	}
}

func (d *DB) ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error) {
	where, args := factWhere(find)

	query := `
		SELECT ` + factColumns + `
		FROM memory_facts
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY ` + factOrderClause(find.Order)
	if find.Limit > 0 {
		query += ` LIMIT ` + placeholder(len(args)+1)
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += ` OFFSET ` + placeholder(len(args)+1)
			args = append(args, find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list facts")
	}
	defer rows.Close()

	list := []*store.Fact{}
	for rows.Next() {
		fact, err := scanFact(rows.Scan)
		if err != nil {
			return nil, err
		}
		list = append(list, fact)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return list, nil
}

func (d *DB) UpdateFact(ctx context.Context, update *store.UpdateFact) error {
	set, args := []string{}, []any{}

	if update.Confidence != nil {
		set, args = append(set, "confidence = "+placeholder(len(args)+1)), append(args, *update.Confidence)
	}
	if update.IsEssential != nil {
		set, args = append(set, "is_essential = "+placeholder(len(args)+1)), append(args, *update.IsEssential)
	}
	if update.LastRefreshedTs != nil {
		set, args = append(set, "last_refreshed_ts = "+placeholder(len(args)+1)), append(args, *update.LastRefreshedTs)
	}
	if update.SupersededBy != nil {
		set, args = append(set, "superseded_by = "+placeholder(len(args)+1)), append(args, *update.SupersededBy)
	}
	if update.ExpiresAt != nil {
		set, args = append(set, "expires_ts = "+placeholder(len(args)+1)), append(args, *update.ExpiresAt)
	}
	if len(set) == 0 {
		return errors.New("no fields to update")
	}

	stmt := `
		UPDATE memory_facts
		SET ` + strings.Join(set, ", ") + `
		WHERE id = ` + placeholder(len(args)+1)
	args = append(args, update.ID)

	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update fact")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("fact %s not found", update.ID)
	}
	return nil
}

// VectorSearchFacts performs cosine nearest-neighbour search using pgvector.
// The <=> operator computes cosine distance (1 - cosine_similarity), so
// ordering by it ascending returns the most similar facts first.
func (d *DB) VectorSearchFacts(ctx context.Context, search *store.FactVectorSearch) ([]*store.FactWithDistance, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = 10
	}

	where, args := []string{"user_id = " + placeholder(1)}, []any{search.UserID}
	where = append(where, "embedding IS NOT NULL", "expires_ts IS NULL")

	if search.NotSuperseded {
		where = append(where, "superseded_by IS NULL")
	}
	if len(search.Categories) > 0 {
		where = append(where, "category IN ("+placeholderList(len(args)+1, len(search.Categories))+")")
		for _, c := range search.Categories {
			args = append(args, c)
		}
	}
	if len(search.ExcludeStates) > 0 {
		where = append(where, "temporal_state NOT IN ("+placeholderList(len(args)+1, len(search.ExcludeStates))+")")
		for _, t := range search.ExcludeStates {
			args = append(args, t)
		}
	}
	if search.CreatedAfter != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *search.CreatedAfter)
	}

	vector := pgvector.NewVector(search.Vector)
	where = append(where, "embedding <=> "+placeholder(len(args)+1)+" < "+placeholder(len(args)+2))
	args = append(args, vector, search.MaxDistance)

	query := `
		SELECT ` + factColumns + `,
			embedding <=> ` + placeholder(len(args)+1) + ` AS distance
		FROM memory_facts
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY distance ASC
		LIMIT ` + placeholder(len(args)+2)
	args = append(args, vector, limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to vector search facts")
	}
	defer rows.Close()

	results := []*store.FactWithDistance{}
	for rows.Next() {
		var fact store.Fact
		var vec nullVector
		var result store.FactWithDistance
		err := rows.Scan(
			&fact.ID,
			&fact.UserID,
			&fact.Category,
			&fact.Content,
			&fact.Confidence,
			&fact.SlotHint,
			&fact.TemporalState,
			&fact.IsEssential,
			&fact.SourceMessageID,
			&fact.SupersededBy,
			&fact.ExpiresAt,
			&fact.LastRefreshedTs,
			&fact.CreatedTs,
			&vec,
			&result.Distance,
		)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan vector search result")
		}
		fact.Embedding = vec.Slice()
		result.Fact = &fact
		results = append(results, &result)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// CommitExtraction applies one extraction run atomically: insert staged
// facts, point superseded facts at their replacements, advance duplicate
// refreshes.
func (d *DB) CommitExtraction(ctx context.Context, commit *store.ExtractionCommit) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	for _, fact := range commit.Inserts {
		if err := d.insertFact(ctx, tx, fact); err != nil {
			return err
		}
	}
	if err := applySupersessions(ctx, tx, commit.Supersessions); err != nil {
		return err
	}
	for _, refresh := range commit.Refreshes {
		stmt := `
			UPDATE memory_facts
			SET last_refreshed_ts = ` + placeholder(1) + `,
				confidence = GREATEST(confidence, ` + placeholder(2) + `)
			WHERE id = ` + placeholder(3)
		if _, err := tx.ExecContext(ctx, stmt, refresh.LastRefreshedTs, refresh.Confidence, refresh.ID); err != nil {
			return errors.Wrap(err, "failed to refresh fact")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit extraction")
}

// CommitConsolidation applies one consolidation run atomically.
func (d *DB) CommitConsolidation(ctx context.Context, commit *store.ConsolidationCommit) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := applySupersessions(ctx, tx, commit.Supersessions); err != nil {
		return err
	}
	if len(commit.Promotions) > 0 {
		stmt := `
			UPDATE memory_facts
			SET is_essential = TRUE
			WHERE id IN (` + placeholderList(1, len(commit.Promotions)) + `)`
		args := make([]any, 0, len(commit.Promotions))
		for _, id := range commit.Promotions {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrap(err, "failed to promote facts")
		}
	}
	if summary := commit.SummaryUpsert; summary != nil {
		stmt := `
			UPDATE memory_facts
			SET content = ` + placeholder(1) + `,
				confidence = ` + placeholder(2) + `,
				is_essential = TRUE,
				last_refreshed_ts = ` + placeholder(3) + `,
				embedding = ` + placeholder(4) + `
			WHERE user_id = ` + placeholder(5) + `
				AND category = ` + placeholder(6) + `
				AND slot_hint = ` + placeholder(7) + `
				AND superseded_by IS NULL AND expires_ts IS NULL
		`
		result, err := tx.ExecContext(ctx, stmt,
			summary.Content,
			summary.Confidence,
			summary.LastRefreshedTs,
			embeddingArg(summary.Embedding),
			summary.UserID,
			summary.Category,
			summary.SlotHint,
		)
		if err != nil {
			return errors.Wrap(err, "failed to update profile summary")
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			if err := d.insertFact(ctx, tx, summary); err != nil {
				return err
			}
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit consolidation")
}

func applySupersessions(ctx context.Context, tx *sql.Tx, supersessions []store.FactSupersession) error {
	for _, s := range supersessions {
		stmt := `UPDATE memory_facts SET superseded_by = ` + placeholder(1) + ` WHERE id = ` + placeholder(2)
		if _, err := tx.ExecContext(ctx, stmt, s.SupersededBy, s.FactID); err != nil {
			return errors.Wrap(err, "failed to supersede fact")
		}
	}
	return nil
}

// DecayFacts multiplies the confidence of stale active facts by factor,
// bounded below by floor. Returns the number of facts touched.
func (d *DB) DecayFacts(ctx context.Context, staleBefore time.Time, factor, floor float64) (int64, error) {
	stmt := `
		UPDATE memory_facts
		SET confidence = GREATEST(` + placeholder(1) + `, confidence * ` + placeholder(2) + `)
		WHERE superseded_by IS NULL
			AND expires_ts IS NULL
			AND last_refreshed_ts < ` + placeholder(3)
	result, err := d.db.ExecContext(ctx, stmt, floor, factor, staleBefore)
	if err != nil {
		return 0, errors.Wrap(err, "failed to decay facts")
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
