package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/store"
)

// ============================================================================
// SQLITE VECTOR SUPPORT
// ============================================================================
// Embeddings are stored as JSON-encoded float32 arrays; cosine similarity is
// computed in the Go application layer. Good enough for dev-sized fact sets;
// PostgreSQL with pgvector provides true ANN search.
// ============================================================================

func encodeEmbedding(embedding []float32) (any, error) {
	if embedding == nil {
		return nil, nil
	}
	buf, err := json.Marshal(embedding)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode embedding")
	}
	return string(buf), nil
}

func decodeEmbedding(raw sql.NullString) ([]float32, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var embedding []float32
	if err := json.Unmarshal([]byte(raw.String), &embedding); err != nil {
		return nil, errors.Wrap(err, "failed to decode embedding")
	}
	return embedding, nil
}

// cosineDistance returns 1 - cosine_similarity, matching pgvector's <=> operator.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

const factColumns = `id, user_id, category, content, confidence, slot_hint, temporal_state,
		is_essential, source_message_id, superseded_by, expires_ts, last_refreshed_ts, created_ts, embedding`

func scanFact(scan func(dest ...any) error) (*store.Fact, error) {
	var fact store.Fact
	var expiresTs sql.NullInt64
	var lastRefreshedTs, createdTs int64
	var embedding sql.NullString
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
		&expiresTs,
		&lastRefreshedTs,
		&createdTs,
		&embedding,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to scan fact")
	}
	fact.ExpiresAt = fromNullTs(expiresTs)
	fact.LastRefreshedTs = fromTs(lastRefreshedTs)
	fact.CreatedTs = fromTs(createdTs)
	if fact.Embedding, err = decodeEmbedding(embedding); err != nil {
		return nil, err
	}
	return &fact, nil
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (d *DB) insertFact(ctx context.Context, ex execer, create *store.Fact) error {
	embedding, err := encodeEmbedding(create.Embedding)
	if err != nil {
		return err
	}
	stmt := `
		INSERT INTO memory_facts (
			id, user_id, category, content, confidence, slot_hint, temporal_state,
			is_essential, source_message_id, superseded_by, expires_ts,
			last_refreshed_ts, created_ts, embedding
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = ex.ExecContext(ctx, stmt,
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
		toNullTs(create.ExpiresAt),
		toTs(create.LastRefreshedTs),
		toTs(create.CreatedTs),
		embedding,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert fact")
	}
	return nil
}

func (d *DB) CreateFact(ctx context.Context, create *store.Fact) (*store.Fact, error) {
	if err := d.insertFact(ctx, d.db, create); err != nil {
		return nil, err
	}
	return create, nil
}

func factWhere(find *store.FindFact) ([]string, []any) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *find.UserID)
	}
	if len(find.Categories) > 0 {
		where = append(where, "category IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(find.Categories)), ", ")+")")
		for _, c := range find.Categories {
			args = append(args, c)
		}
	}
	if find.SlotHint != nil {
		where, args = append(where, "slot_hint = ?"), append(args, *find.SlotHint)
	}
	if find.IsEssential != nil {
		where, args = append(where, "is_essential = ?"), append(args, *find.IsEssential)
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
		where = append(where, "temporal_state NOT IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(find.ExcludeStates)), ", ")+")")
		for _, t := range find.ExcludeStates {
			args = append(args, t)
		}
	}
	if find.MinConfidence != nil {
		where, args = append(where, "confidence >= ?"), append(args, *find.MinConfidence)
	}
	if find.CreatedAfter != nil {
		where, args = append(where, "created_ts >= ?"), append(args, toTs(*find.CreatedAfter))
	}
	if find.RefreshedAfter != nil {
		where, args = append(where, "last_refreshed_ts >= ?"), append(args, toTs(*find.RefreshedAfter))
	}
	if len(find.ExcludeIDs) > 0 {
		where = append(where, "id NOT IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(find.ExcludeIDs)), ", ")+")")
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
		query += ` LIMIT ?`
		args = append(args, find.Limit)
		if find.Offset > 0 {
			query += ` OFFSET ?`
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
		set, args = append(set, "confidence = ?"), append(args, *update.Confidence)
	}
	if update.IsEssential != nil {
		set, args = append(set, "is_essential = ?"), append(args, *update.IsEssential)
	}
	if update.LastRefreshedTs != nil {
		set, args = append(set, "last_refreshed_ts = ?"), append(args, toTs(*update.LastRefreshedTs))
	}
	if update.SupersededBy != nil {
		set, args = append(set, "superseded_by = ?"), append(args, *update.SupersededBy)
	}
	if update.ExpiresAt != nil {
		set, args = append(set, "expires_ts = ?"), append(args, toTs(*update.ExpiresAt))
	}
	if len(set) == 0 {
		return errors.New("no fields to update")
	}

	stmt := `UPDATE memory_facts SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
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

// VectorSearchFacts loads the user's embedded facts matching the filters and
// scores cosine distance in the application layer.
func (d *DB) VectorSearchFacts(ctx context.Context, search *store.FactVectorSearch) ([]*store.FactWithDistance, error) {
	limit := search.Limit
	if limit <= 0 {
		limit = 10
	}

	candidates, err := d.ListFacts(ctx, &store.FindFact{
		UserID:        &search.UserID,
		Categories:    search.Categories,
		NotSuperseded: search.NotSuperseded,
		NotExpired:    true,
		HasEmbedding:  true,
		ExcludeStates: search.ExcludeStates,
		CreatedAfter:  search.CreatedAfter,
	})
	if err != nil {
		return nil, err
	}

	results := []*store.FactWithDistance{}
	for _, fact := range candidates {
		distance := cosineDistance(search.Vector, fact.Embedding)
		if distance < search.MaxDistance {
			results = append(results, &store.FactWithDistance{Fact: fact, Distance: distance})
		}
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CommitExtraction applies one extraction run atomically.
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
			SET last_refreshed_ts = ?, confidence = MAX(confidence, ?)
			WHERE id = ?`
		if _, err := tx.ExecContext(ctx, stmt, toTs(refresh.LastRefreshedTs), refresh.Confidence, refresh.ID); err != nil {
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
			SET is_essential = 1
			WHERE id IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(commit.Promotions)), ", ") + `)`
		args := make([]any, 0, len(commit.Promotions))
		for _, id := range commit.Promotions {
			args = append(args, id)
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrap(err, "failed to promote facts")
		}
	}
	if summary := commit.SummaryUpsert; summary != nil {
		embedding, err := encodeEmbedding(summary.Embedding)
		if err != nil {
			return err
		}
		stmt := `
			UPDATE memory_facts
			SET content = ?, confidence = ?, is_essential = 1, last_refreshed_ts = ?, embedding = ?
			WHERE user_id = ? AND category = ? AND slot_hint = ?
				AND superseded_by IS NULL AND expires_ts IS NULL
		`
		result, err := tx.ExecContext(ctx, stmt,
			summary.Content,
			summary.Confidence,
			toTs(summary.LastRefreshedTs),
			embedding,
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
		if _, err := tx.ExecContext(ctx,
			`UPDATE memory_facts SET superseded_by = ? WHERE id = ?`, s.SupersededBy, s.FactID); err != nil {
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
		SET confidence = MAX(?, confidence * ?)
		WHERE superseded_by IS NULL
			AND expires_ts IS NULL
			AND last_refreshed_ts < ?`
	result, err := d.db.ExecContext(ctx, stmt, floor, factor, toTs(staleBefore))
	if err != nil {
		return 0, errors.Wrap(err, "failed to decay facts")
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}
