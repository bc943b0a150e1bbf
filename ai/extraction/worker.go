// Package extraction turns recent conversation turns into typed memory
// facts: it prompts the model for candidates, validates and normalizes
// them, deduplicates against the user's existing facts, and supersedes
// stale facts occupying the same profile slot.
package extraction

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/internal/fuzzy"
	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/store"
)

const (
	// windowSize is how many trailing messages one extraction run reads.
	windowSize = 5
	// minConfidence drops facts the model itself is unsure about.
	minConfidence = 0.5
	// dupThreshold is the token-set similarity (0-100) at or above which an
	// incoming fact refreshes an existing one instead of inserting.
	dupThreshold = 75
	// supersedeMargin lets a slightly less confident fact still replace the
	// incumbent in its slot.
	supersedeMargin = 0.15
)

// Store is the subset of the store the worker needs.
type Store interface {
	GetSession(ctx context.Context, find *store.FindSession) (*store.Session, error)
	ListChatLogs(ctx context.Context, find *store.FindChatLog) ([]*store.ChatLog, error)
	ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error)
	CommitExtraction(ctx context.Context, commit *store.ExtractionCommit) error
}

// Worker runs one extraction pass per job.
type Worker struct {
	store Store
	llm   llm.Service
	now   func() time.Time
}

// NewWorker builds an extraction worker. A nil llm service disables the
// model stage entirely; the job then completes without writing facts.
func NewWorker(s Store, llmService llm.Service) *Worker {
	return &Worker{store: s, llm: llmService, now: time.Now}
}

// Run extracts facts from the tail of the session's conversation and commits
// inserts, duplicate refreshes, and slot supersessions in one transaction.
// Errors from the model gateway propagate so the job fabric can reschedule
// transient ones.
func (w *Worker) Run(ctx context.Context, sessionID string) error {
	session, err := w.store.GetSession(ctx, &store.FindSession{ID: &sessionID})
	if err != nil {
		return errors.Wrap(err, "failed to load session")
	}
	if session == nil {
		slog.Warn("extraction skipped, session not found", slog.String("session", sessionID))
		return nil
	}

	messages, err := w.store.ListChatLogs(ctx, &store.FindChatLog{
		SessionID:  &sessionID,
		Descending: true,
		Limit:      windowSize,
	})
	if err != nil {
		return errors.Wrap(err, "failed to load message window")
	}
	if len(messages) == 0 {
		slog.Info("extraction skipped, no messages", slog.String("session", sessionID))
		return nil
	}
	// Newest-first from the store; the transcript wants chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if w.llm == nil {
		slog.Info("extraction skipped, no LLM configured", slog.String("session", sessionID))
		return nil
	}

	var resp extractionResponse
	err = w.llm.ChatStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: extractionSystemPrompt},
		{Role: llm.RoleUser, Content: buildTranscript(messages)},
	}, "extract_facts", factsSchema(), &resp)
	if err != nil {
		return errors.Wrap(err, "fact extraction failed")
	}

	candidates := make([]*candidateFact, 0, len(resp.Facts))
	for i := range resp.Facts {
		c := &resp.Facts[i]
		if !validCandidate(c) {
			continue
		}
		c.Content = normalizeContent(store.FactCategory(c.Category), c.Content)
		if !store.TemporalState(c.TemporalState).IsValid() {
			c.TemporalState = string(store.TemporalCurrent)
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		slog.Info("extraction found no facts", slog.String("session", sessionID))
		return nil
	}

	// Non-expired facts, superseded included: dedup refreshes what is still
	// visible, and the supersession rule needs to see already-replaced rows.
	existing, err := w.store.ListFacts(ctx, &store.FindFact{
		UserID:     &session.UserID,
		NotExpired: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to load existing facts")
	}

	commit := w.stage(session.UserID, newestMessageID(messages), candidates, existing)
	if len(commit.Inserts) == 0 && len(commit.Refreshes) == 0 {
		slog.Info("extraction produced no changes", slog.String("session", sessionID))
		return nil
	}

	w.embedInserts(ctx, commit.Inserts)

	if err := w.store.CommitExtraction(ctx, commit); err != nil {
		return errors.Wrap(err, "failed to commit extraction")
	}
	insertedByCategory := make(map[string]int)
	for _, f := range commit.Inserts {
		insertedByCategory[string(f.Category)]++
	}
	metrics.Default().RecordExtraction(insertedByCategory, len(commit.Refreshes), len(commit.Supersessions))

	slog.Info("extraction committed",
		slog.String("session", sessionID),
		slog.String("user", session.UserID),
		slog.Int("inserted", len(commit.Inserts)),
		slog.Int("refreshed", len(commit.Refreshes)),
		slog.Int("superseded", len(commit.Supersessions)))
	return nil
}

// stage resolves candidates against existing facts into a single commit:
// duplicates refresh, the rest insert, and inserts into supersedable slots
// queue supersessions against the facts they displace.
func (w *Worker) stage(userID, sourceMessageID string, candidates []*candidateFact, existing []*store.Fact) *store.ExtractionCommit {
	now := w.now()
	commit := &store.ExtractionCommit{}
	refreshed := make(map[string]bool)
	// existing fact ID -> ID of the newest staged fact in its slot
	superseders := make(map[string]string)

	for _, c := range candidates {
		if dup := w.findDuplicate(c, existing); dup != nil {
			if !refreshed[dup.ID] {
				refreshed[dup.ID] = true
				commit.Refreshes = append(commit.Refreshes, store.FactRefresh{
					ID:              dup.ID,
					Confidence:      c.Confidence,
					LastRefreshedTs: now,
				})
			}
			continue
		}

		fact := &store.Fact{
			ID:              uuid.NewString(),
			UserID:          userID,
			Category:        store.FactCategory(c.Category),
			Content:         c.Content,
			Confidence:      c.Confidence,
			TemporalState:   store.TemporalState(c.TemporalState),
			SourceMessageID: &sourceMessageID,
			LastRefreshedTs: now,
			CreatedTs:       now,
		}
		if c.SlotHint != "" {
			hint := c.SlotHint
			fact.SlotHint = &hint
		}
		commit.Inserts = append(commit.Inserts, fact)

		if !fact.Category.Supersedable() {
			continue
		}
		for _, old := range existing {
			if old.Category != fact.Category {
				continue
			}
			if !slotMatch(old.SlotHint, fact.SlotHint) {
				continue
			}
			if c.Confidence >= old.Confidence-supersedeMargin || old.SupersededBy != nil {
				// Later candidates in the same slot win, so overwrite.
				superseders[old.ID] = fact.ID
			}
		}
	}

	for oldID, newID := range superseders {
		commit.Supersessions = append(commit.Supersessions, store.FactSupersession{
			FactID:       oldID,
			SupersededBy: newID,
		})
	}
	return commit
}

// findDuplicate returns the first non-superseded existing fact whose content
// is a token-set paraphrase of the candidate.
func (w *Worker) findDuplicate(c *candidateFact, existing []*store.Fact) *store.Fact {
	for _, f := range existing {
		if f.SupersededBy != nil {
			continue
		}
		if fuzzy.TokenSetRatio(c.Content, f.Content) >= dupThreshold {
			return f
		}
	}
	return nil
}

// slotMatch implements the slot rule: a nil hint on either side matches the
// whole category, otherwise the hints must be equal.
func slotMatch(existing, incoming *string) bool {
	if existing == nil || incoming == nil {
		return true
	}
	return *existing == *incoming
}

// embedInserts attaches embeddings to the staged facts. Embedding failure is
// non-fatal: facts land without vectors and recall falls back to lexical.
func (w *Worker) embedInserts(ctx context.Context, inserts []*store.Fact) {
	if len(inserts) == 0 {
		return
	}
	texts := make([]string, len(inserts))
	for i, f := range inserts {
		texts[i] = f.Content
	}
	vectors, err := w.llm.Embed(ctx, texts)
	if err != nil {
		slog.Warn("embedding failed, inserting facts without vectors",
			slog.Int("count", len(inserts)),
			slog.String("error", err.Error()))
		return
	}
	for i, f := range inserts {
		f.Embedding = vectors[i]
	}
}

func newestMessageID(chronological []*store.ChatLog) string {
	return chronological[len(chronological)-1].ID
}
