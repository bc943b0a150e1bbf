package consolidation

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

// optimizeSampleSize bounds how many facts one optimization pass reviews.
const optimizeSampleSize = 200

// OptimizeWorker asks the model which of a user's facts are
// identity-defining and marks them essential.
type OptimizeWorker struct {
	store Store
	llm   llm.Service
	now   func() time.Time
}

func NewOptimizeWorker(s Store, llmService llm.Service) *OptimizeWorker {
	return &OptimizeWorker{store: s, llm: llmService, now: time.Now}
}

// Run reviews the user's highest-confidence non-essential facts and promotes
// the identity-defining ones. Transient model errors propagate for retry.
func (w *OptimizeWorker) Run(ctx context.Context, userID string) error {
	if w.llm == nil {
		return nil
	}

	notEssential := false
	facts, err := w.store.ListFacts(ctx, &store.FindFact{
		UserID:        &userID,
		IsEssential:   &notEssential,
		NotSuperseded: true,
		NotExpired:    true,
		Order:         store.OrderConfidenceDesc,
		Limit:         optimizeSampleSize,
	})
	if err != nil {
		return errors.Wrap(err, "failed to load facts")
	}
	if len(facts) == 0 {
		return nil
	}

	var resp struct {
		EssentialIndices []int `json:"essential_indices"`
	}
	err = w.llm.ChatStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: optimizeSystemPrompt},
		{Role: llm.RoleUser, Content: renderFactList(facts)},
	}, "optimize_essentials", optimizeSchema(), &resp)
	if err != nil {
		return errors.Wrap(err, "essential selection failed")
	}

	commit := &store.ConsolidationCommit{}
	seen := make(map[int]bool)
	for _, idx := range resp.EssentialIndices {
		if idx < 0 || idx >= len(facts) || seen[idx] {
			continue
		}
		seen[idx] = true
		commit.Promotions = append(commit.Promotions, facts[idx].ID)
	}
	if len(commit.Promotions) == 0 {
		return nil
	}
	if err := w.store.CommitConsolidation(ctx, commit); err != nil {
		return errors.Wrap(err, "failed to commit promotions")
	}
	slog.Info("optimization promoted facts",
		slog.String("user", userID),
		slog.Int("promoted", len(commit.Promotions)))
	return nil
}
