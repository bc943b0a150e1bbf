// Package consolidation runs the periodic per-user maintenance passes:
// merging semantic duplicate facts, promoting long-lived confident facts to
// essential, synthesizing the profile summary, decaying stale confidence,
// and flagging identity-defining facts.
package consolidation

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

const (
	// semanticThreshold is the cosine similarity at or above which two facts
	// in the same category are considered the same statement.
	semanticThreshold = 0.92
	// promoteMinAge and promoteMinConfidence gate promotion to essential.
	promoteMinAge        = 7 * 24 * time.Hour
	promoteMinConfidence = 0.7
	// summaryMaxFacts bounds the profile summary context.
	summaryMaxFacts       = 30
	summaryMinConfidence  = 0.75
	summaryFactConfidence = 1.0
)

// Store is the subset of the store the consolidation worker needs.
type Store interface {
	ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error)
	CommitConsolidation(ctx context.Context, commit *store.ConsolidationCommit) error
}

// Worker runs one consolidation pass per job.
type Worker struct {
	store Store
	llm   llm.Service
	now   func() time.Time
}

// NewWorker builds a consolidation worker. A nil llm service skips the
// profile summary stage; clustering and promotion still run.
func NewWorker(s Store, llmService llm.Service) *Worker {
	return &Worker{store: s, llm: llmService, now: time.Now}
}

// Run consolidates one user's facts and applies the result in a single
// transaction. Transient model errors propagate so the job fabric can
// reschedule; a failed summary alone does not block the rest of the pass.
func (w *Worker) Run(ctx context.Context, userID string) error {
	facts, err := w.store.ListFacts(ctx, &store.FindFact{
		UserID:        &userID,
		NotSuperseded: true,
		NotExpired:    true,
		Order:         store.OrderCreatedDesc,
	})
	if err != nil {
		return errors.Wrap(err, "failed to load facts")
	}
	if len(facts) == 0 {
		return nil
	}

	commit := &store.ConsolidationCommit{}
	superseded := w.cluster(facts, commit)
	w.promote(facts, superseded, commit)

	if err := w.summarize(ctx, userID, facts, superseded, commit); err != nil {
		if llm.IsTransient(err) {
			return err
		}
		slog.Warn("profile summary skipped",
			slog.String("user", userID),
			slog.String("error", err.Error()))
	}

	if len(commit.Supersessions) == 0 && len(commit.Promotions) == 0 && commit.SummaryUpsert == nil {
		return nil
	}
	if err := w.store.CommitConsolidation(ctx, commit); err != nil {
		return errors.Wrap(err, "failed to commit consolidation")
	}
	slog.Info("consolidation committed",
		slog.String("user", userID),
		slog.Int("merged", len(commit.Supersessions)),
		slog.Int("promoted", len(commit.Promotions)),
		slog.Bool("summary", commit.SummaryUpsert != nil))
	return nil
}

// cluster union-finds facts within each category on embedding cosine
// similarity and queues the losers of each cluster for supersession. It
// returns the set of fact IDs superseded by this pass.
func (w *Worker) cluster(facts []*store.Fact, commit *store.ConsolidationCommit) map[string]bool {
	byCategory := make(map[store.FactCategory][]*store.Fact)
	for _, f := range facts {
		if f.Embedding != nil {
			byCategory[f.Category] = append(byCategory[f.Category], f)
		}
	}

	superseded := make(map[string]bool)
	for _, group := range byCategory {
		if len(group) < 2 {
			continue
		}
		uf := newUnionFind(len(group))
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				if cosineSimilarity(group[i].Embedding, group[j].Embedding) >= semanticThreshold {
					uf.union(i, j)
				}
			}
		}

		clusters := make(map[int][]*store.Fact)
		for i, f := range group {
			root := uf.find(i)
			clusters[root] = append(clusters[root], f)
		}
		for _, cluster := range clusters {
			if len(cluster) < 2 {
				continue
			}
			sort.SliceStable(cluster, func(a, b int) bool {
				if cluster[a].IsEssential != cluster[b].IsEssential {
					return cluster[a].IsEssential
				}
				if cluster[a].Confidence != cluster[b].Confidence {
					return cluster[a].Confidence > cluster[b].Confidence
				}
				return cluster[a].CreatedTs.After(cluster[b].CreatedTs)
			})
			winner := cluster[0]
			for _, loser := range cluster[1:] {
				superseded[loser.ID] = true
				commit.Supersessions = append(commit.Supersessions, store.FactSupersession{
					FactID:       loser.ID,
					SupersededBy: winner.ID,
				})
			}
		}
	}
	return superseded
}

// promote marks facts essential once they have survived a week of refreshes
// with solid confidence. Facts merged away in this pass are skipped.
func (w *Worker) promote(facts []*store.Fact, superseded map[string]bool, commit *store.ConsolidationCommit) {
	for _, f := range facts {
		if f.IsEssential || superseded[f.ID] {
			continue
		}
		if f.LastRefreshedTs.Sub(f.CreatedTs) >= promoteMinAge && f.Confidence >= promoteMinConfidence {
			commit.Promotions = append(commit.Promotions, f.ID)
		}
	}
}

// summarize asks the model for a short third-person profile summary and
// stages it as the user's single profile-summary fact.
func (w *Worker) summarize(ctx context.Context, userID string, facts []*store.Fact, superseded map[string]bool, commit *store.ConsolidationCommit) error {
	if w.llm == nil {
		return nil
	}

	selected := make([]*store.Fact, 0, summaryMaxFacts)
	for _, f := range facts {
		if superseded[f.ID] || isProfileSummary(f) {
			continue
		}
		if f.IsEssential || f.Confidence >= summaryMinConfidence {
			selected = append(selected, f)
			if len(selected) == summaryMaxFacts {
				break
			}
		}
	}
	if len(selected) == 0 {
		return nil
	}

	var resp struct {
		Summary   string   `json:"summary"`
		KeyTraits []string `json:"key_traits"`
	}
	err := w.llm.ChatStructured(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: summarySystemPrompt},
		{Role: llm.RoleUser, Content: renderFactList(selected)},
	}, "profile_summary", summarySchema(), &resp)
	if err != nil {
		return err
	}
	if resp.Summary == "" {
		return errors.New("model returned empty summary")
	}

	now := w.now()
	hint := store.SlotHintProfileSummary
	summary := &store.Fact{
		ID:              uuid.NewString(),
		UserID:          userID,
		Category:        store.CategoryBiographical,
		Content:         resp.Summary,
		Confidence:      summaryFactConfidence,
		SlotHint:        &hint,
		TemporalState:   store.TemporalCurrent,
		IsEssential:     true,
		LastRefreshedTs: now,
		CreatedTs:       now,
	}
	if vectors, err := w.llm.Embed(ctx, []string{resp.Summary}); err == nil && len(vectors) == 1 {
		summary.Embedding = vectors[0]
	}
	commit.SummaryUpsert = summary
	return nil
}

func isProfileSummary(f *store.Fact) bool {
	return f.Category == store.CategoryBiographical &&
		f.SlotHint != nil && *f.SlotHint == store.SlotHintProfileSummary
}

// cosineSimilarity is zero for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (uf *unionFind) find(i int) int {
	for uf.parent[i] != i {
		uf.parent[i] = uf.parent[uf.parent[i]]
		i = uf.parent[i]
	}
	return i
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra != rb {
		uf.parent[rb] = ra
	}
}
