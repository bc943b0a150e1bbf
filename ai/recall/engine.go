// Package recall is the online read path: it turns a free-form query into
// the user's most relevant facts via intent-hinted category filtering,
// vector nearest-neighbour search, fuzzy lexical rerank, and a balanced
// fallback slate for generic self-description prompts.
package recall

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mnemo/ai/internal/fuzzy"
	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

const (
	// DefaultLimit and MaxLimit bound the result slate.
	DefaultLimit = 5
	MaxLimit     = 20

	// vectorMaxDistance is the cosine distance cutoff for the vector stage.
	vectorMaxDistance = 0.75
	// lexicalMinSim drops lexical candidates below this token-set score.
	lexicalMinSim = 30
	// Composite lexical score weights: 0.7 per similarity point plus 30 per
	// unit of confidence.
	lexicalSimWeight  = 0.7
	lexicalConfWeight = 30
	// topConfidenceFloor gates the final unfiltered top-up for generic queries.
	topConfidenceFloor = 0.7
)

// lexicalPoolSize bounds the candidate pool for the lexical stage.
func lexicalPoolSize(limit int) int {
	pool := 10 * limit
	if pool < 50 {
		pool = 50
	}
	if pool > 500 {
		pool = 500
	}
	return pool
}

// Request is one recall invocation. The handler validates the query and
// limit; the engine applies defaults for the rest.
type Request struct {
	UserID            string
	Query             string
	Limit             int
	Categories        []store.FactCategory
	IncludeHistorical bool
	CurrentViewOnly   bool
	MaxAgeDays        int
}

// RecalledFact is the response shape for one recalled fact.
type RecalledFact struct {
	Category      store.FactCategory  `json:"category"`
	Content       string              `json:"content"`
	Confidence    float64             `json:"confidence"`
	TemporalState store.TemporalState `json:"temporal_state"`
}

// Store is the subset of the store the engine needs.
type Store interface {
	ListFacts(ctx context.Context, find *store.FindFact) ([]*store.Fact, error)
	VectorSearchFacts(ctx context.Context, search *store.FactVectorSearch) ([]*store.FactWithDistance, error)
}

// Engine executes recall requests. A nil llm service disables the vector
// stage; retrieval is then purely lexical.
type Engine struct {
	store Store
	llm   llm.Service
	now   func() time.Time
}

func NewEngine(s Store, llmService llm.Service) *Engine {
	return &Engine{store: s, llm: llmService, now: time.Now}
}

// Recall returns up to req.Limit facts ordered by relevance: vector hits by
// distance, then lexical hits by composite score, then (for generic queries)
// a balanced per-category slate. Embedding failure degrades to lexical-only.
func (e *Engine) Recall(ctx context.Context, req *Request) ([]*RecalledFact, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	generic := isGenericQuery(req.Query)
	catFilter := req.Categories
	if len(catFilter) == 0 && !generic {
		catFilter = hintedCategories(req.Query)
	}

	var excludeStates []store.TemporalState
	if !req.IncludeHistorical {
		excludeStates = append(excludeStates, store.TemporalPast)
	}
	var createdAfter *time.Time
	if req.MaxAgeDays > 0 {
		cutoff := e.now().Add(-time.Duration(req.MaxAgeDays) * 24 * time.Hour)
		createdAfter = &cutoff
	}

	results := make([]*store.Fact, 0, limit)
	seen := make(map[string]bool)
	appendFact := func(f *store.Fact) {
		if !seen[f.ID] {
			seen[f.ID] = true
			results = append(results, f)
		}
	}

	// Vector stage.
	if vector := e.embedQuery(ctx, req.Query); vector != nil {
		hits, err := e.store.VectorSearchFacts(ctx, &store.FactVectorSearch{
			UserID:        req.UserID,
			Vector:        vector,
			MaxDistance:   vectorMaxDistance,
			Categories:    catFilter,
			NotSuperseded: req.CurrentViewOnly,
			ExcludeStates: excludeStates,
			CreatedAfter:  createdAfter,
			Limit:         limit,
		})
		if err != nil {
			return nil, errors.Wrap(err, "vector search failed")
		}
		for _, hit := range hits {
			appendFact(hit.Fact)
		}
	}

	// Lexical fill over the most recent candidates.
	if len(results) < limit {
		candidates, err := e.store.ListFacts(ctx, &store.FindFact{
			UserID:        &req.UserID,
			Categories:    catFilter,
			NotSuperseded: req.CurrentViewOnly,
			NotExpired:    true,
			ExcludeStates: excludeStates,
			CreatedAfter:  createdAfter,
			ExcludeIDs:    seenIDs(seen),
			Order:         store.OrderCreatedDesc,
			Limit:         lexicalPoolSize(limit),
		})
		if err != nil {
			return nil, errors.Wrap(err, "lexical candidate query failed")
		}

		type scored struct {
			fact      *store.Fact
			composite float64
		}
		ranked := make([]scored, 0, len(candidates))
		for _, f := range candidates {
			sim := fuzzy.TokenSetRatio(req.Query, f.Content)
			if sim < lexicalMinSim {
				continue
			}
			ranked = append(ranked, scored{
				fact:      f,
				composite: lexicalSimWeight*float64(sim) + lexicalConfWeight*f.Confidence,
			})
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].composite > ranked[j].composite
		})
		for _, r := range ranked {
			if len(results) == limit {
				break
			}
			appendFact(r.fact)
		}
	}

	// Generic fallback: a balanced slate across categories, then a
	// top-confidence top-up without category gating.
	if generic && len(results) < limit {
		if err := e.fillBalanced(ctx, req, limit, excludeStates, createdAfter, appendFact, &results); err != nil {
			return nil, err
		}
	}

	out := make([]*RecalledFact, 0, len(results))
	for _, f := range results {
		out = append(out, &RecalledFact{
			Category:      f.Category,
			Content:       f.Content,
			Confidence:    f.Confidence,
			TemporalState: f.TemporalState,
		})
	}
	return out, nil
}

func (e *Engine) fillBalanced(ctx context.Context, req *Request, limit int, excludeStates []store.TemporalState, createdAfter *time.Time, appendFact func(*store.Fact), results *[]*store.Fact) error {
	categories := store.Categories()
	perCategory := (limit + len(categories) - 1) / len(categories)
	for _, category := range categories {
		facts, err := e.store.ListFacts(ctx, &store.FindFact{
			UserID:        &req.UserID,
			Categories:    []store.FactCategory{category},
			NotSuperseded: req.CurrentViewOnly,
			NotExpired:    true,
			ExcludeStates: excludeStates,
			CreatedAfter:  createdAfter,
			Order:         store.OrderSalience,
			Limit:         perCategory,
		})
		if err != nil {
			return errors.Wrap(err, "balanced slate query failed")
		}
		for _, f := range facts {
			appendFact(f)
		}
	}

	if len(*results) < limit {
		floor := topConfidenceFloor
		facts, err := e.store.ListFacts(ctx, &store.FindFact{
			UserID:        &req.UserID,
			MinConfidence: &floor,
			NotSuperseded: req.CurrentViewOnly,
			NotExpired:    true,
			ExcludeStates: excludeStates,
			CreatedAfter:  createdAfter,
			ExcludeIDs:    seenIDsFromResults(*results),
			Order:         store.OrderConfidenceDesc,
			Limit:         limit - len(*results),
		})
		if err != nil {
			return errors.Wrap(err, "top confidence query failed")
		}
		for _, f := range facts {
			appendFact(f)
		}
	}

	if len(*results) > limit {
		*results = (*results)[:limit]
	}
	return nil
}

// embedQuery returns the query embedding or nil; failure only degrades the
// vector stage, it never fails the request.
func (e *Engine) embedQuery(ctx context.Context, query string) []float32 {
	if e.llm == nil {
		return nil
	}
	vectors, err := e.llm.Embed(ctx, []string{query})
	if err != nil || len(vectors) != 1 {
		slog.Warn("query embedding failed, falling back to lexical recall",
			slog.String("error", errString(err)))
		return nil
	}
	return vectors[0]
}

func errString(err error) string {
	if err == nil {
		return "unexpected embedding count"
	}
	return err.Error()
}

func seenIDs(seen map[string]bool) []string {
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func seenIDsFromResults(results []*store.Fact) []string {
	if len(results) == 0 {
		return nil
	}
	ids := make([]string, 0, len(results))
	for _, f := range results {
		ids = append(ids, f.ID)
	}
	return ids
}
