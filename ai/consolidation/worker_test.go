package consolidation

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/store"
)

type fakeStore struct {
	facts     []*store.Fact
	committed *store.ConsolidationCommit
	decayed   int64
}

func (f *fakeStore) ListFacts(_ context.Context, find *store.FindFact) ([]*store.Fact, error) {
	out := make([]*store.Fact, 0, len(f.facts))
	for _, fact := range f.facts {
		if find.NotSuperseded && fact.SupersededBy != nil {
			continue
		}
		if find.IsEssential != nil && fact.IsEssential != *find.IsEssential {
			continue
		}
		out = append(out, fact)
		if find.Limit > 0 && len(out) == find.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) CommitConsolidation(_ context.Context, commit *store.ConsolidationCommit) error {
	f.committed = commit
	return nil
}

func (f *fakeStore) DecayFacts(_ context.Context, _ time.Time, _, _ float64) (int64, error) {
	return f.decayed, nil
}

type fakeLLM struct {
	response any
	chatErr  error
}

func (f *fakeLLM) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1, 0, 0}
	}
	return vectors, nil
}

func (f *fakeLLM) ChatStructured(_ context.Context, _ []llm.Message, _ string, _ *llm.JSONSchema, out any) error {
	if f.chatErr != nil {
		return f.chatErr
	}
	raw, err := json.Marshal(f.response)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

type summaryResponse struct {
	Summary   string   `json:"summary"`
	KeyTraits []string `json:"key_traits"`
}

func strPtr(s string) *string { return &s }

func testWorker(s Store, l llm.Service, now time.Time) *Worker {
	w := NewWorker(s, l)
	w.now = func() time.Time { return now }
	return w
}

func TestClusteringSupersedesLowerConfidence(t *testing.T) {
	now := time.Now()
	s := &fakeStore{facts: []*store.Fact{
		{ID: "a", UserID: "u", Category: store.CategoryBiographical, Content: "Is a backend engineer",
			Confidence: 0.9, Embedding: []float32{1, 0, 0}, CreatedTs: now.Add(-time.Hour)},
		{ID: "b", UserID: "u", Category: store.CategoryBiographical, Content: "Works as a backend developer",
			Confidence: 0.7, Embedding: []float32{0.99, 0.14, 0}, CreatedTs: now},
	}}
	w := testWorker(s, &fakeLLM{response: summaryResponse{Summary: "A backend engineer.", KeyTraits: []string{"engineer"}}}, now)

	require.NoError(t, w.Run(context.Background(), "u"))
	require.NotNil(t, s.committed)
	require.Len(t, s.committed.Supersessions, 1)
	assert.Equal(t, "b", s.committed.Supersessions[0].FactID)
	assert.Equal(t, "a", s.committed.Supersessions[0].SupersededBy)
}

func TestClusteringIgnoresCrossCategoryPairs(t *testing.T) {
	now := time.Now()
	s := &fakeStore{facts: []*store.Fact{
		{ID: "a", UserID: "u", Category: store.CategoryBiographical, Content: "Lives in Austin",
			Confidence: 0.9, Embedding: []float32{1, 0, 0}, CreatedTs: now},
		{ID: "b", UserID: "u", Category: store.CategoryWorkContext, Content: "Works in Austin",
			Confidence: 0.9, Embedding: []float32{1, 0, 0}, CreatedTs: now},
	}}
	w := testWorker(s, nil, now)

	require.NoError(t, w.Run(context.Background(), "u"))
	if s.committed != nil {
		assert.Empty(t, s.committed.Supersessions)
	}
}

func TestPromotionRequiresAgeAndConfidence(t *testing.T) {
	now := time.Now()
	s := &fakeStore{facts: []*store.Fact{
		{ID: "old-confident", UserID: "u", Category: store.CategoryUserPreference, Content: "Prefers tea over coffee",
			Confidence: 0.8, CreatedTs: now.Add(-10 * 24 * time.Hour), LastRefreshedTs: now.Add(-time.Hour)},
		{ID: "young", UserID: "u", Category: store.CategoryUserPreference, Content: "Enjoys hiking trails",
			Confidence: 0.9, CreatedTs: now.Add(-time.Hour), LastRefreshedTs: now},
		{ID: "weak", UserID: "u", Category: store.CategoryUserPreference, Content: "Might like jazz music",
			Confidence: 0.5, CreatedTs: now.Add(-10 * 24 * time.Hour), LastRefreshedTs: now},
		{ID: "already", UserID: "u", Category: store.CategoryUserPreference, Content: "Lives for climbing",
			Confidence: 0.9, IsEssential: true, CreatedTs: now.Add(-10 * 24 * time.Hour), LastRefreshedTs: now},
	}}
	w := testWorker(s, nil, now)

	require.NoError(t, w.Run(context.Background(), "u"))
	require.NotNil(t, s.committed)
	assert.Equal(t, []string{"old-confident"}, s.committed.Promotions)
}

func TestSummaryUpsert(t *testing.T) {
	now := time.Now()
	s := &fakeStore{facts: []*store.Fact{
		{ID: "a", UserID: "u", Category: store.CategoryBiographical, Content: "Lives in Austin",
			Confidence: 0.9, IsEssential: true, CreatedTs: now, LastRefreshedTs: now},
	}}
	l := &fakeLLM{response: summaryResponse{Summary: "Lives in Austin and works in tech.", KeyTraits: []string{"austinite"}}}
	w := testWorker(s, l, now)

	require.NoError(t, w.Run(context.Background(), "u"))
	require.NotNil(t, s.committed)
	summary := s.committed.SummaryUpsert
	require.NotNil(t, summary)
	assert.Equal(t, store.CategoryBiographical, summary.Category)
	assert.Equal(t, store.SlotHintProfileSummary, *summary.SlotHint)
	assert.True(t, summary.IsEssential)
	assert.Equal(t, 1.0, summary.Confidence)
	assert.Equal(t, "Lives in Austin and works in tech.", summary.Content)
	assert.NotNil(t, summary.Embedding)
}

func TestSummarySkipsOnPermanentLLMFailure(t *testing.T) {
	now := time.Now()
	s := &fakeStore{facts: []*store.Fact{
		{ID: "a", UserID: "u", Category: store.CategoryUserPreference, Content: "Prefers tea over coffee",
			Confidence: 0.8, CreatedTs: now.Add(-10 * 24 * time.Hour), LastRefreshedTs: now},
	}}
	l := &fakeLLM{chatErr: &llm.Error{Op: "chat", Err: errors.New("bad request")}}
	w := testWorker(s, l, now)

	// Promotion still commits even though the summary failed.
	require.NoError(t, w.Run(context.Background(), "u"))
	require.NotNil(t, s.committed)
	assert.Nil(t, s.committed.SummaryUpsert)
	assert.Equal(t, []string{"a"}, s.committed.Promotions)
}

func TestTransientLLMFailurePropagates(t *testing.T) {
	now := time.Now()
	s := &fakeStore{facts: []*store.Fact{
		{ID: "a", UserID: "u", Category: store.CategoryUserPreference, Content: "Prefers tea over coffee",
			Confidence: 0.9, IsEssential: true, CreatedTs: now, LastRefreshedTs: now},
	}}
	l := &fakeLLM{chatErr: &llm.Error{Op: "chat", Err: errors.New("rate limited"), Transient: true}}
	w := testWorker(s, l, now)

	err := w.Run(context.Background(), "u")
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Nil(t, s.committed)
}

func TestIdleUserIsFixedPoint(t *testing.T) {
	now := time.Now()
	// Nothing to merge, promote, or summarize: no commit at all.
	s := &fakeStore{facts: []*store.Fact{
		{ID: "a", UserID: "u", Category: store.CategoryLearning, Content: "Is studying Spanish weekly",
			Confidence: 0.6, CreatedTs: now.Add(-time.Hour), LastRefreshedTs: now.Add(-time.Hour)},
	}}
	w := testWorker(s, nil, now)

	require.NoError(t, w.Run(context.Background(), "u"))
	assert.Nil(t, s.committed)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity(nil, nil))
}
