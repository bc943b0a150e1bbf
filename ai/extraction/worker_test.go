package extraction

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
	session   *store.Session
	messages  []*store.ChatLog
	facts     []*store.Fact
	committed *store.ExtractionCommit
}

func (f *fakeStore) GetSession(_ context.Context, _ *store.FindSession) (*store.Session, error) {
	return f.session, nil
}

func (f *fakeStore) ListChatLogs(_ context.Context, find *store.FindChatLog) ([]*store.ChatLog, error) {
	// Newest first, as the driver returns with Descending set.
	out := make([]*store.ChatLog, 0, len(f.messages))
	for i := len(f.messages) - 1; i >= 0; i-- {
		out = append(out, f.messages[i])
		if find.Limit > 0 && len(out) == find.Limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ListFacts(_ context.Context, _ *store.FindFact) ([]*store.Fact, error) {
	return f.facts, nil
}

func (f *fakeStore) CommitExtraction(_ context.Context, commit *store.ExtractionCommit) error {
	f.committed = commit
	return nil
}

type fakeLLM struct {
	facts     []candidateFact
	chatErr   error
	embedErr  error
	embedDim  int
	embedSeen []string
}

func (f *fakeLLM) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.embedSeen = texts
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	dim := f.embedDim
	if dim == 0 {
		dim = 3
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = make([]float32, dim)
		vectors[i][0] = float32(i + 1)
	}
	return vectors, nil
}

func (f *fakeLLM) ChatStructured(_ context.Context, _ []llm.Message, _ string, _ *llm.JSONSchema, out any) error {
	if f.chatErr != nil {
		return f.chatErr
	}
	raw, err := json.Marshal(extractionResponse{Facts: f.facts})
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func strPtr(s string) *string { return &s }

func testWorker(s Store, l llm.Service, now time.Time) *Worker {
	w := NewWorker(s, l)
	w.now = func() time.Time { return now }
	return w
}

func baseStore() *fakeStore {
	return &fakeStore{
		session: &store.Session{ID: "sess-1", UserID: "user-1"},
		messages: []*store.ChatLog{
			{ID: "msg-1", SessionID: "sess-1", Role: store.RoleUser, Content: "I work at Google as a senior engineer"},
		},
	}
}

func TestRunCommitsExtractedFacts(t *testing.T) {
	s := baseStore()
	l := &fakeLLM{facts: []candidateFact{
		{Category: "work_context", SlotHint: "employer", TemporalState: "current", Content: "Works at Google", Confidence: 0.9},
		{Category: "work_context", SlotHint: "role", TemporalState: "current", Content: "Is a senior engineer", Confidence: 0.85},
	}}
	w := testWorker(s, l, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	require.NotNil(t, s.committed)
	require.Len(t, s.committed.Inserts, 2)
	assert.Empty(t, s.committed.Supersessions)
	assert.Empty(t, s.committed.Refreshes)

	first := s.committed.Inserts[0]
	assert.Equal(t, "user-1", first.UserID)
	assert.Equal(t, store.CategoryWorkContext, first.Category)
	assert.Equal(t, "Works at Google", first.Content)
	assert.Equal(t, "employer", *first.SlotHint)
	assert.Equal(t, "msg-1", *first.SourceMessageID)
	assert.NotNil(t, first.Embedding)
	assert.Equal(t, []string{"Works at Google", "Is a senior engineer"}, l.embedSeen)
}

func TestSupersessionBySlot(t *testing.T) {
	s := baseStore()
	s.facts = []*store.Fact{
		{ID: "old-employer", UserID: "user-1", Category: store.CategoryWorkContext, SlotHint: strPtr("employer"), Content: "Works at Google", Confidence: 0.9},
		{ID: "old-role", UserID: "user-1", Category: store.CategoryWorkContext, SlotHint: strPtr("role"), Content: "Is a senior engineer", Confidence: 0.9},
	}
	l := &fakeLLM{facts: []candidateFact{
		{Category: "work_context", SlotHint: "employer", TemporalState: "current", Content: "Works at OpenAI", Confidence: 0.9},
	}}
	w := testWorker(s, l, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	require.NotNil(t, s.committed)
	require.Len(t, s.committed.Inserts, 1)
	newID := s.committed.Inserts[0].ID

	require.Len(t, s.committed.Supersessions, 1)
	assert.Equal(t, "old-employer", s.committed.Supersessions[0].FactID)
	assert.Equal(t, newID, s.committed.Supersessions[0].SupersededBy)
}

func TestSupersessionRespectsConfidenceMargin(t *testing.T) {
	s := baseStore()
	s.facts = []*store.Fact{
		{ID: "old", UserID: "user-1", Category: store.CategoryWorkContext, SlotHint: strPtr("employer"), Content: "Works at Google", Confidence: 0.95},
	}
	l := &fakeLLM{facts: []candidateFact{
		{Category: "work_context", SlotHint: "employer", TemporalState: "current", Content: "Works at OpenAI", Confidence: 0.5},
	}}
	w := testWorker(s, l, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	require.NotNil(t, s.committed)
	// 0.5 < 0.95 - 0.15: the incumbent keeps its slot; both facts coexist.
	assert.Empty(t, s.committed.Supersessions)
}

func TestNilSlotHintReplacesWholeCategory(t *testing.T) {
	s := baseStore()
	s.facts = []*store.Fact{
		{ID: "legacy", UserID: "user-1", Category: store.CategoryBiographical, Content: "Lives in Dallas", Confidence: 0.8},
	}
	l := &fakeLLM{facts: []candidateFact{
		{Category: "biographical", SlotHint: "location", TemporalState: "current", Content: "Lives in Austin", Confidence: 0.9},
	}}
	w := testWorker(s, l, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	require.Len(t, s.committed.Supersessions, 1)
	assert.Equal(t, "legacy", s.committed.Supersessions[0].FactID)
}

func TestDedupRefreshesExisting(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	s := baseStore()
	s.facts = []*store.Fact{
		{ID: "existing", UserID: "user-1", Category: store.CategoryBiographical, Content: "Lives in Austin", Confidence: 0.6},
	}
	l := &fakeLLM{facts: []candidateFact{
		{Category: "biographical", SlotHint: "location", TemporalState: "current", Content: "Lives in Austin Texas", Confidence: 0.9},
	}}
	w := testWorker(s, l, now)

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	require.NotNil(t, s.committed)
	assert.Empty(t, s.committed.Inserts)
	require.Len(t, s.committed.Refreshes, 1)
	assert.Equal(t, "existing", s.committed.Refreshes[0].ID)
	assert.Equal(t, 0.9, s.committed.Refreshes[0].Confidence)
	assert.Equal(t, now, s.committed.Refreshes[0].LastRefreshedTs)
}

func TestValidationDropsBadCandidates(t *testing.T) {
	s := baseStore()
	l := &fakeLLM{facts: []candidateFact{
		{Category: "biographical", TemporalState: "current", Content: "Austin", Confidence: 0.9},               // one word
		{Category: "biographical", TemporalState: "current", Content: "Lives in Austin?", Confidence: 0.9},    // question
		{Category: "biographical", TemporalState: "current", Content: "Lives in Austin", Confidence: 0.3},     // low confidence
		{Category: "invalid_category", TemporalState: "current", Content: "Lives in Austin", Confidence: 0.9}, // bad category
	}}
	w := testWorker(s, l, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	assert.Nil(t, s.committed)
}

func TestEmbeddingFailureIsFailSoft(t *testing.T) {
	s := baseStore()
	l := &fakeLLM{
		facts:    []candidateFact{{Category: "user_preference", TemporalState: "current", Content: "Prefers dark roast coffee", Confidence: 0.8}},
		embedErr: errors.New("embedding provider down"),
	}
	w := testWorker(s, l, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	require.NotNil(t, s.committed)
	require.Len(t, s.committed.Inserts, 1)
	assert.Nil(t, s.committed.Inserts[0].Embedding)
}

func TestNoMessagesSkips(t *testing.T) {
	s := baseStore()
	s.messages = nil
	w := testWorker(s, &fakeLLM{}, time.Now())

	require.NoError(t, w.Run(context.Background(), "sess-1"))
	assert.Nil(t, s.committed)
}

func TestTransientChatErrorPropagates(t *testing.T) {
	s := baseStore()
	l := &fakeLLM{chatErr: &llm.Error{Op: "chat", Err: errors.New("rate limited"), Transient: true}}
	w := testWorker(s, l, time.Now())

	err := w.Run(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Nil(t, s.committed)
}

func TestNormalizeContent(t *testing.T) {
	assert.Equal(t, "Lives in Austin Texas", normalizeContent(store.CategoryBiographical, "Austin Texas"))
	assert.Equal(t, "Lives in Austin", normalizeContent(store.CategoryBiographical, "Lives in Austin"))
	assert.Equal(t, "Born in Dallas", normalizeContent(store.CategoryBiographical, "Born in Dallas"))
	assert.Equal(t, "Works at Acme Corp", normalizeContent(store.CategoryWorkContext, "Acme Corp"))
	assert.Equal(t, "Is a backend engineer", normalizeContent(store.CategoryWorkContext, "backend engineer"))
	assert.Equal(t, "Works at Google", normalizeContent(store.CategoryWorkContext, "Works at Google"))
	// Temporal markers suppress rewriting.
	assert.Equal(t, "Previously lived in Dallas", normalizeContent(store.CategoryBiographical, "Previously lived in Dallas"))
	assert.Equal(t, "Used to work at IBM", normalizeContent(store.CategoryWorkContext, "Used to work at IBM"))
	// Other categories pass through.
	assert.Equal(t, "Enjoys rock climbing", normalizeContent(store.CategoryUserPreference, "Enjoys rock climbing"))
}
