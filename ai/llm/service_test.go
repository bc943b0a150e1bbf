package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hrygo/mnemo/internal/profile"
)

type fakeChatClient struct {
	responses []openai.ChatCompletionResponse
	errs      []error
	calls     int
	lastReq   openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.lastReq = req
	i := f.calls
	f.calls++
	var resp openai.ChatCompletionResponse
	var err error
	if i < len(f.responses) {
		resp = f.responses[i]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return resp, err
}

type fakeEmbedClient struct {
	response openai.EmbeddingResponse
	err      error
}

func (f *fakeEmbedClient) CreateEmbeddings(_ context.Context, _ openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	return f.response, f.err
}

func chatResponse(content string) openai.ChatCompletionResponse {
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: RoleAssistant, Content: content}},
		},
	}
}

func newTestService(chat chatClient, embed embedClient) *service {
	return &service{
		profile: &profile.Profile{
			LLMProvider:    "openai",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			EmbeddingDim:   3,
		},
		chat:         chat,
		embed:        embed,
		embedLimiter: rate.NewLimiter(rate.Inf, 1),
	}
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	embed := &fakeEmbedClient{
		response: openai.EmbeddingResponse{
			Data: []openai.Embedding{
				{Index: 1, Embedding: []float32{4, 5, 6}},
				{Index: 0, Embedding: []float32{1, 2, 3}},
			},
		},
	}
	svc := newTestService(&fakeChatClient{}, embed)

	vectors, err := svc.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 2, 3}, vectors[0])
	assert.Equal(t, []float32{4, 5, 6}, vectors[1])
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	embed := &fakeEmbedClient{
		response: openai.EmbeddingResponse{
			Data: []openai.Embedding{{Index: 0, Embedding: []float32{1, 2}}},
		},
	}
	svc := newTestService(&fakeChatClient{}, embed)

	_, err := svc.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestEmbedEmptyInput(t *testing.T) {
	svc := newTestService(&fakeChatClient{}, &fakeEmbedClient{})
	vectors, err := svc.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}

func TestChatStructuredDecodesAndValidates(t *testing.T) {
	chat := &fakeChatClient{
		responses: []openai.ChatCompletionResponse{
			chatResponse("```json\n{\"summary\": \"likes go\", \"count\": 2}\n```"),
		},
	}
	svc := newTestService(chat, &fakeEmbedClient{})

	schema := &JSONSchema{
		Type: "object",
		Properties: map[string]*JSONSchema{
			"summary": {Type: "string"},
			"count":   {Type: "integer"},
		},
		Required: []string{"summary"},
	}
	var out struct {
		Summary string `json:"summary"`
		Count   int    `json:"count"`
	}
	err := svc.ChatStructured(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, "test", schema, &out)
	require.NoError(t, err)
	assert.Equal(t, "likes go", out.Summary)
	assert.Equal(t, 2, out.Count)

	require.NotNil(t, chat.lastReq.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONSchema, chat.lastReq.ResponseFormat.Type)
}

func TestChatStructuredRejectsSchemaViolation(t *testing.T) {
	chat := &fakeChatClient{
		responses: []openai.ChatCompletionResponse{
			chatResponse(`{"count": 2}`),
		},
	}
	svc := newTestService(chat, &fakeEmbedClient{})

	schema := &JSONSchema{
		Type:       "object",
		Properties: map[string]*JSONSchema{"summary": {Type: "string"}},
		Required:   []string{"summary"},
	}
	var out struct{}
	err := svc.ChatStructured(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, "test", schema, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema")
	assert.False(t, IsTransient(err))
}

func TestChatStructuredRetriesTransientFailures(t *testing.T) {
	chat := &fakeChatClient{
		responses: []openai.ChatCompletionResponse{
			{},
			chatResponse(`{"ok": true}`),
		},
		errs: []error{
			&openai.APIError{HTTPStatusCode: 429, Message: "rate limited"},
			nil,
		},
	}
	svc := newTestService(chat, &fakeEmbedClient{})

	schema := &JSONSchema{
		Type:       "object",
		Properties: map[string]*JSONSchema{"ok": {Type: "boolean"}},
		Required:   []string{"ok"},
	}
	var out struct {
		OK bool `json:"ok"`
	}
	start := time.Now()
	err := svc.ChatStructured(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, "test", schema, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, 2, chat.calls)
	assert.GreaterOrEqual(t, time.Since(start), retryBackoffBase)
}

func TestChatStructuredDoesNotRetryPermanentFailures(t *testing.T) {
	chat := &fakeChatClient{
		errs: []error{&openai.APIError{HTTPStatusCode: 400, Message: "bad request"}},
	}
	svc := newTestService(chat, &fakeEmbedClient{})

	var out struct{}
	err := svc.ChatStructured(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, "test", &JSONSchema{Type: "object"}, &out)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
	assert.Equal(t, 1, chat.calls)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransientCause(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, isTransientCause(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, isTransientCause(&openai.APIError{HTTPStatusCode: 401}))
	assert.True(t, isTransientCause(context.DeadlineExceeded))
	assert.True(t, isTransientCause(errors.New("dial tcp: connection refused")))
	assert.False(t, isTransientCause(errors.New("invalid model")))
	assert.False(t, isTransientCause(nil))
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
