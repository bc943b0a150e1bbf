// Package llm is the gateway to the configured model provider. All four
// supported providers (openai, anthropic, gemini, openrouter) are reached
// over the OpenAI-compatible protocol, so a single client implementation
// covers chat and embeddings for every deployment.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/mnemo/internal/profile"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat request.
type Message struct {
	Role    string
	Content string
}

// Retry policy for transient provider failures.
const (
	retryAttempts    = 3
	retryBackoffBase = 500 * time.Millisecond
	retryBackoffMult = 2
)

// Service is the model gateway used by the extraction, consolidation and
// recall pipelines.
type Service interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// ChatStructured sends messages and decodes the model's JSON reply into
	// out after validating it against schema.
	ChatStructured(ctx context.Context, messages []Message, name string, schema *JSONSchema, out any) error
}

type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type embedClient interface {
	CreateEmbeddings(ctx context.Context, req openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

type service struct {
	profile *profile.Profile
	chat    chatClient
	embed   embedClient

	// Smooths embedding bursts so batch jobs do not trip provider limits.
	embedLimiter *rate.Limiter
}

// NewService builds the gateway from the profile. The chat and embedding
// clients may point at different providers: anthropic and gemini do not
// serve embeddings on their OpenAI-compatible surface, so embedding calls
// are delegated to the configured embedding provider.
func NewService(p *profile.Profile) Service {
	chatCfg := openai.DefaultConfig(p.LLMAPIKey)
	chatCfg.BaseURL = p.LLMBaseURL

	embedCfg := openai.DefaultConfig(p.EmbeddingAPIKey)
	embedCfg.BaseURL = p.EmbeddingBaseURL

	return &service{
		profile:      p,
		chat:         openai.NewClientWithConfig(chatCfg),
		embed:        openai.NewClientWithConfig(embedCfg),
		embedLimiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
	}
}

func (s *service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := s.embedLimiter.Wait(ctx); err != nil {
		return nil, classify("embed", err)
	}

	var resp openai.EmbeddingResponse
	err := s.withRetry(ctx, "embed", func() error {
		var callErr error
		resp, callErr = s.embed.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts,
			Model:      openai.EmbeddingModel(s.profile.EmbeddingModel),
			Dimensions: s.profile.EmbeddingDim,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, &Error{Op: "embed", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))}
	}

	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, &Error{Op: "embed", Err: fmt.Errorf("embedding index %d out of range", item.Index)}
		}
		if len(item.Embedding) != s.profile.EmbeddingDim {
			return nil, &Error{Op: "embed", Err: fmt.Errorf("expected dimension %d, got %d", s.profile.EmbeddingDim, len(item.Embedding))}
		}
		vectors[item.Index] = item.Embedding
	}
	return vectors, nil
}

func (s *service) ChatStructured(ctx context.Context, messages []Message, name string, schema *JSONSchema, out any) error {
	req := openai.ChatCompletionRequest{
		Model:    s.profile.ChatModel,
		Messages: make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	// OpenAI and OpenRouter enforce the schema server-side. The other
	// providers only guarantee syntactically valid JSON, so the schema is
	// restated in the prompt and enforced below on the reply either way.
	switch s.profile.LLMProvider {
	case "openai", "openrouter":
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: schema,
				Strict: true,
			},
		}
	default:
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
		schemaText, err := json.Marshal(schema)
		if err != nil {
			return &Error{Op: "chat", Err: err}
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    RoleSystem,
			Content: "Reply with a single JSON object matching this JSON Schema exactly:\n" + string(schemaText),
		})
	}

	var resp openai.ChatCompletionResponse
	err := s.withRetry(ctx, "chat", func() error {
		var callErr error
		resp, callErr = s.chat.CreateChatCompletion(ctx, req)
		return callErr
	})
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return &Error{Op: "chat", Err: fmt.Errorf("no choices in response")}
	}

	content := stripCodeFence(resp.Choices[0].Message.Content)

	var raw any
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return &Error{Op: "chat", Err: fmt.Errorf("invalid JSON in response: %w", err)}
	}
	if err := schema.Validate(raw); err != nil {
		return &Error{Op: "chat", Err: fmt.Errorf("response does not match schema: %w", err)}
	}
	if err := json.Unmarshal([]byte(content), out); err != nil {
		return &Error{Op: "chat", Err: err}
	}
	return nil
}

// withRetry runs fn with exponential backoff, retrying only transient
// failures. The last error is returned classified.
func (s *service) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := retryBackoffBase
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		classified := classify(op, lastErr)
		if !classified.Transient || attempt == retryAttempts {
			return classified
		}
		slog.Warn("transient LLM failure, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", lastErr.Error()))
		select {
		case <-ctx.Done():
			return classify(op, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= retryBackoffMult
	}
	return classify(op, lastErr)
}

// stripCodeFence unwraps content a model wrapped in a markdown code block.
func stripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	return strings.TrimSpace(content)
}
