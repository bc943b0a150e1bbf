package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearLLMEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "LLM_API_KEY", "LLM_BASE_URL", "CHAT_MODEL", "LLM_TIMEOUT_SECONDS",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "GEMINI_API_KEY", "OPENROUTER_API_KEY",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL", "EMBEDDING_API_KEY", "EMBEDDING_BASE_URL", "EMBEDDING_DIM",
		"RATE_LIMIT_REQUESTS_PER_MIN", "CORS_ORIGINS", "QUEUE_WORKERS", "QUEUE_MAX_JOBS", "DATABASE_URL",
	} {
		t.Setenv(key, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearLLMEnv(t)

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "openai", p.LLMProvider)
	assert.Equal(t, "https://api.openai.com/v1", p.LLMBaseURL)
	assert.Equal(t, "gpt-4o-mini", p.ChatModel)
	assert.Equal(t, 120, p.LLMTimeout)
	assert.Equal(t, "openai", p.EmbeddingProvider)
	assert.Equal(t, "text-embedding-3-small", p.EmbeddingModel)
	assert.Equal(t, 1536, p.EmbeddingDim)
	assert.Equal(t, 60, p.RateLimitPerMin)
	assert.Equal(t, 2, p.QueueWorkers)
	assert.Equal(t, 10, p.MaxJobs)
	assert.False(t, p.IsLLMEnabled())
}

func TestFromEnvProviderAliasKey(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "anthropic")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "sk-ant-test", p.LLMAPIKey)
	assert.Equal(t, "https://api.anthropic.com/v1", p.LLMBaseURL)
	assert.Equal(t, "claude-sonnet-4-5", p.ChatModel)
	assert.True(t, p.IsLLMEnabled())
}

func TestFromEnvEmbeddingDelegation(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "gm-key")
	t.Setenv("OPENAI_API_KEY", "oa-key")

	p := &Profile{}
	p.FromEnv()

	// Gemini cannot embed through the OpenAI-compatible surface, so the
	// embedding side falls back to OpenAI with its own key.
	assert.Equal(t, "gemini", p.LLMProvider)
	assert.Equal(t, "openai", p.EmbeddingProvider)
	assert.Equal(t, "oa-key", p.EmbeddingAPIKey)
	assert.Equal(t, "https://api.openai.com/v1", p.EmbeddingBaseURL)
}

func TestFromEnvEmbeddingInheritsChatKey(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("LLM_API_KEY", "shared-key")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "openai", p.EmbeddingProvider)
	assert.Equal(t, "shared-key", p.EmbeddingAPIKey)
}

func TestFromEnvUnknownProviderFallsBack(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("LLM_PROVIDER", "mystery")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, "openai", p.LLMProvider)
}

func TestFromEnvCORSOrigins(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com ,")

	p := &Profile{}
	p.FromEnv()

	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, p.CORSOrigins)
}

func TestFromEnvDatabaseURLOverridesDSN(t *testing.T) {
	clearLLMEnv(t)
	t.Setenv("DATABASE_URL", "postgres://env/db")

	p := &Profile{DSN: "postgres://flag/db"}
	p.FromEnv()

	assert.Equal(t, "postgres://env/db", p.DSN)
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires dsn", func(t *testing.T) {
		p := &Profile{Mode: "prod", Driver: "postgres"}
		require.Error(t, p.Validate())

		p.DSN = "postgres://localhost/mnemo"
		p.EmbeddingDim = 1536
		require.NoError(t, p.Validate())
	})

	t.Run("unsupported driver", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "mysql", EmbeddingDim: 1536}
		require.Error(t, p.Validate())
	})

	t.Run("sqlite derives dsn from data dir", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir(), EmbeddingDim: 1536}
		require.NoError(t, p.Validate())
		assert.Contains(t, p.DSN, "mnemo_dev.db")
	})

	t.Run("invalid mode falls back to dev", func(t *testing.T) {
		p := &Profile{Mode: "staging", Driver: "sqlite", Data: t.TempDir(), EmbeddingDim: 1536}
		require.NoError(t, p.Validate())
		assert.Equal(t, "dev", p.Mode)
	})

	t.Run("invalid embedding dim", func(t *testing.T) {
		p := &Profile{Mode: "dev", Driver: "sqlite", Data: t.TempDir(), EmbeddingDim: 0}
		require.Error(t, p.Validate())
	})
}
