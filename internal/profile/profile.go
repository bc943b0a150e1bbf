package profile

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Profile is configuration to start main server.
type Profile struct {
	// Unified LLM configuration (OpenAI-compatible protocol)
	// All providers (openai, anthropic, gemini, openrouter) use the same config
	LLMProvider string // Provider identifier: openai, anthropic, gemini, openrouter
	LLMAPIKey   string // Unified LLM API key
	LLMBaseURL  string // Unified LLM base URL (optional, has default per provider)
	ChatModel   string // Model name: gpt-4o, claude-sonnet-4-5, gemini-2.5-pro, etc.
	LLMTimeout  int    // LLM request timeout in seconds (default: 120)

	// Embedding configuration. Anthropic and Gemini do not serve embeddings over
	// the OpenAI-compatible surface, so a fallback provider can be configured.
	EmbeddingProvider string
	EmbeddingModel    string
	EmbeddingAPIKey   string
	EmbeddingBaseURL  string
	EmbeddingDim      int

	// Rate limiting
	RateLimitPerMin int

	// CORS
	CORSOrigins []string

	// Queue / worker settings
	QueueWorkers int // worker goroutines per process
	MaxJobs      int // max in-flight jobs per process

	// Server settings
	UNIXSock    string
	Mode        string
	DSN         string
	Driver      string
	Version     string
	InstanceURL string
	Addr        string
	Data        string
	Port        int
}

// Provider default configurations for LLM.
// Used when LLM_BASE_URL is not explicitly set.
// Anthropic and Gemini are reached through their OpenAI-compatible endpoints.
var llmProviderDefaults = map[string]struct {
	BaseURL string
	Model   string
}{
	"openai": {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
	"anthropic": {
		BaseURL: "https://api.anthropic.com/v1",
		Model:   "claude-sonnet-4-5",
	},
	"gemini": {
		BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai",
		Model:   "gemini-2.5-flash",
	},
	"openrouter": {
		BaseURL: "https://openrouter.ai/api/v1",
		Model:   "openai/gpt-4o-mini",
	},
}

// Providers that serve embeddings natively on the OpenAI-compatible surface.
var embeddingCapable = map[string]bool{
	"openai":     true,
	"openrouter": true,
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// IsLLMEnabled returns true if an LLM API key is configured.
// Without one the server still ingests and recalls lexically, but the
// extraction and consolidation workers skip their LLM stages.
func (p *Profile) IsLLMEnabled() bool {
	return p.LLMAPIKey != ""
}

// getEnvOrDefault returns environment variable value or default value.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvOrDefaultInt returns environment variable value as int or default value.
func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// FromEnv loads configuration from environment variables.
func (p *Profile) FromEnv() {
	// Unified LLM configuration
	p.LLMProvider = getEnvOrDefault("LLM_PROVIDER", "openai")
	p.LLMAPIKey = getEnvOrDefault("LLM_API_KEY", "")
	p.LLMBaseURL = getEnvOrDefault("LLM_BASE_URL", "")
	p.ChatModel = getEnvOrDefault("CHAT_MODEL", "")
	p.LLMTimeout = getEnvOrDefaultInt("LLM_TIMEOUT_SECONDS", 120)

	// Per-provider key aliases, matching the deployment convention.
	if p.LLMAPIKey == "" {
		switch p.LLMProvider {
		case "openai":
			p.LLMAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
		case "anthropic":
			p.LLMAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", "")
		case "gemini":
			p.LLMAPIKey = getEnvOrDefault("GEMINI_API_KEY", "")
		case "openrouter":
			p.LLMAPIKey = getEnvOrDefault("OPENROUTER_API_KEY", "")
		}
	}

	if _, ok := llmProviderDefaults[p.LLMProvider]; !ok {
		slog.Warn("unknown LLM provider, using default: openai", "provider", p.LLMProvider)
		p.LLMProvider = "openai"
	}
	if defaults, ok := llmProviderDefaults[p.LLMProvider]; ok {
		if p.LLMBaseURL == "" {
			p.LLMBaseURL = defaults.BaseURL
		}
		if p.ChatModel == "" {
			p.ChatModel = defaults.Model
		}
	}

	// Embedding configuration. Defaults to the chat provider when it can embed,
	// otherwise to OpenAI as the delegate.
	defaultEmbedProvider := p.LLMProvider
	if !embeddingCapable[defaultEmbedProvider] {
		defaultEmbedProvider = "openai"
	}
	p.EmbeddingProvider = getEnvOrDefault("EMBEDDING_PROVIDER", defaultEmbedProvider)
	p.EmbeddingModel = getEnvOrDefault("EMBEDDING_MODEL", "text-embedding-3-small")
	p.EmbeddingAPIKey = getEnvOrDefault("EMBEDDING_API_KEY", "")
	p.EmbeddingBaseURL = getEnvOrDefault("EMBEDDING_BASE_URL", "")
	p.EmbeddingDim = getEnvOrDefaultInt("EMBEDDING_DIM", 1536)
	if p.EmbeddingAPIKey == "" {
		if p.EmbeddingProvider == p.LLMProvider {
			p.EmbeddingAPIKey = p.LLMAPIKey
		} else {
			p.EmbeddingAPIKey = getEnvOrDefault("OPENAI_API_KEY", "")
		}
	}
	if p.EmbeddingBaseURL == "" {
		if defaults, ok := llmProviderDefaults[p.EmbeddingProvider]; ok {
			p.EmbeddingBaseURL = defaults.BaseURL
		}
	}

	// Ingress rate limit, fixed window per API key
	p.RateLimitPerMin = getEnvOrDefaultInt("RATE_LIMIT_REQUESTS_PER_MIN", 60)

	// CORS
	if origins := getEnvOrDefault("CORS_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				p.CORSOrigins = append(p.CORSOrigins, o)
			}
		}
	}

	// Queue settings
	p.QueueWorkers = getEnvOrDefaultInt("QUEUE_WORKERS", 2)
	p.MaxJobs = getEnvOrDefaultInt("QUEUE_MAX_JOBS", 10)

	// DATABASE_URL wins over --dsn when set.
	if dsn := getEnvOrDefault("DATABASE_URL", ""); dsn != "" {
		p.DSN = dsn
	}
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "dev"
	}

	if p.Driver != "postgres" && p.Driver != "sqlite" {
		return errors.Errorf("unsupported database driver %q", p.Driver)
	}

	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires DATABASE_URL or --dsn")
	}

	if p.Driver == "sqlite" {
		if p.Data == "" {
			p.Data = "."
		}
		dataDir, err := checkDataDir(p.Data)
		if err != nil {
			slog.Error("failed to check data dir", slog.String("data", p.Data), slog.String("error", err.Error()))
			return err
		}
		p.Data = dataDir
		if p.DSN == "" {
			dbFile := fmt.Sprintf("mnemo_%s.db", p.Mode)
			p.DSN = filepath.Join(dataDir, dbFile)
		}
	}

	if p.EmbeddingDim <= 0 {
		return errors.Errorf("invalid embedding dimension %d", p.EmbeddingDim)
	}

	return nil
}
