// Package v1 is the HTTP/JSON surface of the memory engine. Handlers are a
// thin translation layer: they authenticate, validate, call into the store
// and the recall engine, and map typed failures onto the error taxonomy.
package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/ai/llm"
	"github.com/hrygo/mnemo/ai/metrics"
	"github.com/hrygo/mnemo/ai/recall"
	"github.com/hrygo/mnemo/internal/profile"
	"github.com/hrygo/mnemo/server/auth"
	"github.com/hrygo/mnemo/store"
)

const apiKeyHeader = "X-API-Key"

type APIV1Service struct {
	Profile *profile.Profile
	Store   *store.Store
	Recall  *recall.Engine
	Limiter *auth.RateLimiter
	Metrics *metrics.Exporter
}

// NewAPIV1Service wires the HTTP surface. llmService may be nil; recall then
// runs lexically and extraction jobs complete without model stages.
func NewAPIV1Service(p *profile.Profile, s *store.Store, llmService llm.Service) *APIV1Service {
	return &APIV1Service{
		Profile: p,
		Store:   s,
		Recall:  recall.NewEngine(s, llmService),
		Limiter: auth.NewRateLimiter(p.RateLimitPerMin),
		Metrics: metrics.Default(),
	}
}

// RegisterRoutes mounts the /v1 API onto the echo server.
func (s *APIV1Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/v1")

	g.POST("/users", s.CreateUser)
	g.POST("/users/:id/api-key/rotate", s.RotateAPIKey)
	g.DELETE("/users/:id/api-key", s.RevokeAPIKey)
	g.POST("/users/:id/consolidate", s.TriggerConsolidation)

	g.POST("/sessions", s.CreateSession)
	g.GET("/history/:sessionId", s.GetHistory)

	g.POST("/ingest", s.Ingest)
	g.POST("/recall", s.RecallFacts)

	g.GET("/conscious/:userId", s.GetConsciousFacts)
	g.GET("/facts/:userId", s.ListUserFacts)
	g.DELETE("/facts/:factId", s.DeleteFact)
	g.GET("/facts/:factId/source", s.GetFactSource)
}

// authenticate resolves the caller from the X-API-Key header and applies the
// per-key rate limit. It returns nil after writing the error response.
func (s *APIV1Service) authenticate(c echo.Context) *store.User {
	key := c.Request().Header.Get(apiKeyHeader)
	if key == "" {
		_ = apiError(c, CodeUnauthorized, "missing API key")
		return nil
	}

	hash := auth.HashAPIKey(key)
	user, err := s.Store.GetUser(c.Request().Context(), &store.FindUser{APIKeyHash: &hash})
	if err != nil {
		slog.Error("failed to look up api key", slog.String("error", err.Error()))
		_ = apiError(c, CodeInternalError, "failed to authenticate")
		return nil
	}
	if user == nil {
		_ = apiError(c, CodeForbidden, "invalid API key")
		return nil
	}

	if !s.Limiter.Allow(hash) {
		_ = apiError(c, CodeRateLimitExceeded, "rate limit exceeded")
		return nil
	}
	return user
}

// authorizeUser authenticates and checks that the caller owns userID.
func (s *APIV1Service) authorizeUser(c echo.Context, userID string) *store.User {
	user := s.authenticate(c)
	if user == nil {
		return nil
	}
	if user.ID != userID {
		_ = apiError(c, CodeForbidden, "API key does not belong to this user")
		return nil
	}
	return user
}

func noContent(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}
