package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/internal/strutil"
	"github.com/hrygo/mnemo/store"
)

const (
	defaultConsciousLimit = 10
	maxFactPageSize       = 100
	sourcePreviewRunes    = 120
)

type factResponse struct {
	ID            string              `json:"id"`
	Category      store.FactCategory  `json:"category"`
	Content       string              `json:"content"`
	Confidence    float64             `json:"confidence"`
	SlotHint      *string             `json:"slot_hint,omitempty"`
	TemporalState store.TemporalState `json:"temporal_state"`
	IsEssential   bool                `json:"is_essential"`
	CreatedAt     time.Time           `json:"created_at"`
}

func toFactResponse(f *store.Fact) *factResponse {
	return &factResponse{
		ID:            f.ID,
		Category:      f.Category,
		Content:       f.Content,
		Confidence:    f.Confidence,
		SlotHint:      f.SlotHint,
		TemporalState: f.TemporalState,
		IsEssential:   f.IsEssential,
		CreatedAt:     f.CreatedTs,
	}
}

type consciousResponse struct {
	EssentialFacts []*factResponse `json:"essential_facts"`
}

// GetConsciousFacts returns the user's essential facts: the set worth
// putting in every context window.
func (s *APIV1Service) GetConsciousFacts(c echo.Context) error {
	user := s.authorizeUser(c, c.Param("userId"))
	if user == nil {
		return nil
	}

	limit := defaultConsciousLimit
	if raw := c.QueryParam("max_facts"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxFactPageSize {
			return apiError(c, CodeValidation, "max_facts must be between 1 and 100")
		}
		limit = parsed
	}

	essential := true
	facts, err := s.Store.ListFacts(c.Request().Context(), &store.FindFact{
		UserID:        &user.ID,
		IsEssential:   &essential,
		NotSuperseded: true,
		NotExpired:    true,
		Order:         store.OrderSalience,
		Limit:         limit,
	})
	if err != nil {
		slog.Error("failed to list essential facts", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to list facts")
	}

	out := make([]*factResponse, 0, len(facts))
	for _, f := range facts {
		out = append(out, toFactResponse(f))
	}
	return c.JSON(http.StatusOK, &consciousResponse{EssentialFacts: out})
}

type factListResponse struct {
	Facts []*factResponse `json:"facts"`
}

// ListUserFacts returns the user's active facts, optionally filtered by
// category.
func (s *APIV1Service) ListUserFacts(c echo.Context) error {
	user := s.authorizeUser(c, c.Param("userId"))
	if user == nil {
		return nil
	}

	find := &store.FindFact{
		UserID:        &user.ID,
		NotSuperseded: true,
		NotExpired:    true,
		Order:         store.OrderCreatedDesc,
		Limit:         maxFactPageSize,
	}
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxFactPageSize {
			return apiError(c, CodeValidation, "limit must be between 1 and 100")
		}
		find.Limit = parsed
	}
	if raw := c.QueryParam("category"); raw != "" {
		category := store.FactCategory(raw)
		if !category.IsValid() {
			return apiErrorDetails(c, CodeValidation, "unknown category", raw)
		}
		find.Categories = []store.FactCategory{category}
	}

	facts, err := s.Store.ListFacts(c.Request().Context(), find)
	if err != nil {
		slog.Error("failed to list facts", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to list facts")
	}

	out := make([]*factResponse, 0, len(facts))
	for _, f := range facts {
		out = append(out, toFactResponse(f))
	}
	return c.JSON(http.StatusOK, &factListResponse{Facts: out})
}

// DeleteFact soft-deletes a fact by setting its expiry; queries treat it as
// absent from then on.
func (s *APIV1Service) DeleteFact(c echo.Context) error {
	user := s.authenticate(c)
	if user == nil {
		return nil
	}
	ctx := c.Request().Context()

	fact, err := s.Store.GetFact(ctx, c.Param("factId"))
	if err != nil {
		slog.Error("failed to load fact", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to load fact")
	}
	if fact == nil || fact.UserID != user.ID {
		return apiError(c, CodeNotFound, "fact not found")
	}

	now := time.Now()
	if err := s.Store.UpdateFact(ctx, &store.UpdateFact{ID: fact.ID, ExpiresAt: &now}); err != nil {
		slog.Error("failed to delete fact", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to delete fact")
	}
	return noContent(c)
}

type factSourceResponse struct {
	FactID          string    `json:"fact_id"`
	SourceMessageID string    `json:"source_message_id"`
	SessionID       string    `json:"session_id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	ContentPreview  string    `json:"content_preview"`
	Timestamp       time.Time `json:"timestamp"`
}

// GetFactSource returns the message a fact was extracted from.
func (s *APIV1Service) GetFactSource(c echo.Context) error {
	user := s.authenticate(c)
	if user == nil {
		return nil
	}
	ctx := c.Request().Context()

	fact, err := s.Store.GetFact(ctx, c.Param("factId"))
	if err != nil {
		slog.Error("failed to load fact", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to load fact")
	}
	if fact == nil || fact.UserID != user.ID {
		return apiError(c, CodeNotFound, "fact not found")
	}
	if fact.SourceMessageID == nil {
		return apiError(c, CodeNotFound, "fact has no source message")
	}

	message, err := s.Store.GetChatLog(ctx, *fact.SourceMessageID)
	if err != nil {
		slog.Error("failed to load source message", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to load source message")
	}
	if message == nil {
		return apiError(c, CodeNotFound, "source message not found")
	}

	return c.JSON(http.StatusOK, &factSourceResponse{
		FactID:          fact.ID,
		SourceMessageID: message.ID,
		SessionID:       message.SessionID,
		Role:            message.Role,
		Content:         message.Content,
		ContentPreview:  strutil.Truncate(message.Content, sourcePreviewRunes),
		Timestamp:       message.CreatedTs,
	})
}
