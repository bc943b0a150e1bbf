package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/store"
)

const defaultHistoryLimit = 50

type createSessionRequest struct {
	UserID string `json:"user_id"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateSession opens a new conversation session for the caller.
func (s *APIV1Service) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, CodeValidation, "invalid request body")
	}
	user := s.authorizeUser(c, req.UserID)
	if user == nil {
		return nil
	}

	session, err := s.Store.CreateSession(c.Request().Context(), &store.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedTs: time.Now(),
	})
	if err != nil {
		slog.Error("failed to create session", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to create session")
	}
	return c.JSON(http.StatusCreated, &sessionResponse{
		ID:        session.ID,
		UserID:    session.UserID,
		CreatedAt: session.CreatedTs,
	})
}

type messageResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// GetHistory returns the session's messages in chronological order.
func (s *APIV1Service) GetHistory(c echo.Context) error {
	user := s.authenticate(c)
	if user == nil {
		return nil
	}
	ctx := c.Request().Context()
	sessionID := c.Param("sessionId")

	session, err := s.Store.GetSession(ctx, &store.FindSession{ID: &sessionID})
	if err != nil {
		slog.Error("failed to load session", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to load session")
	}
	if session == nil {
		return apiError(c, CodeNotFound, "session not found")
	}
	if session.UserID != user.ID {
		return apiError(c, CodeForbidden, "session belongs to another user")
	}

	limit := defaultHistoryLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return apiError(c, CodeValidation, "limit must be a positive integer")
		}
		limit = parsed
	}

	messages, err := s.Store.ListChatLogs(ctx, &store.FindChatLog{
		SessionID: &sessionID,
		Limit:     limit,
	})
	if err != nil {
		slog.Error("failed to load history", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to load history")
	}

	out := make([]*messageResponse, 0, len(messages))
	for _, m := range messages {
		out = append(out, &messageResponse{
			ID:        m.ID,
			SessionID: m.SessionID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedTs,
		})
	}
	return c.JSON(http.StatusOK, out)
}
