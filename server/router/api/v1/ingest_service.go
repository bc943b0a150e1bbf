package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/server/queue"
	"github.com/hrygo/mnemo/store"
)

type ingestRequest struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
}

type ingestResponse struct {
	Status    string `json:"status"`
	JobID     string `json:"job_id"`
	ChatLogID string `json:"chat_log_id"`
}

// Ingest persists one chat message and enqueues fact extraction over the
// session. The write path stays fast under load; extraction latency absorbs
// the backpressure.
func (s *APIV1Service) Ingest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, CodeValidation, "invalid request body")
	}

	user := s.authorizeUser(c, req.UserID)
	if user == nil {
		s.Metrics.RecordIngest("rejected")
		return nil
	}
	ctx := c.Request().Context()

	if req.Role != store.RoleUser && req.Role != store.RoleAssistant {
		s.Metrics.RecordIngest("rejected")
		return apiError(c, CodeValidation, "role must be user or assistant")
	}
	if strings.TrimSpace(req.Content) == "" {
		s.Metrics.RecordIngest("rejected")
		return apiError(c, CodeValidation, "content must not be empty")
	}

	session, err := s.Store.GetSession(ctx, &store.FindSession{ID: &req.SessionID})
	if err != nil {
		slog.Error("failed to load session", slog.String("error", err.Error()))
		s.Metrics.RecordIngest("error")
		return apiError(c, CodeInternalError, "failed to load session")
	}
	if session == nil || session.UserID != user.ID {
		s.Metrics.RecordIngest("rejected")
		return apiError(c, CodeNotFound, "session not found")
	}

	now := time.Now()
	chatLog, err := s.Store.CreateChatLog(ctx, &store.ChatLog{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Role:      req.Role,
		Content:   req.Content,
		CreatedTs: now,
	})
	if err != nil {
		slog.Error("failed to persist message", slog.String("error", err.Error()))
		s.Metrics.RecordIngest("error")
		return apiError(c, CodeInternalError, "failed to persist message")
	}

	job, err := queue.Enqueue(ctx, s.Store, store.JobKindExtractFacts, queue.ExtractFactsPayload{SessionID: session.ID})
	if err != nil {
		slog.Error("failed to enqueue extraction", slog.String("error", err.Error()))
		s.Metrics.RecordIngest("error")
		return apiError(c, CodeExtractionUnavailable, "failed to enqueue extraction")
	}

	if _, err := s.Store.UpdateUser(ctx, &store.UpdateUser{ID: user.ID, LastActiveTs: &now}); err != nil {
		slog.Warn("failed to update user activity", slog.String("error", err.Error()))
	}

	s.Metrics.RecordIngest("queued")
	return c.JSON(http.StatusAccepted, &ingestResponse{
		Status:    "queued",
		JobID:     job.ID,
		ChatLogID: chatLog.ID,
	})
}
