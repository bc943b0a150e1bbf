package v1

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/server/auth"
	"github.com/hrygo/mnemo/server/queue"
	"github.com/hrygo/mnemo/store"
)

type createUserResponse struct {
	ID     string `json:"id"`
	APIKey string `json:"api_key"`
}

// CreateUser registers a new user and issues their API key. The plaintext
// key appears in this response only; the store keeps the hash.
func (s *APIV1Service) CreateUser(c echo.Context) error {
	ctx := c.Request().Context()

	key, err := auth.GenerateAPIKey()
	if err != nil {
		slog.Error("failed to generate api key", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to create user")
	}
	hash := auth.HashAPIKey(key)

	now := time.Now()
	user, err := s.Store.CreateUser(ctx, &store.User{
		ID:           uuid.NewString(),
		APIKeyHash:   &hash,
		CreatedTs:    now,
		LastActiveTs: now,
	})
	if err != nil {
		slog.Error("failed to create user", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to create user")
	}
	return c.JSON(http.StatusCreated, &createUserResponse{ID: user.ID, APIKey: key})
}

type rotateAPIKeyResponse struct {
	APIKey string `json:"api_key"`
}

// RotateAPIKey replaces the caller's key. The previous key stops working
// immediately.
func (s *APIV1Service) RotateAPIKey(c echo.Context) error {
	user := s.authorizeUser(c, c.Param("id"))
	if user == nil {
		return nil
	}
	ctx := c.Request().Context()

	key, err := auth.GenerateAPIKey()
	if err != nil {
		slog.Error("failed to generate api key", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to rotate api key")
	}
	hash := auth.HashAPIKey(key)

	if _, err := s.Store.UpdateUser(ctx, &store.UpdateUser{
		ID:            user.ID,
		SetAPIKeyHash: true,
		APIKeyHash:    &hash,
	}); err != nil {
		slog.Error("failed to rotate api key", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to rotate api key")
	}
	return c.JSON(http.StatusOK, &rotateAPIKeyResponse{APIKey: key})
}

// RevokeAPIKey nulls the caller's key hash. The user's data stays; further
// calls require a new key issued out of band.
func (s *APIV1Service) RevokeAPIKey(c echo.Context) error {
	user := s.authorizeUser(c, c.Param("id"))
	if user == nil {
		return nil
	}
	if _, err := s.Store.UpdateUser(c.Request().Context(), &store.UpdateUser{
		ID:            user.ID,
		SetAPIKeyHash: true,
		APIKeyHash:    nil,
	}); err != nil {
		slog.Error("failed to revoke api key", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to revoke api key")
	}
	return noContent(c)
}

type consolidateResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

// TriggerConsolidation enqueues an immediate consolidation pass for the
// user, outside the weekly schedule.
func (s *APIV1Service) TriggerConsolidation(c echo.Context) error {
	user := s.authorizeUser(c, c.Param("id"))
	if user == nil {
		return nil
	}
	job, err := queue.Enqueue(c.Request().Context(), s.Store, store.JobKindConsolidateUser, queue.UserPayload{UserID: user.ID})
	if err != nil {
		slog.Error("failed to enqueue consolidation", slog.String("error", err.Error()))
		return apiError(c, CodeInternalError, "failed to enqueue consolidation")
	}
	return c.JSON(http.StatusAccepted, &consolidateResponse{
		Status:  "queued",
		Message: "consolidation scheduled",
		JobID:   job.ID,
	})
}
