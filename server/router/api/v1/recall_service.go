package v1

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mnemo/ai/recall"
	"github.com/hrygo/mnemo/store"
)

type recallRequest struct {
	UserID            string   `json:"user_id"`
	Query             string   `json:"query"`
	Limit             *int     `json:"limit"`
	Categories        []string `json:"categories"`
	IncludeHistorical bool     `json:"include_historical"`
	CurrentViewOnly   *bool    `json:"current_view_only"`
	MaxAgeDays        int      `json:"max_age_days"`
}

type recallResponse struct {
	RelevantFacts []*recall.RecalledFact `json:"relevant_facts"`
}

// RecallFacts returns the facts most relevant to the query.
func (s *APIV1Service) RecallFacts(c echo.Context) error {
	var req recallRequest
	if err := c.Bind(&req); err != nil {
		return apiError(c, CodeValidation, "invalid request body")
	}
	user := s.authorizeUser(c, req.UserID)
	if user == nil {
		return nil
	}

	if strings.TrimSpace(req.Query) == "" {
		return apiError(c, CodeValidation, "query must not be empty")
	}
	limit := recall.DefaultLimit
	if req.Limit != nil {
		if *req.Limit < 1 || *req.Limit > recall.MaxLimit {
			return apiError(c, CodeValidation, "limit must be between 1 and 20")
		}
		limit = *req.Limit
	}
	categories := make([]store.FactCategory, 0, len(req.Categories))
	for _, raw := range req.Categories {
		category := store.FactCategory(raw)
		if !category.IsValid() {
			return apiErrorDetails(c, CodeValidation, "unknown category", raw)
		}
		categories = append(categories, category)
	}
	currentViewOnly := true
	if req.CurrentViewOnly != nil {
		currentViewOnly = *req.CurrentViewOnly
	}

	start := time.Now()
	facts, err := s.Recall.Recall(c.Request().Context(), &recall.Request{
		UserID:            user.ID,
		Query:             req.Query,
		Limit:             limit,
		Categories:        categories,
		IncludeHistorical: req.IncludeHistorical,
		CurrentViewOnly:   currentViewOnly,
		MaxAgeDays:        req.MaxAgeDays,
	})
	if err != nil {
		slog.Error("recall failed",
			slog.String("user", user.ID),
			slog.String("error", err.Error()))
		s.Metrics.RecordRecall("error", time.Since(start))
		return apiError(c, CodeRecallUnavailable, "recall failed")
	}

	s.Metrics.RecordRecall("ok", time.Since(start))
	return c.JSON(http.StatusOK, &recallResponse{RelevantFacts: facts})
}
