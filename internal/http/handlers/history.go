package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"postty/internal/domain"
)

type runResponse struct {
	ID             string          `json:"id"`
	Prompt         string          `json:"prompt"`
	CandidateCount int             `json:"candidate_count"`
	Enriched       bool            `json:"enriched"`
	Locale         string          `json:"locale"`
	Status         string          `json:"status"`
	Result         json.RawMessage `json:"result,omitempty"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	CreatedAt      string          `json:"created_at"`
	UpdatedAt      string          `json:"updated_at"`
}

func toRunResponse(run *domain.GenerationRun) runResponse {
	return runResponse{
		ID:             run.ID,
		Prompt:         run.Prompt,
		CandidateCount: run.CandidateCount,
		Enriched:       run.Enriched,
		Locale:         run.Locale,
		Status:         string(run.Status),
		Result:         json.RawMessage(run.ResultJSON),
		ErrorMessage:   run.ErrorMessage,
		CreatedAt:      run.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:      run.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// PostsHistory lists recent generation runs, newest first.
func (a *App) PostsHistory(w http.ResponseWriter, r *http.Request) {
	if a.Repo == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "history is not configured")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	runs, err := a.Repo.ListRuns(r.Context(), limit)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	items := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		items = append(items, toRunResponse(run))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// PostsHistoryGet fetches one run by its request id.
func (a *App) PostsHistoryGet(w http.ResponseWriter, r *http.Request) {
	if a.Repo == nil {
		a.error(w, http.StatusServiceUnavailable, "unavailable", "history is not configured")
		return
	}
	requestID := chi.URLParam(r, "request_id")
	if requestID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "request_id required")
		return
	}
	run, err := a.Repo.GetRun(r.Context(), requestID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load run")
		return
	}
	a.json(w, http.StatusOK, toRunResponse(run))
}
