package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"postty/internal/domain"
	"postty/internal/middleware"
	"postty/internal/pipeline"
)

const maxUploadBytes = 32 << 20

// captureEmitter mirrors the stream into a buffer so the run can be recorded
// after the response is already fully written.
type captureEmitter struct {
	inner  pipeline.Emitter
	buffer *pipeline.BufferEmitter
}

func newCaptureEmitter(inner pipeline.Emitter) *captureEmitter {
	return &captureEmitter{inner: inner, buffer: pipeline.NewBufferEmitter()}
}

func (c *captureEmitter) Start(prompt string, total int) error {
	_ = c.buffer.Start(prompt, total)
	return c.inner.Start(prompt, total)
}

func (c *captureEmitter) Candidate(cand *domain.Candidate) error {
	_ = c.buffer.Candidate(cand)
	return c.inner.Candidate(cand)
}

func (c *captureEmitter) Error(message string) error {
	_ = c.buffer.Error(message)
	return c.inner.Error(message)
}

func (c *captureEmitter) Done() error {
	_ = c.buffer.Done()
	return c.inner.Done()
}

// PostsGenerate accepts a multipart generation request and returns the
// candidate batch, streamed as NDJSON when the caller asks for it and as one
// buffered JSON document otherwise.
func (a *App) PostsGenerate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}

	prompt := strings.TrimSpace(r.FormValue("prompt"))
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt is required")
		return
	}

	count := a.Cfg.MaxCandidates
	if raw := strings.TrimSpace(r.FormValue("count")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "count must be an integer")
			return
		}
		count = parsed
	}
	if count < 1 {
		count = 1
	}
	if count > a.Cfg.MaxCandidates {
		count = a.Cfg.MaxCandidates
	}

	enrich := strings.EqualFold(r.FormValue("enrich"), "true")
	requestID := uuid.NewString()

	refPaths, err := a.stageReferenceImages(requestID, r.MultipartForm)
	defer func() {
		for _, path := range refPaths {
			_ = os.Remove(path)
		}
	}()
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	req := domain.GenerationRequest{
		RequestID:           requestID,
		Prompt:              prompt,
		ReferenceImagePaths: refPaths,
		CandidateCount:      count,
		EnrichmentEnabled:   enrich,
		Locale:              middleware.LocaleFromContext(r.Context()),
	}
	a.recordRunStart(r.Context(), req)

	if wantsNDJSON(r) {
		a.generateStreaming(w, r, req)
		return
	}
	a.generateBuffered(w, r, req)
}

func (a *App) generateStreaming(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Request-Id", req.RequestID)
	w.WriteHeader(http.StatusOK)

	em := newCaptureEmitter(pipeline.NewNDJSONEmitter(w))
	a.Pipeline.Run(r.Context(), req, em)
	a.recordRunFinish(r.Context(), req.RequestID, em.buffer)
}

func (a *App) generateBuffered(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest) {
	em := pipeline.NewBufferEmitter()
	a.Pipeline.Run(r.Context(), req, em)
	a.recordRunFinish(r.Context(), req.RequestID, em)

	candidates, message, ok := em.Result()
	if !ok {
		a.json(w, http.StatusInternalServerError, map[string]any{
			"status":     "error",
			"request_id": req.RequestID,
			"message":    message,
		})
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"status":     "success",
		"request_id": req.RequestID,
		"candidates": candidates,
	})
}

// stageReferenceImages copies the uploaded reference parts into the working
// directory and validates each one is a supported image type.
func (a *App) stageReferenceImages(requestID string, form *multipart.Form) ([]string, error) {
	if form == nil {
		return nil, nil
	}
	var paths []string
	for i, header := range form.File["reference_image"] {
		path, err := a.stageUpload(requestID, i, header)
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (a *App) stageUpload(requestID string, index int, header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("could not read reference image %d", index+1)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes))
	if err != nil {
		return "", fmt.Errorf("could not read reference image %d", index+1)
	}

	ext, ok := imageExtension(data)
	if !ok {
		return "", fmt.Errorf("reference image %d is not a supported image type", index+1)
	}

	path := filepath.Join(a.Cfg.WorkDir, fmt.Sprintf("upload-%s-%d-%s%s", requestID, index+1, uuid.NewString()[:8], ext))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("could not stage reference image %d", index+1)
	}
	return path, nil
}

func imageExtension(data []byte) (string, bool) {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg", true
	case "image/png":
		return ".png", true
	case "image/webp":
		return ".webp", true
	default:
		return "", false
	}
}

func wantsNDJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/x-ndjson")
}

func (a *App) recordRunStart(ctx context.Context, req domain.GenerationRequest) {
	if a.Repo == nil {
		return
	}
	err := a.Repo.CreateRun(ctx, &domain.GenerationRun{
		ID:             req.RequestID,
		Prompt:         req.Prompt,
		CandidateCount: req.CandidateCount,
		Enriched:       req.EnrichmentEnabled,
		Locale:         req.Locale,
		Status:         domain.RunRunning,
	})
	if err != nil {
		a.Logger.Warn().Str("request_id", req.RequestID).Err(err).Msg("handlers: could not record run start")
	}
}

func (a *App) recordRunFinish(ctx context.Context, requestID string, em *pipeline.BufferEmitter) {
	if a.Repo == nil {
		return
	}
	candidates, message, ok := em.Result()
	status := domain.RunSucceeded
	var errMsg *string
	var resultJSON []byte
	if ok {
		resultJSON, _ = json.Marshal(candidates)
	} else {
		status = domain.RunFailed
		errMsg = &message
	}
	if err := a.Repo.FinishRun(ctx, requestID, status, errMsg, resultJSON); err != nil {
		a.Logger.Warn().Str("request_id", requestID).Err(err).Msg("handlers: could not record run finish")
	}
}
