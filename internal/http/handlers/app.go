package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"postty/internal/domain"
	"postty/internal/infra"
	"postty/internal/pipeline"
	"postty/internal/publisher"
	"postty/internal/storage"
)

// GenerationPipeline runs one candidate batch against an emitter.
type GenerationPipeline interface {
	Run(ctx context.Context, req domain.GenerationRequest, em pipeline.Emitter)
}

// MediaPublisher drives the platform publish flow.
type MediaPublisher interface {
	PublishImage(ctx context.Context, imageURL, caption string) (*domain.PublishResult, error)
	PublishVideo(ctx context.Context, req publisher.VideoPublishRequest) (*domain.PublishResult, error)
}

// HistoryStore records runs and publish outcomes. It is optional; a nil
// store disables history without affecting generation or publishing.
type HistoryStore interface {
	CreateRun(ctx context.Context, run *domain.GenerationRun) error
	FinishRun(ctx context.Context, runID string, status domain.RunStatus, errMsg *string, resultJSON []byte) error
	GetRun(ctx context.Context, runID string) (*domain.GenerationRun, error)
	ListRuns(ctx context.Context, limit int) ([]*domain.GenerationRun, error)
	RecordPublish(ctx context.Context, rec *domain.PublishRecord) error
}

// App carries the handlers' collaborators.
type App struct {
	Cfg       *infra.Config
	Logger    *infra.Logger
	Pipeline  GenerationPipeline
	Publisher MediaPublisher
	Store     *storage.FileStore
	Repo      HistoryStore
}

// AppOptions wires the App container.
type AppOptions struct {
	Cfg       *infra.Config
	Logger    *infra.Logger
	Pipeline  GenerationPipeline
	Publisher MediaPublisher
	Store     *storage.FileStore
	Repo      HistoryStore
}

func NewApp(opts AppOptions) *App {
	return &App{
		Cfg:       opts.Cfg,
		Logger:    opts.Logger,
		Pipeline:  opts.Pipeline,
		Publisher: opts.Publisher,
		Store:     opts.Store,
		Repo:      opts.Repo,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{
		"status":  "error",
		"error":   slug,
		"message": message,
	})
}
