// Package httpapi assembles the HTTP surface: middleware chain, versioned
// routes, the metrics endpoint, and the static file server for stored assets.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"postty/internal/http/handlers"
	"postty/internal/middleware"
)

// RouterOptions configures the route tree. CountryLookup may be nil when no
// GeoIP database is configured; StaticDir may be empty to disable asset
// serving.
type RouterOptions struct {
	App           *handlers.App
	CountryLookup middleware.CountryLookup
	StaticDir     string
}

func NewRouter(opts RouterOptions) http.Handler {
	app := opts.App
	cfg := app.Cfg

	r := chi.NewRouter()
	r.Use(
		chimw.RealIP,
		chimw.Recoverer,
		middleware.RequestID,
		middleware.Logger(*app.Logger),
		middleware.CORS([]string{"*"}),
		middleware.RateLimit(cfg.RateLimitPerMin, time.Minute),
		middleware.I18N("en", opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Method(http.MethodGet, "/metrics", handlers.Metrics())

	r.Route("/v1/posts", func(r chi.Router) {
		r.Post("/generate", app.PostsGenerate)
		r.Post("/publish", app.PostsPublish)
		r.Post("/publish-video", app.PostsPublishVideo)
		r.Get("/history", app.PostsHistory)
		r.Get("/history/{request_id}", app.PostsHistoryGet)
	})
	r.Get("/v1/requests/{request_id}/archive", app.RequestArchive)

	if opts.StaticDir != "" {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Get("/static/*", fileServer.ServeHTTP)
	}

	return r
}
