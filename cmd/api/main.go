package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"postty/internal/adapter/repo"
	"postty/internal/http/handlers"
	"postty/internal/http/httpapi"
	"postty/internal/infra"
	"postty/internal/infra/geoip"
	"postty/internal/middleware"
	"postty/internal/pipeline"
	"postty/internal/providers/genai"
	"postty/internal/providers/stock"
	"postty/internal/providers/vision"
	"postty/internal/publisher"
	"postty/internal/refine"
	"postty/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	// History is optional; without DATABASE_URL the service runs stateless.
	var history handlers.HistoryStore
	if cfg.DatabaseURL != "" {
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		history = repo.NewPostRepository(pool)
	} else {
		logger.Info().Msg("no DATABASE_URL configured, request history disabled")
	}

	store, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize asset storage")
	}

	gemini, err := genai.NewClient(genai.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		TextModel:  cfg.GeminiModel,
		ImageModel: cfg.GeminiImageModel,
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize generation client")
	}

	var stockPicker stock.Picker
	if cfg.PexelsAPIKey != "" {
		pexels, err := stock.NewClient(stock.Options{
			APIKey:  cfg.PexelsAPIKey,
			BaseURL: cfg.PexelsBaseURL,
			Logger:  &logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize stock client")
		}
		stockPicker = pexels
	} else {
		logger.Info().Msg("no PEXELS_API_KEY configured, enrichment disabled")
	}

	assembler := pipeline.NewAssembler(pipeline.AssemblerOptions{
		Synthesizer: gemini,
		Rewriter:    refine.NewRefiner(gemini, &logger),
		Captioner:   refine.NewCaptioner(gemini, &logger),
		Store:       store,
		WorkDir:     cfg.WorkDir,
		Logger:      &logger,
	})
	pipe := pipeline.New(pipeline.Options{
		Assembler: assembler,
		Stock:     stockPicker,
		Refiner:   refine.NewRefiner(gemini, &logger),
		Vision:    vision.NewAnalyzer(gemini),
		WorkDir:   cfg.WorkDir,
		Logger:    &logger,
	})

	graph := publisher.NewClient(publisher.Options{
		AccessToken: cfg.IGAccessToken,
		UserID:      cfg.IGUserID,
		BaseURL:     cfg.IGGraphURL,
		Logger:      &logger,
	})
	pub := publisher.NewPublisher(publisher.PublisherOptions{
		Client:               graph,
		PollInterval:         cfg.PollInterval,
		MaxPollAttempts:      cfg.MaxPollAttempts,
		MaxVideoPollAttempts: cfg.MaxVideoPollAttempts,
		MaxPublishAttempts:   cfg.MaxPublishAttempts,
		PublishRetryDelay:    cfg.PublishRetryDelay,
		Logger:               &logger,
	})

	var countryLookup middleware.CountryLookup
	if cfg.GeoIPDBPath != "" {
		resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to open GeoIP database, locale fallback disabled")
		} else {
			countryLookup = resolver.CountryCode
		}
	}

	app := handlers.NewApp(handlers.AppOptions{
		Cfg:       cfg,
		Logger:    &logger,
		Pipeline:  pipe,
		Publisher: pub,
		Store:     store,
		Repo:      history,
	})
	router := httpapi.NewRouter(httpapi.RouterOptions{
		App:           app,
		CountryLookup: countryLookup,
		StaticDir:     store.BasePath(),
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
