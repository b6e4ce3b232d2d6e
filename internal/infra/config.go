package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv         string
	Port           string
	DatabaseURL    string
	StoragePath    string
	StorageBaseURL string
	WorkDir        string
	GeoIPDBPath    string

	GeminiAPIKey     string
	GeminiModel      string
	GeminiImageModel string
	GeminiBaseURL    string

	PexelsAPIKey  string
	PexelsBaseURL string

	IGAccessToken string
	IGUserID      string
	IGGraphURL    string

	MaxCandidates        int
	PollInterval         time.Duration
	MaxPollAttempts      int
	MaxVideoPollAttempts int
	MaxPublishAttempts   int
	PublishRetryDelay    time.Duration

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed. DATABASE_URL is optional: without it the service
// runs stateless and skips request history.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		StoragePath:    getEnv("STORAGE_PATH", "./data/output"),
		StorageBaseURL: getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		WorkDir:        getEnv("WORK_DIR", os.TempDir()),
		GeoIPDBPath:    os.Getenv("GEOIP_DB_PATH"),

		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image"),
		GeminiBaseURL:    getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),

		PexelsAPIKey:  os.Getenv("PEXELS_API_KEY"),
		PexelsBaseURL: getEnv("PEXELS_BASE_URL", "https://api.pexels.com/v1"),

		IGAccessToken: os.Getenv("IG_ACCESS_TOKEN"),
		IGUserID:      os.Getenv("IG_USER_ID"),
		IGGraphURL:    getEnv("IG_GRAPH_BASE_URL", "https://graph.facebook.com/v21.0"),

		MaxCandidates:        getEnvInt("MAX_CANDIDATES", 3),
		PollInterval:         time.Second * time.Duration(getEnvInt("PUBLISH_POLL_INTERVAL_SECONDS", 2)),
		MaxPollAttempts:      getEnvInt("PUBLISH_MAX_POLL_ATTEMPTS", 60),
		MaxVideoPollAttempts: getEnvInt("PUBLISH_VIDEO_MAX_POLL_ATTEMPTS", 180),
		MaxPublishAttempts:   getEnvInt("PUBLISH_MAX_ATTEMPTS", 10),
		PublishRetryDelay:    time.Second * time.Duration(getEnvInt("PUBLISH_RETRY_DELAY_SECONDS", 2)),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 300)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
	}

	if cfg.MaxCandidates < 1 || cfg.MaxCandidates > 3 {
		return nil, fmt.Errorf("MAX_CANDIDATES must be between 1 and 3")
	}
	if cfg.MaxPollAttempts <= 0 || cfg.MaxPublishAttempts <= 0 {
		return nil, fmt.Errorf("publish attempt budgets must be positive")
	}
	if cfg.MaxVideoPollAttempts < cfg.MaxPollAttempts {
		cfg.MaxVideoPollAttempts = cfg.MaxPollAttempts
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
