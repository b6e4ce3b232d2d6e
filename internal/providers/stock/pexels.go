// Package stock selects licensed stock photos used to enrich generation
// prompts. The pool is ranked by the provider's relevance order; the pipeline
// assigns one distinct photo per candidate index.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"postty/internal/infra"
)

// ErrMissingAPIKey indicates the client was configured without credentials.
var ErrMissingAPIKey = errors.New("stock: api key is required")

// Photo is one entry of the ranked pool.
type Photo struct {
	ID          int64
	URL         string
	Photographer string
	Alt         string
}

// Picker is the contract the pipeline depends on.
type Picker interface {
	Search(ctx context.Context, query string, limit int) ([]Photo, error)
	Download(ctx context.Context, photoURL string) ([]byte, string, error)
}

// Options configures the Pexels client.
type Options struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs HTTP calls against the Pexels search API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type searchResponse struct {
	Photos []struct {
		ID           int64  `json:"id"`
		Photographer string `json:"photographer"`
		Alt          string `json:"alt"`
		Src          struct {
			Large string `json:"large"`
		} `json:"src"`
	} `json:"photos"`
}

// NewClient constructs a Pexels client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.pexels.com/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Search returns up to limit photos ranked by relevance.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Photo, error) {
	if limit <= 0 {
		limit = 3
	}
	endpoint := fmt.Sprintf("%s/search?query=%s&per_page=%d", c.baseURL, url.QueryEscape(query), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("stock: create request: %w", err)
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stock: search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("stock: search status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("stock: decode search response: %w", err)
	}

	photos := make([]Photo, 0, len(decoded.Photos))
	for _, p := range decoded.Photos {
		if p.Src.Large == "" {
			continue
		}
		photos = append(photos, Photo{
			ID:           p.ID,
			URL:          p.Src.Large,
			Photographer: p.Photographer,
			Alt:          p.Alt,
		})
	}

	c.logger.Debug().
		Str("query", query).
		Int("results", len(photos)).
		Msg("stock: search completed")

	return photos, nil
}

// Download fetches the photo bytes and reports the content type.
func (c *Client) Download(ctx context.Context, photoURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("stock: create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("stock: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, "", fmt.Errorf("stock: download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("stock: read photo: %w", err)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}
	return data, mime, nil
}

var _ Picker = (*Client)(nil)
