package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"postty/internal/domain"
	"postty/internal/infra"
)

// Options controls how the Gemini client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over the Gemini generateContent API. It owns
// the wire format and the classification of raw provider errors into the
// domain fault taxonomy; callers never see provider-specific error shapes.
type Client struct {
	apiKey     string
	baseURL    string
	textModel  string
	imageModel string
	httpClient *http.Client
	logger     *infra.Logger
}

// ReferenceImage is an inline conditioning input for synthesis or analysis.
type ReferenceImage struct {
	Data []byte
	MIME string
}

// ImageRequest represents one image synthesis call. When ReferenceImages is
// non-empty the call is a reference-conditioned edit; otherwise it is
// text-only synthesis.
type ImageRequest struct {
	Prompt          string
	ReferenceImages []ReferenceImage
	RequestID       string
}

// ImageAsset is the normalized synthesis result.
type ImageAsset struct {
	Data   []byte
	Format string
}

// TextRequest represents one text generation call, optionally conditioned on
// an image.
type TextRequest struct {
	Prompt      string
	Image       *ReferenceImage
	Temperature float64
	RequestID   string
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	Temperature        *float64 `json:"temperature,omitempty"`
	CandidateCount     int      `json:"candidateCount,omitempty"`
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
}

type geminiPromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate     `json:"candidates"`
	PromptFeedback *geminiPromptFeedback `json:"promptFeedback,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Status  string `json:"status,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a Gemini client with sane defaults. Callers may provide
// a nil HTTP client; a reusable one with a generous timeout will be created
// (image synthesis calls routinely take tens of seconds).
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = "gemini-2.5-flash"
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = "gemini-2.5-flash-image"
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
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ImageModel returns the configured synthesis model identifier.
func (c *Client) ImageModel() string {
	return c.imageModel
}

// GenerateImage runs one synthesis call and returns the first image part. A
// content-policy rejection is returned as a safety-block fault; every other
// failure is fatal.
func (c *Client) GenerateImage(ctx context.Context, req ImageRequest) (*ImageAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parts := []geminiPart{{Text: strings.TrimSpace(req.Prompt)}}
	for _, ref := range req.ReferenceImages {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: ref.MIME,
			Data:     base64.StdEncoding.EncodeToString(ref.Data),
		}})
	}

	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			CandidateCount:     1,
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, c.imageModel, payload, &response); err != nil {
		return nil, err
	}

	if err := classifyResponseBlock(response); err != nil {
		c.logger.Warn().
			Str("request_id", req.RequestID).
			Str("model", c.imageModel).
			Msg("genai: synthesis rejected by content policy")
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, domain.NewFault(domain.FaultFatal, "image synthesis returned malformed data", err)
			}
			format := part.InlineData.MimeType
			if format == "" {
				format = "image/png"
			}
			c.logger.Debug().
				Str("request_id", req.RequestID).
				Str("model", c.imageModel).
				Int("bytes", len(data)).
				Bool("reference_edit", len(req.ReferenceImages) > 0).
				Msg("genai: image generated")
			return &ImageAsset{Data: data, Format: format}, nil
		}
	}

	return nil, domain.NewFault(domain.FaultFatal, "image synthesis returned no image", nil)
}

// GenerateText runs one text call and returns the concatenated text parts.
func (c *Client) GenerateText(ctx context.Context, req TextRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	parts := []geminiPart{{Text: strings.TrimSpace(req.Prompt)}}
	if req.Image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: req.Image.MIME,
			Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
		}})
	}

	cfg := &geminiGenerationConfig{CandidateCount: 1}
	if req.Temperature > 0 {
		temp := req.Temperature
		cfg.Temperature = &temp
	}

	payload := geminiGenerateContentRequest{
		Contents:         []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: cfg,
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, c.textModel, payload, &response); err != nil {
		return "", err
	}
	if err := classifyResponseBlock(response); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			b.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", domain.NewFault(domain.FaultFatal, "text generation returned no content", nil)
	}
	return text, nil
}

func (c *Client) invokeGemini(ctx context.Context, model string, payload any, out any) error {
	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, url.PathEscape(model))
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewFault(domain.FaultFatal, "image service unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return classifyHTTPError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewFault(domain.FaultFatal, "image service returned malformed response", err)
	}
	return nil
}

// classifyHTTPError reduces a non-2xx Gemini response to a domain fault.
// Safety rejections can surface either as a dedicated status or as policy
// wording inside the error message.
func classifyHTTPError(resp *http.Response) error {
	var apiErr geminiErrorResponse
	raw, _ := io.ReadAll(resp.Body)
	message := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}
	wrapped := fmt.Errorf("gemini status %d: %s", resp.StatusCode, message)

	if isSafetyText(apiErr.Error.Status) || isSafetyText(message) {
		return domain.NewFault(domain.FaultSafetyBlock, "request rejected by content policy", wrapped)
	}
	return domain.NewFault(domain.FaultFatal, "image service request failed", wrapped)
}

// classifyResponseBlock detects content-policy rejections delivered inside a
// 200 response, either as prompt feedback or as a blocked finish reason.
func classifyResponseBlock(response geminiGenerateContentResponse) error {
	if fb := response.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return domain.NewFault(domain.FaultSafetyBlock, "request rejected by content policy",
			fmt.Errorf("prompt blocked: %s", fb.BlockReason))
	}
	for _, candidate := range response.Candidates {
		switch strings.ToUpper(candidate.FinishReason) {
		case "SAFETY", "IMAGE_SAFETY", "PROHIBITED_CONTENT", "BLOCKLIST":
			return domain.NewFault(domain.FaultSafetyBlock, "request rejected by content policy",
				fmt.Errorf("candidate blocked: %s", candidate.FinishReason))
		}
	}
	return nil
}

func isSafetyText(s string) bool {
	upper := strings.ToUpper(s)
	for _, marker := range []string{"SAFETY", "PROHIBITED_CONTENT", "BLOCKED", "RESPONSIBLE AI"} {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
