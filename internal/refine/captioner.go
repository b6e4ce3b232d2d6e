package refine

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"postty/internal/domain"
	"postty/internal/infra"
	"postty/internal/langdetect"
	"postty/internal/providers/genai"
	"postty/internal/providers/vision"
)

// Captioner writes social-media captions for finished candidate images. The
// caption language is forced to match the prompt language; one retry at lower
// sampling temperature corrects a mismatched first attempt.
type Captioner struct {
	gen    TextGenerator
	logger *infra.Logger
}

func NewCaptioner(gen TextGenerator, logger *infra.Logger) *Captioner {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Captioner{gen: gen, logger: logger}
}

// CaptionRequest carries one caption call. Index/Total differentiate sibling
// candidates of the same batch.
type CaptionRequest struct {
	Prompt    string
	ImagePath string
	Index     int
	Total     int
	Language  language.Tag
	RequestID string
}

func (c *Captioner) instruction(req CaptionRequest) string {
	langName := "English"
	if langdetect.Code(req.Language) == "es" {
		langName = "Spanish"
	}
	sb := &strings.Builder{}
	sb.WriteString("Write a short, engaging social media caption for the attached image, including two or three fitting hashtags. ")
	fmt.Fprintf(sb, "The caption must be written in %s. ", langName)
	fmt.Fprintf(sb, "Make this caption variation #%d different from the others. ", req.Index)
	fmt.Fprintf(sb, "The image was generated from this prompt: %q. ", req.Prompt)
	sb.WriteString("Reply with the caption text only.")
	return sb.String()
}

// Caption generates the caption for one candidate.
func (c *Captioner) Caption(ctx context.Context, req CaptionRequest) (domain.Caption, error) {
	data, err := os.ReadFile(req.ImagePath)
	if err != nil {
		return domain.Caption{}, fmt.Errorf("caption: read image: %w", err)
	}
	image := &genai.ReferenceImage{Data: data, MIME: vision.MIMEFromPath(req.ImagePath)}

	instruction := c.instruction(req)
	wantCode := langdetect.Code(req.Language)

	text, err := c.generate(ctx, instruction, image, 0.8, req.RequestID)
	if err != nil {
		return domain.Caption{}, err
	}

	if langdetect.Code(langdetect.Detect(text)) != wantCode {
		c.logger.Debug().
			Str("request_id", req.RequestID).
			Str("want", wantCode).
			Msg("refine: caption language mismatch, retrying at low temperature")
		retried, retryErr := c.generate(ctx, instruction, image, 0.2, req.RequestID)
		if retryErr == nil && retried != "" {
			text = retried
		}
	}

	return domain.Caption{
		Text:       text,
		Language:   wantCode,
		PromptUsed: instruction,
	}, nil
}

func (c *Captioner) generate(ctx context.Context, instruction string, image *genai.ReferenceImage, temperature float64, requestID string) (string, error) {
	text, err := c.gen.GenerateText(ctx, genai.TextRequest{
		Prompt:      instruction,
		Image:       image,
		Temperature: temperature,
		RequestID:   requestID,
	})
	if err != nil {
		return "", fmt.Errorf("caption: %w", err)
	}
	return strings.TrimSpace(text), nil
}
