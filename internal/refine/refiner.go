// Package refine holds the text-model steps that shape prompts and captions
// around image synthesis: stock-conditioned prompt refinement, the one-shot
// safety rewrite strategy, and caption generation with language forcing.
package refine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"postty/internal/infra"
	"postty/internal/providers/genai"
)

// TextGenerator is the slice of the Gemini client this package needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, req genai.TextRequest) (string, error)
}

// Refiner rewrites prompts with a text model.
type Refiner struct {
	gen    TextGenerator
	logger *infra.Logger
}

func NewRefiner(gen TextGenerator, logger *infra.Logger) *Refiner {
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Refiner{gen: gen, logger: logger}
}

// RefineRequest carries the inputs of one stock-conditioned prompt rewrite.
type RefineRequest struct {
	Prompt             string
	SubjectDescription string
	StockAlt           string
	StockImage         *genai.ReferenceImage
	RequestID          string
}

type refinePayload struct {
	Prompt string `json:"prompt"`
}

// Refine rewrites the base prompt so it composes the user's subject with the
// supplied stock photo. The refined prompt replaces the effective prompt for
// one candidate only; callers fall back to the original prompt on error.
func (r *Refiner) Refine(ctx context.Context, req RefineRequest) (string, error) {
	sb := &strings.Builder{}
	sb.WriteString("You are an expert product photography prompt writer. ")
	sb.WriteString("Rewrite the base prompt below so the described subject is staged inside the attached stock photo scene. ")
	sb.WriteString("Keep the subject, intent and language of the base prompt. ")
	sb.WriteString(`Respond strictly with JSON: {"prompt":string}. `)
	fmt.Fprintf(sb, "Base prompt: %q.", req.Prompt)
	if req.SubjectDescription != "" {
		fmt.Fprintf(sb, " Subject: %q.", req.SubjectDescription)
	}
	if req.StockAlt != "" {
		fmt.Fprintf(sb, " Stock photo shows: %q.", req.StockAlt)
	}

	raw, err := r.gen.GenerateText(ctx, genai.TextRequest{
		Prompt:      sb.String(),
		Image:       req.StockImage,
		Temperature: 0.5,
		RequestID:   req.RequestID,
	})
	if err != nil {
		return "", fmt.Errorf("refine prompt: %w", err)
	}
	parsed, err := parseModelPayload[refinePayload](raw)
	if err != nil {
		return "", fmt.Errorf("refine prompt: parse payload: %w", err)
	}
	refined := coalesce(parsed.Prompt)
	if refined == "" {
		return "", fmt.Errorf("refine prompt: empty result")
	}
	return refined, nil
}

type rewritePayload struct {
	Prompt  string `json:"prompt"`
	Changed bool   `json:"changed"`
}

// SafetyRewrite produces at most one alternate phrasing of a prompt that was
// rejected by the content policy, preserving intent while removing the
// triggering language. The second return value is false when no meaningful
// rewrite is possible.
func (r *Refiner) SafetyRewrite(ctx context.Context, prompt string) (string, bool, error) {
	sb := &strings.Builder{}
	sb.WriteString("An image generation request was rejected by a content safety filter. ")
	sb.WriteString("Rephrase the prompt to preserve the user's intent while removing wording that could trigger the filter. ")
	sb.WriteString("Keep the original language. If the prompt cannot be rephrased without changing its meaning, set changed to false. ")
	sb.WriteString(`Respond strictly with JSON: {"prompt":string,"changed":bool}. `)
	fmt.Fprintf(sb, "Prompt: %q.", prompt)

	raw, err := r.gen.GenerateText(ctx, genai.TextRequest{Prompt: sb.String()})
	if err != nil {
		return "", false, fmt.Errorf("safety rewrite: %w", err)
	}
	parsed, err := parseModelPayload[rewritePayload](raw)
	if err != nil {
		return "", false, fmt.Errorf("safety rewrite: parse payload: %w", err)
	}
	rewritten := strings.TrimSpace(parsed.Prompt)
	if !parsed.Changed || rewritten == "" || rewritten == strings.TrimSpace(prompt) {
		r.logger.Debug().Msg("refine: safety rewrite reported no change possible")
		return "", false, nil
	}
	return rewritten, true, nil
}
