// Package vision turns a reference photo into a short natural-language
// description used to condition downstream prompt refinement.
package vision

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"postty/internal/providers/genai"
)

const describeInstruction = "Describe the main subject of this photo in one short sentence: " +
	"what the product is, its colors, materials and setting. Reply with the sentence only."

// TextGenerator is the slice of the Gemini client the analyzer needs.
type TextGenerator interface {
	GenerateText(ctx context.Context, req genai.TextRequest) (string, error)
}

// Analyzer produces subject descriptions for uploaded reference images.
type Analyzer struct {
	gen TextGenerator
}

func NewAnalyzer(gen TextGenerator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Describe returns a one-sentence description of the image at path.
func (a *Analyzer) Describe(ctx context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("vision: read image: %w", err)
	}
	text, err := a.gen.GenerateText(ctx, genai.TextRequest{
		Prompt:      describeInstruction,
		Image:       &genai.ReferenceImage{Data: data, MIME: MIMEFromPath(path)},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("vision: describe image: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// MIMEFromPath maps a file extension to its image MIME type, defaulting to
// JPEG for unknown extensions.
func MIMEFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
