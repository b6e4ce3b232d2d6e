package refine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/language"
)

func captionImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "candidate.jpg")
	if err := os.WriteFile(path, []byte("jpeg-bytes"), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestCaptionMatchingLanguageSingleCall(t *testing.T) {
	gen := &scriptedGen{replies: []string{"Fresh kicks for the weekend! #sneakers #style"}}
	c := NewCaptioner(gen, nil)

	caption, err := c.Caption(context.Background(), CaptionRequest{
		Prompt:    "a red sneaker",
		ImagePath: captionImage(t),
		Index:     1,
		Total:     2,
		Language:  language.English,
	})
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if len(gen.reqs) != 1 {
		t.Fatalf("generator calls = %d, want 1", len(gen.reqs))
	}
	if caption.Language != "en" || caption.Text == "" {
		t.Fatalf("caption = %+v", caption)
	}
	if gen.reqs[0].Image == nil {
		t.Fatalf("candidate image was not attached")
	}
	if gen.reqs[0].Temperature != 0.8 {
		t.Fatalf("temperature = %v", gen.reqs[0].Temperature)
	}
}

func TestCaptionRetriesOnceOnLanguageMismatch(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"Fresh kicks for the weekend with the best style!",
		"¡Zapatillas nuevas para el fin de semana! #estilo",
	}}
	c := NewCaptioner(gen, nil)

	caption, err := c.Caption(context.Background(), CaptionRequest{
		Prompt:    "una zapatilla roja",
		ImagePath: captionImage(t),
		Index:     1,
		Total:     1,
		Language:  language.Spanish,
	})
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if len(gen.reqs) != 2 {
		t.Fatalf("generator calls = %d, want retry", len(gen.reqs))
	}
	if gen.reqs[1].Temperature != 0.2 {
		t.Fatalf("retry temperature = %v", gen.reqs[1].Temperature)
	}
	if caption.Language != "es" || !strings.Contains(caption.Text, "Zapatillas") {
		t.Fatalf("caption = %+v", caption)
	}
}

func TestCaptionKeepsFirstTextWhenRetryFails(t *testing.T) {
	gen := &scriptedGen{replies: []string{
		"Fresh kicks for the weekend with the best style!",
		"",
	}}
	c := NewCaptioner(gen, nil)

	caption, err := c.Caption(context.Background(), CaptionRequest{
		Prompt:    "una zapatilla roja",
		ImagePath: captionImage(t),
		Index:     1,
		Total:     1,
		Language:  language.Spanish,
	})
	if err != nil {
		t.Fatalf("caption: %v", err)
	}
	if caption.Text != "Fresh kicks for the weekend with the best style!" {
		t.Fatalf("caption text = %q", caption.Text)
	}
}

func TestCaptionInstructionNamesVariationAndLanguage(t *testing.T) {
	gen := &scriptedGen{replies: []string{"texto de ejemplo para la foto"}}
	c := NewCaptioner(gen, nil)

	if _, err := c.Caption(context.Background(), CaptionRequest{
		Prompt:    "una zapatilla",
		ImagePath: captionImage(t),
		Index:     2,
		Total:     3,
		Language:  language.Spanish,
	}); err != nil {
		t.Fatalf("caption: %v", err)
	}
	instruction := gen.reqs[0].Prompt
	if !strings.Contains(instruction, "variation #2") {
		t.Fatalf("instruction missing variation index: %q", instruction)
	}
	if !strings.Contains(instruction, "Spanish") {
		t.Fatalf("instruction missing language: %q", instruction)
	}
}

func TestCaptionMissingImage(t *testing.T) {
	gen := &scriptedGen{replies: []string{"text"}}
	c := NewCaptioner(gen, nil)

	if _, err := c.Caption(context.Background(), CaptionRequest{
		Prompt:    "p",
		ImagePath: filepath.Join(t.TempDir(), "missing.jpg"),
		Language:  language.English,
	}); err == nil {
		t.Fatalf("expected error for missing image")
	}
}
