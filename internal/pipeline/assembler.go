package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"

	"postty/internal/domain"
	"postty/internal/imagefit"
	"postty/internal/infra"
	"postty/internal/metrics"
	"postty/internal/providers/genai"
	"postty/internal/providers/vision"
	"postty/internal/refine"
	"postty/internal/storage"
)

// ImageSynthesizer is the slice of the Gemini client the assembler needs.
type ImageSynthesizer interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
}

// RewriteStrategy produces at most one alternate phrasing for a
// safety-blocked prompt.
type RewriteStrategy interface {
	SafetyRewrite(ctx context.Context, prompt string) (string, bool, error)
}

// CaptionWriter writes the caption for a finished candidate image.
type CaptionWriter interface {
	Caption(ctx context.Context, req refine.CaptionRequest) (domain.Caption, error)
}

// Assembler produces exactly one candidate per call: synthesis with the
// strict-merge policy, aspect normalization, persistence, and captioning.
type Assembler struct {
	synth     ImageSynthesizer
	rewriter  RewriteStrategy
	captioner CaptionWriter
	store     storage.Store
	workDir   string
	logger    *infra.Logger
}

// AssemblerOptions wires the assembler's collaborators.
type AssemblerOptions struct {
	Synthesizer ImageSynthesizer
	Rewriter    RewriteStrategy
	Captioner   CaptionWriter
	Store       storage.Store
	WorkDir     string
	Logger      *infra.Logger
}

func NewAssembler(opts AssemblerOptions) *Assembler {
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Assembler{
		synth:     opts.Synthesizer,
		rewriter:  opts.Rewriter,
		captioner: opts.Captioner,
		store:     opts.Store,
		workDir:   workDir,
		logger:    logger,
	}
}

// AssembleInput is one candidate's worth of work.
type AssembleInput struct {
	RequestID           string
	OriginalPrompt      string
	EffectivePrompt     string
	AdjustmentNote      string
	ReferenceImagePaths []string
	Index               int
	Total               int
	Language            language.Tag

	// TempFiles collects working files the caller deletes on every exit path.
	TempFiles *[]string
}

// synthOutcome is the result of the attempt→classify→maybe-retry-once chain.
type synthOutcome struct {
	asset      *genai.ImageAsset
	promptUsed string
	rewritten  bool
}

// Assemble runs one candidate to completion or a classified failure.
func (a *Assembler) Assemble(ctx context.Context, in AssembleInput) (*domain.Candidate, error) {
	refs, err := loadReferenceImages(in.ReferenceImagePaths)
	if err != nil {
		return nil, domain.NewFault(domain.FaultFatal, "could not read reference image", err)
	}

	outcome, err := a.synthesize(ctx, in, refs)
	if err != nil {
		return nil, err
	}

	localPath, publicURL, previewURL, err := a.finalizeImage(ctx, in, outcome.asset)
	if err != nil {
		return nil, err
	}

	caption, err := a.captioner.Caption(ctx, refine.CaptionRequest{
		Prompt:    outcome.promptUsed,
		ImagePath: localPath,
		Index:     in.Index,
		Total:     in.Total,
		Language:  in.Language,
		RequestID: in.RequestID,
	})
	if err != nil {
		return nil, domain.NewFault(domain.FaultFatal, "caption generation failed", err)
	}

	adjusted := outcome.rewritten || outcome.promptUsed != in.OriginalPrompt
	var note *string
	if adjusted {
		n := in.AdjustmentNote
		if outcome.rewritten {
			n = "prompt was rephrased to satisfy the content policy"
		}
		if n == "" {
			n = "prompt was adjusted before generation"
		}
		note = &n
	}

	return &domain.Candidate{
		CandidateID: uuid.NewString(),
		Index:       in.Index,
		Total:       in.Total,
		Image: domain.CandidateImage{
			PreviewDataURL:         previewURL,
			GeneratedImagePath:     publicURL,
			UsedReferenceImageEdit: len(refs) > 0,
			PromptUsed:             outcome.promptUsed,
			PromptAdjustmentNote:   note,
		},
		Caption:        caption,
		PromptAdjusted: adjusted,
	}, nil
}

// synthesize enforces the strict-merge policy: a reference-conditioned call
// gets at most one safety-rewrite retry; every other failure, and any failure
// of a text-only call, is terminal. Composited output is never produced.
func (a *Assembler) synthesize(ctx context.Context, in AssembleInput, refs []genai.ReferenceImage) (*synthOutcome, error) {
	attempt := func(prompt string) (*genai.ImageAsset, error) {
		return a.synth.GenerateImage(ctx, genai.ImageRequest{
			Prompt:          prompt,
			ReferenceImages: refs,
			RequestID:       in.RequestID,
		})
	}

	asset, err := attempt(in.EffectivePrompt)
	if err == nil {
		return &synthOutcome{asset: asset, promptUsed: in.EffectivePrompt}, nil
	}

	if len(refs) == 0 || !domain.IsSafetyBlock(err) {
		return nil, err
	}

	rewritten, changed, rewriteErr := a.rewriter.SafetyRewrite(ctx, in.EffectivePrompt)
	if rewriteErr != nil || !changed {
		a.logger.Warn().
			Str("request_id", in.RequestID).
			Int("index", in.Index).
			Msg("pipeline: safety block with no usable rewrite")
		return nil, err
	}

	metrics.SafetyRewrites.Inc()
	a.logger.Info().
		Str("request_id", in.RequestID).
		Int("index", in.Index).
		Msg("pipeline: retrying synthesis with safety-rewritten prompt")

	asset, retryErr := attempt(rewritten)
	if retryErr != nil {
		return nil, retryErr
	}
	return &synthOutcome{asset: asset, promptUsed: rewritten, rewritten: true}, nil
}

// finalizeImage writes the raw asset to the working area, normalizes it to
// the publishing square, persists it to the store, and builds the preview
// data URL. It returns the local normalized path, the public URL, and the
// preview data URL.
func (a *Assembler) finalizeImage(ctx context.Context, in AssembleInput, asset *genai.ImageAsset) (string, string, string, error) {
	rawPath := filepath.Join(a.workDir, fmt.Sprintf("raw-%s-%d-%s.png", in.RequestID, in.Index, uuid.NewString()[:8]))
	if err := os.WriteFile(rawPath, asset.Data, 0o644); err != nil {
		return "", "", "", domain.NewFault(domain.FaultFatal, "could not write working image", err)
	}
	a.trackTemp(in, rawPath)

	normalizedPath := filepath.Join(a.workDir, fmt.Sprintf("fit-%s-%d-%s.jpg", in.RequestID, in.Index, uuid.NewString()[:8]))
	if err := imagefit.NormalizeFile(rawPath, normalizedPath); err != nil {
		return "", "", "", domain.NewFault(domain.FaultFatal, "could not normalize image aspect", err)
	}
	a.trackTemp(in, normalizedPath)

	data, err := os.ReadFile(normalizedPath)
	if err != nil {
		return "", "", "", domain.NewFault(domain.FaultFatal, "could not read normalized image", err)
	}

	key := fmt.Sprintf("requests/%s/candidate-%d.jpg", in.RequestID, in.Index)
	if _, err := a.store.Write(ctx, key, data); err != nil {
		return "", "", "", domain.NewFault(domain.FaultFatal, "could not persist generated image", err)
	}

	previewURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data)
	return normalizedPath, a.store.PublicURL(key), previewURL, nil
}

func (a *Assembler) trackTemp(in AssembleInput, path string) {
	if in.TempFiles != nil {
		*in.TempFiles = append(*in.TempFiles, path)
	}
}

func loadReferenceImages(paths []string) ([]genai.ReferenceImage, error) {
	var refs []genai.ReferenceImage
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		refs = append(refs, genai.ReferenceImage{Data: data, MIME: vision.MIMEFromPath(path)})
	}
	return refs, nil
}
