// Package pipeline turns one generation request into a stream of 1–3
// independent image+caption candidates. Candidates run strictly sequentially
// to bound third-party rate-limit exposure; results are emitted as soon as
// each candidate finishes.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"postty/internal/domain"
	"postty/internal/infra"
	"postty/internal/langdetect"
	"postty/internal/metrics"
	"postty/internal/providers/genai"
	"postty/internal/providers/stock"
	"postty/internal/refine"
)

// PromptRefiner is the stock-conditioned rewrite step of enrichment.
type PromptRefiner interface {
	Refine(ctx context.Context, req refine.RefineRequest) (string, error)
}

// SubjectDescriber summarizes a reference photo for enrichment.
type SubjectDescriber interface {
	Describe(ctx context.Context, path string) (string, error)
}

// Options wires the pipeline's collaborators. Stock, Refiner and Vision are
// optional; without them enrichment degrades to plain generation.
type Options struct {
	Assembler *Assembler
	Stock     stock.Picker
	Refiner   PromptRefiner
	Vision    SubjectDescriber
	WorkDir   string
	Logger    *infra.Logger
}

// Pipeline orchestrates one request's candidate loop.
type Pipeline struct {
	assembler *Assembler
	stock     stock.Picker
	refiner   PromptRefiner
	vision    SubjectDescriber
	workDir   string
	logger    *infra.Logger
}

func New(opts Options) *Pipeline {
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
	return &Pipeline{
		assembler: opts.Assembler,
		stock:     opts.Stock,
		refiner:   opts.Refiner,
		vision:    opts.Vision,
		workDir:   workDir,
		logger:    logger,
	}
}

// enrichment is the per-request stock pool plus the shared subject
// description, resolved once before the candidate loop.
type enrichment struct {
	photos      []stock.Photo
	description string
}

// Run drives the candidate loop against the emitter. All working files
// created during the run are removed on every exit path; reference images
// supplied by the caller are the caller's to delete.
func (p *Pipeline) Run(ctx context.Context, req domain.GenerationRequest, em Emitter) {
	promptLang := langdetect.Detect(req.Prompt)

	var tempFiles []string
	defer func() {
		for _, path := range tempFiles {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				p.logger.Warn().Str("path", path).Err(err).Msg("pipeline: could not remove working file")
			}
		}
	}()

	total := req.CandidateCount
	enr := p.prepareEnrichment(ctx, req)
	if enr != nil && len(enr.photos) < total {
		// The batch size follows the number of distinct stock photos actually
		// obtained so candidates never repeat a photo.
		total = len(enr.photos)
	}

	if err := em.Start(req.Prompt, total); err != nil {
		p.logger.Warn().Str("request_id", req.RequestID).Err(err).Msg("pipeline: stream closed before start")
		return
	}

	for i := 1; i <= total; i++ {
		input := AssembleInput{
			RequestID:           req.RequestID,
			OriginalPrompt:      req.Prompt,
			EffectivePrompt:     req.Prompt,
			ReferenceImagePaths: req.ReferenceImagePaths,
			Index:               i,
			Total:               total,
			Language:            promptLang,
			TempFiles:           &tempFiles,
		}
		p.applyEnrichment(ctx, req, enr, i, &input, &tempFiles)

		candidate, err := p.assembler.Assemble(ctx, input)
		if err != nil {
			metrics.CandidatesFailed.Inc()
			p.logger.Error().
				Str("request_id", req.RequestID).
				Int("index", i).
				Str("fault", string(domain.Classify(err))).
				Err(err).
				Msg("pipeline: candidate failed terminally")
			_ = em.Error(localizedMessage(domain.Classify(err), promptLang))
			return
		}

		metrics.CandidatesGenerated.Inc()
		if err := em.Candidate(candidate); err != nil {
			// The caller went away; finish the current candidate's bookkeeping
			// but start no further ones.
			p.logger.Warn().
				Str("request_id", req.RequestID).
				Int("index", i).
				Err(err).
				Msg("pipeline: stream closed mid-batch")
			return
		}
	}

	if err := em.Done(); err != nil {
		p.logger.Warn().Str("request_id", req.RequestID).Err(err).Msg("pipeline: stream closed before done")
	}
}

// prepareEnrichment resolves the stock pool and subject description once per
// request. Any failure degrades to unenriched generation for the whole batch.
func (p *Pipeline) prepareEnrichment(ctx context.Context, req domain.GenerationRequest) *enrichment {
	if !req.EnrichmentEnabled || p.stock == nil || p.refiner == nil {
		return nil
	}

	photos, err := p.stock.Search(ctx, req.Prompt, req.CandidateCount)
	if err != nil || len(photos) == 0 {
		p.logger.Warn().
			Str("request_id", req.RequestID).
			Err(err).
			Msg("pipeline: stock search failed, continuing without enrichment")
		return nil
	}

	enr := &enrichment{photos: photos}
	if p.vision != nil && len(req.ReferenceImagePaths) > 0 {
		description, err := p.vision.Describe(ctx, req.ReferenceImagePaths[0])
		if err != nil {
			p.logger.Warn().
				Str("request_id", req.RequestID).
				Err(err).
				Msg("pipeline: vision description failed, continuing without it")
		} else {
			enr.description = description
		}
	}
	return enr
}

// applyEnrichment rewrites one candidate's effective prompt around its
// assigned stock photo. Failures degrade that candidate only.
func (p *Pipeline) applyEnrichment(ctx context.Context, req domain.GenerationRequest, enr *enrichment, index int, input *AssembleInput, tempFiles *[]string) {
	if enr == nil {
		return
	}
	photo := enr.photos[index-1]

	data, mime, err := p.stock.Download(ctx, photo.URL)
	if err != nil {
		metrics.EnrichmentFallbacks.Inc()
		p.logger.Warn().
			Str("request_id", req.RequestID).
			Int("index", index).
			Err(err).
			Msg("pipeline: stock download failed, falling back to unenriched prompt")
		return
	}

	ext := ".jpg"
	if mime == "image/png" {
		ext = ".png"
	}
	stockPath := filepath.Join(p.workDir, fmt.Sprintf("stock-%s-%d-%s%s", req.RequestID, index, uuid.NewString()[:8], ext))
	if err := os.WriteFile(stockPath, data, 0o644); err != nil {
		metrics.EnrichmentFallbacks.Inc()
		p.logger.Warn().
			Str("request_id", req.RequestID).
			Int("index", index).
			Err(err).
			Msg("pipeline: could not stage stock photo, falling back to unenriched prompt")
		return
	}
	*tempFiles = append(*tempFiles, stockPath)

	refined, err := p.refiner.Refine(ctx, refine.RefineRequest{
		Prompt:             req.Prompt,
		SubjectDescription: enr.description,
		StockAlt:           photo.Alt,
		StockImage:         &genai.ReferenceImage{Data: data, MIME: mime},
		RequestID:          req.RequestID,
	})
	if err != nil {
		metrics.EnrichmentFallbacks.Inc()
		p.logger.Warn().
			Str("request_id", req.RequestID).
			Int("index", index).
			Err(err).
			Msg("pipeline: prompt refinement failed, falling back to unenriched prompt")
		return
	}

	input.EffectivePrompt = refined
	input.AdjustmentNote = "prompt refined around a licensed stock photo"
	input.ReferenceImagePaths = append(append([]string(nil), req.ReferenceImagePaths...), stockPath)
}
