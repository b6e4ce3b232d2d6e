package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"golang.org/x/text/language"

	"postty/internal/domain"
	"postty/internal/providers/stock"
	"postty/internal/refine"
)

type recordingEmitter struct {
	frames []Frame
}

func (r *recordingEmitter) Start(prompt string, total int) error {
	r.frames = append(r.frames, Frame{Type: frameStart, Prompt: prompt, Total: total})
	return nil
}

func (r *recordingEmitter) Candidate(c *domain.Candidate) error {
	r.frames = append(r.frames, Frame{Type: frameCandidate, Index: c.Index, Total: c.Total, Candidate: c})
	return nil
}

func (r *recordingEmitter) Error(message string) error {
	r.frames = append(r.frames, Frame{Type: frameError, Message: message})
	return nil
}

func (r *recordingEmitter) Done() error {
	r.frames = append(r.frames, Frame{Type: frameDone})
	return nil
}

func (r *recordingEmitter) types() []string {
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.Type)
	}
	return out
}

type fakeStock struct {
	photos      []stock.Photo
	searchErr   error
	downloadErr error
	data        []byte
	searches    int
	downloads   []string
}

func (f *fakeStock) Search(_ context.Context, _ string, _ int) ([]stock.Photo, error) {
	f.searches++
	return f.photos, f.searchErr
}

func (f *fakeStock) Download(_ context.Context, url string) ([]byte, string, error) {
	f.downloads = append(f.downloads, url)
	if f.downloadErr != nil {
		return nil, "", f.downloadErr
	}
	return f.data, "image/jpeg", nil
}

type fakePromptRefiner struct {
	err   error
	calls int
}

func (f *fakePromptRefiner) Refine(_ context.Context, req refine.RefineRequest) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return req.Prompt + " styled around a studio photo", nil
}

type pipelineFixture struct {
	pipeline *Pipeline
	synth    *scriptedSynth
	stock    *fakeStock
	refiner  *fakePromptRefiner
	workDir  string
}

func newPipelineFixture(t *testing.T, synthErrs ...error) *pipelineFixture {
	t.Helper()
	workDir := t.TempDir()
	synth := &scriptedSynth{png: testPNG(t), errs: synthErrs}
	assembler := NewAssembler(AssemblerOptions{
		Synthesizer: synth,
		Rewriter:    &fakeRewriter{},
		Captioner:   &fakeCaptioner{},
		Store:       newMemStore(),
		WorkDir:     workDir,
	})
	f := &pipelineFixture{
		synth:   synth,
		stock:   &fakeStock{data: testPNG(t)},
		refiner: &fakePromptRefiner{},
		workDir: workDir,
	}
	f.pipeline = New(Options{
		Assembler: assembler,
		Stock:     f.stock,
		Refiner:   f.refiner,
		WorkDir:   workDir,
	})
	return f
}

func genRequest(count int, enrich bool) domain.GenerationRequest {
	return domain.GenerationRequest{
		RequestID:         "req-1",
		Prompt:            "a red sneaker on a wooden table",
		CandidateCount:    count,
		EnrichmentEnabled: enrich,
	}
}

func TestRunEmitsAllCandidatesInOrder(t *testing.T) {
	f := newPipelineFixture(t)
	em := &recordingEmitter{}

	f.pipeline.Run(context.Background(), genRequest(2, false), em)

	want := []string{"start", "candidate", "candidate", "done"}
	if got := em.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("frame order = %v, want %v", got, want)
	}
	if em.frames[0].Total != 2 {
		t.Fatalf("start total = %d, want 2", em.frames[0].Total)
	}
	for i, frame := range em.frames[1:3] {
		if frame.Index != i+1 {
			t.Fatalf("candidate %d has index %d", i+1, frame.Index)
		}
		if frame.Candidate == nil || frame.Candidate.Caption.Text == "" {
			t.Fatalf("candidate %d incomplete: %+v", i+1, frame.Candidate)
		}
	}
	if f.stock.searches != 0 {
		t.Fatalf("stock searched with enrichment disabled")
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	fatal := domain.NewFault(domain.FaultFatal, "upstream exploded", nil)
	f := newPipelineFixture(t, nil, fatal)
	em := &recordingEmitter{}

	f.pipeline.Run(context.Background(), genRequest(3, false), em)

	want := []string{"start", "candidate", "error"}
	if got := em.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("frame order = %v, want %v", got, want)
	}
	if len(f.synth.calls) != 2 {
		t.Fatalf("synthesis continued after terminal failure: %d calls", len(f.synth.calls))
	}
	if em.frames[2].Message == "" {
		t.Fatalf("error frame has no message")
	}
}

func TestRunLocalizesFailureMessage(t *testing.T) {
	blocked := domain.NewFault(domain.FaultSafetyBlock, "blocked", nil)
	f := newPipelineFixture(t, blocked)
	em := &recordingEmitter{}

	req := genRequest(1, false)
	req.Prompt = "una zapatilla roja sobre una mesa de madera"
	f.pipeline.Run(context.Background(), req, em)

	last := em.frames[len(em.frames)-1]
	if last.Type != "error" {
		t.Fatalf("terminal frame = %+v", last)
	}
	if want := localizedMessage(domain.FaultSafetyBlock, language.Spanish); last.Message != want {
		t.Fatalf("message = %q, want %q", last.Message, want)
	}
}

func TestRunEnrichmentRewritesPromptPerCandidate(t *testing.T) {
	f := newPipelineFixture(t)
	f.stock.photos = []stock.Photo{
		{ID: 1, URL: "https://stock/1.jpg", Alt: "sneaker flat lay"},
		{ID: 2, URL: "https://stock/2.jpg", Alt: "sneaker close up"},
	}
	em := &recordingEmitter{}

	f.pipeline.Run(context.Background(), genRequest(2, true), em)

	if f.stock.searches != 1 {
		t.Fatalf("stock searches = %d, want 1 per request", f.stock.searches)
	}
	if len(f.stock.downloads) != 2 || f.stock.downloads[0] != "https://stock/1.jpg" {
		t.Fatalf("downloads = %v", f.stock.downloads)
	}
	if f.refiner.calls != 2 {
		t.Fatalf("refine calls = %d, want 2", f.refiner.calls)
	}
	for i, call := range f.synth.calls {
		if !strings.Contains(call.Prompt, "styled around a studio photo") {
			t.Fatalf("candidate %d used unrefined prompt %q", i+1, call.Prompt)
		}
		if len(call.ReferenceImages) != 1 {
			t.Fatalf("candidate %d has %d reference images, want the stock photo", i+1, len(call.ReferenceImages))
		}
	}
	for _, frame := range em.frames[1:3] {
		note := frame.Candidate.Image.PromptAdjustmentNote
		if note == nil || !strings.Contains(*note, "stock photo") {
			t.Fatalf("enriched candidate missing note: %v", note)
		}
	}
}

func TestRunShrinksBatchToStockPool(t *testing.T) {
	f := newPipelineFixture(t)
	f.stock.photos = []stock.Photo{{ID: 1, URL: "https://stock/1.jpg", Alt: "one photo"}}
	em := &recordingEmitter{}

	f.pipeline.Run(context.Background(), genRequest(3, true), em)

	if em.frames[0].Total != 1 {
		t.Fatalf("start total = %d, want pool size 1", em.frames[0].Total)
	}
	want := []string{"start", "candidate", "done"}
	if got := em.types(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("frame order = %v, want %v", got, want)
	}
}

func TestRunSearchFailureDisablesEnrichmentForBatch(t *testing.T) {
	f := newPipelineFixture(t)
	f.stock.searchErr = fmt.Errorf("stock api down")
	em := &recordingEmitter{}

	req := genRequest(2, true)
	f.pipeline.Run(context.Background(), req, em)

	if em.frames[0].Total != 2 {
		t.Fatalf("start total = %d, want requested count", em.frames[0].Total)
	}
	if f.refiner.calls != 0 {
		t.Fatalf("refiner ran without a stock pool")
	}
	for i, call := range f.synth.calls {
		if call.Prompt != req.Prompt {
			t.Fatalf("candidate %d prompt = %q, want original", i+1, call.Prompt)
		}
	}
	if em.frames[len(em.frames)-1].Type != "done" {
		t.Fatalf("batch did not complete: %v", em.types())
	}
}

func TestRunRefineFailureFallsBackPerCandidate(t *testing.T) {
	f := newPipelineFixture(t)
	f.stock.photos = []stock.Photo{{ID: 1, URL: "https://stock/1.jpg", Alt: "one photo"}}
	f.refiner.err = fmt.Errorf("refine failed")
	em := &recordingEmitter{}

	f.pipeline.Run(context.Background(), genRequest(1, true), em)

	if em.frames[len(em.frames)-1].Type != "done" {
		t.Fatalf("fallback candidate did not complete: %v", em.types())
	}
	if got := f.synth.calls[0].Prompt; got != genRequest(1, true).Prompt {
		t.Fatalf("fallback prompt = %q, want original", got)
	}
	if note := em.frames[1].Candidate.Image.PromptAdjustmentNote; note != nil {
		t.Fatalf("fallback candidate carries note %q", *note)
	}
}

func TestRunRemovesWorkingFiles(t *testing.T) {
	f := newPipelineFixture(t)
	f.stock.photos = []stock.Photo{{ID: 1, URL: "https://stock/1.jpg", Alt: "one photo"}}
	em := &recordingEmitter{}

	f.pipeline.Run(context.Background(), genRequest(1, true), em)

	entries, err := os.ReadDir(f.workDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	for _, entry := range entries {
		t.Fatalf("working file left behind: %s", entry.Name())
	}
}
