package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"postty/internal/domain"
)

func decodeFrames(t *testing.T, raw []byte) []Frame {
	t.Helper()
	var frames []Frame
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var frame Frame
		if err := json.Unmarshal([]byte(line), &frame); err != nil {
			t.Fatalf("decode frame %q: %v", line, err)
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestNDJSONEmitterHappyPath(t *testing.T) {
	var buf bytes.Buffer
	em := NewNDJSONEmitter(&buf)

	if err := em.Start("red sneaker", 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 1; i <= 2; i++ {
		c := &domain.Candidate{CandidateID: "c", Index: i, Total: 2}
		if err := em.Candidate(c); err != nil {
			t.Fatalf("candidate %d: %v", i, err)
		}
	}
	if err := em.Done(); err != nil {
		t.Fatalf("done: %v", err)
	}

	frames := decodeFrames(t, buf.Bytes())
	if len(frames) != 4 {
		t.Fatalf("frames = %d, want 4", len(frames))
	}
	if frames[0].Type != "start" || frames[0].Prompt != "red sneaker" || frames[0].Total != 2 {
		t.Fatalf("start frame = %+v", frames[0])
	}
	if frames[1].Type != "candidate" || frames[1].Index != 1 {
		t.Fatalf("first candidate frame = %+v", frames[1])
	}
	if frames[2].Index != 2 {
		t.Fatalf("second candidate frame = %+v", frames[2])
	}
	if frames[3].Type != "done" {
		t.Fatalf("terminal frame = %+v", frames[3])
	}
}

func TestNDJSONEmitterErrorIsTerminal(t *testing.T) {
	var buf bytes.Buffer
	em := NewNDJSONEmitter(&buf)

	if err := em.Start("p", 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := em.Error("boom"); err != nil {
		t.Fatalf("error frame: %v", err)
	}
	if err := em.Candidate(&domain.Candidate{Index: 1, Total: 1}); err == nil {
		t.Fatalf("candidate after error should be rejected")
	}
	if err := em.Done(); err == nil {
		t.Fatalf("done after error should be rejected")
	}

	frames := decodeFrames(t, buf.Bytes())
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want start+error only", len(frames))
	}
	if frames[1].Type != "error" || frames[1].Message != "boom" {
		t.Fatalf("error frame = %+v", frames[1])
	}
}

func TestNDJSONEmitterRequiresStartFirst(t *testing.T) {
	em := NewNDJSONEmitter(&bytes.Buffer{})
	if err := em.Candidate(&domain.Candidate{}); err == nil {
		t.Fatalf("candidate before start should be rejected")
	}
	if err := em.Start("p", 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := em.Start("p", 1); err == nil {
		t.Fatalf("second start should be rejected")
	}
}

type failingWriter struct{ failed bool }

func (w *failingWriter) Write(p []byte) (int, error) {
	w.failed = true
	return 0, bytes.ErrTooLarge
}

func TestNDJSONEmitterStickyWriteError(t *testing.T) {
	em := NewNDJSONEmitter(&failingWriter{})
	err := em.Start("p", 1)
	if err == nil {
		t.Fatalf("expected write error")
	}
	if second := em.Candidate(&domain.Candidate{Index: 1, Total: 1}); second == nil {
		t.Fatalf("expected sticky error on later frames")
	}
}

func TestBufferEmitterCollectsBatch(t *testing.T) {
	em := NewBufferEmitter()
	if err := em.Start("p", 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = em.Candidate(&domain.Candidate{CandidateID: "a", Index: 1, Total: 2})
	_ = em.Candidate(&domain.Candidate{CandidateID: "b", Index: 2, Total: 2})
	if err := em.Done(); err != nil {
		t.Fatalf("done: %v", err)
	}
	candidates, message, ok := em.Result()
	if !ok || message != "" {
		t.Fatalf("result ok=%v message=%q", ok, message)
	}
	if len(candidates) != 2 || candidates[0].CandidateID != "a" {
		t.Fatalf("candidates = %+v", candidates)
	}
}

func TestBufferEmitterError(t *testing.T) {
	em := NewBufferEmitter()
	_ = em.Start("p", 1)
	_ = em.Error("failed")
	candidates, message, ok := em.Result()
	if ok {
		t.Fatalf("expected failed result")
	}
	if message != "failed" || candidates != nil {
		t.Fatalf("result = %v %q", candidates, message)
	}
}
