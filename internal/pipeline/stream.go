package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"postty/internal/domain"
)

// Frame is one NDJSON line of the streaming generation protocol.
type Frame struct {
	Type      string            `json:"type"`
	Prompt    string            `json:"prompt,omitempty"`
	Total     int               `json:"total,omitempty"`
	Index     int               `json:"index,omitempty"`
	Candidate *domain.Candidate `json:"candidate,omitempty"`
	Message   string            `json:"message,omitempty"`
}

const (
	frameStart     = "start"
	frameCandidate = "candidate"
	frameError     = "error"
	frameDone      = "done"
)

// Emitter receives pipeline results in request order. Implementations enforce
// the stream contract: one start, zero or more candidates in index order, then
// exactly one of error or done.
type Emitter interface {
	Start(prompt string, total int) error
	Candidate(c *domain.Candidate) error
	Error(message string) error
	Done() error
}

type streamState int

const (
	stateIdle streamState = iota
	stateOpen
	stateDoneClosed
	stateErrorClosed
)

// NDJSONEmitter writes frames to an HTTP response as application/x-ndjson,
// flushing after every frame so the caller can render candidates while later
// ones are still generating. A write failure (dropped connection) is sticky:
// every subsequent call returns the same error so the pipeline stops starting
// new candidates.
type NDJSONEmitter struct {
	mu       sync.Mutex
	enc      *json.Encoder
	flusher  http.Flusher
	state    streamState
	writeErr error
}

// NewNDJSONEmitter wraps w. When w implements http.Flusher each frame is
// flushed to the transport immediately.
func NewNDJSONEmitter(w io.Writer) *NDJSONEmitter {
	e := &NDJSONEmitter{enc: json.NewEncoder(w)}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

func (e *NDJSONEmitter) Start(prompt string, total int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateIdle {
		return fmt.Errorf("stream: start frame after stream opened")
	}
	e.state = stateOpen
	return e.write(Frame{Type: frameStart, Prompt: prompt, Total: total})
}

func (e *NDJSONEmitter) Candidate(c *domain.Candidate) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateOpen {
		return fmt.Errorf("stream: candidate frame outside open stream")
	}
	return e.write(Frame{Type: frameCandidate, Index: c.Index, Total: c.Total, Candidate: c})
}

func (e *NDJSONEmitter) Error(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateOpen {
		return fmt.Errorf("stream: error frame outside open stream")
	}
	e.state = stateErrorClosed
	return e.write(Frame{Type: frameError, Message: message})
}

func (e *NDJSONEmitter) Done() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateOpen {
		return fmt.Errorf("stream: done frame outside open stream")
	}
	e.state = stateDoneClosed
	return e.write(Frame{Type: frameDone})
}

func (e *NDJSONEmitter) write(frame Frame) error {
	if e.writeErr != nil {
		return e.writeErr
	}
	if err := e.enc.Encode(frame); err != nil {
		e.writeErr = fmt.Errorf("stream: write frame: %w", err)
		return e.writeErr
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	return nil
}

// BufferEmitter collects the full batch for the legacy non-streaming mode.
// Ordering and failure rules are identical to the streaming emitter; only the
// transport differs.
type BufferEmitter struct {
	state      streamState
	candidates []*domain.Candidate
	message    string
}

func NewBufferEmitter() *BufferEmitter {
	return &BufferEmitter{}
}

func (b *BufferEmitter) Start(prompt string, total int) error {
	if b.state != stateIdle {
		return fmt.Errorf("stream: start frame after stream opened")
	}
	b.state = stateOpen
	return nil
}

func (b *BufferEmitter) Candidate(c *domain.Candidate) error {
	if b.state != stateOpen {
		return fmt.Errorf("stream: candidate frame outside open stream")
	}
	b.candidates = append(b.candidates, c)
	return nil
}

func (b *BufferEmitter) Error(message string) error {
	if b.state != stateOpen {
		return fmt.Errorf("stream: error frame outside open stream")
	}
	b.state = stateErrorClosed
	b.message = message
	return nil
}

func (b *BufferEmitter) Done() error {
	if b.state != stateOpen {
		return fmt.Errorf("stream: done frame outside open stream")
	}
	b.state = stateDoneClosed
	return nil
}

// Result returns the buffered candidates, or the failure message when the run
// terminated with an error frame.
func (b *BufferEmitter) Result() ([]*domain.Candidate, string, bool) {
	if b.state == stateErrorClosed {
		return nil, b.message, false
	}
	return b.candidates, "", true
}
