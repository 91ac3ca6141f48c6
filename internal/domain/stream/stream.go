// Package stream re-chunks a finished answer into word sized deltas for
// clients that asked for a streamed response.
package stream

import (
	"strings"
	"sync"
	"time"

	"jan-server/services/orchestrator-api/internal/utils/idgen"
)

// FinishReasonStop marks a normally completed answer.
const FinishReasonStop = "stop"

// Chunk is one element of a stream. The last content chunk carries the finish
// reason; a final chunk with Done set follows it.
type Chunk struct {
	ID           string  `json:"id"`
	Model        string  `json:"model"`
	Created      int64   `json:"created"`
	Delta        string  `json:"delta"`
	FinishReason *string `json:"finish_reason"`
	Done         bool    `json:"-"`
}

// Stream is a finite, single use sequence of chunks.
type Stream struct {
	mu      sync.Mutex
	id      string
	model   string
	created int64
	reason  string
	words   []string
	pos     int
	done    bool
}

// Emitter builds streams.
type Emitter struct {
	now func() time.Time
}

// NewEmitter returns an emitter stamping chunks with the current time.
func NewEmitter() *Emitter {
	return &Emitter{now: time.Now}
}

// Stream splits text at whitespace and finishes with "stop".
func (e *Emitter) Stream(model, text string) *Stream {
	return e.StreamWith(idgen.NewCompletionID(), model, text, FinishReasonStop)
}

// StreamWith is Stream with an explicit completion id and finish reason.
func (e *Emitter) StreamWith(id, model, text, finishReason string) *Stream {
	if finishReason == "" {
		finishReason = FinishReasonStop
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		words = []string{""}
	}
	return &Stream{
		id:      id,
		model:   model,
		created: e.now().Unix(),
		reason:  finishReason,
		words:   words,
	}
}

// ID is the completion id shared by every chunk.
func (s *Stream) ID() string {
	return s.id
}

// Next returns the next chunk. After the last content chunk it returns one
// chunk with Done set, then false forever.
func (s *Stream) Next() (Chunk, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return Chunk{}, false
	}
	if s.pos >= len(s.words) {
		s.done = true
		return Chunk{ID: s.id, Model: s.model, Created: s.created, Done: true}, true
	}

	delta := s.words[s.pos]
	if s.pos > 0 {
		delta = " " + delta
	}
	chunk := Chunk{ID: s.id, Model: s.model, Created: s.created, Delta: delta}
	s.pos++
	if s.pos == len(s.words) {
		reason := s.reason
		chunk.FinishReason = &reason
	}
	return chunk, true
}

// Collect drains the stream and returns its content chunks.
func (s *Stream) Collect() []Chunk {
	var out []Chunk
	for {
		chunk, ok := s.Next()
		if !ok || chunk.Done {
			return out
		}
		out = append(out, chunk)
	}
}
