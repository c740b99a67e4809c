package yieldtrace

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// Session is the recorded trace of one coroutine activation.
type Session struct {
	// ID is the activation identifier assigned by Capture.
	ID uint64 `msgpack:"id" json:"id"`
	// Entry is the metadata recorded at coroutine entry.
	Entry Entry `msgpack:"entry" json:"entry"`
	// Lines are the suspension lines in the order they were reached.
	Lines []int `msgpack:"lines" json:"lines"`
}

// Ident returns a stable human-readable identity for the traced coroutine.
func (s Session) Ident() string {
	if s.Entry.EnclosingType != "" {
		return fmt.Sprintf("%s:%d %s.%s", s.Entry.File, s.Entry.Line, s.Entry.EnclosingType, s.Entry.Name)
	}
	return fmt.Sprintf("%s:%d %s", s.Entry.File, s.Entry.Line, s.Entry.Name)
}

// Recorder is a Collector that accumulates sessions in memory.
type Recorder struct {
	mu       sync.Mutex
	sessions map[uint64]*Session
	order    []uint64
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{sessions: make(map[uint64]*Session)}
}

// CoroutineEntered implements Collector.
func (r *Recorder) CoroutineEntered(id uint64, entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		r.order = append(r.order, id)
	}
	r.sessions[id] = &Session{ID: id, Entry: entry}
}

// LineReached implements Collector. A line update for an unseen activation is
// tolerated and recorded under an empty entry.
func (r *Recorder) LineReached(id uint64, line int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{ID: id}
		r.sessions[id] = s
		r.order = append(r.order, id)
	}
	s.Lines = append(s.Lines, line)
}

// Sessions returns the recorded sessions in activation order.
func (r *Recorder) Sessions() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Session, 0, len(r.order))
	for _, id := range r.order {
		s := *r.sessions[id]
		s.Lines = append([]int(nil), s.Lines...)
		result = append(result, s)
	}
	return result
}

// Reset discards all recorded sessions.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[uint64]*Session)
	r.order = nil
}

// EncodeSessions serializes sessions for persistence.
func EncodeSessions(sessions []Session) ([]byte, error) {
	return msgpack.Marshal(sessions)
}

// DecodeSessions deserializes sessions produced by EncodeSessions.
func DecodeSessions(blob []byte) ([]Session, error) {
	var sessions []Session
	if err := msgpack.Unmarshal(blob, &sessions); err != nil {
		return nil, fmt.Errorf("decode sessions failed: %w", err)
	}
	return sessions, nil
}

// renderArgs converts raw argument values into display strings so sessions
// stay serializable regardless of the original types.
func renderArgs(args []any) []string {
	if len(args) == 0 {
		return nil
	}
	result := make([]string, len(args))
	for i, arg := range args {
		result[i] = fmt.Sprintf("%v", arg)
	}
	return result
}
