package lens

import (
	"fmt"
	"strings"
)

// invariantError indicates an engine defect rather than a user input error.
// It is delivered through panic so defects fail loudly instead of producing
// silently corrupted output.
type invariantError struct {
	msg string
}

func (e invariantError) Error() string {
	return "invariant violation: " + e.msg
}

func invariantFailure(format string, args ...any) {
	panic(invariantError{msg: fmt.Sprintf(format, args...)})
}

// splicer reconstructs source text from untouched spans of the input plus
// generated snippets. It is the only path by which original bytes reach the
// output: consume copies input verbatim up to an offset, write appends a
// generated snippet at the current position. The cursor never rewinds, which
// guarantees the output is the input with pure insertions only.
type splicer struct {
	src    string
	out    strings.Builder
	cursor int
}

func newSplicer(src string) *splicer {
	s := &splicer{src: src}
	s.out.Grow(len(src) + 256)
	return s
}

// consume appends src[cursor:offset) to the output and advances the cursor.
// An offset behind the cursor is an engine defect and panics.
func (s *splicer) consume(offset int) {
	if offset < s.cursor {
		invariantFailure("splice cursor rewind: %d -> %d", s.cursor, offset)
	} else if offset > len(s.src) {
		invariantFailure("splice offset %d beyond input length %d", offset, len(s.src))
	}
	s.out.WriteString(s.src[s.cursor:offset])
	s.cursor = offset
}

// write appends a generated snippet at the current cursor position.
func (s *splicer) write(snippet string) {
	s.out.WriteString(snippet)
}

// finalize appends the remaining input tail and returns the assembled text.
// The splicer must not be reused afterwards.
func (s *splicer) finalize() string {
	s.out.WriteString(s.src[s.cursor:])
	s.cursor = len(s.src)
	result := s.out.String()
	s.out.Reset()
	s.src = ""
	return result
}
