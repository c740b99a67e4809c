package lens

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplicerPassThrough(t *testing.T) {
	t.Parallel()

	sp := newSplicer("hello world")
	assert.Equal(t, "hello world", sp.finalize())
}

func TestSplicerInsertions(t *testing.T) {
	t.Parallel()

	sp := newSplicer("abcdef")
	sp.consume(2)
	sp.write("XX")
	sp.consume(4)
	sp.write("YY")
	assert.Equal(t, "abXXcdYYef", sp.finalize())
}

func TestSplicerRepeatedConsumeSameOffset(t *testing.T) {
	t.Parallel()

	// multiple snippets at one anchor append in emission order
	sp := newSplicer("abcdef")
	sp.consume(3)
	sp.write("X")
	sp.consume(3)
	sp.write("Y")
	assert.Equal(t, "abcXYdef", sp.finalize())
}

func TestSplicerEmptyInput(t *testing.T) {
	t.Parallel()

	sp := newSplicer("")
	sp.write("X")
	assert.Equal(t, "X", sp.finalize())
}

func TestSplicerRewindPanics(t *testing.T) {
	t.Parallel()

	sp := newSplicer("abcdef")
	sp.consume(4)
	defer func() {
		r := recover()
		require.NotNil(t, r, "cursor rewind must panic")
		err, ok := r.(invariantError)
		require.True(t, ok)
		assert.Contains(t, err.Error(), "invariant violation")
	}()
	sp.consume(2)
}

func TestSplicerOverrunPanics(t *testing.T) {
	t.Parallel()

	sp := newSplicer("abc")
	assert.Panics(t, func() { sp.consume(10) })
}
