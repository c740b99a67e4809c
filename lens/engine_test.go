package lens

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basicCoroutineSrc = `package sample

import "iter"

type Coro = iter.Seq[int]

func Numbers(n int) Coro {
	for i := 0; i < n; i++ {
		yield(i)
	}
	return nil
}
`

// requireValidOutput asserts the structural guarantees every instrumented
// output must hold: same line count as the input and still parseable.
func requireValidOutput(t *testing.T, src, out string) {
	t.Helper()

	require.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"),
		"instrumentation must not shift line numbers")
	_, err := parser.ParseFile(token.NewFileSet(), "out.go", out, parser.SkipObjectResolution)
	require.NoError(t, err, "instrumented output must remain valid syntax")
}

func TestEngineModeNone(t *testing.T) {
	t.Parallel()

	engine := NewEngine(ModeNone)
	for _, src := range []string{
		basicCoroutineSrc,
		"package broken\nfunc {{{", // not even parseable
		"",
	} {
		out, err := engine.Instrument(src)
		require.NoError(t, err)
		assert.Equal(t, src, out)
	}
}

func TestEngineNoCoroutineIdentity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"no_alias_mention", "package a\n\nfunc F() int {\n\treturn yield(1)\n}\n"},
		{"alias_in_comment_only", "package a\n\n// Coro is unrelated here\nfunc F() {}\n"},
		{"alias_decl_unused", "package a\n\nimport \"iter\"\n\ntype Coro = iter.Seq[int]\n\nfunc F() int { return 0 }\n"},
		{"direct_iter_seq_result", "package a\n\nimport \"iter\"\n\ntype Coro = iter.Seq[int]\n\nfunc F() iter.Seq[int] {\n\tyield(1)\n\treturn nil\n}\n"},
		{"alias_not_iter_seq", "package a\n\ntype Coro = chan int\n\nfunc F() Coro {\n\tyield(1)\n\treturn nil\n}\n"},
		{"yield_in_regular_func", "package a\n\nimport \"iter\"\n\ntype Coro = iter.Seq[int]\n\nfunc F() int {\n\tyield(1)\n\treturn 0\n}\n"},
		{"coroutine_without_suspensions_or_body", "package a\n\nimport \"iter\"\n\ntype Coro = iter.Seq[int]\n\nfunc F() Coro {}\n"},
	}
	engine := NewEngine(ModeAll)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := engine.Instrument(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.src, out, "ineligible source must pass through byte-identical")
		})
	}
}

func TestEngineParseError(t *testing.T) {
	t.Parallel()

	engine := NewEngine(ModeAll)
	_, err := engine.Instrument("package a\n\nfunc Coro( {\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse failure")
}

func TestEngineBasicInstrument(t *testing.T) {
	t.Parallel()

	engine := NewEngine(ModeAll)
	out, err := engine.InstrumentSource("sample.go", basicCoroutineSrc)
	require.NoError(t, err)
	requireValidOutput(t, basicCoroutineSrc, out)

	// import extends the package clause line
	assert.Contains(t, out, `package sample; import __corotrace "github.com/CoroLens/go-coro-lens/yieldtrace"`)
	// entry snippet lands before the first body statement with entry metadata
	assert.Contains(t, out, `_cyt := __corotrace.Capture(); if _cyt != nil { _cyt.SetCoroutine("sample.go", 7, "", "Numbers", "", n) }; for i := 0; i < n; i++ {`)
	// line snippet lands before the suspending statement
	assert.Contains(t, out, `if _cyt != nil { _cyt.SetLine(9) }; yield(i)`)
	assert.Equal(t, 1, strings.Count(out, ".Capture()"))
	assert.Equal(t, 1, strings.Count(out, ".SetLine("))
}

func TestEngineGolden(t *testing.T) {
	t.Parallel()

	engine := NewEngine(ModeAll)
	out, err := engine.InstrumentSource("sample.go", basicCoroutineSrc)
	require.NoError(t, err)

	g := goldie.New(t)
	g.Assert(t, "instrument_basic", []byte(out))
}

func TestEngineSameLineDedup(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq[int]

func Pair() Coro {
	n := 0
	_, _ = yield(n), yield(n)
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Equal(t, 1, strings.Count(out, ".SetLine("),
		"suspensions sharing a line must produce one snippet")
	assert.Contains(t, out, ".SetLine(9)")
}

func TestEngineMultipleLines(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq2[string, int]

func KV() Coro {
	count := 0
	yield("a", count)
	yield("b", count)
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Equal(t, 1, strings.Count(out, ".Capture()"))
	assert.Contains(t, out, ".SetLine(9)")
	assert.Contains(t, out, ".SetLine(10)")
	assert.Equal(t, 2, strings.Count(out, ".SetLine("))
}

func TestEngineEntrySuppressesFirstLineSnippet(t *testing.T) {
	t.Parallel()

	// the first statement suspends on the line it starts on, so the entry
	// snippet alone must cover it
	src := `package sample

import "iter"

type Coro = iter.Seq[int]

func One() Coro {
	yield(1)
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Equal(t, 1, strings.Count(out, ".Capture()"))
	assert.Equal(t, 0, strings.Count(out, ".SetLine("))
}

func TestEngineAliasChain(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type stream = iter.Seq2[string, int]
type Coro = stream

func KV() Coro {
	yield("k", 1)
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)
	assert.Contains(t, out, ".Capture()")
}

func TestEngineCaseInsensitiveAlias(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type coro = iter.Seq[int]

func Lower() coro {
	yield(1)
	yield(2)
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)
	assert.Contains(t, out, ".Capture()")
	assert.Contains(t, out, ".SetLine(9)")
}

func TestEngineMethodCoroutine(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq[int]

type Counter struct{ limit int }

func (c *Counter) Tick() Coro {
	for i := 0; i < c.limit; i++ {
		yield(i)
	}
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.InstrumentSource("counter.go", src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Contains(t, out, `.SetCoroutine("counter.go", 9, "Counter", "Tick", "instance") }; `)
}

func TestEngineFuncLitCoroutine(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq[int]

var ones = func() Coro {
	for {
		yield(1)
	}
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	// literals are free and named by their start line
	assert.Contains(t, out, `"func@7", "") }; `)
	assert.Contains(t, out, ".SetLine(9)")
}

func TestEngineNestedFunctionsIndependent(t *testing.T) {
	t.Parallel()

	// the inner literal is not a coroutine, so its yield is not instrumented;
	// the outer coroutine's own yield still is
	src := `package sample

import "iter"

type Coro = iter.Seq[int]

func Outer() Coro {
	inner := func() int {
		yield(99)
		return 0
	}
	_ = inner
	yield(inner())
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Equal(t, 1, strings.Count(out, ".Capture()"))
	assert.NotContains(t, out, ".SetLine(9)")
	assert.Contains(t, out, ".SetLine(13)")
}

func TestEngineNestedCoroutineLiteral(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq[int]

func Outer() Coro {
	inner := func() Coro {
		yield(1)
		return nil
	}
	_ = inner
	yield(2)
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	// both the outer function and the inner literal capture independently
	assert.Equal(t, 2, strings.Count(out, ".Capture()"))
	assert.Contains(t, out, ".SetLine(13)")
}

func TestEngineConditionSuspensions(t *testing.T) {
	t.Parallel()

	// an else-if condition has no statement position of its own; its line
	// snippet lands just inside that branch's body
	src := `package sample

import "iter"

type Coro = iter.Seq[bool]

func Branches(n int) Coro {
	if yield(n > 0) {
		n++
	} else if yield(n < 0) {
		n--
	}
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Contains(t, out, "} else if yield(n < 0) {if _cyt != nil { _cyt.SetLine(10) }; ")
}

func TestEngineElseIfConditionAfterBodySuspension(t *testing.T) {
	t.Parallel()

	// a suspension in a later else-if header must not swallow the line
	// snippets of distinct-line suspensions inside earlier branch bodies
	src := `package sample

import "iter"

type Coro = iter.Seq[bool]

func Branches(n int) Coro {
	if yield(n > 0) {
		yield(n > 1)
	} else if yield(n < 0) {
		yield(n < -1)
	}
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	// line 8 is covered by the entry snippet; 9, 10 and 11 each get their own
	assert.Contains(t, out, ".SetLine(9)")
	assert.Contains(t, out, ".SetLine(10)")
	assert.Contains(t, out, ".SetLine(11)")
	assert.Equal(t, 3, strings.Count(out, ".SetLine("))
	// the else-if header's snippet executes only with its branch
	assert.Greater(t, strings.Index(out, ".SetLine(10)"), strings.Index(out, "else if yield(n < 0)"))
}

func TestEngineCaseExprAfterBodySuspension(t *testing.T) {
	t.Parallel()

	// case expressions are visited in source order between the clause bodies,
	// so an earlier clause body keeps its line snippet
	src := `package sample

import "iter"

type Coro = iter.Seq[bool]

func Cases(n int) Coro {
	_ = n
	switch {
	case yield(n > 0):
		yield(n > 1)
	case yield(n < 0):
		yield(n < -1)
	}
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	for _, line := range []string{"10", "11", "12", "13"} {
		assert.Contains(t, out, ".SetLine("+line+")")
	}
	assert.Equal(t, 4, strings.Count(out, ".SetLine("))
	// each case expression's snippet lands inside its own clause
	assert.Contains(t, out, "case yield(n > 0):if _cyt != nil { _cyt.SetLine(10) }; ")
	assert.Contains(t, out, "case yield(n < 0):if _cyt != nil { _cyt.SetLine(12) }; ")
}

func TestEngineForLoopSuspensions(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq[bool]

func Loop(n int) Coro {
	for i := 0; yield(i < n); i++ {
		n--
	}
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)
	assert.Equal(t, 1, strings.Count(out, ".Capture()"))
}

func TestEngineSwitchAndSelect(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Coro = iter.Seq[int]

func Pick(n int, ch chan int) Coro {
	_ = n
	switch yield(n) {
	case true:
		n++
	}
	select {
	case v := <-ch:
		yield(v)
	default:
	}
	return nil
}
`
	engine := NewEngine(ModeAll)
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Contains(t, out, ".SetLine(9)")
	assert.Contains(t, out, ".SetLine(15)")
}

func TestEngineConfiguredIdentifiers(t *testing.T) {
	t.Parallel()

	src := `package sample

import "iter"

type Gen = iter.Seq[int]

func Numbers(n int) Gen {
	for i := 0; i < n; i++ {
		emit(i)
	}
	return nil
}
`
	engine := NewEngineWithOptions(ModeAll, Options{
		CoroutineAlias: "Gen",
		YieldIdent:     "emit",
		HandleIdent:    "_trace",
		FacilityAlias:  "__gentrace",
	})
	out, err := engine.Instrument(src)
	require.NoError(t, err)
	requireValidOutput(t, src, out)

	assert.Contains(t, out, "_trace := __gentrace.Capture()")
	assert.Contains(t, out, "if _trace != nil { _trace.SetLine(9) }; emit(i)")
	assert.NotContains(t, out, "_cyt")
}

func TestEngineSequentialReuse(t *testing.T) {
	t.Parallel()

	engine := NewEngine(ModeAll)
	first, err := engine.Instrument(basicCoroutineSrc)
	require.NoError(t, err)
	second, err := engine.Instrument(basicCoroutineSrc)
	require.NoError(t, err)
	assert.Equal(t, first, second, "engine must be reusable with no carried state")
}

func TestEngineModeAccessor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ModeAll, NewEngine(ModeAll).Mode())
	assert.Equal(t, ModeNone, NewEngine(ModeNone).Mode())
}
