package lens

import (
	"fmt"
	"strings"
)

// Mode selects how much of a source unit is instrumented. It is an open
// enumeration: selective modes may be added without changing the engine API.
type Mode uint8

const (
	// ModeNone passes sources through unchanged without parsing.
	ModeNone Mode = iota
	// ModeAll instruments every eligible coroutine.
	ModeAll
)

// String returns the canonical spelling used by flags and config files.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeAll:
		return "all"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a flag or config spelling into a Mode.
// Unknown spellings are rejected rather than silently passed through.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return ModeNone, nil
	case "all":
		return ModeAll, nil
	default:
		return ModeNone, fmt.Errorf("unknown instrumentation mode %q", s)
	}
}

// InvocationKind describes how a coroutine is invoked, recorded in the entry
// snippet. Go has no static members, so the only distinction is whether a
// receiver is present.
type InvocationKind string

const (
	// KindInstance marks a method coroutine (receiver present).
	KindInstance InvocationKind = "instance"
	// KindFree marks package-level functions and function literals.
	KindFree InvocationKind = ""
)

// canonical suspension-sequence type names, compared case-insensitively
// against the resolver's fully-qualified output.
var canonicalSequenceTypes = []string{"iter.Seq", "iter.Seq2"}

const (
	// DefaultCoroutineAlias is the as-written result type spelling that opts a
	// function into instrumentation. The substring fast path and the classifier
	// both read the configured alias from Options, never a second constant, so
	// the two cannot drift apart.
	DefaultCoroutineAlias = "Coro"
	// DefaultYieldIdent is the callee identifier recognized as a suspension point.
	DefaultYieldIdent = "yield"
	// DefaultHandleIdent is the reserved identifier the entry snippet binds the
	// trace handle to. It is a reserved-name convention, not lexical hygiene:
	// instrumented sources must not declare it themselves.
	DefaultHandleIdent = "_cyt"
	// DefaultFacilityAlias is the reserved import alias for the runtime tracing
	// facility package.
	DefaultFacilityAlias = "__corotrace"
	// DefaultFacilityImportPath is the import path injected for the runtime
	// tracing facility.
	DefaultFacilityImportPath = "github.com/CoroLens/go-coro-lens/yieldtrace"
)

// Options configures an Engine. The zero value is completed by applyDefaults.
type Options struct {
	// CoroutineAlias is the as-written result type spelling required for
	// classification, and the literal used by the substring fast path.
	CoroutineAlias string
	// YieldIdent is the identifier recognized as the suspension callee.
	YieldIdent string
	// HandleIdent is the reserved identifier bound to the trace handle.
	HandleIdent string
	// FacilityAlias is the reserved import alias for the tracing facility.
	FacilityAlias string
	// FacilityImportPath is the import path of the tracing facility package.
	FacilityImportPath string
}

func (o *Options) applyDefaults() {
	if o.CoroutineAlias == "" {
		o.CoroutineAlias = DefaultCoroutineAlias
	}
	if o.YieldIdent == "" {
		o.YieldIdent = DefaultYieldIdent
	}
	if o.HandleIdent == "" {
		o.HandleIdent = DefaultHandleIdent
	}
	if o.FacilityAlias == "" {
		o.FacilityAlias = DefaultFacilityAlias
	}
	if o.FacilityImportPath == "" {
		o.FacilityImportPath = DefaultFacilityImportPath
	}
}

// functionFrame is the per-function traversal state. Frames live on the
// function stack for exactly the duration of the node's enter/leave window
// and are discarded with the call context.
type functionFrame struct {
	// isCoroutine is decided once on the enter event and never changes.
	isCoroutine bool
	// lastInstrumentedLine gates line-update snippets: a suspension point is
	// instrumented only when its line strictly exceeds this value.
	lastInstrumentedLine int
	// enclosingType is the receiver base type name for methods, otherwise empty.
	enclosingType string
	// name is the function name, or func@<line> for function literals.
	name string
	// kind records how the coroutine is invoked.
	kind InvocationKind
	// args are the parameter names forwarded to the entry snippet.
	args []string
}
