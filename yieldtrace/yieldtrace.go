// Package yieldtrace is the runtime facility instrumented coroutines report
// into. It is always optional: when no Collector is installed, Capture returns
// nil and the guarded calls injected by the instrumentation engine are
// behavior-neutral no-ops.
package yieldtrace

import (
	"sync/atomic"
)

// Collector receives coroutine trace callbacks. Implementations must be safe
// for concurrent use; instrumented code may run on any goroutine.
type Collector interface {
	// CoroutineEntered is called once per traced coroutine activation.
	CoroutineEntered(id uint64, entry Entry)
	// LineReached is called for each tracked suspension point.
	LineReached(id uint64, line int)
}

// Entry holds the metadata recorded at coroutine entry.
type Entry struct {
	// File is the source file the coroutine was entered in.
	File string `msgpack:"file" json:"file"`
	// Line is the coroutine's entry line.
	Line int `msgpack:"line" json:"line"`
	// EnclosingType is the receiver type for methods, empty otherwise.
	EnclosingType string `msgpack:"type" json:"type,omitempty"`
	// Name is the coroutine's function name.
	Name string `msgpack:"name" json:"name"`
	// Kind is the invocation kind: "instance" or "" for free functions.
	Kind string `msgpack:"kind" json:"kind,omitempty"`
	// Args are the call argument values, rendered to strings.
	Args []string `msgpack:"args" json:"args,omitempty"`
}

var (
	active atomic.Pointer[Collector]
	nextID atomic.Uint64
)

// Install activates a collector and returns a func to uninstall it. Only one
// collector is active at a time; installing replaces the previous one.
func Install(c Collector) func() {
	active.Store(&c)
	return func() {
		active.CompareAndSwap(&c, nil)
	}
}

// Enabled reports whether a collector is currently installed.
func Enabled() bool {
	return active.Load() != nil
}

// Capture returns a handle bound to the active collector, or nil when the
// facility is absent. Injected code nil-checks the result before every call.
func Capture() *Handle {
	c := active.Load()
	if c == nil {
		return nil
	}
	return &Handle{collector: *c, id: nextID.Add(1)}
}

// Handle identifies one coroutine activation to the collector.
type Handle struct {
	collector Collector
	id        uint64
}

// SetCoroutine records the coroutine entry metadata in one call.
func (h *Handle) SetCoroutine(file string, line int, enclosingType, name, kind string, args ...any) {
	h.collector.CoroutineEntered(h.id, Entry{
		File:          file,
		Line:          line,
		EnclosingType: enclosingType,
		Name:          name,
		Kind:          kind,
		Args:          renderArgs(args),
	})
}

// SetLine records the line of a suspension point that was reached.
func (h *Handle) SetLine(line int) {
	h.collector.LineReached(h.id, line)
}
