package lens

import (
	"strconv"
	"strings"
)

// Snippet rendering. Every snippet is a complete statement sequence valid in
// statement context, contains no newline so original line numbers never shift,
// and guards its call into the tracing facility behind a nil check so absence
// of a collector is behavior-neutral.

// renderImportSnippet extends the package clause line with the facility import:
// `package p` becomes `package p; import __corotrace "..."`.
func renderImportSnippet(o *Options) string {
	return "; import " + o.FacilityAlias + " " + strconv.Quote(o.FacilityImportPath)
}

// renderEntrySnippet binds the trace handle to the reserved identifier and
// records the coroutine entry in a single guarded call.
func renderEntrySnippet(o *Options, file string, line int, frame *functionFrame) string {
	var sb strings.Builder
	sb.WriteString(o.HandleIdent)
	sb.WriteString(" := ")
	sb.WriteString(o.FacilityAlias)
	sb.WriteString(".Capture(); if ")
	sb.WriteString(o.HandleIdent)
	sb.WriteString(" != nil { ")
	sb.WriteString(o.HandleIdent)
	sb.WriteString(".SetCoroutine(")
	sb.WriteString(strconv.Quote(file))
	sb.WriteString(", ")
	sb.WriteString(strconv.Itoa(line))
	sb.WriteString(", ")
	sb.WriteString(strconv.Quote(frame.enclosingType))
	sb.WriteString(", ")
	sb.WriteString(strconv.Quote(frame.name))
	sb.WriteString(", ")
	sb.WriteString(strconv.Quote(string(frame.kind)))
	for _, arg := range frame.args {
		sb.WriteString(", ")
		sb.WriteString(arg)
	}
	sb.WriteString(") }; ")
	return sb.String()
}

// renderLineSnippet records the current suspension line in a guarded call.
func renderLineSnippet(o *Options, line int) string {
	return "if " + o.HandleIdent + " != nil { " + o.HandleIdent +
		".SetLine(" + strconv.Itoa(line) + ") }; "
}
