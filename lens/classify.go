package lens

import (
	"go/ast"
	"strings"
)

// asWrittenResultIdent returns the bare identifier spelling of the function's
// single result type, or "" when the result is absent, multi-valued, or not
// written as a plain (possibly parameterized) identifier. Qualified spellings
// like iter.Seq[int] intentionally return "": participation must go through
// the alias convention.
func asWrittenResultIdent(ft *ast.FuncType) string {
	if ft == nil || ft.Results == nil || len(ft.Results.List) != 1 {
		return ""
	}
	field := ft.Results.List[0]
	if len(field.Names) > 1 {
		return ""
	}
	if ident, ok := baseTypeName(field.Type).(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

// classifyCoroutine reports whether a function-like node is an instrumentable
// coroutine: its as-written result spelling must equal the configured alias and
// the alias must resolve to a canonical suspension-sequence type, both compared
// case-insensitively. A function with no result annotation is never a
// coroutine. Classification happens once, on the node's enter event, and the
// result is recorded immutably on the function frame.
func classifyCoroutine(ft *ast.FuncType, resolver *aliasResolver, alias string) bool {
	written := asWrittenResultIdent(ft)
	if written == "" || !strings.EqualFold(written, alias) {
		return false
	}
	resolved := resolver.resolve(ft.Results.List[0].Type)
	for _, canonical := range canonicalSequenceTypes {
		if strings.EqualFold(resolved, canonical) {
			return true
		}
	}
	return false
}
