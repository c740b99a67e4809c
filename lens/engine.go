package lens

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// Engine instruments coroutine functions so a runtime tracing facility can
// observe where each coroutine was entered and which line it last suspended
// at. Output is produced by byte-exact splicing: original bytes are never
// altered or reordered, and snippets contain no newlines, so the line numbers
// the injected trace reports remain true for the instrumented text.
//
// An Engine value carries configuration only; all traversal state lives in a
// per-call context, so a single Engine is safe for sequential reuse and
// distinct Engines may run concurrently. One Engine value must not be shared
// by overlapping calls that mutate the same walkContext (they never are: the
// context is created per call).
type Engine struct {
	mode Mode
	opts Options
}

// NewEngine creates an Engine with default options.
func NewEngine(mode Mode) *Engine {
	return NewEngineWithOptions(mode, Options{})
}

// NewEngineWithOptions creates an Engine with explicit options; zero fields
// fall back to defaults.
func NewEngineWithOptions(mode Mode, opts Options) *Engine {
	opts.applyDefaults()
	return &Engine{mode: mode, opts: opts}
}

// Mode returns the configured instrumentation mode.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Instrument transforms source text, returning it unchanged when nothing is
// eligible. The result is either fully instrumented or byte-identical input;
// there is no partial-success state. A syntactically invalid source propagates
// the parse error with no output.
func (e *Engine) Instrument(src string) (string, error) {
	return e.InstrumentSource("src.go", src)
}

// InstrumentSource is Instrument with an explicit file name, recorded in the
// entry snippets and used in parse error messages.
func (e *Engine) InstrumentSource(filename, src string) (string, error) {
	if e.mode == ModeNone {
		return src, nil
	}
	// Classification requires the alias spelling to appear literally, so its
	// absence proves no function can classify. This stays sound only while the
	// classifier keeps requiring the same Options.CoroutineAlias literal.
	if !strings.Contains(strings.ToLower(src), strings.ToLower(e.opts.CoroutineAlias)) {
		return src, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return "", fmt.Errorf("parse failure %s: %w", filename, err)
	}

	ctx := &walkContext{
		opts:     &e.opts,
		tf:       fset.File(file.Pos()),
		file:     file,
		filename: filename,
		resolver: newAliasResolver(file),
		sp:       newSplicer(src),
	}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Body != nil {
				ctx.enterFuncDecl(d)
			}
		case *ast.GenDecl:
			// package-level initializers may hold coroutine literals
			ctx.walkFuncLits(d)
		}
	}
	return ctx.sp.finalize(), nil
}

// walkContext is the per-call traversal state, created fresh for each
// instrumentation and discarded when the call returns. Threading it explicitly
// keeps the Engine reentrant.
type walkContext struct {
	opts     *Options
	tf       *token.File
	file     *ast.File
	filename string
	resolver *aliasResolver
	sp       *splicer
	// stack mirrors the nesting depth of function-like nodes; the top frame is
	// the innermost enclosing function.
	stack []*functionFrame
	// importEmitted is set once the facility import has been spliced onto the
	// package clause. The import is emitted lazily, right before the first
	// snippet, so untouched sources stay byte-identical.
	importEmitted bool
}

func (ctx *walkContext) offset(pos token.Pos) int {
	return ctx.tf.Offset(pos)
}

func (ctx *walkContext) line(pos token.Pos) int {
	return ctx.tf.Line(pos)
}

func (ctx *walkContext) top() *functionFrame {
	if len(ctx.stack) == 0 {
		return nil
	}
	return ctx.stack[len(ctx.stack)-1]
}

func (ctx *walkContext) ensureImport() {
	if ctx.importEmitted {
		return
	}
	ctx.sp.consume(ctx.offset(ctx.file.Name.End()))
	ctx.sp.write(renderImportSnippet(ctx.opts))
	ctx.importEmitted = true
}

// receiverTypeName returns the base type name of a method receiver.
func receiverTypeName(recv *ast.FieldList) string {
	if recv == nil || len(recv.List) == 0 {
		return ""
	}
	expr := recv.List[0].Type
	if star, ok := expr.(*ast.StarExpr); ok {
		expr = star.X
	}
	if ident, ok := baseTypeName(expr).(*ast.Ident); ok {
		return ident.Name
	}
	return ""
}

// paramNames lists the forwardable parameter identifiers; blank and unnamed
// parameters are skipped, variadics pass as their slice.
func paramNames(ft *ast.FuncType) []string {
	if ft.Params == nil {
		return nil
	}
	var names []string
	for _, field := range ft.Params.List {
		for _, name := range field.Names {
			if name.Name != "_" {
				names = append(names, name.Name)
			}
		}
	}
	return names
}

func (ctx *walkContext) enterFuncDecl(d *ast.FuncDecl) {
	frame := &functionFrame{
		enclosingType: receiverTypeName(d.Recv),
		name:          d.Name.Name,
	}
	if d.Recv != nil {
		frame.kind = KindInstance
	}
	ctx.enterFunction(d.Type, d.Body, frame, ctx.line(d.Pos()))
}

func (ctx *walkContext) enterFuncLit(lit *ast.FuncLit) {
	line := ctx.line(lit.Pos())
	frame := &functionFrame{
		name: fmt.Sprintf("func@%d", line),
	}
	// a literal inside a method still reports the method's type
	if parent := ctx.top(); parent != nil {
		frame.enclosingType = parent.enclosingType
	}
	ctx.enterFunction(lit.Type, lit.Body, frame, line)
}

// enterFunction handles the enter event of any function-like node: classify
// once, push the frame, emit the entry snippet for a non-empty coroutine body,
// walk the body, pop. Classification consults the resolver here, before any
// child is examined, so no node is classified against unresolved type data.
func (ctx *walkContext) enterFunction(ft *ast.FuncType, body *ast.BlockStmt, frame *functionFrame, entryLine int) {
	frame.isCoroutine = classifyCoroutine(ft, ctx.resolver, ctx.opts.CoroutineAlias)
	frame.args = paramNames(ft)
	ctx.stack = append(ctx.stack, frame)

	if frame.isCoroutine && body != nil && len(body.List) > 0 {
		first := body.List[0]
		ctx.ensureImport()
		ctx.sp.consume(ctx.offset(first.Pos()))
		ctx.sp.write(renderEntrySnippet(ctx.opts, ctx.filename, entryLine, frame))
		// pre-empts a duplicate snippet when the first statement suspends on
		// the same line it starts on
		frame.lastInstrumentedLine = ctx.line(first.Pos())
	}
	if body != nil {
		ctx.walkBlock(body.List)
	}

	ctx.stack = ctx.stack[:len(ctx.stack)-1]
}

func (ctx *walkContext) walkBlock(stmts []ast.Stmt) {
	for _, st := range stmts {
		ctx.walkStmt(st, ctx.offset(st.Pos()))
	}
}

// walkStmt processes one statement with a given insertion anchor. The anchor
// is the byte offset where line-update snippets for suspension points found in
// this statement's header expressions must land: always a statement-context
// position, and never behind the splice cursor. Nodes are visited strictly in
// source order so the per-function line gate only ever deduplicates points
// sharing a line, never points an earlier span already passed.
func (ctx *walkContext) walkStmt(st ast.Stmt, anchor int) {
	switch s := st.(type) {
	case *ast.BlockStmt:
		ctx.walkBlock(s.List)
	case *ast.LabeledStmt:
		// insert before the label, not between label and statement
		ctx.walkStmt(s.Stmt, anchor)
	case *ast.IfStmt:
		ctx.walkIfChain(s, anchor)
	case *ast.ForStmt:
		if s.Init != nil {
			ctx.scanSuspensions(s.Init, anchor)
		}
		if s.Cond != nil {
			ctx.scanSuspensions(s.Cond, anchor)
		}
		if s.Post != nil {
			ctx.scanSuspensions(s.Post, anchor)
		}
		if s.Init != nil {
			ctx.walkFuncLits(s.Init)
		}
		if s.Cond != nil {
			ctx.walkFuncLits(s.Cond)
		}
		if s.Post != nil {
			ctx.walkFuncLits(s.Post)
		}
		ctx.walkBlock(s.Body.List)
	case *ast.RangeStmt:
		ctx.scanSuspensions(s.X, anchor)
		ctx.walkFuncLits(s.X)
		ctx.walkBlock(s.Body.List)
	case *ast.SwitchStmt:
		if s.Init != nil {
			ctx.scanSuspensions(s.Init, anchor)
		}
		if s.Tag != nil {
			ctx.scanSuspensions(s.Tag, anchor)
		}
		if s.Init != nil {
			ctx.walkFuncLits(s.Init)
		}
		if s.Tag != nil {
			ctx.walkFuncLits(s.Tag)
		}
		for _, cs := range s.Body.List {
			cc, ok := cs.(*ast.CaseClause)
			if !ok {
				continue
			}
			// a case expression has no statement position of its own; its
			// suspensions anchor just inside the clause it selects
			clauseAnchor := ctx.offset(cc.Colon) + 1
			for _, expr := range cc.List {
				ctx.walkFuncLits(expr)
			}
			for _, expr := range cc.List {
				ctx.scanSuspensions(expr, clauseAnchor)
			}
			ctx.walkBlock(cc.Body)
		}
	case *ast.TypeSwitchStmt:
		if s.Init != nil {
			ctx.scanSuspensions(s.Init, anchor)
		}
		ctx.scanSuspensions(s.Assign, anchor)
		if s.Init != nil {
			ctx.walkFuncLits(s.Init)
		}
		ctx.walkFuncLits(s.Assign)
		for _, cs := range s.Body.List {
			if cc, ok := cs.(*ast.CaseClause); ok {
				ctx.walkBlock(cc.Body)
			}
		}
	case *ast.SelectStmt:
		for _, cs := range s.Body.List {
			cc, ok := cs.(*ast.CommClause)
			if !ok {
				continue
			}
			clauseAnchor := ctx.offset(cc.Colon) + 1
			if cc.Comm != nil {
				ctx.walkFuncLits(cc.Comm)
				ctx.scanSuspensions(cc.Comm, clauseAnchor)
			}
			ctx.walkBlock(cc.Body)
		}
	default:
		// simple statements: returns, assignments, expressions, declarations,
		// go/defer, sends
		ctx.scanSuspensions(st, anchor)
		ctx.walkFuncLits(st)
	}
}

// walkIfChain visits an if/else-if chain strictly in source order. The head's
// header expressions anchor at the chain's statement anchor. An else-if header
// has no statement-context position of its own and is only evaluated after the
// earlier branches were declined, so its suspensions anchor just inside that
// branch's own body; the splice cursor passes each branch body before the next
// header is examined, keeping it monotonic.
func (ctx *walkContext) walkIfChain(s *ast.IfStmt, anchor int) {
	if s.Init != nil {
		ctx.scanSuspensions(s.Init, anchor)
	}
	ctx.scanSuspensions(s.Cond, anchor)
	if s.Init != nil {
		ctx.walkFuncLits(s.Init)
	}
	ctx.walkFuncLits(s.Cond)
	ctx.walkBlock(s.Body.List)
	for {
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			ctx.walkBlock(e.List)
			return
		case *ast.IfStmt:
			// literals in the header sit before the body anchor and must be
			// entered first so the cursor never rewinds past an emitted snippet
			if e.Init != nil {
				ctx.walkFuncLits(e.Init)
			}
			ctx.walkFuncLits(e.Cond)
			branchAnchor := ctx.offset(e.Body.Lbrace) + 1
			if e.Init != nil {
				ctx.scanSuspensions(e.Init, branchAnchor)
			}
			ctx.scanSuspensions(e.Cond, branchAnchor)
			ctx.walkBlock(e.Body.List)
			s = e
		default:
			return
		}
	}
}

// scanSuspensions finds suspension points within a node, excluding nested
// function literals (their own enter event owns them), and emits a line-update
// snippet at the anchor for each point that advances the enclosing coroutine's
// line gate.
func (ctx *walkContext) scanSuspensions(node ast.Node, anchor int) {
	ast.Inspect(node, func(n ast.Node) bool {
		if _, ok := n.(*ast.FuncLit); ok {
			return false
		}
		if call, ok := n.(*ast.CallExpr); ok {
			if ident, ok := call.Fun.(*ast.Ident); ok && ident.Name == ctx.opts.YieldIdent {
				ctx.onSuspensionPoint(call, anchor)
			}
		}
		return true
	})
}

func (ctx *walkContext) onSuspensionPoint(call *ast.CallExpr, anchor int) {
	frame := ctx.top()
	if frame == nil {
		invariantFailure("suspension point at offset %d outside any function", ctx.offset(call.Pos()))
	}
	if !frame.isCoroutine {
		return
	}
	line := ctx.line(call.Pos())
	if line <= frame.lastInstrumentedLine {
		return // this gate is what prevents duplicate snippets on one line
	}
	ctx.ensureImport()
	ctx.sp.consume(anchor)
	ctx.sp.write(renderLineSnippet(ctx.opts, line))
	frame.lastInstrumentedLine = line
}

// walkFuncLits dispatches the enter event for every function literal in the
// node, outermost first; literal bodies are then walked as regular blocks.
func (ctx *walkContext) walkFuncLits(node ast.Node) {
	ast.Inspect(node, func(n ast.Node) bool {
		if lit, ok := n.(*ast.FuncLit); ok {
			ctx.enterFuncLit(lit)
			return false
		}
		return true
	})
}
