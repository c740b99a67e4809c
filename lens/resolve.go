package lens

import (
	"go/ast"
	"strconv"
	"strings"

	"golang.org/x/tools/go/ast/astutil"
)

// aliasResolver rewrites as-written type spellings to canonical fully-qualified
// names using the file's type alias declarations and import table. It is
// file-scoped and built once per instrumentation call, before the traversal
// consults it on each function's enter event.
type aliasResolver struct {
	// aliases maps a local alias name to its right-hand side type expression.
	aliases map[string]ast.Expr
	// imports maps a local package name to its import path.
	imports map[string]string
}

func newAliasResolver(file *ast.File) *aliasResolver {
	r := &aliasResolver{
		aliases: make(map[string]ast.Expr),
		imports: make(map[string]string),
	}
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := path
		if idx := strings.LastIndex(path, "/"); idx >= 0 {
			name = path[idx+1:]
		}
		if imp.Name != nil {
			name = imp.Name.Name
		}
		r.imports[name] = path
	}
	for _, decl := range file.Decls {
		genDecl, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		for _, spec := range genDecl.Specs {
			// only alias declarations participate: `type X = Y`
			if ts, ok := spec.(*ast.TypeSpec); ok && ts.Assign.IsValid() {
				r.aliases[ts.Name.Name] = ts.Type
			}
		}
	}
	return r
}

// baseTypeName strips parens and type arguments down to the named type
// expression: `(Coro[int])` -> `Coro`, `iter.Seq[K, V]` -> `iter.Seq`.
func baseTypeName(expr ast.Expr) ast.Expr {
	for {
		switch t := astutil.Unparen(expr).(type) {
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		default:
			return t
		}
	}
}

// resolve returns the canonical fully-qualified name for a type expression,
// following local alias chains. The empty string means the expression does not
// resolve to a named type (or an alias cycle was hit).
func (r *aliasResolver) resolve(expr ast.Expr) string {
	return r.resolveGuarded(expr, make(map[string]bool))
}

func (r *aliasResolver) resolveGuarded(expr ast.Expr, seen map[string]bool) string {
	switch t := baseTypeName(expr).(type) {
	case *ast.Ident:
		if seen[t.Name] {
			return "" // alias cycle
		}
		seen[t.Name] = true
		if rhs, ok := r.aliases[t.Name]; ok {
			return r.resolveGuarded(rhs, seen)
		}
		return t.Name // file-local named type, already canonical
	case *ast.SelectorExpr:
		pkgIdent, ok := t.X.(*ast.Ident)
		if !ok {
			return ""
		}
		if path, ok := r.imports[pkgIdent.Name]; ok {
			return path + "." + t.Sel.Name
		}
		return pkgIdent.Name + "." + t.Sel.Name
	default:
		return ""
	}
}
