package deps

import (
	"fmt"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/builtins"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// RefKind says what a variable reference resolved to.
type RefKind string

const (
	RefLocal    = RefKind(ast.BindLocal)
	RefLoop     = RefKind(ast.BindLoop)
	RefArgument = RefKind(ast.BindArgument)
	RefFact     = RefKind(ast.BindFact)
	RefItem     = RefKind(ast.BindItem)
	RefAlias    = RefKind(ast.BindAlias)
	RefConstant RefKind = "constant"
)

// Ref is the resolution of one variable reference. Decl is the binding
// node in the same file for every kind except RefConstant.
type Ref struct {
	Kind     RefKind    `json:"kind" yaml:"kind"`
	Decl     ast.NodeID `json:"decl,omitempty" yaml:"decl,omitempty"`
	Constant string     `json:"constant,omitempty" yaml:"constant,omitempty"`
}

// CallKind says whether a call targets a declared or a built-in function.
type CallKind string

const (
	CallUser    CallKind = "user"
	CallBuiltin CallKind = "builtin"
)

type scope struct {
	bindings map[string]*ast.VarDecl
	parent   *scope
}

func newScope(parent *scope) *scope {
	return &scope{bindings: make(map[string]*ast.VarDecl), parent: parent}
}

func (s *scope) lookup(name string) (*ast.VarDecl, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.bindings[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// add binds v. A later binding of the same name in one scope replaces the
// earlier one, so a block can reassign sequentially.
func (s *scope) add(v *ast.VarDecl) {
	s.bindings[v.Name] = v
}

// edges are the immediate dependencies of one declaration.
type edges struct {
	constants     map[string]bool
	functions     map[string]bool
	readsInstance bool
	readsExternal bool
}

func newEdges() *edges {
	return &edges{constants: make(map[string]bool), functions: make(map[string]bool)}
}

type resolver struct {
	cat      *catalog.Catalog
	builtins *builtins.Registry
	units    map[int]*ast.Unit
	refs     map[ast.NodeID]Ref
	calls    map[ast.NodeID]CallKind
	warns    []diagnostics.Diagnostic
}

// scan resolves every name inside one declaration and returns its
// immediate dependencies.
func (r *resolver) scan(declName string, d ast.Decl) (*edges, error) {
	e := newEdges()
	var err error
	sc := newScope(nil)
	shared := make(map[ast.NodeID]bool)

	ast.Walk(d, func(n ast.Node) bool {
		if err != nil {
			return false
		}
		switch node := n.(type) {
		case *ast.RuleDecl:
			sc = newScope(sc)
			// The rule's top-level block shares the rule scope so its
			// bindings reach the result clauses.
			if b, ok := node.Body.(*ast.BlockExpr); ok {
				shared[b.ID] = true
			}
		case *ast.ConstantDecl, *ast.FunctionDecl, *ast.ForExpr, *ast.FilterExpr:
			sc = newScope(sc)
		case *ast.BlockExpr:
			if !shared[node.ID] {
				sc = newScope(sc)
			}
		case *ast.FactSelector:
			sc = newScope(sc)
			e.readsInstance = true
		case *ast.NavigateExpr:
			if node.Taxonomy == nil {
				e.readsInstance = true
			} else {
				e.readsExternal = true
			}
		case *ast.VarRef:
			err = r.resolveVar(declName, node, sc, e)
		case *ast.FuncCall:
			err = r.resolveCall(declName, node, e)
		}
		return err == nil
	}, func(n ast.Node) {
		switch node := n.(type) {
		case *ast.VarDecl:
			sc.add(node)
		case *ast.RuleDecl, *ast.ConstantDecl, *ast.FunctionDecl, *ast.ForExpr,
			*ast.FilterExpr, *ast.FactSelector:
			sc = sc.parent
		case *ast.BlockExpr:
			if !shared[node.ID] {
				sc = sc.parent
			}
		}
	})
	return e, err
}

func (r *resolver) resolveVar(declName string, ref *ast.VarRef, sc *scope, e *edges) error {
	if v, ok := sc.lookup(ref.Name); ok {
		r.refs[ref.ID] = Ref{Kind: RefKind(v.Binding), Decl: v.ID}
		return nil
	}
	if _, ok := r.cat.Lookup(catalog.KindConstant, ref.Name); ok {
		r.refs[ref.ID] = Ref{Kind: RefConstant, Constant: ref.Name}
		e.constants[ref.Name] = true
		return nil
	}
	return &UndefinedError{Name: "$" + ref.Name, Decl: declName, Span: ref.Span}
}

func (r *resolver) resolveCall(declName string, call *ast.FuncCall, e *edges) error {
	if loc, ok := r.cat.Lookup(catalog.KindFunction, call.Name); ok {
		r.calls[call.ID] = CallUser
		e.functions[call.Name] = true
		if fn, ok := r.declAt(loc).(*ast.FunctionDecl); ok && len(fn.Params) != len(call.Args) {
			r.arityWarning(declName, call, fmt.Sprintf("%d", len(fn.Params)))
		}
		return nil
	}
	fn := r.builtins.Get(call.Name)
	if fn == nil {
		return &UndefinedError{Name: call.Name + "()", Decl: declName, Span: call.Span}
	}
	r.calls[call.ID] = CallBuiltin
	if !fn.AcceptsArity(len(call.Args)) {
		want := fmt.Sprintf("%d to %d", fn.MinArgs, fn.MaxArgs)
		if fn.MaxArgs == builtins.Variadic {
			want = fmt.Sprintf("at least %d", fn.MinArgs)
		} else if fn.MinArgs == fn.MaxArgs {
			want = fmt.Sprintf("%d", fn.MinArgs)
		}
		r.arityWarning(declName, call, want)
	}
	switch fn.Access {
	case builtins.AccessInstance:
		e.readsInstance = true
	case builtins.AccessTaxonomy:
		if len(call.Args) == 0 {
			e.readsInstance = true
		} else {
			e.readsExternal = true
		}
	}
	return nil
}

func (r *resolver) arityWarning(declName string, call *ast.FuncCall, want string) {
	span := call.Span
	d := diagnostics.MakeDiag(diagnostics.WArity,
		fmt.Sprintf("'%s' called with %d argument(s), expects %s", call.Name, len(call.Args), want),
		&span, "")
	r.warns = append(r.warns, d.InDecl(declName))
}

func (r *resolver) declAt(loc catalog.Location) ast.Decl {
	u, ok := r.units[loc.File]
	if !ok {
		return nil
	}
	d, _ := u.Index.Node(loc.Node).(ast.Decl)
	return d
}
