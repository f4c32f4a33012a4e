// Package iterability annotates every node of a rule set with its
// cardinality, alignment, variable dependencies and iterable
// dependencies, and groups co-dependent iterables into tables.
package iterability

import (
	"errors"
	"fmt"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/builtins"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/value"
)

// Result clause names every rule accepts.
var standardResults = map[string]bool{
	"message":     true,
	"severity":    true,
	"rule-focus":  true,
	"rule-suffix": true,
}

// Option configures Analyze.
type Option func(*analyzer)

// WithBuiltins sets the built-in registry used to classify aggregates.
func WithBuiltins(reg *builtins.Registry) Option {
	return func(a *analyzer) {
		a.builtins = reg
	}
}

// WithReused supplies annotations of an unchanged file. Its declarations
// are not re-analyzed and the annotations are returned as given.
func WithReused(file int, ann *FileAnnotations) Option {
	return func(a *analyzer) {
		a.reused[file] = ann
	}
}

type analyzer struct {
	cat      *catalog.Catalog
	deps     *deps.Result
	builtins *builtins.Registry
	units    map[int]*ast.Unit
	reused   map[int]*FileAnnotations
	result   *Result

	// per declaration
	unit     *ast.Unit
	ann      *FileAnnotations
	declName string
	used     map[ast.NodeID]bool
	err      error
}

// Analyze annotates every declaration of the rule set. Declarations are
// visited in dependency order so a referenced constant or function is
// complete before its first use.
func Analyze(cat *catalog.Catalog, units []*ast.Unit, dr *deps.Result, opts ...Option) (*Result, error) {
	a := &analyzer{
		cat:    cat,
		deps:   dr,
		units:  make(map[int]*ast.Unit, len(units)),
		reused: make(map[int]*FileAnnotations),
		result: &Result{Files: make(map[int]*FileAnnotations)},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.builtins == nil {
		a.builtins = builtins.Default()
	}
	for _, u := range units {
		a.units[u.ID] = u
		if ann, ok := a.reused[u.ID]; ok {
			a.result.Files[u.ID] = ann
			continue
		}
		a.result.Files[u.ID] = &FileAnnotations{Nodes: make(map[ast.NodeID]*Info)}
	}

	for _, d := range dr.Decls {
		if _, ok := a.reused[d.File]; ok {
			continue
		}
		u, ok := a.units[d.File]
		if !ok {
			return nil, fmt.Errorf("%s '%s': file %d is not loaded", d.Kind, d.Name, d.File)
		}
		decl, ok := u.Index.Node(d.Node).(ast.Decl)
		if !ok {
			return nil, fmt.Errorf("%s '%s': node %d is not a declaration", d.Kind, d.Name, d.Node)
		}
		if err := a.analyzeDecl(u, d.Name, decl); err != nil {
			return nil, err
		}
	}
	return a.result, nil
}

func (a *analyzer) analyzeDecl(u *ast.Unit, name string, decl ast.Decl) error {
	a.unit = u
	a.ann = a.result.Files[u.ID]
	a.declName = name
	a.used = make(map[ast.NodeID]bool)
	a.err = nil

	ast.Walk(decl, func(ast.Node) bool {
		return a.err == nil
	}, a.exit)
	if a.err != nil {
		return a.err
	}
	a.reportUnused(decl)
	assignTables(decl, a.ann, a.isAggregate)
	return nil
}

func (a *analyzer) info(n ast.Node) *Info {
	if n == nil {
		return singleInfo()
	}
	if i := a.ann.Nodes[n.NodeID()]; i != nil {
		return i
	}
	return singleInfo()
}

func singleInfo() *Info {
	return &Info{Cardinality: Single, Type: value.TypeUnknown}
}

// combine derives the default annotation of n from its children: multi if
// any child is multi, aligned if any child is aligned, and the union of
// their dependencies.
func (a *analyzer) combine(n ast.Node) *Info {
	out := singleInfo()
	for _, c := range ast.Children(n) {
		ci := a.info(c)
		if ci.IsMulti() {
			out.Cardinality = Multi
		}
		out.HasAlignment = out.HasAlignment || ci.HasAlignment
		out.VarRefs = unionVars(out.VarRefs, ci.VarRefs)
		out.DependentVars = unionVars(out.DependentVars, ci.DependentVars)
		out.DependentIterables = unionIDs(out.DependentIterables, ci.DependentIterables)
		out.DownstreamIterables = unionIDs(out.DownstreamIterables, ci.DownstreamIterables)
		if ci.IsIterable {
			out.DownstreamIterables = unionIDs(out.DownstreamIterables, []ast.NodeID{c.NodeID()})
		}
	}
	return out
}

func (a *analyzer) exit(n ast.Node) {
	if a.err != nil {
		return
	}
	info := a.combine(n)
	switch node := n.(type) {
	case *ast.IntLiteral, *ast.DecimalLiteral, *ast.FloatLiteral, *ast.StrLiteral,
		*ast.BoolLiteral, *ast.NoneLiteral, *ast.KeywordLiteral, *ast.QName:
		info.Type = value.TypeOf(node.(ast.Expr))
	case *ast.ListExpr:
		info.Type = value.TypeList
	case *ast.UnaryExpr:
		info.Type = unaryType(node.Op, a.info(node.Operand).Type)
	case *ast.BinaryExpr:
		a.binary(node, info)
	case *ast.VarRef:
		a.varRef(node, info)
	case *ast.VarDecl:
		a.varDecl(node, info)
	case *ast.FuncCall:
		a.call(node, info)
	case *ast.FactSelector:
		a.selector(node, info)
	case *ast.ForExpr:
		a.loop(node, info)
	case *ast.IfExpr:
		a.conditional(node)
	case *ast.BlockExpr:
		a.block(node, info)
	case *ast.ResultClause:
		a.resultClause(node, info)
	case *ast.ConstantDecl:
		a.inherit(info, a.info(node.Value))
	case *ast.FunctionDecl:
		a.inherit(info, a.info(node.Body))
	case *ast.RuleDecl:
		info.Type = a.info(node.Body).Type
	}
	info.VarRefs = a.dropInner(n, info.VarRefs)
	info.DependentVars = a.dropInner(n, info.DependentVars)
	a.ann.Nodes[n.NodeID()] = info
}

// inherit copies the value-level attributes of src.
func (a *analyzer) inherit(dst, src *Info) {
	dst.Cardinality = src.Cardinality
	dst.HasAlignment = src.HasAlignment
	dst.Type = src.Type
	dst.DependentIterables = src.DependentIterables
	dst.VarRefs = src.VarRefs
	dst.DependentVars = src.DependentVars
}

// dropInner removes bindings declared inside n's subtree.
func (a *analyzer) dropInner(n ast.Node, keys []VarKey) []VarKey {
	var out []VarKey
	for _, k := range keys {
		if k.Decl != 0 && a.unit.Index.Contains(n.NodeID(), k.Decl) {
			continue
		}
		out = append(out, k)
	}
	return out
}

// outside keeps the iterables that lie outside n's subtree.
func (a *analyzer) outside(n ast.Node, ids []ast.NodeID) []ast.NodeID {
	var out []ast.NodeID
	for _, id := range ids {
		if !a.unit.Index.Contains(n.NodeID(), id) {
			out = append(out, id)
		}
	}
	return out
}

func (a *analyzer) fail(err error) {
	if a.err == nil {
		a.err = err
	}
}

func (a *analyzer) warn(code, msg string, span ast.Span) {
	d := diagnostics.MakeDiag(code, msg, &span, "").InDecl(a.declName)
	a.ann.Warnings = append(a.ann.Warnings, d)
}

func unaryType(op ast.UnaryOp, t value.Type) value.Type {
	if op == ast.OpNot {
		return value.TypeBoolean
	}
	if t.IsNumeric() {
		return t
	}
	return value.TypeUnknown
}

func (a *analyzer) binary(n *ast.BinaryExpr, info *Info) {
	if t, ok := a.fold(n); ok {
		info.Type = t
		return
	}
	lt, rt := a.info(n.Left).Type, a.info(n.Right).Type
	t, err := value.Combine(value.Op(n.Op), lt, rt)
	if err != nil {
		a.warn(diagnostics.WType, err.Error(), n.Span)
	}
	info.Type = t
}

// fold evaluates a binary expression over two literals. It reports false
// when an operand is not a literal or the operation cannot be folded.
func (a *analyzer) fold(n *ast.BinaryExpr) (value.Type, bool) {
	lv, ok := value.FromLiteral(n.Left)
	if !ok {
		return value.TypeUnknown, false
	}
	rv, ok := value.FromLiteral(n.Right)
	if !ok {
		return value.TypeUnknown, false
	}
	v, err := value.Fold(value.Op(n.Op), lv, rv)
	var te *value.TypeError
	switch {
	case err == nil:
		return v.Type(), true
	case errors.As(err, &te):
		a.warn(diagnostics.WType, te.Error(), n.Span)
		return value.TypeUnknown, true
	}
	return value.TypeUnknown, false
}

func (a *analyzer) varRef(n *ast.VarRef, info *Info) {
	ref, ok := a.deps.Ref(a.unit.ID, n.ID)
	if !ok {
		a.fail(&deps.UndefinedError{Name: "$" + n.Name, Decl: a.declName, Span: n.Span})
		return
	}
	if ref.Kind == deps.RefConstant {
		ci := a.declInfo(catalog.KindConstant, ref.Constant)
		key := VarKey{Constant: ref.Constant}
		info.Cardinality = ci.Cardinality
		info.HasAlignment = ci.HasAlignment
		info.Type = ci.Type
		info.VarRefs = []VarKey{key}
		info.DependentVars = []VarKey{key}
		if ci.IsMulti() {
			info.IsIterable = true
			info.DependentIterables = []ast.NodeID{n.ID}
		}
		return
	}

	a.used[ref.Decl] = true
	bi := a.info(a.unit.Index.Node(ref.Decl))
	key := VarKey{Decl: ref.Decl}
	info.Cardinality = bi.Cardinality
	info.HasAlignment = bi.HasAlignment
	info.Type = bi.Type
	info.DependentIterables = bi.DependentIterables
	info.VarRefs = []VarKey{key}
	info.DependentVars = unionVars([]VarKey{key}, bi.DependentVars)
}

func (a *analyzer) varDecl(n *ast.VarDecl, info *Info) {
	switch n.Binding {
	case ast.BindLocal:
		a.inherit(info, a.info(n.Value))
	case ast.BindLoop:
		// One item of the control expression at a time.
		loop, _ := a.unit.Index.Node(a.unit.Index.Parent(n.ID)).(*ast.ForExpr)
		var ctrl *Info
		if loop != nil {
			ctrl = a.info(loop.Control)
		} else {
			ctrl = singleInfo()
		}
		info.Cardinality = Single
		info.HasAlignment = ctrl.HasAlignment
		info.DependentIterables = ctrl.DependentIterables
		info.DependentVars = ctrl.DependentVars
		info.VarRefs = nil
	default:
		*info = Info{Cardinality: Single, Type: bindingType(n.Binding)}
	}
}

func bindingType(b ast.BindingKind) value.Type {
	if b == ast.BindFact {
		return value.TypeFact
	}
	return value.TypeUnknown
}

// declInfo returns the root annotation of a constant or function, which
// dependency order guarantees is complete unless the function is recursive.
func (a *analyzer) declInfo(kind catalog.Kind, name string) *Info {
	loc, ok := a.cat.Lookup(kind, name)
	if !ok {
		return singleInfo()
	}
	if i := a.result.File(loc.File).Node(loc.Node); i != nil {
		return i
	}
	return singleInfo()
}

// isAggregate reports whether n calls a built-in aggregate. A user
// function shadows a built-in of the same name.
func (a *analyzer) isAggregate(n *ast.FuncCall) bool {
	if kind, _ := a.deps.Call(a.unit.ID, n.ID); kind == deps.CallUser {
		return false
	}
	return a.builtins.IsAggregate(n.Name, len(n.Args))
}

func (a *analyzer) call(n *ast.FuncCall, info *Info) {
	kind, _ := a.deps.Call(a.unit.ID, n.ID)
	switch {
	case kind == deps.CallUser:
		fi := a.declInfo(catalog.KindFunction, n.Name)
		if fi.IsMulti() {
			info.Cardinality = Multi
		}
		info.HasAlignment = info.HasAlignment || fi.HasAlignment
		info.Type = fi.Type
		if info.IsMulti() {
			info.IsIterable = true
			info.DependentIterables = unionIDs(info.DependentIterables, []ast.NodeID{n.ID})
		}
		info.Cacheable = len(withoutID(info.DependentIterables, n.ID)) == 0

	case a.isAggregate(n):
		arg := a.info(n.Args[0])
		if arg.HasAlignment {
			info.Cardinality = Multi
			info.HasAlignment = true
		} else {
			info.Cardinality = Single
			info.HasAlignment = false
		}
		info.IsIterable = info.IsMulti()
		info.DependentIterables = a.outside(n, info.DependentIterables)
		if info.IsIterable {
			info.DependentIterables = unionIDs(info.DependentIterables, []ast.NodeID{n.ID})
		}
		info.Type = aggregateType(n.Name)

	default:
		info.Type = builtinType(n.Name)
	}
}

func aggregateType(name string) value.Type {
	switch name {
	case "count":
		return value.TypeInteger
	case "all", "any":
		return value.TypeBoolean
	case "list":
		return value.TypeList
	case "set":
		return value.TypeSet
	case "dict":
		return value.TypeDictionary
	}
	return value.TypeUnknown
}

func builtinType(name string) value.Type {
	switch name {
	case "exists", "missing", "is_list", "is_set", "contains":
		return value.TypeBoolean
	case "string", "upper", "lower":
		return value.TypeString
	case "length":
		return value.TypeInteger
	case "qname":
		return value.TypeQName
	case "date":
		return value.TypeInstant
	case "taxonomy":
		return value.TypeTaxonomy
	}
	return value.TypeUnknown
}

func (a *analyzer) selector(n *ast.FactSelector, info *Info) {
	info.Cardinality = Multi
	info.IsIterable = true
	info.Type = value.TypeFact
	info.HasAlignment = !n.Covered && !pinned(n)
	info.DependentIterables = unionIDs(a.outside(n, info.DependentIterables), []ast.NodeID{n.ID})
	// Aspect filters scope the selection; only the where clause reads data.
	info.VarRefs = nil
	if n.Where != nil {
		info.VarRefs = a.info(n.Where).VarRefs
	}
}

// pinned reports whether the selector fixes concept, period, entity and
// unit, and every dimension it names, to literal values.
func pinned(n *ast.FactSelector) bool {
	fixed := make(map[string]bool)
	for _, f := range n.Filters {
		lit := f.Op == "=" && !f.Wildcard && f.Value != nil && value.TypeOf(f.Value) != value.TypeUnknown
		if f.Aspect == ast.AspectDimension {
			if !lit {
				return false
			}
			continue
		}
		if lit {
			fixed[f.Aspect] = true
		}
	}
	for _, aspect := range []string{ast.AspectConcept, ast.AspectPeriod, ast.AspectEntity, ast.AspectUnit} {
		if !fixed[aspect] {
			return false
		}
	}
	return true
}

func (a *analyzer) loop(n *ast.ForExpr, info *Info) {
	ctrl := a.info(n.Control)
	body := a.info(n.Body)
	v := VarKey{Decl: n.Var.ID}
	if hasVar(body.DependentVars, v) {
		body.VarRefs = unionVars(body.VarRefs, ctrl.VarRefs)
	}
	info.Cardinality = Multi
	info.IsIterable = true
	info.Type = value.TypeList
	info.VarRefs = body.VarRefs
	info.DependentIterables = unionIDs(
		a.outside(n, unionIDs(ctrl.DependentIterables, body.DependentIterables)),
		[]ast.NodeID{n.ID},
	)
}

func (a *analyzer) conditional(n *ast.IfExpr) {
	for i, cond := range n.Conds {
		then := a.info(n.Thens[i])
		then.DependentIterables = unionIDs(then.DependentIterables, a.info(cond).DependentIterables)
	}
}

func (a *analyzer) block(n *ast.BlockExpr, info *Info) {
	downstream := info.DownstreamIterables
	a.inherit(info, a.info(n.Value))
	info.DownstreamIterables = downstream
}

func (a *analyzer) resultClause(n *ast.ResultClause, info *Info) {
	if !standardResults[n.Name] {
		if _, ok := a.cat.Lookup(catalog.KindOutputAttribute, n.Name); !ok {
			a.fail(&OutputAttributeError{Name: n.Name, Decl: a.declName, Span: n.Span})
			return
		}
	}
	info.Type = a.info(n.Value).Type
}

// reportUnused warns about block bindings no reference reads.
func (a *analyzer) reportUnused(decl ast.Decl) {
	ast.Walk(decl, func(n ast.Node) bool {
		if v, ok := n.(*ast.VarDecl); ok && v.Binding == ast.BindLocal && !a.used[v.ID] {
			a.warn(diagnostics.WUnused, fmt.Sprintf("variable '$%s' is never used", v.Name), v.Span)
		}
		return true
	}, nil)
}
