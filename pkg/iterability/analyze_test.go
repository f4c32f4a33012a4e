package iterability_test

import (
	"errors"
	"testing"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/iterability"
	"github.com/thomasrohde/rulec/pkg/parser"
	"github.com/thomasrohde/rulec/pkg/value"
)

type fixture struct {
	units []*ast.Unit
	cat   *catalog.Catalog
	deps  *deps.Result
}

func newFixture(t *testing.T, sources ...string) *fixture {
	t.Helper()
	fx := &fixture{}
	var deltas []*catalog.Catalog
	for i, src := range sources {
		name := string(rune('a'+i)) + ".xule"
		f, err := parser.Parse(src, name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		u := ast.NewUnit(i+1, name, f)
		c, _, err := catalog.Scan(u)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		fx.units = append(fx.units, u)
		deltas = append(deltas, c)
	}
	cat, _, err := catalog.Merge(nil, deltas...)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	fx.cat = cat
	fx.deps, err = deps.Analyze(cat, fx.units, nil)
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	return fx
}

func (fx *fixture) analyze(opts ...iterability.Option) (*iterability.Result, error) {
	return iterability.Analyze(fx.cat, fx.units, fx.deps, opts...)
}

func mustAnalyze(t *testing.T, sources ...string) (*fixture, *iterability.Result) {
	t.Helper()
	fx := newFixture(t, sources...)
	res, err := fx.analyze()
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return fx, res
}

func nodesOf[T ast.Node](u *ast.Unit) []T {
	var out []T
	ast.Walk(u.Root, func(n ast.Node) bool {
		if t, ok := n.(T); ok {
			out = append(out, t)
		}
		return true
	}, nil)
	return out
}

func infoOf(t *testing.T, res *iterability.Result, file int, n ast.Node) *iterability.Info {
	t.Helper()
	info := res.File(file).Node(n.NodeID())
	if info == nil {
		t.Fatalf("%s %d has no annotation", n.Kind(), n.NodeID())
	}
	return info
}

func TestBareSelector(t *testing.T) {
	fx, res := mustAnalyze(t, "output r {}")
	sel := nodesOf[*ast.FactSelector](fx.units[0])[0]
	info := infoOf(t, res, 1, sel)

	if !info.IsMulti() || !info.HasAlignment || !info.IsIterable {
		t.Errorf("got %+v", info)
	}
	if info.TableID != sel.ID {
		t.Errorf("table: got %d, want own id %d", info.TableID, sel.ID)
	}
	if !info.DependsOnIterable(sel.ID) {
		t.Error("selector must depend on itself")
	}
}

func TestLoopBodyDependsOnControlSelector(t *testing.T) {
	fx, res := mustAnalyze(t, "output r for ($x in {@concept = *}) $x")
	loop := nodesOf[*ast.ForExpr](fx.units[0])[0]
	sel := nodesOf[*ast.FactSelector](fx.units[0])[0]

	loopInfo := infoOf(t, res, 1, loop)
	if !loopInfo.IsMulti() || !loopInfo.IsIterable || loopInfo.TableID != loop.ID {
		t.Errorf("loop: got %+v", loopInfo)
	}
	body := infoOf(t, res, 1, loop.Body)
	if !body.DependsOnIterable(sel.ID) {
		t.Errorf("body dependent iterables %v should include selector %d", body.DependentIterables, sel.ID)
	}
	if loopInfo.DependsOnIterable(sel.ID) {
		t.Error("the control selector belongs to the loop's own table")
	}
	if got := infoOf(t, res, 1, sel).TableID; got != loop.ID {
		t.Errorf("control selector table: got %d, want loop %d", got, loop.ID)
	}
	if got := loopInfo.DownstreamIterables; len(got) != 1 || got[0] != sel.ID {
		t.Errorf("downstream: got %v", got)
	}
}

const mixedSource = `
constant $facts = {@Assets}
function f($x) $x + 1
assert r satisfied
  $a = sum({@Liabilities});
  for ($v in {@concept = *}) f($v) + $facts + $a > count(list({@Equity}))
`

func TestIterablesIncludeThemselves(t *testing.T) {
	_, res := mustAnalyze(t, mixedSource)
	iterables := 0
	for id, info := range res.File(1).Nodes {
		if !info.IsIterable {
			continue
		}
		iterables++
		if !info.DependsOnIterable(id) {
			t.Errorf("node %d is iterable but not in its own dependent iterables %v", id, info.DependentIterables)
		}
	}
	if iterables < 6 {
		t.Errorf("expected several iterables, got %d", iterables)
	}
}

func TestTableAssignmentIsIdempotent(t *testing.T) {
	fx := newFixture(t, mixedSource)
	first, err := fx.analyze()
	if err != nil {
		t.Fatal(err)
	}
	second, err := fx.analyze()
	if err != nil {
		t.Fatal(err)
	}
	for id, info := range first.File(1).Nodes {
		other := second.File(1).Node(id)
		if other == nil || other.TableID != info.TableID {
			t.Errorf("node %d: table %d then %v", id, info.TableID, other)
		}
		if info.TableID == 0 {
			t.Errorf("node %d has no table", id)
		}
	}
}

func TestReusedAnnotationsReturnedVerbatim(t *testing.T) {
	fx := newFixture(t, "constant $c = {@Assets}", "assert r satisfied $c > 0")
	first, err := fx.analyze()
	if err != nil {
		t.Fatal(err)
	}
	kept := first.File(1)
	second, err := fx.analyze(iterability.WithReused(1, kept))
	if err != nil {
		t.Fatal(err)
	}
	if second.File(1) != kept {
		t.Error("reused file annotations must be the same value")
	}
	ref := nodesOf[*ast.VarRef](fx.units[1])[0]
	if info := infoOf(t, second, 2, ref); !info.IsMulti() || !info.IsIterable {
		t.Errorf("constant reference should inherit from the reused constant: %+v", info)
	}
}

func TestAggregates(t *testing.T) {
	fx, res := mustAnalyze(t, "assert a satisfied count({covered @concept = *}) > 0\nassert b satisfied sum({@Assets}) > 0")
	calls := nodesOf[*ast.FuncCall](fx.units[0])
	sels := nodesOf[*ast.FactSelector](fx.units[0])

	count := infoOf(t, res, 1, calls[0])
	if count.IsMulti() || count.HasAlignment || count.IsIterable {
		t.Errorf("count over unaligned argument should collapse: %+v", count)
	}
	if count.TableID != calls[0].ID {
		t.Errorf("aggregate opens its own table: got %d", count.TableID)
	}
	if got := infoOf(t, res, 1, sels[0]).TableID; got != calls[0].ID {
		t.Errorf("argument selector keeps the aggregate's table: got %d", got)
	}

	sum := infoOf(t, res, 1, calls[1])
	if !sum.IsMulti() || !sum.HasAlignment || !sum.IsIterable || !sum.DependsOnIterable(calls[1].ID) {
		t.Errorf("sum over aligned argument stays multi: %+v", sum)
	}
}

func TestUserFunctionShadowsAggregate(t *testing.T) {
	fx, res := mustAnalyze(t, "function count($x) $x + 1\nassert r satisfied count({@Assets}) > 0")
	call := nodesOf[*ast.FuncCall](fx.units[0])[0]
	sel := nodesOf[*ast.FactSelector](fx.units[0])[0]
	rule := nodesOf[*ast.RuleDecl](fx.units[0])[0]

	ci := infoOf(t, res, 1, call)
	if ci.TableID != rule.ID {
		t.Errorf("user call should stay in the rule's table %d, got %d", rule.ID, ci.TableID)
	}
	if !ci.IsMulti() {
		t.Errorf("user call over a selector should stay multi: %+v", ci)
	}
	if got := infoOf(t, res, 1, sel).TableID; got != sel.ID {
		t.Errorf("selector argument of a user call opens its own table: got %d, want %d", got, sel.ID)
	}
}

func TestSelectorAlignment(t *testing.T) {
	tests := []struct {
		src     string
		aligned bool
	}{
		{"output r {@Assets}", true},
		{"output r {covered @Assets}", false},
		{"output r {@concept = Assets @period = forever @entity = 'e' @unit = 'USD'}", false},
		{"output r {@concept = Assets @period = forever @entity = 'e' @unit = 'USD' @dim:Axis = dim:Member}", false},
		{"output r {@concept = Assets @period = forever @entity = 'e' @unit = 'USD' @dim:Axis = *}", true},
		{"output r {@concept = Assets @period = forever @entity = 'e'}", true},
	}
	for _, tt := range tests {
		fx, res := mustAnalyze(t, tt.src)
		sel := nodesOf[*ast.FactSelector](fx.units[0])[0]
		if got := infoOf(t, res, 1, sel).HasAlignment; got != tt.aligned {
			t.Errorf("%s: aligned=%v, want %v", tt.src, got, tt.aligned)
		}
	}
}

func TestConstantReference(t *testing.T) {
	fx, res := mustAnalyze(t, "constant $facts = {@Assets}\nconstant $one = 1\nassert r satisfied $facts > $one")
	refs := nodesOf[*ast.VarRef](fx.units[0])
	facts, one := infoOf(t, res, 1, refs[0]), infoOf(t, res, 1, refs[1])

	if !facts.IsMulti() || !facts.HasAlignment || !facts.IsIterable || !facts.DependsOnIterable(refs[0].ID) {
		t.Errorf("$facts: %+v", facts)
	}
	if len(facts.VarRefs) != 1 || facts.VarRefs[0].Constant != "facts" {
		t.Errorf("$facts refs: %+v", facts.VarRefs)
	}
	if one.IsMulti() || one.IsIterable || one.Type != "int" {
		t.Errorf("$one: %+v", one)
	}
}

func TestUserFunctionCall(t *testing.T) {
	fx, res := mustAnalyze(t, "function f($x) $x + 1\nassert a satisfied f({@A}) > 0\nassert b satisfied f(1) > 0")
	calls := nodesOf[*ast.FuncCall](fx.units[0])

	multi := infoOf(t, res, 1, calls[0])
	if !multi.IsMulti() || !multi.IsIterable || multi.Cacheable {
		t.Errorf("f({@A}): %+v", multi)
	}
	single := infoOf(t, res, 1, calls[1])
	if single.IsMulti() || single.IsIterable || !single.Cacheable {
		t.Errorf("f(1): %+v", single)
	}
}

func TestSelectorVarRefsComeFromWhereClause(t *testing.T) {
	fx, res := mustAnalyze(t, "constant $name = 'Assets'\nconstant $lim = 0\noutput r {@concept = $name where $fact > $lim}")
	sel := nodesOf[*ast.FactSelector](fx.units[0])[0]
	refs := infoOf(t, res, 1, sel).VarRefs

	has := func(name string) bool {
		for _, k := range refs {
			if k.Constant == name {
				return true
			}
		}
		return false
	}
	if !has("lim") {
		t.Errorf("where clause reference missing from %v", refs)
	}
	if has("name") {
		t.Errorf("aspect filter reference should be excluded, got %v", refs)
	}
}

func TestConditionPropagatesIntoOwnBranchOnly(t *testing.T) {
	fx, res := mustAnalyze(t, "assert r satisfied if {@A} > 0 1 else 2")
	ifx := nodesOf[*ast.IfExpr](fx.units[0])[0]
	sel := nodesOf[*ast.FactSelector](fx.units[0])[0]

	if !infoOf(t, res, 1, ifx.Thens[0]).DependsOnIterable(sel.ID) {
		t.Error("then branch should depend on the condition's selector")
	}
	if infoOf(t, res, 1, ifx.Else).DependsOnIterable(sel.ID) {
		t.Error("else branch must not depend on the condition's selector")
	}
}

func TestLoopControlReferencesReattached(t *testing.T) {
	fx, res := mustAnalyze(t,
		"assert used satisfied $lim = 5; for ($v in [$lim]) $v > 0",
		"assert unused satisfied $lim = 5; for ($v in [$lim]) 1")

	for i, wantLim := range []bool{true, false} {
		u := fx.units[i]
		loop := nodesOf[*ast.ForExpr](u)[0]
		lim := nodesOf[*ast.VarDecl](u)[0]
		info := infoOf(t, res, u.ID, loop)
		got := false
		for _, k := range info.VarRefs {
			if k.Decl == lim.ID {
				got = true
			}
		}
		if got != wantLim {
			t.Errorf("%s: loop refs %+v, want $lim=%v", u.Name, info.VarRefs, wantLim)
		}
		for _, k := range info.VarRefs {
			if k.Decl == loop.Var.ID {
				t.Errorf("%s: loop variable must not leak out of the loop", u.Name)
			}
		}
	}
}

func TestUnusedBinding(t *testing.T) {
	_, res := mustAnalyze(t, "assert r satisfied $x = 1; $y = 2; $x > 0")
	warns := res.Warnings()
	if len(warns) != 1 {
		t.Fatalf("expected one warning, got %+v", warns)
	}
	if warns[0].Code != diagnostics.WUnused || warns[0].Decl != "r" {
		t.Errorf("got %+v", warns[0])
	}
}

func TestOutputAttributes(t *testing.T) {
	fx := newFixture(t, "assert r satisfied true\nlabel 'x'")
	_, err := fx.analyze()
	var oa *iterability.OutputAttributeError
	if !errors.As(err, &oa) {
		t.Fatalf("expected *OutputAttributeError, got %v", err)
	}
	if oa.Name != "label" || oa.Decl != "r" || oa.Diagnostic().Code != diagnostics.EOutputAttribute {
		t.Errorf("got %+v", oa)
	}

	mustAnalyze(t, "output-attribute label\nassert r satisfied true\nlabel 'x'\nmessage 'm'\nseverity error")
}

func TestLiteralTypeMismatch(t *testing.T) {
	_, res := mustAnalyze(t, "assert r satisfied 1 + 'a' == 2")
	warns := res.Warnings()
	if len(warns) != 1 || warns[0].Code != diagnostics.WType {
		t.Fatalf("expected one W_TYPE, got %+v", warns)
	}
}

func TestLiteralFolding(t *testing.T) {
	tests := []struct {
		src  string
		want value.Type
	}{
		{"output r 1 / 4", value.TypeDecimal},
		{"output r 'a' + 'b'", value.TypeString},
		{"output r 'a' in 'abc'", value.TypeBoolean},
		{"output r 1.5 * 2", value.TypeDecimal},
	}
	for _, tt := range tests {
		fx, res := mustAnalyze(t, tt.src)
		bin := nodesOf[*ast.BinaryExpr](fx.units[0])[0]
		if got := infoOf(t, res, 1, bin).Type; got != tt.want {
			t.Errorf("%s: got %s, want %s", tt.src, got, tt.want)
		}
		if warns := res.Warnings(); len(warns) != 0 {
			t.Errorf("%s: unexpected warnings %+v", tt.src, warns)
		}
	}
}
