package deps_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/parser"
)

// analyze parses each source as its own file and runs the analyzer.
func analyze(t *testing.T, sources ...string) (*deps.Result, []*ast.Unit, error) {
	t.Helper()
	var units []*ast.Unit
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
			t.Fatalf("scan %s: %v", name, err)
		}
		units = append(units, u)
		deltas = append(deltas, c)
	}
	cat, _, err := catalog.Merge(nil, deltas...)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	res, err := deps.Analyze(cat, units, nil)
	return res, units, err
}

func mustAnalyze(t *testing.T, sources ...string) *deps.Result {
	t.Helper()
	res, _, err := analyze(t, sources...)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	return res
}

func TestConstantOnlyRule(t *testing.T) {
	res := mustAnalyze(t, "constant $a = 1 + 2\nassert r1 satisfied $a == 3")
	info, ok := res.Info(catalog.KindRule, "r1")
	if !ok {
		t.Fatal("r1 not analyzed")
	}
	if strings.Join(info.Constants, ",") != "a" {
		t.Errorf("constants: got %v, want [a]", info.Constants)
	}
	if info.ReadsInstance || info.ReadsExternalTaxonomy {
		t.Errorf("r1 should read nothing: %+v", info)
	}
}

func TestClosureAcrossFiles(t *testing.T) {
	res := mustAnalyze(t,
		"constant $base = {@concept = *}\nconstant $mid = $base + 1",
		"function f($x) $x + $mid\nassert r1 satisfied f(2) > 0",
	)
	info, _ := res.Info(catalog.KindRule, "r1")
	if strings.Join(info.Constants, ",") != "base,mid" {
		t.Errorf("constants: got %v", info.Constants)
	}
	if strings.Join(info.Functions, ",") != "f" {
		t.Errorf("functions: got %v", info.Functions)
	}
	if !info.ReadsInstance {
		t.Error("r1 reads the instance through $base")
	}

	// Closure property: every constant's own closure is included.
	for _, d := range res.Decls {
		for _, c := range d.Info.Constants {
			ci, ok := res.Info(catalog.KindConstant, c)
			if !ok {
				t.Fatalf("constant %s missing", c)
			}
			for _, cc := range ci.Constants {
				if !d.Info.UsesConstant(cc) {
					t.Errorf("%s uses %s but not %s", d.Name, c, cc)
				}
			}
		}
	}
}

func TestOrderIsDependenciesFirst(t *testing.T) {
	res := mustAnalyze(t, "assert r satisfied $c > 0\nconstant $c = $b\nconstant $b = $a\nconstant $a = 1")
	pos := make(map[string]int)
	for i, d := range res.Decls {
		pos[d.Name] = i
	}
	if !(pos["a"] < pos["b"] && pos["b"] < pos["c"] && pos["c"] < pos["r"]) {
		t.Errorf("bad order: %v", pos)
	}
}

func TestTaxonomyAccess(t *testing.T) {
	res := mustAnalyze(t,
		"assert local satisfied taxonomy() != none",
		"assert external satisfied taxonomy('http://example.com/tax.xsd') != none",
		"assert nav satisfied navigate parent-child descendants from Assets",
		"assert navext satisfied navigate parent-child descendants from Assets taxonomy taxonomy('x')",
	)
	tests := []struct {
		rule          string
		instance, ext bool
	}{
		{"local", true, false},
		{"external", false, true},
		{"nav", true, false},
		{"navext", false, true},
	}
	for _, tt := range tests {
		info, _ := res.Info(catalog.KindRule, tt.rule)
		if info.ReadsInstance != tt.instance || info.ReadsExternalTaxonomy != tt.ext {
			t.Errorf("%s: got %+v", tt.rule, info)
		}
	}
}

func TestRecursiveFunctionsAllowed(t *testing.T) {
	res := mustAnalyze(t,
		"function even($n) if $n == 0 true else odd($n - 1)\nfunction odd($n) if $n == 0 false else even($n - 1)\nassert r satisfied even(4)")
	info, _ := res.Info(catalog.KindRule, "r")
	if strings.Join(info.Functions, ",") != "even,odd" {
		t.Errorf("got %v", info.Functions)
	}
	even, _ := res.Info(catalog.KindFunction, "even")
	if !even.UsesFunction("even") {
		t.Error("recursive function should list itself")
	}
}

func TestConstantCycle(t *testing.T) {
	_, _, err := analyze(t, "constant $a = $b + 1\nconstant $b = $a")
	var cyc *deps.CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if cyc.Diagnostic().Code != diagnostics.ECycle {
		t.Errorf("got %+v", cyc.Diagnostic())
	}
	if !strings.Contains(err.Error(), "$a") || !strings.Contains(err.Error(), "$b") {
		t.Errorf("message should show the path: %s", err)
	}
}

func TestUndefinedVariable(t *testing.T) {
	_, _, err := analyze(t, "assert r1 satisfied $undefined > 0")
	var undef *deps.UndefinedError
	if !errors.As(err, &undef) {
		t.Fatalf("expected *UndefinedError, got %v", err)
	}
	if undef.Name != "$undefined" || undef.Decl != "r1" {
		t.Errorf("got %+v", undef)
	}
	d := undef.Diagnostic()
	if d.Code != diagnostics.EUndefined || d.Decl != "r1" || d.Span == nil || d.Span.StartLine != 1 {
		t.Errorf("got %+v", d)
	}
}

func TestUndefinedFunction(t *testing.T) {
	_, _, err := analyze(t, "assert r1 satisfied nosuch(1)")
	var undef *deps.UndefinedError
	if !errors.As(err, &undef) || undef.Name != "nosuch()" {
		t.Fatalf("expected undefined nosuch(), got %v", err)
	}
}

func TestScopes(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ok   bool
	}{
		{"block sequential", "assert r satisfied $x = 1; $y = $x + 1; $y > 0", true},
		{"block reassign", "assert r satisfied $x = 1; $x = $x + 1; $x > 0", true},
		{"self reference", "assert r satisfied $x = $x + 1; $x > 0", false},
		{"loop var", "assert r satisfied for ($v in [1, 2]) $v > 0", true},
		{"loop var outside", "assert r satisfied (for ($v in [1, 2]) $v) == $v", false},
		{"fact in where", "assert r satisfied {@concept = * where $fact > 0}", true},
		{"alias", "assert r satisfied {@concept = * as $c where $c != none}", true},
		{"item", "assert r satisfied filter [1, 2] where $item > 1", true},
		{"argument", "function f($a) $a + 1\nassert r satisfied f(1) > 0", true},
		{"argument leaks", "function f($a) $a\nassert r satisfied $a > 0", false},
		{"rule block visible in results", "assert r satisfied $x = 1; $x > 0\nmessage \"{$x}\" + string($x)", true},
		{"inner block hidden", "assert r satisfied ($x = 1; $x) > 0\nmessage string($x)", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := analyze(t, tt.src)
			if (err == nil) != tt.ok {
				t.Errorf("got err %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestRefsTagged(t *testing.T) {
	res, units, err := analyze(t, "constant $k = 1\nfunction f($a) $a\nassert r satisfied $x = $k; for ($v in [$x]) f($v) > 0")
	if err != nil {
		t.Fatal(err)
	}
	kinds := make(map[string]deps.RefKind)
	ast.Walk(units[0].Root, func(n ast.Node) bool {
		if ref, ok := n.(*ast.VarRef); ok {
			r, found := res.Ref(1, ref.ID)
			if !found {
				t.Errorf("$%s at %d not resolved", ref.Name, ref.ID)
			}
			kinds[ref.Name] = r.Kind
		}
		return true
	}, nil)
	want := map[string]deps.RefKind{
		"k": deps.RefConstant,
		"a": deps.RefArgument,
		"x": deps.RefLocal,
		"v": deps.RefLoop,
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Errorf("$%s: got %s, want %s", name, kinds[name], kind)
		}
	}
}

func TestArityWarning(t *testing.T) {
	res := mustAnalyze(t, "function f($a, $b) $a + $b\nassert r satisfied f(1) > 0 and abs(1, 2) > 0")
	if len(res.Warnings) != 2 {
		t.Fatalf("expected 2 warnings, got %+v", res.Warnings)
	}
	for _, w := range res.Warnings {
		if w.Code != diagnostics.WArity || w.Decl != "r" {
			t.Errorf("got %+v", w)
		}
	}
}
