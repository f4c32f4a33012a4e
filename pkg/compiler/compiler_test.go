package compiler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/compiler"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/document"
	"github.com/thomasrohde/rulec/pkg/parser"
)

func compile(t *testing.T, c *compiler.Compiler, sources ...compiler.Source) *compiler.Output {
	t.Helper()
	out, err := c.Compile(context.Background(), sources)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return out
}

func src(name, content string) compiler.Source {
	return compiler.Source{Name: name, Content: content}
}

func TestCompileAssignsFileIDs(t *testing.T) {
	out := compile(t, compiler.New(),
		src("a.xule", "constant $c = 1"),
		src("b.xule", "output rb $c + 1"),
	)
	if len(out.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(out.Files))
	}
	for i, f := range out.Files {
		if f.ID != i+1 {
			t.Errorf("file %s: expected id %d, got %d", f.Name, i+1, f.ID)
		}
		if f.Hash != compiler.Hash(f.Source) {
			t.Errorf("file %s: hash mismatch", f.Name)
		}
		if f.Kept || f.Reused {
			t.Errorf("file %s: nothing should be kept on a first compile", f.Name)
		}
	}
	loc, ok := out.Catalog.Lookup(catalog.KindRule, "rb")
	if !ok || loc.File != 2 {
		t.Errorf("expected rb in file 2, got %+v (found=%v)", loc, ok)
	}
	info, ok := out.Deps.Info(catalog.KindRule, "rb")
	if !ok || !info.UsesConstant("c") {
		t.Errorf("expected rb to use constant c, got %+v", info)
	}
	if len(out.Diagnostics) != 0 {
		t.Errorf("unexpected diagnostics: %v", out.Diagnostics)
	}
}

func TestHash(t *testing.T) {
	if compiler.Hash("a") == compiler.Hash("b") {
		t.Error("different content should hash differently")
	}
	if len(compiler.Hash("")) != 64 {
		t.Errorf("expected hex sha-256, got %q", compiler.Hash(""))
	}
}

func TestSyntaxErrorsReportedTogether(t *testing.T) {
	_, err := compiler.New().Compile(context.Background(), []compiler.Source{
		src("a.xule", "output r ("),
		src("b.xule", "output fine 1"),
		src("c.xule", "constant = 1"),
	})
	var de *compiler.DiagnosticError
	if !errors.As(err, &de) {
		t.Fatalf("expected *DiagnosticError, got %T: %v", err, err)
	}
	if len(de.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d: %v", len(de.Diagnostics), de.Diagnostics)
	}
	var se *parser.SyntaxError
	if !errors.As(err, &se) {
		t.Errorf("expected the first *parser.SyntaxError to be wrapped")
	}
	for _, d := range de.Diagnostics {
		if !d.IsError() {
			t.Errorf("expected error severity: %+v", d)
		}
	}
}

func TestCatalogErrorAbortsCompilation(t *testing.T) {
	_, err := compiler.New().Compile(context.Background(), []compiler.Source{
		src("a.xule", "output r 1"),
		src("b.xule", "output r 2"),
	})
	var dup *catalog.DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected *catalog.DuplicateError, got %T: %v", err, err)
	}
	diags := compiler.Diagnostics(err)
	if len(diags) != 1 || diags[0].Code != diagnostics.EDuplicate {
		t.Errorf("expected one E_DUPLICATE, got %v", diags)
	}
}

func TestUndefinedIdentifier(t *testing.T) {
	_, err := compiler.New().Compile(context.Background(), []compiler.Source{
		src("a.xule", "output r $nope"),
	})
	var ue *deps.UndefinedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected *deps.UndefinedError, got %T: %v", err, err)
	}
	if ue.Decl != "r" {
		t.Errorf("expected error in r, got %q", ue.Decl)
	}
}

func TestDuplicateSourceName(t *testing.T) {
	_, err := compiler.New().Compile(context.Background(), []compiler.Source{
		src("a.xule", "output r 1"),
		src("a.xule", "output s 1"),
	})
	if err == nil || !strings.Contains(err.Error(), "given twice") {
		t.Errorf("expected duplicate source error, got %v", err)
	}
}

func TestUnchangedFileReusesAnnotations(t *testing.T) {
	first := compile(t, compiler.New(),
		src("a.xule", "constant $c = 1\noutput ra $c + 1"),
		src("b.xule", "output rb {@Assets}"),
	)
	second := compile(t, compiler.New(compiler.WithPrevious(first)),
		src("a.xule", "constant $c = 1\noutput ra $c + 1"),
		src("b.xule", "output rb {@Liabilities}"),
	)

	a := second.FileNamed("a.xule")
	if !a.Kept || !a.Reused || a.ID != 1 {
		t.Errorf("expected a.xule kept and reused with id 1, got %+v", a)
	}
	if a.Unit != first.FileNamed("a.xule").Unit {
		t.Error("expected the tree of a.xule to be carried over")
	}
	if second.Iterability.File(1) != first.Iterability.File(1) {
		t.Error("expected the annotations of a.xule to be reused verbatim")
	}

	b := second.FileNamed("b.xule")
	if b.Kept || b.ID != 3 {
		t.Errorf("expected b.xule recompiled with id 3, got %+v", b)
	}
	loc, ok := second.Catalog.Lookup(catalog.KindRule, "rb")
	if !ok || loc.File != 3 {
		t.Errorf("expected rb in file 3, got %+v", loc)
	}
	if second.Iterability.File(2) != nil {
		t.Error("stale file 2 should not be annotated")
	}
}

func TestDependentFileIsReanalyzed(t *testing.T) {
	first := compile(t, compiler.New(),
		src("a.xule", "output ra $c + 1"),
		src("b.xule", "constant $c = 1"),
	)
	second := compile(t, compiler.New(compiler.WithPrevious(first)),
		src("a.xule", "output ra $c + 1"),
		src("b.xule", "constant $c = {@Assets}"),
	)
	a := second.FileNamed("a.xule")
	if !a.Kept || a.Reused {
		t.Errorf("expected a.xule kept but re-analyzed, got %+v", a)
	}
	if second.Iterability.File(1) == first.Iterability.File(1) {
		t.Error("annotations of a.xule must not be reused when a dependency changed")
	}
	if ra := second.Deps.Lookup(catalog.KindRule, "ra"); ra == nil || !ra.Info.ReadsInstance {
		t.Errorf("expected ra to read the instance through $c, got %+v", ra)
	}
}

func TestRemovedFileLeavesCatalog(t *testing.T) {
	first := compile(t, compiler.New(),
		src("a.xule", "output ra 1"),
		src("b.xule", "output rb 2"),
	)
	second := compile(t, compiler.New(compiler.WithPrevious(first)),
		src("a.xule", "output ra 1"),
	)
	if _, ok := second.Catalog.Lookup(catalog.KindRule, "rb"); ok {
		t.Error("rb should be gone with b.xule")
	}
	if _, ok := second.Catalog.Lookup(catalog.KindRule, "ra"); !ok {
		t.Error("ra should survive")
	}
}

func TestIncrementalCatalogMatchesFullBuild(t *testing.T) {
	v1 := []compiler.Source{
		src("a.xule", "version '1'\nconstant $a = 1"),
		src("b.xule", "version '1'\noutput rb $a + 1"),
		src("c.xule", "version '2'\noutput rc 2"),
	}
	v2 := []compiler.Source{v1[0], src("b.xule", "output rb $a + 2"), v1[2]}

	first, err := compiler.New().Compile(context.Background(), v1)
	if err != nil {
		t.Fatal(err)
	}
	incremental, err := compiler.New(compiler.WithPrevious(first)).Compile(context.Background(), v2)
	if err != nil {
		t.Fatal(err)
	}
	full, err := compiler.New().Compile(context.Background(), v2)
	if err != nil {
		t.Fatal(err)
	}

	if incremental.Catalog.Version != "1" || full.Catalog.Version != "1" {
		t.Errorf("version: incremental %q, full %q", incremental.Catalog.Version, full.Catalog.Version)
	}
	if !incremental.FileNamed("a.xule").Kept {
		t.Error("a.xule should be kept")
	}
	for name, out := range map[string]*compiler.Output{"incremental": incremental, "full": full} {
		redecl := 0
		for _, d := range out.Diagnostics {
			if d.Code == diagnostics.WVersionRedecl {
				redecl++
			}
		}
		if redecl != 1 {
			t.Errorf("%s: expected one W_VERSION_REDECL for c.xule, got %v", name, out.Diagnostics)
		}
	}
}

func TestShadowedBuiltinInvalidatesReuse(t *testing.T) {
	first := compile(t, compiler.New(),
		src("a.xule", "output ra length('x')"),
		src("b.xule", "function length($x) {@Assets}"),
	)
	if ra := first.Deps.Lookup(catalog.KindRule, "ra"); ra == nil || !ra.Info.UsesFunction("length") {
		t.Fatalf("expected ra to call the user function, got %+v", ra)
	}
	second := compile(t, compiler.New(compiler.WithPrevious(first)),
		src("a.xule", "output ra length('x')"),
		src("b.xule", "constant $unused = 1"),
	)
	a := second.FileNamed("a.xule")
	if !a.Kept || a.Reused {
		t.Errorf("expected a.xule kept but re-analyzed, got %+v", a)
	}
	if ra := second.Deps.Lookup(catalog.KindRule, "ra"); ra == nil || ra.Info.UsesFunction("length") || ra.Info.ReadsInstance {
		t.Errorf("expected ra to call the built-in, got %+v", ra)
	}
}

func TestNamespaceAvailability(t *testing.T) {
	doc := document.NewMemory("http://fasb.org/us-gaap/2024")
	out := compile(t, compiler.New(compiler.WithAvailability(doc)), src("a.xule", `namespace us-gaap = "http://fasb.org/us-gaap/2024"
namespace dei = "http://xbrl.sec.gov/dei/2024"
output r {@us-gaap:Assets}`))

	var warned []string
	for _, d := range out.Diagnostics {
		if d.Code == diagnostics.WNamespace {
			warned = append(warned, d.Message)
		}
	}
	if len(warned) != 1 || !strings.Contains(warned[0], "dei") {
		t.Errorf("expected one W_NAMESPACE for dei, got %v", warned)
	}
}

func TestParallelParsing(t *testing.T) {
	var sources []compiler.Source
	for i := 0; i < 20; i++ {
		sources = append(sources, src(fmt.Sprintf("f%02d.xule", i), fmt.Sprintf("output r%d %d", i, i)))
	}
	var buf bytes.Buffer
	out := compile(t, compiler.New(compiler.WithParallelism(3), compiler.WithLogger(log.New(&buf, "", 0))), sources...)
	if len(out.Catalog.Rules) != 20 {
		t.Errorf("expected 20 rules, got %d", len(out.Catalog.Rules))
	}
	if !strings.Contains(buf.String(), "20 files, 0 kept, 20 parsed") {
		t.Errorf("unexpected log output: %q", buf.String())
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := compiler.New().Compile(ctx, []compiler.Source{src("a.xule", "output r 1")})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestCheckAndValidate(t *testing.T) {
	c := compiler.New()
	diags := c.Check(context.Background(), []compiler.Source{src("a.xule", "output r $x")})
	if len(diags) != 1 || diags[0].Code != diagnostics.EUndefined {
		t.Errorf("expected one E_UNDEFINED, got %v", diags)
	}

	out := compile(t, c, src("a.xule", "output r 1 + 'a'"))
	got := c.Validate(context.Background(), out)
	if len(got) != len(out.Diagnostics) {
		t.Errorf("validate should reproduce the compile diagnostics: %v vs %v", got, out.Diagnostics)
	}
}

func TestFormat(t *testing.T) {
	got, err := compiler.New().Format("output   r\n1+2", "a.xule")
	if err != nil {
		t.Fatal(err)
	}
	if got != "output r\n  1 + 2\n" {
		t.Errorf("unexpected format output %q", got)
	}
	if _, err := compiler.New().Format("output r (", "a.xule"); err == nil {
		t.Error("expected a syntax error")
	}
}

func TestCollectSources(t *testing.T) {
	dir := t.TempDir()
	write := func(rel, content string) string {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return path
	}
	write("rules/a.xule", "output a 1")
	write("rules/sub/b.xule", "output b 1")
	write("rules/notes.txt", "not a rule")
	write("rules/.hidden/c.xule", "output c 1")
	extra := write("extra.rule", "output d 1")

	sources, err := compiler.CollectSources([]string{filepath.Join(dir, "rules"), extra, filepath.Join(dir, "rules", "a.xule")})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range sources {
		names = append(names, filepath.Base(s.Name))
	}
	if got := strings.Join(names, ","); got != "a.xule,b.xule,extra.rule" {
		t.Errorf("unexpected sources %s", got)
	}

	if _, err := compiler.CollectSources([]string{filepath.Join(dir, "missing")}); err == nil {
		t.Error("expected an error for a missing path")
	}
}
