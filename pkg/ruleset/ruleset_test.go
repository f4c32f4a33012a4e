package ruleset_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/compiler"
	"github.com/thomasrohde/rulec/pkg/ruleset"
)

var sources = []compiler.Source{
	{Name: "constants.xule", Content: `namespace us-gaap = "http://fasb.org/us-gaap/2024"
constant $threshold = 100`},
	{Name: "rules.xule", Content: `output-attribute detail
assert r1 satisfied
  $a = {@us-gaap:Assets};
  $a > $threshold
message "assets exceed threshold"
detail $a`},
}

func build(t *testing.T) *ruleset.RuleSet {
	t.Helper()
	out, err := compiler.New().Compile(context.Background(), sources)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return ruleset.New(out)
}

func roundTrip(t *testing.T, rs *ruleset.RuleSet, format ruleset.Format) *ruleset.RuleSet {
	t.Helper()
	var buf bytes.Buffer
	if err := ruleset.Save(&buf, rs, format); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if got := ruleset.Detect(buf.Bytes()); got != format {
		t.Errorf("detected %s, want %s", got, format)
	}
	loaded, err := ruleset.Load(&buf)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return loaded
}

func TestSaveLoad(t *testing.T) {
	rs := build(t)
	for _, format := range []ruleset.Format{ruleset.FormatJSON, ruleset.FormatYAML} {
		t.Run(string(format), func(t *testing.T) {
			loaded := roundTrip(t, rs, format)
			if loaded.Stamp != ruleset.Stamp || loaded.BuildID != rs.BuildID {
				t.Errorf("header mismatch: %s %s", loaded.Stamp, loaded.BuildID)
			}
			if !loaded.CreatedAt.Equal(rs.CreatedAt) {
				t.Errorf("created at %v, want %v", loaded.CreatedAt, rs.CreatedAt)
			}
			if _, ok := loaded.Catalog.Lookup(catalog.KindRule, "r1"); !ok {
				t.Error("r1 missing from catalog")
			}
			if uri, _ := loaded.Catalog.NamespaceURI("us-gaap"); uri != "http://fasb.org/us-gaap/2024" {
				t.Errorf("namespace lost: %q", uri)
			}
			if len(loaded.Deps) != len(rs.Deps) {
				t.Errorf("expected %d dependency records, got %d", len(rs.Deps), len(loaded.Deps))
			}
			for _, f := range rs.Files {
				lf := loaded.File(f.ID)
				if lf == nil {
					t.Fatalf("file %d missing", f.ID)
				}
				if lf.Tree == nil || lf.Tree.Index.Len() != f.NodeCount {
					t.Fatalf("file %s: tree not rebuilt", f.Name)
				}
				for id, info := range f.Annotations.Nodes {
					got := lf.Annotations.Node(id)
					if got == nil {
						t.Fatalf("file %s: node %d lost its annotation", f.Name, id)
					}
					if got.Cardinality != info.Cardinality || got.TableID != info.TableID || got.IsIterable != info.IsIterable {
						t.Errorf("file %s node %d: got %+v, want %+v", f.Name, id, got, info)
					}
				}
			}
		})
	}
}

func TestLoadedRuleSetSupportsIncrementalCompile(t *testing.T) {
	loaded := roundTrip(t, build(t), ruleset.FormatJSON)
	out, err := compiler.New(compiler.WithPrevious(loaded.Output())).Compile(context.Background(), sources)
	if err != nil {
		t.Fatalf("recompile failed: %v", err)
	}
	for _, f := range out.Files {
		if !f.Reused {
			t.Errorf("file %s: expected annotations to be reused", f.Name)
		}
		if out.Iterability.File(f.ID) != loaded.File(f.ID).Annotations {
			t.Errorf("file %s: annotations were recomputed", f.Name)
		}
	}
}

func TestIncompatibleVersion(t *testing.T) {
	cases := map[string]string{
		"json":    `{"stamp": "rulec/0", "files": []}`,
		"yaml":    "stamp: rulec/0\nfiles: []\n",
		"missing": `{"files": []}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ruleset.Load(strings.NewReader(data))
			if !errors.Is(err, ruleset.ErrIncompatibleVersion) {
				t.Fatalf("expected ErrIncompatibleVersion, got %v", err)
			}
			var ve *ruleset.VersionError
			if !errors.As(err, &ve) || ve.Want != ruleset.Stamp {
				t.Errorf("expected *VersionError, got %T", err)
			}
		})
	}
}

func TestOtherLoadErrorsAreDistinct(t *testing.T) {
	rs := build(t)
	rs.Files[0].Source += "\noutput extra 1"
	var buf bytes.Buffer
	if err := ruleset.Save(&buf, rs, ruleset.FormatJSON); err != nil {
		t.Fatal(err)
	}

	for name, data := range map[string]string{
		"tampered": buf.String(),
		"garbage":  "{not json",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ruleset.Load(strings.NewReader(data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if errors.Is(err, ruleset.ErrIncompatibleVersion) {
				t.Errorf("load error must not look like a version error: %v", err)
			}
			var le *ruleset.LoadError
			if !errors.As(err, &le) {
				t.Errorf("expected *LoadError, got %T", err)
			}
		})
	}
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "rules.yaml")
	ctx := context.Background()

	store, err := ruleset.OpenStore(ctx, path, ruleset.FormatJSON)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, err := store.Load(ctx); !errors.Is(err, ruleset.ErrNotFound) {
		t.Errorf("expected ErrNotFound before saving, got %v", err)
	}

	rs := build(t)
	if err := store.Save(ctx, rs); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	loaded, err := (&ruleset.FileStore{Path: path}).Load(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if loaded.BuildID != rs.BuildID {
		t.Errorf("expected build %s, got %s", rs.BuildID, loaded.BuildID)
	}
	fs, ok := store.(*ruleset.FileStore)
	if !ok || fs.Format != ruleset.FormatYAML {
		t.Errorf("expected a YAML file store, got %#v", store)
	}
}

func TestSQLStore(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := ruleset.OpenStore(ctx, filepath.Join(dir, "rules.db")+"#dqc", ruleset.FormatJSON)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer store.Close()
	sqlStore, ok := store.(*ruleset.SQLStore)
	if !ok {
		t.Fatalf("expected *SQLStore, got %T", store)
	}

	if _, err := store.Load(ctx); !errors.Is(err, ruleset.ErrNotFound) {
		t.Errorf("expected ErrNotFound before saving, got %v", err)
	}

	rs := build(t)
	if err := store.Save(ctx, rs); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	// Saving again replaces the row.
	if err := store.Save(ctx, rs); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if loaded.BuildID != rs.BuildID {
		t.Errorf("expected build %s, got %s", rs.BuildID, loaded.BuildID)
	}

	names, err := sqlStore.Names(ctx)
	if err != nil || len(names) != 1 || names[0] != "dqc" {
		t.Errorf("expected [dqc], got %v (%v)", names, err)
	}

	if _, err := sqlStore.DB.ExecContext(ctx, `UPDATE rulesets SET stamp = 'rulec/0'`); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(ctx); !errors.Is(err, ruleset.ErrIncompatibleVersion) {
		t.Errorf("expected ErrIncompatibleVersion, got %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]ruleset.Format{"": ruleset.FormatJSON, "json": ruleset.FormatJSON, "yml": ruleset.FormatYAML} {
		got, err := ruleset.ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %s, %v", in, got, err)
		}
	}
	if _, err := ruleset.ParseFormat("xml"); err == nil {
		t.Error("expected an error for xml")
	}
}

func TestExplain(t *testing.T) {
	rs := build(t)
	var buf bytes.Buffer
	if err := rs.Explain(&buf, "r1"); err != nil {
		t.Fatalf("explain failed: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"rule r1 (rules.xule:2:1)", "constants: threshold", "reads instance: true", "FactSelector: multi", "iterable"} {
		if !strings.Contains(out, want) {
			t.Errorf("explain output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := rs.Explain(&buf, "$threshold"); err != nil || !strings.Contains(buf.String(), "constant threshold") {
		t.Errorf("expected the constant to be explained, got %v:\n%s", err, buf.String())
	}

	if err := rs.Explain(&buf, "nope"); !errors.Is(err, ruleset.ErrUnknownDecl) {
		t.Errorf("expected ErrUnknownDecl, got %v", err)
	}
}

func TestDeclStripsRulePrefix(t *testing.T) {
	out, err := compiler.New().Compile(context.Background(), []compiler.Source{
		{Name: "a.xule", Content: "rule-name-prefix DQC\noutput r7 1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rs := ruleset.New(out)
	d := rs.Decl("r7")
	if d == nil || d.Name != "DQC.r7" {
		t.Errorf("expected DQC.r7, got %+v", d)
	}
}
