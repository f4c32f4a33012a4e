// Package ruleset persists compiled rule sets.
package ruleset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/compiler"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/iterability"
	"github.com/thomasrohde/rulec/pkg/parser"
)

// Stamp identifies the layout of a rule set. Bundles with another stamp
// must be recompiled.
const Stamp = "rulec/1"

// Format is a serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. An empty name means JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", errors.Errorf("unknown format %q (want json or yaml)", s)
}

// File is one source file of a rule set with its annotations.
type File struct {
	ID          int                          `json:"id" yaml:"id"`
	Name        string                       `json:"name" yaml:"name"`
	Hash        string                       `json:"hash" yaml:"hash"`
	Source      string                       `json:"source" yaml:"source"`
	NodeCount   int                          `json:"nodeCount" yaml:"node_count"`
	Annotations *iterability.FileAnnotations `json:"annotations" yaml:"annotations"`
	// Tree is rebuilt from Source on load.
	Tree *ast.Unit `json:"-" yaml:"-"`
}

// RuleSet is a compiled rule set: the catalog plus, per file, the tree
// and its annotations.
type RuleSet struct {
	Stamp       string                   `json:"stamp" yaml:"stamp"`
	BuildID     string                   `json:"buildId" yaml:"build_id"`
	CreatedAt   time.Time                `json:"createdAt" yaml:"created_at"`
	Catalog     *catalog.Catalog         `json:"catalog" yaml:"catalog"`
	Files       []*File                  `json:"files" yaml:"files"`
	Deps        []*deps.Decl             `json:"deps" yaml:"deps"`
	Diagnostics []diagnostics.Diagnostic `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// New bundles a compiler output under a fresh build id.
func New(out *compiler.Output) *RuleSet {
	rs := &RuleSet{
		Stamp:       Stamp,
		BuildID:     uuid.NewString(),
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
		Catalog:     out.Catalog,
		Diagnostics: out.Diagnostics,
	}
	if out.Deps != nil {
		rs.Deps = out.Deps.Decls
	}
	for _, f := range out.Files {
		rs.Files = append(rs.Files, &File{
			ID:          f.ID,
			Name:        f.Name,
			Hash:        f.Hash,
			Source:      f.Source,
			NodeCount:   f.Unit.Index.Len(),
			Annotations: out.Iterability.File(f.ID),
			Tree:        f.Unit,
		})
	}
	return rs
}

// Output returns the rule set as a compiler output, suitable for
// incremental recompilation.
func (rs *RuleSet) Output() *compiler.Output {
	out := &compiler.Output{
		Catalog:     rs.Catalog,
		Deps:        &deps.Result{Decls: rs.Deps},
		Iterability: &iterability.Result{Files: make(map[int]*iterability.FileAnnotations)},
		Diagnostics: rs.Diagnostics,
	}
	for _, f := range rs.Files {
		out.Files = append(out.Files, &compiler.File{
			ID:     f.ID,
			Name:   f.Name,
			Hash:   f.Hash,
			Source: f.Source,
			Unit:   f.Tree,
		})
		if f.Annotations != nil {
			out.Iterability.Files[f.ID] = f.Annotations
		}
	}
	return out
}

// File returns the file with the given id, or nil.
func (rs *RuleSet) File(id int) *File {
	for _, f := range rs.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// Save writes rs in the given format.
func Save(w io.Writer, rs *RuleSet, format Format) error {
	var data []byte
	var err error
	switch format {
	case FormatJSON, "":
		data, err = json.MarshalIndent(rs, "", "  ")
		data = append(data, '\n')
	case FormatYAML:
		data, err = yaml.Marshal(rs)
	default:
		return errors.Errorf("unknown format %q", format)
	}
	if err != nil {
		return errors.Wrap(err, "encode rule set")
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "write rule set")
}

type header struct {
	Stamp string `json:"stamp" yaml:"stamp"`
}

// Load reads a rule set written by Save in either format. A bundle with
// another stamp fails with a *VersionError matching ErrIncompatibleVersion;
// every other failure is a *LoadError.
func Load(r io.Reader) (*RuleSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &LoadError{Err: errors.Wrap(err, "read rule set")}
	}
	format := Detect(data)

	var h header
	if err := decode(data, format, &h); err != nil {
		return nil, &LoadError{Err: errors.Wrap(err, "decode header")}
	}
	if h.Stamp != Stamp {
		return nil, &VersionError{Found: h.Stamp, Want: Stamp}
	}

	rs := &RuleSet{}
	if err := decode(data, format, rs); err != nil {
		return nil, &LoadError{Err: errors.Wrap(err, "decode rule set")}
	}
	if rs.Catalog == nil {
		rs.Catalog = catalog.New()
	}
	for _, f := range rs.Files {
		if err := rebuild(f); err != nil {
			return nil, &LoadError{File: f.Name, Err: err}
		}
	}
	return rs, nil
}

// Detect guesses the format of an encoded rule set.
func Detect(data []byte) Format {
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatYAML
}

func decode(data []byte, format Format, v interface{}) error {
	if format == FormatJSON {
		return json.Unmarshal(data, v)
	}
	return yaml.Unmarshal(data, v)
}

// rebuild re-parses the stored source of f and checks it against the
// stored hash and node count, so annotations line up with the tree.
func rebuild(f *File) error {
	if got := compiler.Hash(f.Source); got != f.Hash {
		return errors.Errorf("source hash %s does not match recorded %s", short(got), short(f.Hash))
	}
	root, err := parser.Parse(f.Source, f.Name)
	if err != nil {
		return errors.Wrap(err, "re-parse")
	}
	f.Tree = ast.NewUnit(f.ID, f.Name, root)
	if n := f.Tree.Index.Len(); n != f.NodeCount {
		return errors.Errorf("tree has %d nodes, recorded %d", n, f.NodeCount)
	}
	if f.Annotations == nil {
		f.Annotations = &iterability.FileAnnotations{Nodes: make(map[ast.NodeID]*iterability.Info)}
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

// Summary returns a one-line description of rs.
func (rs *RuleSet) Summary() string {
	return fmt.Sprintf("%s build %s: %d files, %d rules, %d functions, %d constants",
		rs.Stamp, rs.BuildID, len(rs.Files), len(rs.Catalog.Rules), len(rs.Catalog.Functions), len(rs.Catalog.Constants))
}
