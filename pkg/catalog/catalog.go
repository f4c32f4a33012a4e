// Package catalog records where every top-level name of a rule set is
// declared. A catalog is built per file by Scan and combined with Merge;
// neither mutates its inputs.
package catalog

import (
	"fmt"
	"sort"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// Kind names one of the catalog's name maps.
type Kind string

const (
	KindConstant        Kind = "constant"
	KindFunction        Kind = "function"
	KindRule            Kind = "rule"
	KindOutputAttribute Kind = "output-attribute"
)

// DefaultSeparator joins a rule-name prefix and a rule name.
const DefaultSeparator = "."

// Location identifies a declaration by file and node.
type Location struct {
	File     int        `json:"file" yaml:"file"`
	FileName string     `json:"fileName" yaml:"file_name"`
	Node     ast.NodeID `json:"node" yaml:"node"`
	Span     ast.Span   `json:"span" yaml:"span"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d:%d", l.FileName, l.Span.StartLine, l.Span.StartCol)
}

// Namespace is one prefix binding. A prefix may be declared by several
// files as long as every declaration names the same URI.
type Namespace struct {
	URI       string     `json:"uri" yaml:"uri"`
	Locations []Location `json:"locations" yaml:"locations"`
}

// Catalog is the merged name table of a rule set.
type Catalog struct {
	Namespaces       map[string]Namespace `json:"namespaces" yaml:"namespaces"`
	Rules            map[string]Location  `json:"rules" yaml:"rules"`
	Functions        map[string]Location  `json:"functions" yaml:"functions"`
	Constants        map[string]Location  `json:"constants" yaml:"constants"`
	OutputAttributes map[string]Location  `json:"outputAttributes" yaml:"output_attributes"`
	Version          string               `json:"version,omitempty" yaml:"version,omitempty"`
	VersionLocation  *Location            `json:"versionLocation,omitempty" yaml:"version_location,omitempty"`
	// Versions holds every version declaration ordered by file and node.
	// The first one sets Version.
	Versions []VersionDecl `json:"versions,omitempty" yaml:"versions,omitempty"`
}

// VersionDecl is one version declaration.
type VersionDecl struct {
	Text     string   `json:"text" yaml:"text"`
	Location Location `json:"location" yaml:"location"`
}

// Entry is one named declaration.
type Entry struct {
	Kind     Kind
	Name     string
	Location Location
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		Namespaces:       make(map[string]Namespace),
		Rules:            make(map[string]Location),
		Functions:        make(map[string]Location),
		Constants:        make(map[string]Location),
		OutputAttributes: make(map[string]Location),
	}
}

func (c *Catalog) table(k Kind) map[string]Location {
	switch k {
	case KindConstant:
		return c.Constants
	case KindFunction:
		return c.Functions
	case KindRule:
		return c.Rules
	case KindOutputAttribute:
		return c.OutputAttributes
	}
	return nil
}

// Lookup returns the location of a declared name.
func (c *Catalog) Lookup(k Kind, name string) (Location, bool) {
	if c == nil {
		return Location{}, false
	}
	loc, ok := c.table(k)[name]
	return loc, ok
}

// NamespaceURI returns the URI bound to prefix.
func (c *Catalog) NamespaceURI(prefix string) (string, bool) {
	ns, ok := c.Namespaces[prefix]
	return ns.URI, ok
}

// Entries returns every constant, function, rule and output-attribute,
// ordered by file and then by node id.
func (c *Catalog) Entries() []Entry {
	var out []Entry
	for _, k := range []Kind{KindConstant, KindFunction, KindRule, KindOutputAttribute} {
		for name, loc := range c.table(k) {
			out = append(out, Entry{Kind: k, Name: name, Location: loc})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Location, out[j].Location
		if a.File != b.File {
			return a.File < b.File
		}
		if a.Node != b.Node {
			return a.Node < b.Node
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Files returns the ids of all files that contribute an entry.
func (c *Catalog) Files() []int {
	seen := make(map[int]bool)
	for _, e := range c.Entries() {
		seen[e.Location.File] = true
	}
	for _, ns := range c.Namespaces {
		for _, loc := range ns.Locations {
			seen[loc.File] = true
		}
	}
	for _, v := range c.Versions {
		seen[v.Location.File] = true
	}
	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (c *Catalog) clone() *Catalog {
	out := New()
	if c == nil {
		return out
	}
	for p, ns := range c.Namespaces {
		out.Namespaces[p] = Namespace{URI: ns.URI, Locations: append([]Location(nil), ns.Locations...)}
	}
	for _, k := range []Kind{KindConstant, KindFunction, KindRule, KindOutputAttribute} {
		dst := out.table(k)
		for name, loc := range c.table(k) {
			dst[name] = loc
		}
	}
	out.Versions = append([]VersionDecl(nil), c.Versions...)
	out.resolveVersion()
	return out
}

// add inserts one entry, failing on a duplicate name.
func (c *Catalog) add(k Kind, name string, loc Location) error {
	tbl := c.table(k)
	if prev, ok := tbl[name]; ok {
		return &DuplicateError{Kind: k, Name: name, First: prev, Second: loc}
	}
	tbl[name] = loc
	return nil
}

// addNamespace binds prefix, failing when it is already bound to another URI.
func (c *Catalog) addNamespace(prefix, uri string, loc Location) error {
	ns, ok := c.Namespaces[prefix]
	if ok && ns.URI != uri {
		return &NamespaceError{Prefix: prefix, URI: uri, PrevURI: ns.URI, First: ns.Locations[0], Second: loc}
	}
	ns.URI = uri
	ns.Locations = append(ns.Locations, loc)
	c.Namespaces[prefix] = ns
	return nil
}

// addVersion records a version declaration.
func (c *Catalog) addVersion(text string, loc Location) {
	c.Versions = append(c.Versions, VersionDecl{Text: text, Location: loc})
	sort.SliceStable(c.Versions, func(i, j int) bool {
		a, b := c.Versions[i].Location, c.Versions[j].Location
		if a.File != b.File {
			return a.File < b.File
		}
		return a.Node < b.Node
	})
	c.resolveVersion()
}

// resolveVersion sets Version from the first declaration.
func (c *Catalog) resolveVersion() {
	c.Version, c.VersionLocation = "", nil
	if len(c.Versions) == 0 {
		return
	}
	first := c.Versions[0]
	c.Version = first.Text
	loc := first.Location
	c.VersionLocation = &loc
}

// VersionWarnings reports every version declaration whose text differs
// from the first one.
func (c *Catalog) VersionWarnings() []diagnostics.Diagnostic {
	var warns []diagnostics.Diagnostic
	for _, v := range c.Versions {
		if v.Text == c.Version {
			continue
		}
		span := v.Location.Span
		warns = append(warns, diagnostics.MakeDiag(diagnostics.WVersionRedecl,
			fmt.Sprintf("version '%s' redeclares '%s' from %s", v.Text, c.Version, c.VersionLocation),
			&span, ""))
	}
	return warns
}

// Scan builds the catalog delta of one file. Version redeclarations are
// reported by Merge, once the declarations of every file are known.
func Scan(u *ast.Unit) (*Catalog, []diagnostics.Diagnostic, error) {
	c := New()

	prefix, sep := "", DefaultSeparator
	for _, d := range u.Root.Decls {
		loc := Location{File: u.ID, FileName: u.Name, Node: d.NodeID(), Span: d.NodeSpan()}
		var err error
		switch decl := d.(type) {
		case *ast.NamespaceDecl:
			err = c.addNamespace(decl.Prefix, decl.URI, loc)
		case *ast.RuleNamePrefixDecl:
			prefix = decl.Name
		case *ast.RuleNameSeparatorDecl:
			sep = decl.Separator
		case *ast.VersionDecl:
			c.addVersion(decl.Text, loc)
		case *ast.OutputAttributeDecl:
			err = c.add(KindOutputAttribute, decl.Name, loc)
		case *ast.ConstantDecl:
			err = c.add(KindConstant, decl.Name, loc)
		case *ast.FunctionDecl:
			err = c.add(KindFunction, decl.Name, loc)
		case *ast.RuleDecl:
			err = c.add(KindRule, RuleName(prefix, sep, decl.Name), loc)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return c, nil, nil
}

// RuleName applies a rule-name prefix.
func RuleName(prefix, sep, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + sep + name
}

// Merge returns a new catalog holding base plus every delta, in order,
// with the version warnings of the result. base and the deltas are not
// modified.
func Merge(base *Catalog, deltas ...*Catalog) (*Catalog, []diagnostics.Diagnostic, error) {
	out := base.clone()
	for _, d := range deltas {
		if d == nil {
			continue
		}
		for _, prefix := range sortedKeys(d.Namespaces) {
			ns := d.Namespaces[prefix]
			for _, loc := range ns.Locations {
				if err := out.addNamespace(prefix, ns.URI, loc); err != nil {
					return nil, nil, err
				}
			}
		}
		for _, e := range d.Entries() {
			if err := out.add(e.Kind, e.Name, e.Location); err != nil {
				return nil, nil, err
			}
		}
		for _, v := range d.Versions {
			out.addVersion(v.Text, v.Location)
		}
	}
	return out, out.VersionWarnings(), nil
}

// Without returns a copy of c with every entry of the given files removed.
func (c *Catalog) Without(files ...int) *Catalog {
	drop := make(map[int]bool, len(files))
	for _, f := range files {
		drop[f] = true
	}
	out := c.clone()
	for _, k := range []Kind{KindConstant, KindFunction, KindRule, KindOutputAttribute} {
		tbl := out.table(k)
		for name, loc := range tbl {
			if drop[loc.File] {
				delete(tbl, name)
			}
		}
	}
	for prefix, ns := range out.Namespaces {
		var keep []Location
		for _, loc := range ns.Locations {
			if !drop[loc.File] {
				keep = append(keep, loc)
			}
		}
		if len(keep) == 0 {
			delete(out.Namespaces, prefix)
			continue
		}
		ns.Locations = keep
		out.Namespaces[prefix] = ns
	}
	var versions []VersionDecl
	for _, v := range out.Versions {
		if !drop[v.Location.File] {
			versions = append(versions, v)
		}
	}
	out.Versions = versions
	out.resolveVersion()
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
