// Package compiler drives parsing and static analysis of a rule set.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/builtins"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/document"
	"github.com/thomasrohde/rulec/pkg/formatter"
	"github.com/thomasrohde/rulec/pkg/iterability"
	"github.com/thomasrohde/rulec/pkg/parser"
)

// DefaultParallelism is the number of files parsed at once.
const DefaultParallelism = 4

// File is one compiled source file.
type File struct {
	ID     int
	Name   string
	Hash   string
	Source string
	Unit   *ast.Unit
	// Kept is set when the file was carried over from the previous
	// compilation without re-parsing.
	Kept bool
	// Reused is set when its annotations were carried over as well.
	Reused bool
}

// Output is a compiled rule set.
type Output struct {
	Catalog     *catalog.Catalog
	Files       []*File
	Deps        *deps.Result
	Iterability *iterability.Result
	// Diagnostics holds the warnings of a successful compilation.
	Diagnostics []diagnostics.Diagnostic
}

// File returns the file with the given id, or nil.
func (o *Output) File(id int) *File {
	for _, f := range o.Files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

// FileNamed returns the file with the given name, or nil.
func (o *Output) FileNamed(name string) *File {
	for _, f := range o.Files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Sources returns the sources the output was compiled from.
func (o *Output) Sources() []Source {
	out := make([]Source, len(o.Files))
	for i, f := range o.Files {
		out[i] = Source{Name: f.Name, Content: f.Source}
	}
	return out
}

// Units returns the parsed files in id order.
func (o *Output) Units() []*ast.Unit {
	out := make([]*ast.Unit, len(o.Files))
	for i, f := range o.Files {
		out[i] = f.Unit
	}
	return out
}

// Compiler compiles rule sets.
type Compiler struct {
	builtins     *builtins.Registry
	logger       *log.Logger
	parallelism  int
	availability document.NamespaceAvailability
	previous     *Output
}

// Option is a functional option for configuring the Compiler.
type Option func(*Compiler)

// WithBuiltins sets the built-in function registry.
func WithBuiltins(r *builtins.Registry) Option {
	return func(c *Compiler) {
		c.builtins = r
	}
}

// WithLogger sets the progress logger. The default discards.
func WithLogger(l *log.Logger) Option {
	return func(c *Compiler) {
		c.logger = l
	}
}

// WithParallelism bounds the number of files parsed at once.
func WithParallelism(n int) Option {
	return func(c *Compiler) {
		c.parallelism = n
	}
}

// WithAvailability sets the host's namespace lookup. Declared namespaces
// it does not know are reported as warnings.
func WithAvailability(a document.NamespaceAvailability) Option {
	return func(c *Compiler) {
		c.availability = a
	}
}

// WithPrevious enables incremental compilation against an earlier output.
func WithPrevious(prev *Output) Option {
	return func(c *Compiler) {
		c.previous = prev
	}
}

// New creates a new Compiler with the given options.
// By default, the default built-ins are registered and nothing is logged.
func New(opts ...Option) *Compiler {
	c := &Compiler{
		builtins:    builtins.Default(),
		logger:      log.New(io.Discard, "", 0),
		parallelism: DefaultParallelism,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.parallelism < 1 {
		c.parallelism = 1
	}
	return c
}

// Compile parses and analyzes sources. Every file is parsed even when an
// earlier one fails; all syntax errors are returned together in a
// *DiagnosticError. Catalog and semantic errors are returned as a
// *DiagnosticError wrapping the typed error.
func (c *Compiler) Compile(ctx context.Context, sources []Source) (*Output, error) {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if seen[s.Name] {
			return nil, fmt.Errorf("source '%s' given twice", s.Name)
		}
		seen[s.Name] = true
	}

	files, fresh := c.plan(sources)
	if err := c.parse(ctx, fresh); err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	c.logger.Printf("compile: %d files, %d kept, %d parsed", len(files), len(files)-len(fresh), len(fresh))

	out := &Output{Files: files}
	var warns []diagnostics.Diagnostic

	cat, w, err := c.buildCatalog(files)
	if err != nil {
		return nil, wrapDiagnostic(err)
	}
	out.Catalog = cat
	warns = append(warns, w...)

	units := out.Units()
	dr, err := deps.Analyze(cat, units, c.builtins)
	if err != nil {
		return nil, wrapDiagnostic(err)
	}
	out.Deps = dr
	warns = append(warns, dr.Warnings...)

	opts := []iterability.Option{iterability.WithBuiltins(c.builtins)}
	for _, f := range c.reusable(files, cat, dr) {
		f.Reused = true
		opts = append(opts, iterability.WithReused(f.ID, c.previous.Iterability.File(f.ID)))
	}
	ir, err := iterability.Analyze(cat, units, dr, opts...)
	if err != nil {
		return nil, wrapDiagnostic(err)
	}
	out.Iterability = ir
	warns = append(warns, ir.Warnings()...)

	for _, u := range units {
		warns = append(warns, catalog.CheckPrefixes(cat, u)...)
	}
	warns = append(warns, c.checkAvailability(cat)...)
	diagnostics.Sort(warns)
	out.Diagnostics = warns
	return out, nil
}

// plan assigns file ids. A file whose hash matches the previous output
// keeps its tree and id; every other file gets a fresh id after the
// largest previous one and is returned in fresh for parsing.
func (c *Compiler) plan(sources []Source) (files, fresh []*File) {
	next := 1
	if c.previous != nil {
		for _, f := range c.previous.Files {
			if f.ID >= next {
				next = f.ID + 1
			}
		}
	}
	for _, s := range sources {
		hash := Hash(s.Content)
		if c.previous != nil {
			if prev := c.previous.FileNamed(s.Name); prev != nil && prev.Hash == hash && prev.Unit != nil {
				files = append(files, &File{ID: prev.ID, Name: s.Name, Hash: hash, Source: s.Content, Unit: prev.Unit, Kept: true})
				continue
			}
		}
		f := &File{ID: next, Name: s.Name, Hash: hash, Source: s.Content}
		next++
		files = append(files, f)
		fresh = append(fresh, f)
	}
	return files, fresh
}

// parse parses files concurrently. Syntax errors do not stop the other
// parses; they are collected and reported together.
func (c *Compiler) parse(ctx context.Context, files []*File) error {
	errs := make([]error, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.parallelism)
	for i, f := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			root, err := parser.Parse(f.Source, f.Name)
			if err != nil {
				errs[i] = err
				return nil
			}
			f.Unit = ast.NewUnit(f.ID, f.Name, root)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var diags []diagnostics.Diagnostic
	var first error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if first == nil {
			first = err
		}
		diags = append(diags, diagnosticOf(err))
	}
	if len(diags) == 0 {
		return nil
	}
	diagnostics.Sort(diags)
	return &DiagnosticError{Diagnostics: diags, Err: first}
}

// buildCatalog merges the scanned declarations of every re-parsed file
// into the previous catalog, minus the files that were not kept.
func (c *Compiler) buildCatalog(files []*File) (*catalog.Catalog, []diagnostics.Diagnostic, error) {
	base := catalog.New()
	if c.previous != nil && c.previous.Catalog != nil {
		kept := make(map[int]bool)
		for _, f := range files {
			if f.Kept {
				kept[f.ID] = true
			}
		}
		var drop []int
		for _, id := range c.previous.Catalog.Files() {
			if !kept[id] {
				drop = append(drop, id)
			}
		}
		base = c.previous.Catalog.Without(drop...)
	}

	var warns []diagnostics.Diagnostic
	var deltas []*catalog.Catalog
	for _, f := range files {
		if f.Kept {
			continue
		}
		delta, w, err := catalog.Scan(f.Unit)
		if err != nil {
			return nil, nil, err
		}
		warns = append(warns, w...)
		deltas = append(deltas, delta)
	}
	cat, w, err := catalog.Merge(base, deltas...)
	if err != nil {
		return nil, nil, err
	}
	return cat, append(warns, w...), nil
}

// reusable returns the kept files whose previous annotations are still
// valid: every declaration in the file has the dependency information it
// had before and depends only on declarations in kept files, and the
// output-attributes are unchanged.
func (c *Compiler) reusable(files []*File, cat *catalog.Catalog, dr *deps.Result) []*File {
	if c.previous == nil || c.previous.Iterability == nil || c.previous.Catalog == nil {
		return nil
	}
	if !sameNames(cat.OutputAttributes, c.previous.Catalog.OutputAttributes) {
		return nil
	}
	kept := make(map[int]bool)
	for _, f := range files {
		if f.Kept && c.previous.Iterability.File(f.ID) != nil {
			kept[f.ID] = true
		}
	}
	for _, d := range dr.Decls {
		if !kept[d.File] {
			continue
		}
		if prev := c.previous.Deps.Lookup(d.Kind, d.Name); prev == nil || prev.File != d.File || !prev.Info.Equal(d.Info) {
			kept[d.File] = false
			continue
		}
		for _, name := range d.Info.Constants {
			if loc, ok := cat.Lookup(catalog.KindConstant, name); !ok || !kept[loc.File] {
				kept[d.File] = false
			}
		}
		for _, name := range d.Info.Functions {
			if loc, ok := cat.Lookup(catalog.KindFunction, name); ok && !kept[loc.File] {
				kept[d.File] = false
			}
		}
	}
	var out []*File
	for _, f := range files {
		if kept[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

func sameNames(a, b map[string]catalog.Location) bool {
	if len(a) != len(b) {
		return false
	}
	for name := range a {
		if _, ok := b[name]; !ok {
			return false
		}
	}
	return true
}

func (c *Compiler) checkAvailability(cat *catalog.Catalog) []diagnostics.Diagnostic {
	if c.availability == nil {
		return nil
	}
	var out []diagnostics.Diagnostic
	prefixes := make([]string, 0, len(cat.Namespaces))
	for p := range cat.Namespaces {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, p := range prefixes {
		ns := cat.Namespaces[p]
		if c.availability.Available(ns.URI) {
			continue
		}
		var span *ast.Span
		if len(ns.Locations) > 0 {
			s := ns.Locations[0].Span
			span = &s
		}
		label := p
		if label == "" {
			label = "default"
		}
		out = append(out, diagnostics.MakeDiag(diagnostics.WNamespace,
			fmt.Sprintf("namespace %s '%s' is not available in the document model", label, ns.URI), span, ""))
	}
	return out
}

// Check compiles sources and returns every diagnostic, fatal or not.
func (c *Compiler) Check(ctx context.Context, sources []Source) []diagnostics.Diagnostic {
	out, err := c.Compile(ctx, sources)
	if err != nil {
		return Diagnostics(err)
	}
	return out.Diagnostics
}

// Validate re-runs the full analysis of a compiled rule set from its
// sources and returns every diagnostic.
func (c *Compiler) Validate(ctx context.Context, out *Output) []diagnostics.Diagnostic {
	full := *c
	full.previous = nil
	return full.Check(ctx, out.Sources())
}

// Format parses source and prints it in canonical form.
func (c *Compiler) Format(source, filename string) (string, error) {
	f, err := parser.Parse(source, filename)
	if err != nil {
		return "", wrapDiagnostic(err)
	}
	return formatter.Format(f), nil
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
	// Err is the first underlying typed error, if any.
	Err error
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e *DiagnosticError) Unwrap() error { return e.Err }

type diagnoser interface {
	Diagnostic() diagnostics.Diagnostic
}

func diagnosticOf(err error) diagnostics.Diagnostic {
	var d diagnoser
	if errors.As(err, &d) {
		return d.Diagnostic()
	}
	return diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, "")
}

func wrapDiagnostic(err error) error {
	var de *DiagnosticError
	if errors.As(err, &de) {
		return err
	}
	var d diagnoser
	if errors.As(err, &d) {
		return &DiagnosticError{Diagnostics: []diagnostics.Diagnostic{d.Diagnostic()}, Err: err}
	}
	return err
}

// Diagnostics extracts the diagnostics carried by err. Errors without a
// code are reported as E_IO.
func Diagnostics(err error) []diagnostics.Diagnostic {
	if err == nil {
		return nil
	}
	var de *DiagnosticError
	if errors.As(err, &de) {
		return de.Diagnostics
	}
	return []diagnostics.Diagnostic{diagnosticOf(err)}
}
