// Package deps computes, for every constant, function and rule, the
// transitive set of constants and functions it uses and whether it reads
// the document instance or an external taxonomy.
package deps

import (
	"fmt"
	"slices"
	"sort"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/builtins"
	"github.com/thomasrohde/rulec/pkg/catalog"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// Info is the transitively closed dependency information of a declaration.
type Info struct {
	Constants             []string `json:"constants" yaml:"constants"`
	Functions             []string `json:"functions" yaml:"functions"`
	ReadsInstance         bool     `json:"readsInstance" yaml:"reads_instance"`
	ReadsExternalTaxonomy bool     `json:"readsExternalTaxonomy" yaml:"reads_external_taxonomy"`
}

// Equal reports whether i and o hold the same dependencies.
func (i Info) Equal(o Info) bool {
	return slices.Equal(i.Constants, o.Constants) &&
		slices.Equal(i.Functions, o.Functions) &&
		i.ReadsInstance == o.ReadsInstance &&
		i.ReadsExternalTaxonomy == o.ReadsExternalTaxonomy
}

// UsesConstant reports whether name is in the closed constant set.
func (i Info) UsesConstant(name string) bool {
	return contains(i.Constants, name)
}

// UsesFunction reports whether name is in the closed function set.
func (i Info) UsesFunction(name string) bool {
	return contains(i.Functions, name)
}

func contains(sorted []string, name string) bool {
	j := sort.SearchStrings(sorted, name)
	return j < len(sorted) && sorted[j] == name
}

// Decl is one analyzed declaration.
type Decl struct {
	Kind catalog.Kind `json:"kind" yaml:"kind"`
	Name string       `json:"name" yaml:"name"`
	File int          `json:"file" yaml:"file"`
	Node ast.NodeID   `json:"node" yaml:"node"`
	Span ast.Span     `json:"span" yaml:"span"`
	Info Info         `json:"info" yaml:"info"`
}

type key struct {
	kind catalog.Kind
	name string
}

// Result holds the analysis of a whole rule set.
type Result struct {
	// Decls lists constants, functions and rules with every declaration
	// after the declarations it depends on.
	Decls []*Decl `json:"decls" yaml:"decls"`
	// Warnings are non-fatal diagnostics found while resolving names.
	Warnings []diagnostics.Diagnostic `json:"-" yaml:"-"`

	index map[key]*Decl
	refs  map[int]map[ast.NodeID]Ref
	calls map[int]map[ast.NodeID]CallKind
}

// Lookup returns the analyzed declaration of the given kind and name.
func (r *Result) Lookup(kind catalog.Kind, name string) *Decl {
	if r == nil {
		return nil
	}
	if r.index == nil {
		r.index = make(map[key]*Decl, len(r.Decls))
		for _, d := range r.Decls {
			r.index[key{d.Kind, d.Name}] = d
		}
	}
	return r.index[key{kind, name}]
}

// Info returns the closed dependency information of a declaration.
func (r *Result) Info(kind catalog.Kind, name string) (Info, bool) {
	d := r.Lookup(kind, name)
	if d == nil {
		return Info{}, false
	}
	return d.Info, true
}

// Ref returns the resolution of the variable reference id in file.
func (r *Result) Ref(file int, id ast.NodeID) (Ref, bool) {
	ref, ok := r.refs[file][id]
	return ref, ok
}

// Call returns whether the call id in file targets a declared function or
// a built-in.
func (r *Result) Call(file int, id ast.NodeID) (CallKind, bool) {
	c, ok := r.calls[file][id]
	return c, ok
}

// Analyze resolves every name in the rule set and closes the dependency
// sets. units must hold every file the catalog refers to. A nil registry
// means the default built-ins.
func Analyze(cat *catalog.Catalog, units []*ast.Unit, reg *builtins.Registry) (*Result, error) {
	if reg == nil {
		reg = builtins.Default()
	}
	byID := make(map[int]*ast.Unit, len(units))
	for _, u := range units {
		byID[u.ID] = u
	}
	res := &Result{
		refs:  make(map[int]map[ast.NodeID]Ref),
		calls: make(map[int]map[ast.NodeID]CallKind),
	}
	r := &resolver{cat: cat, builtins: reg, units: byID}

	var keys []key
	immediate := make(map[key]*edges)
	decls := make(map[key]*Decl)
	for _, entry := range cat.Entries() {
		if entry.Kind == catalog.KindOutputAttribute {
			continue
		}
		u, ok := byID[entry.Location.File]
		if !ok {
			return nil, fmt.Errorf("%s '%s': file %d is not loaded", entry.Kind, entry.Name, entry.Location.File)
		}
		d, ok := u.Index.Node(entry.Location.Node).(ast.Decl)
		if !ok {
			return nil, fmt.Errorf("%s '%s': node %d of %s is not a declaration", entry.Kind, entry.Name, entry.Location.Node, u.Name)
		}
		if res.refs[u.ID] == nil {
			res.refs[u.ID] = make(map[ast.NodeID]Ref)
			res.calls[u.ID] = make(map[ast.NodeID]CallKind)
		}
		r.refs, r.calls = res.refs[u.ID], res.calls[u.ID]

		e, err := r.scan(entry.Name, d)
		if err != nil {
			return nil, err
		}
		k := key{entry.Kind, entry.Name}
		keys = append(keys, k)
		immediate[k] = e
		decls[k] = &Decl{
			Kind: entry.Kind,
			Name: entry.Name,
			File: entry.Location.File,
			Node: entry.Location.Node,
			Span: entry.Location.Span,
		}
	}
	res.Warnings = r.warns

	order, err := sortDependenciesFirst(keys, immediate, decls)
	if err != nil {
		return nil, err
	}
	closeOver(order, immediate)

	for _, k := range order {
		e := immediate[k]
		d := decls[k]
		d.Info = Info{
			Constants:             sortedSet(e.constants),
			Functions:             sortedSet(e.functions),
			ReadsInstance:         e.readsInstance,
			ReadsExternalTaxonomy: e.readsExternal,
		}
		res.Decls = append(res.Decls, d)
	}
	return res, nil
}

func successors(e *edges) []key {
	var out []key
	for _, c := range sortedSet(e.constants) {
		out = append(out, key{catalog.KindConstant, c})
	}
	for _, f := range sortedSet(e.functions) {
		out = append(out, key{catalog.KindFunction, f})
	}
	return out
}

type visitState uint8

const (
	stateVisiting visitState = iota + 1
	stateDone
)

// sortDependenciesFirst orders keys so every declaration follows what it
// uses. Cycles among functions are allowed; a cycle through a constant is
// a *CycleError.
func sortDependenciesFirst(keys []key, immediate map[key]*edges, decls map[key]*Decl) ([]key, error) {
	type frame struct {
		k    key
		next []key
	}
	states := make(map[key]visitState, len(keys))
	order := make([]key, 0, len(keys))

	for _, start := range keys {
		if states[start] != 0 {
			continue
		}
		states[start] = stateVisiting
		stack := []frame{{k: start, next: successors(immediate[start])}}
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if len(top.next) == 0 {
				states[top.k] = stateDone
				order = append(order, top.k)
				stack = stack[:len(stack)-1]
				continue
			}
			nxt := top.next[0]
			top.next = top.next[1:]
			switch states[nxt] {
			case stateDone:
				continue
			case stateVisiting:
				var cycle []key
				for i := range stack {
					if stack[i].k == nxt || len(cycle) > 0 {
						cycle = append(cycle, stack[i].k)
					}
				}
				cycle = append(cycle, nxt)
				if err := constantCycle(cycle, decls); err != nil {
					return nil, err
				}
				continue
			}
			states[nxt] = stateVisiting
			stack = append(stack, frame{k: nxt, next: successors(immediate[nxt])})
		}
	}
	return order, nil
}

func constantCycle(cycle []key, decls map[key]*Decl) error {
	for _, k := range cycle {
		if k.kind != catalog.KindConstant {
			continue
		}
		path := make([]string, len(cycle))
		for i, c := range cycle {
			path[i] = label(c)
		}
		var span ast.Span
		if d := decls[k]; d != nil {
			span = d.Span
		}
		return &CycleError{Decl: label(k), Path: path, Span: span}
	}
	return nil
}

func label(k key) string {
	if k.kind == catalog.KindConstant {
		return "$" + k.name
	}
	return k.name
}

// closeOver unions every declaration's sets with those of everything it
// uses until nothing changes. One pass suffices without recursion.
func closeOver(order []key, immediate map[key]*edges) {
	for changed := true; changed; {
		changed = false
		for _, k := range order {
			e := immediate[k]
			for _, dep := range successors(e) {
				src, ok := immediate[dep]
				if !ok {
					continue
				}
				if e.absorb(src) {
					changed = true
				}
			}
		}
	}
}

func (e *edges) absorb(src *edges) bool {
	changed := false
	for c := range src.constants {
		if !e.constants[c] {
			e.constants[c] = true
			changed = true
		}
	}
	for f := range src.functions {
		if !e.functions[f] {
			e.functions[f] = true
			changed = true
		}
	}
	if src.readsInstance && !e.readsInstance {
		e.readsInstance = true
		changed = true
	}
	if src.readsExternal && !e.readsExternal {
		e.readsExternal = true
		changed = true
	}
	return changed
}

func sortedSet(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
