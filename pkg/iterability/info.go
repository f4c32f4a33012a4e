package iterability

import (
	"sort"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/value"
)

// Cardinality says whether a node yields one result or many.
type Cardinality string

const (
	Single Cardinality = "single"
	Multi  Cardinality = "multi"
)

// VarKey names a variable a node depends on: either a binding node in the
// same file or a constant.
type VarKey struct {
	Decl     ast.NodeID `json:"decl,omitempty" yaml:"decl,omitempty"`
	Constant string     `json:"constant,omitempty" yaml:"constant,omitempty"`
}

// Info is the iterability annotation of one node.
type Info struct {
	Cardinality         Cardinality  `json:"cardinality" yaml:"cardinality"`
	HasAlignment        bool         `json:"hasAlignment,omitempty" yaml:"has_alignment,omitempty"`
	IsIterable          bool         `json:"isIterable,omitempty" yaml:"is_iterable,omitempty"`
	Cacheable           bool         `json:"cacheable,omitempty" yaml:"cacheable,omitempty"`
	Type                value.Type   `json:"type,omitempty" yaml:"type,omitempty"`
	VarRefs             []VarKey     `json:"varRefs,omitempty" yaml:"var_refs,omitempty"`
	DependentVars       []VarKey     `json:"dependentVars,omitempty" yaml:"dependent_vars,omitempty"`
	DependentIterables  []ast.NodeID `json:"dependentIterables,omitempty" yaml:"dependent_iterables,omitempty"`
	DownstreamIterables []ast.NodeID `json:"downstreamIterables,omitempty" yaml:"downstream_iterables,omitempty"`
	TableID             ast.NodeID   `json:"tableId" yaml:"table_id"`
}

// IsMulti reports whether the node yields many results.
func (i *Info) IsMulti() bool {
	return i.Cardinality == Multi
}

// DependsOnIterable reports whether id is among the dependent iterables.
func (i *Info) DependsOnIterable(id ast.NodeID) bool {
	j := sort.Search(len(i.DependentIterables), func(k int) bool { return i.DependentIterables[k] >= id })
	return j < len(i.DependentIterables) && i.DependentIterables[j] == id
}

// FileAnnotations holds the annotations of one file.
type FileAnnotations struct {
	Nodes    map[ast.NodeID]*Info     `json:"nodes" yaml:"nodes"`
	Warnings []diagnostics.Diagnostic `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Node returns the annotation of id, or nil.
func (f *FileAnnotations) Node(id ast.NodeID) *Info {
	if f == nil {
		return nil
	}
	return f.Nodes[id]
}

// Result holds the annotations of every file of a rule set.
type Result struct {
	Files map[int]*FileAnnotations
}

// File returns the annotations of a file, or nil.
func (r *Result) File(id int) *FileAnnotations {
	if r == nil {
		return nil
	}
	return r.Files[id]
}

// Warnings returns all warnings in file order.
func (r *Result) Warnings() []diagnostics.Diagnostic {
	ids := make([]int, 0, len(r.Files))
	for id := range r.Files {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	var out []diagnostics.Diagnostic
	for _, id := range ids {
		out = append(out, r.Files[id].Warnings...)
	}
	return out
}

func unionIDs(a, b []ast.NodeID) []ast.NodeID {
	if len(b) == 0 {
		return a
	}
	if len(a) == 0 {
		return append([]ast.NodeID(nil), b...)
	}
	out := make([]ast.NodeID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func withoutID(ids []ast.NodeID, id ast.NodeID) []ast.NodeID {
	var out []ast.NodeID
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func varKeyLess(a, b VarKey) bool {
	if a.Constant != b.Constant {
		return a.Constant < b.Constant
	}
	return a.Decl < b.Decl
}

func unionVars(a, b []VarKey) []VarKey {
	if len(b) == 0 {
		return a
	}
	seen := make(map[VarKey]bool, len(a)+len(b))
	var out []VarKey
	for _, list := range [][]VarKey{a, b} {
		for _, k := range list {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return varKeyLess(out[i], out[j]) })
	return out
}

func hasVar(keys []VarKey, k VarKey) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
