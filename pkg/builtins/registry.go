// Package builtins provides the registry of functions the rule language
// supplies without a user declaration.
package builtins

import "sort"

// Access describes what a built-in reads when evaluated.
type Access int

const (
	AccessNone Access = iota
	// AccessInstance reads the document being validated.
	AccessInstance
	// AccessTaxonomy reads the current document with no arguments and an
	// external taxonomy when given one.
	AccessTaxonomy
)

// Variadic marks a function with no upper arity bound.
const Variadic = -1

// Fn describes one built-in function.
type Fn struct {
	Name      string
	MinArgs   int
	MaxArgs   int
	Aggregate bool
	Access    Access
}

// AcceptsArity reports whether n arguments fit the declared bounds.
func (f *Fn) AcceptsArity(n int) bool {
	if n < f.MinArgs {
		return false
	}
	return f.MaxArgs == Variadic || n <= f.MaxArgs
}

// Registry holds registered built-in functions.
type Registry struct {
	fns map[string]*Fn
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fns: make(map[string]*Fn),
	}
}

// Register adds a function to the registry, replacing one of the same name.
func (r *Registry) Register(fn Fn) {
	r.fns[fn.Name] = &fn
}

// Get retrieves a function by name.
func (r *Registry) Get(name string) *Fn {
	if r == nil {
		return nil
	}
	return r.fns[name]
}

// IsAggregate reports whether a call to name with argc arguments collapses
// its argument. Aggregates called with any other arity are ordinary calls.
func (r *Registry) IsAggregate(name string, argc int) bool {
	fn := r.Get(name)
	return fn != nil && fn.Aggregate && argc == 1
}

// Names returns all registered names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fns))
	for name := range r.fns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with the standard built-ins.
func Default() *Registry {
	r := NewRegistry()
	RegisterDefaults(r)
	return r
}
