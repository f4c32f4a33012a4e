package builtins

// RegisterDefaults adds all standard built-ins.
func RegisterDefaults(r *Registry) {
	// Aggregates
	for _, name := range []string{"all", "any", "avg", "count", "first", "last", "list", "max", "min", "set", "stdev", "sum", "dict"} {
		r.Register(Fn{Name: name, MinArgs: 0, MaxArgs: Variadic, Aggregate: true})
	}

	// Document access
	r.Register(Fn{Name: "taxonomy", MinArgs: 0, MaxArgs: 1, Access: AccessTaxonomy})
	r.Register(Fn{Name: "entity", MinArgs: 0, MaxArgs: 2, Access: AccessInstance})
	r.Register(Fn{Name: "unit", MinArgs: 1, MaxArgs: 2})
	r.Register(Fn{Name: "dimension", MinArgs: 1, MaxArgs: 1})

	// Existence
	r.Register(Fn{Name: "exists", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "missing", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "is_list", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "is_set", MinArgs: 1, MaxArgs: 1})

	// Conversions and constructors
	r.Register(Fn{Name: "number", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "string", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "qname", MinArgs: 2, MaxArgs: 2})
	r.Register(Fn{Name: "date", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "duration", MinArgs: 2, MaxArgs: 2})
	r.Register(Fn{Name: "forever", MinArgs: 0, MaxArgs: 0})
	r.Register(Fn{Name: "range", MinArgs: 1, MaxArgs: 3})
	r.Register(Fn{Name: "time-span", MinArgs: 1, MaxArgs: 1})

	// Math
	r.Register(Fn{Name: "abs", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "exp", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "log10", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "power", MinArgs: 2, MaxArgs: 2})
	r.Register(Fn{Name: "round", MinArgs: 1, MaxArgs: 2})
	r.Register(Fn{Name: "signum", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "trunc", MinArgs: 1, MaxArgs: 2})
	r.Register(Fn{Name: "mod", MinArgs: 2, MaxArgs: 2})

	// Strings
	r.Register(Fn{Name: "length", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "upper", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "lower", MinArgs: 1, MaxArgs: 1})
	r.Register(Fn{Name: "contains", MinArgs: 2, MaxArgs: 2})
	r.Register(Fn{Name: "split", MinArgs: 2, MaxArgs: 2})
	r.Register(Fn{Name: "join", MinArgs: 2, MaxArgs: 3})
}
