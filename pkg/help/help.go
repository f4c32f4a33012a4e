// Package help holds the rulec command reference and language topics.
package help

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/rulec/pkg/builtins"
)

// Version is the compiler release shown in the quick reference.
const Version = "v0.3"

// QUICKREF is printed by `rulec help` without a topic.
var QUICKREF = `rulec ` + Version + ` - rule language compiler and analyzer

USAGE
  rulec compile [--config f] [-o dest] [--format json|yaml] [--pretty] paths...
  rulec check [--pretty] paths...
  rulec validate [--pretty] [--namespaces] <ruleset>
  rulec explain <ruleset> <name>
  rulec fmt [--write] file
  rulec watch [-o dest] dirs...
  rulec version
  rulec help [topic]

EXIT CODES
  0 ok   1 usage or I/O error   2 diagnostics   3 incompatible rule set

TOPICS
  ` + strings.Join(TopicList, ", ") + `

Run 'rulec help <topic>' for details; topic names may be abbreviated.
Run 'rulec help builtins --index' for the built-in function list.
`

// TopicList is the display order of the help topics.
var TopicList = []string{"syntax", "types", "selectors", "iteration", "builtins", "ruleset", "diagnostics", "examples"}

// Topics maps topic names to their text.
var Topics = map[string]string{
	"syntax": `DECLARATIONS
  namespace [prefix =] "uri"
  rule-name-prefix NAME
  rule-name-separator "sep"
  output-attribute NAME
  version "text"
  constant $name = Expr
  function name($a, $b) Expr
  assert NAME [satisfied|unsatisfied] Expr RESULTS
  output NAME Expr RESULTS

RESULTS
  message Expr, severity Expr, rule-focus Expr, rule-suffix Expr,
  or any declared output-attribute followed by an expression.

EXPRESSIONS (loosest to tightest)
  or | and | not | == != < <= > >= in, not in | ^ | & | + - | | * / | unary - +
  $v = Expr; ... Expr          block with sequential local bindings
  if Cond Expr else if Cond Expr else Expr
  for ($v in Expr) Expr
  filter Expr where Expr returns Expr   ($item is bound)
  navigate [arcrole] direction [include start] [from E] [to E] [role E] [taxonomy E] [returns ...]

Comments are // to end of line and /* ... */.
`,
	"types": `VALUE TYPES
  int, decimal, float, string, uri, boolean, qname, instant, duration,
  forever, none, skip, severity, balance, period-type, concept, fact,
  taxonomy, network, relationship, list, set, dictionary.

COMBINATION
  Binary operators widen along a fixed table: int with decimal is decimal,
  int or decimal with float is float. Other mixes are type errors, reported
  at compile time as W_TYPE when both sides are known.

Sets and dictionary keys compare by value, including nested lists and sets.
`,
	"selectors": `FACT SELECTORS
  {[covered] [nils|nonils] @aspect [op value] [as $v] ... [where Expr]}

  @Assets                  concept shorthand
  @concept in $names       aspects: concept, period, entity, unit, cube
  @us-gaap:Segment = *     explicit dimension, any member
  where $fact > 0          $fact is bound to each candidate fact

A selector yields many facts. It keeps its alignment unless it is covered
or every aspect is pinned to a single literal.
`,
	"iteration": `ITERATION
  Multi-valued expressions (selectors, loops, user functions over them) are
  iterated together when they depend on each other. Each node is annotated
  with its cardinality, alignment, the iterables it depends on and the
  iteration table it belongs to. Loops, aggregates and selectors open
  tables; everything else joins the table of its parent.

  rulec explain <ruleset> <name>  prints these annotations.
`,
	"builtins": `BUILT-IN FUNCTIONS
  Aggregates (all, any, avg, count, first, last, list, max, min, set, stdev,
  sum, dict) collapse their argument when called with one argument.
  taxonomy() reads the instance taxonomy; taxonomy(x) reads an external one.

  rulec help builtins --index lists every function with its arity.
`,
	"ruleset": `RULE SETS
  rulec compile writes a rule set: the catalog, each source file with its
  hash, the dependency information and the per-node annotations.

  -o rules.json     JSON file (default)
  -o rules.yaml     YAML file
  -o rules.db#name  SQLite database, rule set stored under name

Recompiling into an existing destination reuses the analysis of files whose
content hash is unchanged. A rule set with another version stamp is
reported with exit code 3 and must be recompiled.
`,
	"diagnostics": `DIAGNOSTICS
  E_LEX, E_PARSE          malformed source
  E_DUPLICATE             name declared twice
  E_NAMESPACE             prefix bound to two URIs
  E_UNDEFINED             unknown variable, constant or function
  E_OUTPUT_ATTRIBUTE      result names an undeclared output-attribute
  E_CYCLE                 constants depend on each other
  E_VERSION               incompatible rule set
  E_LOAD, E_IO            unreadable input

  W_UNUSED  W_TYPE  W_PREFIX  W_NAMESPACE  W_ARITY  W_VERSION_REDECL

Use --pretty for human-readable output; the default is one JSON object per line.
`,
	"examples": `EXAMPLES
  namespace us-gaap = "http://fasb.org/us-gaap/2024"
  output-attribute detail

  constant $threshold = 1000

  assert DQC.0001 satisfied
    $assets = {@us-gaap:Assets};
    $assets > $threshold
  message "Assets of {$assets} exceed the threshold"
  severity error
  detail $assets

  rulec compile -o dqc.json rules/
  rulec explain dqc.json DQC.0001
`,
}

// MatchTopic finds a topic by exact name or unique prefix.
func MatchTopic(query string) (string, string, error) {
	if content, ok := Topics[query]; ok {
		return query, content, nil
	}
	var matches []string
	for _, name := range TopicList {
		if query != "" && strings.HasPrefix(name, query) {
			matches = append(matches, name)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], Topics[matches[0]], nil
	case 0:
		return "", "", fmt.Errorf("unknown help topic '%s'", query)
	}
	return "", "", fmt.Errorf("ambiguous help topic '%s': %s", query, strings.Join(matches, ", "))
}

// BuiltinIndex lists the functions of reg with their arity.
func BuiltinIndex(reg *builtins.Registry) string {
	names := reg.Names()
	var b strings.Builder
	for _, name := range names {
		fn := reg.Get(name)
		arity := fmt.Sprintf("%d", fn.MinArgs)
		switch {
		case fn.MaxArgs == builtins.Variadic:
			arity += "+"
		case fn.MaxArgs != fn.MinArgs:
			arity += fmt.Sprintf("-%d", fn.MaxArgs)
		}
		var notes []string
		if fn.Aggregate {
			notes = append(notes, "aggregate")
		}
		switch fn.Access {
		case builtins.AccessInstance:
			notes = append(notes, "reads instance")
		case builtins.AccessTaxonomy:
			notes = append(notes, "reads taxonomy")
		}
		line := fmt.Sprintf("  %-12s %s", name, arity)
		if len(notes) > 0 {
			line += "  (" + strings.Join(notes, ", ") + ")"
		}
		b.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	fmt.Fprintf(&b, "\nTotal: %d functions\n", len(names))
	return b.String()
}
