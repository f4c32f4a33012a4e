package parser_test

import (
	"testing"

	"github.com/thomasrohde/rulec/pkg/parser"
)

// FuzzParse feeds random inputs to the parser to catch panics.
// The parser should never panic; it returns a *SyntaxError for invalid input.
func FuzzParse(f *testing.F) {
	seeds := []string{
		`constant $a = 1 + 2`,
		`assert r1 satisfied $a == 3`,
		`namespace us-gaap = "http://fasb.org/us-gaap/2024"
namespace "http://example.com/default"`,
		`function double($x) $x * 2`,
		`output o1 {@concept = us-gaap:Assets @period = forever as $p where $fact > 0} message "m" severity error`,
		`assert r2 satisfied for ($x in [1, 2, 3]) $x > 1`,
		`assert r3 unsatisfied $a = 1; $b = $a + 1; $b != 2`,
		`constant $n = navigate parent-child descendants include start from Assets role "http://r" returns list (target-name)`,
		`constant $f = filter [1, 2] where $item > 1 returns $item * 2`,
		`constant $i = if true 1 else if false 2 else 3`,
		`constant $s = {covered nils @us-gaap:Axis = us-gaap:Member @Assets}`,
		`constant $t = taxonomy().concepts`,
		`constant $x = not $a in $b or $c not in $d`,
		// Edge cases
		``,
		`constant`,
		`constant $a =`,
		`assert`,
		`{`,
		`((((`,
		`$a = 1`,
		`if`,
		`@`,
		`navigate`,
		`constant $a = [1,`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Parse panicked on input %q: %v", input, r)
				}
			}()
			file, err := parser.Parse(input, "fuzz.xule")
			if err == nil && file == nil {
				t.Fatalf("Parse returned neither a file nor an error for %q", input)
			}
			if err != nil {
				if _, ok := err.(*parser.SyntaxError); !ok {
					t.Fatalf("expected *SyntaxError, got %T", err)
				}
			}
		}()
	})
}
