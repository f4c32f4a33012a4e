package formatter_test

import (
	"testing"

	"github.com/thomasrohde/rulec/pkg/formatter"
	"github.com/thomasrohde/rulec/pkg/parser"
)

func format(t *testing.T, src string) string {
	t.Helper()
	f, err := parser.Parse(src, "test.xule")
	if err != nil {
		t.Fatalf("parse failed: %v\n%s", err, src)
	}
	return formatter.Format(f)
}

func TestFormatCanonical(t *testing.T) {
	src := `namespace us-gaap = "http://fasb.org/us-gaap/2024"
rule-name-prefix DQC
output-attribute detail

constant $threshold = 100

function positive($v)
  $v > 0

assert r1 satisfied
  $a = {@us-gaap:Assets};
  $a > $threshold
message "Assets are \"high\""
severity error
`
	if got := format(t, src); got != src {
		t.Errorf("canonical source changed:\n--- got ---\n%s--- want ---\n%s", got, src)
	}
}

func TestFormatIdempotent(t *testing.T) {
	src := `constant $c = (1 + 2) * 3 - -4
function f($a, $b) $s = $a + $b; $s * 2
output r2
	for $x in list(1, 2, 3)
		if $x > 1 ($x) else if $x == 1 ([ $x ]) else -$x
rule-focus $x
assert r3 unsatisfied
	filter navigate parent-child descendants from us-gaap:Assets role "http://x/role" returns list (target-name) where $item != none returns $item
message "found"
output r4 {covered @concept in $names @period = forever @us-gaap:Segment = * as $seg where $fact > 0}
`
	once := format(t, src)
	twice := format(t, once)
	if once != twice {
		t.Errorf("formatting is not idempotent:\n--- once ---\n%s--- twice ---\n%s", once, twice)
	}
}

func TestFormatExprParentheses(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"1 + 2 * 3", "1 + 2 * 3"},
		{"(1 + 2) * 3", "(1 + 2) * 3"},
		{"1 - (2 - 3)", "1 - (2 - 3)"},
		{"(1 - 2) - 3", "1 - 2 - 3"},
		{"not ($a and $b)", "not ($a and $b)"},
		{"$a and not $b", "$a and not $b"},
		{"-(1 + 2)", "-(1 + 2)"},
		{"(if $a 1 else 2) + 3", "(if ($a) 1 else 2) + 3"},
		{"$a not in [1, 2]", "$a not in [1, 2]"},
		{"{@concept = Assets}", "{@Assets}"},
		{"{@unit = *}", "{@unit = *}"},
		{"{@us-gaap:Segment as $s}", "{@us-gaap:Segment as $s}"},
		{"{nonils @Assets}.value", "{nonils @Assets}.value"},
		{"for ($x in [1, 2]) $x * 2", "for ($x in [1, 2]) $x * 2"},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			e, err := parser.ParseExpr(tc.in, "test.xule")
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if got := formatter.FormatExpr(e); got != tc.want {
				t.Errorf("FormatExpr(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestHasComments(t *testing.T) {
	cases := []struct {
		src  string
		want bool
	}{
		{"output r 1", false},
		{"// note\noutput r 1", true},
		{"output r /* inline */ 1", true},
		{`output r "http://example.com"`, false},
		{`output r 'a // b'`, false},
		{"output r 4 / 2", false},
	}
	for _, tc := range cases {
		if got := formatter.HasComments(tc.src); got != tc.want {
			t.Errorf("HasComments(%q) = %v, want %v", tc.src, got, tc.want)
		}
	}
}
