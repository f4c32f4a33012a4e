package lexer

import (
	"testing"
)

// FuzzTokenize feeds random inputs to the lexer to catch panics.
// The lexer should never panic; it returns an error for invalid input.
func FuzzTokenize(f *testing.F) {
	seeds := []string{
		// Keywords
		`namespace rule-name-prefix rule-name-separator output-attribute version`,
		`constant function assert output if else for in not and or navigate filter`,
		`true false none`,
		// Literals
		`42 3.14 1e3 1.5E-2 0`,
		`"hello" 'single' "with\nescape" "quote\""`,
		// Operators
		`+ - * / & ^ | > < >= <= == !=`,
		// Delimiters
		`{ } [ ] ( ) , ; . @ =`,
		// Names
		`Assets us-gaap:Assets $fact $a-b rule-focus`,
		// Comments
		`// line comment`,
		`/* block */ 1`,
		// Mixed
		`assert r1 satisfied {@concept = us-gaap:Assets} > 0 message "m"`,
		// Edge cases
		``,
		`   `,
		"\t\n\r",
		`"unterminated`,
		`/* unterminated`,
		`'''`,
		`#$!`,
		`\x00`,
		`$`,
		`a:`,
		`1e`,
		`1.`,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		func() {
			defer func() {
				if r := recover(); r != nil {
					t.Fatalf("Tokenize panicked on input %q: %v", input, r)
				}
			}()
			Tokenize(input, "fuzz.xule")
		}()
	})
}
