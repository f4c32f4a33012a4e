// Package diagnostics defines coded diagnostics for parse, catalog and
// analysis errors and warnings.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/thomasrohde/rulec/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex             = "E_LEX"
	EParse           = "E_PARSE"
	EDuplicate       = "E_DUPLICATE"
	ENamespace       = "E_NAMESPACE"
	EUndefined       = "E_UNDEFINED"
	EOutputAttribute = "E_OUTPUT_ATTRIBUTE"
	ECycle           = "E_CYCLE"
	EVersion         = "E_VERSION"
	ELoad            = "E_LOAD"
	EIO              = "E_IO"

	WUnused        = "W_UNUSED"
	WType          = "W_TYPE"
	WPrefix        = "W_PREFIX"
	WNamespace     = "W_NAMESPACE"
	WArity         = "W_ARITY"
	WVersionRedecl = "W_VERSION_REDECL"
)

// Severity distinguishes fatal diagnostics from warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic represents a parse, catalog or analysis diagnostic.
type Diagnostic struct {
	Code     string    `json:"code" yaml:"code"`
	Severity Severity  `json:"severity" yaml:"severity"`
	Message  string    `json:"message" yaml:"message"`
	Decl     string    `json:"decl,omitempty" yaml:"decl,omitempty"`
	Span     *ast.Span `json:"span,omitempty" yaml:"span,omitempty"`
	Hint     string    `json:"hint,omitempty" yaml:"hint,omitempty"`
}

// MakeDiag creates a new Diagnostic. The severity follows the code prefix.
func MakeDiag(code, message string, span *ast.Span, hint string) Diagnostic {
	sev := SeverityError
	if strings.HasPrefix(code, "W_") {
		sev = SeverityWarning
	}
	return Diagnostic{
		Code:     code,
		Severity: sev,
		Message:  message,
		Span:     span,
		Hint:     hint,
	}
}

// InDecl returns a copy of d attributed to the named declaration.
func (d Diagnostic) InDecl(name string) Diagnostic {
	d.Decl = name
	return d
}

// IsError reports whether d is fatal.
func (d Diagnostic) IsError() bool {
	return d.Severity != SeverityWarning
}

// HasErrors reports whether any diagnostic is fatal.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.IsError() {
			return true
		}
	}
	return false
}

// Sort orders diagnostics by file, line and column, keeping the relative
// order of diagnostics at the same position.
func Sort(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i].Span, diags[j].Span
		if a == nil || b == nil {
			return a != nil && b == nil
		}
		if a.File != b.File {
			return a.File < b.File
		}
		if a.StartLine != b.StartLine {
			return a.StartLine < b.StartLine
		}
		return a.StartCol < b.StartCol
	})
}

// FormatDiagnostic formats a single diagnostic for display.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Span != nil {
		loc = fmt.Sprintf("%s:%d:%d", d.Span.File, d.Span.StartLine, d.Span.StartCol)
	}
	sev := d.Severity
	if sev == "" {
		sev = SeverityError
	}
	out := fmt.Sprintf("%s[%s]: %s\n  --> %s", sev, d.Code, d.Message, loc)
	if d.Decl != "" {
		out += fmt.Sprintf("\n  in: %s", d.Decl)
	}
	if d.Hint != "" {
		out += fmt.Sprintf("\n  hint: %s", d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		if diags == nil {
			diags = []Diagnostic{}
		}
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}
