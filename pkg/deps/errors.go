package deps

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// UndefinedError reports a name that resolves to neither a binding nor a
// catalog entry. Decl is the enclosing declaration.
type UndefinedError struct {
	Name string
	Decl string
	Span ast.Span
}

func (e *UndefinedError) Error() string {
	return fmt.Sprintf("undefined identifier '%s' in '%s'", e.Name, e.Decl)
}

// Diagnostic returns the error as a coded diagnostic.
func (e *UndefinedError) Diagnostic() diagnostics.Diagnostic {
	span := e.Span
	return diagnostics.MakeDiag(diagnostics.EUndefined, e.Error(), &span, "").InDecl(e.Decl)
}

// CycleError reports a dependency cycle that passes through a constant.
type CycleError struct {
	Decl string
	Path []string
	Span ast.Span
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle through constant '%s': %s", e.Decl, strings.Join(e.Path, " -> "))
}

// Diagnostic returns the error as a coded diagnostic.
func (e *CycleError) Diagnostic() diagnostics.Diagnostic {
	span := e.Span
	return diagnostics.MakeDiag(diagnostics.ECycle, e.Error(), &span,
		"a constant cannot depend on itself").InDecl(e.Decl)
}
