package iterability

import (
	"fmt"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// OutputAttributeError reports a result clause naming an output-attribute
// that no declaration introduces.
type OutputAttributeError struct {
	Name string
	Decl string
	Span ast.Span
}

func (e *OutputAttributeError) Error() string {
	return fmt.Sprintf("undefined output-attribute '%s' in rule '%s'", e.Name, e.Decl)
}

// Diagnostic returns the error as a coded diagnostic.
func (e *OutputAttributeError) Diagnostic() diagnostics.Diagnostic {
	span := e.Span
	hint := fmt.Sprintf("declare it with `output-attribute %s`", e.Name)
	return diagnostics.MakeDiag(diagnostics.EOutputAttribute, e.Error(), &span, hint).InDecl(e.Decl)
}
