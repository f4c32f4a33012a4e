package catalog

import (
	"fmt"

	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// DuplicateError reports a name declared twice in one map.
type DuplicateError struct {
	Kind   Kind
	Name   string
	First  Location
	Second Location
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate %s '%s': declared in %s and %s", e.Kind, e.Name, e.First, e.Second)
}

// Diagnostic returns the error as a coded diagnostic at the second declaration.
func (e *DuplicateError) Diagnostic() diagnostics.Diagnostic {
	span := e.Second.Span
	hint := fmt.Sprintf("first declared in %s", e.First.FileName)
	return diagnostics.MakeDiag(diagnostics.EDuplicate, e.Error(), &span, hint).InDecl(e.Name)
}

// NamespaceError reports a prefix bound to two different URIs.
type NamespaceError struct {
	Prefix  string
	URI     string
	PrevURI string
	First   Location
	Second  Location
}

func (e *NamespaceError) Error() string {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "<default>"
	}
	return fmt.Sprintf("namespace prefix '%s' redeclared as '%s' in %s; already '%s' in %s",
		prefix, e.URI, e.Second, e.PrevURI, e.First)
}

// Diagnostic returns the error as a coded diagnostic at the redeclaration.
func (e *NamespaceError) Diagnostic() diagnostics.Diagnostic {
	span := e.Second.Span
	return diagnostics.MakeDiag(diagnostics.ENamespace, e.Error(), &span, "").InDecl("namespace " + e.Prefix)
}
