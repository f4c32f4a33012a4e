package ruleset

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// ErrIncompatibleVersion reports a rule set written by an incompatible
// compiler. Callers can recompile from source instead of failing.
var ErrIncompatibleVersion = errors.New("incompatible rule set version")

// VersionError reports the stamp of an incompatible rule set.
type VersionError struct {
	Found string
	Want  string
}

func (e *VersionError) Error() string {
	found := e.Found
	if found == "" {
		found = "none"
	}
	return fmt.Sprintf("%s: found %s, want %s", ErrIncompatibleVersion, found, e.Want)
}

func (e *VersionError) Unwrap() error { return ErrIncompatibleVersion }

// Diagnostic returns the error as a coded diagnostic.
func (e *VersionError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.EVersion, e.Error(), nil, "recompile the rule set from source")
}

// LoadError reports a rule set that could not be read.
type LoadError struct {
	File string
	Err  error
}

func (e *LoadError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("load rule set: %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("load rule set: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Diagnostic returns the error as a coded diagnostic.
func (e *LoadError) Diagnostic() diagnostics.Diagnostic {
	return diagnostics.MakeDiag(diagnostics.ELoad, e.Error(), nil, "")
}
