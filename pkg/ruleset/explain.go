package ruleset

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/deps"
	"github.com/thomasrohde/rulec/pkg/iterability"
)

// ErrUnknownDecl reports an Explain call for a name the rule set lacks.
var ErrUnknownDecl = errors.New("no such declaration")

// Decl returns the dependency record named name. Rules are matched by
// their full name first, then by the name without a rule-name prefix.
func (rs *RuleSet) Decl(name string) *deps.Decl {
	name = strings.TrimPrefix(name, "$")
	for _, d := range rs.Deps {
		if d.Name == name {
			return d
		}
	}
	for _, d := range rs.Deps {
		if !strings.HasSuffix(d.Name, name) || d.Name == name {
			continue
		}
		if f := rs.File(d.File); f != nil && f.Tree != nil && ast.DeclName(declAt(f.Tree, d.Node)) == name {
			return d
		}
	}
	return nil
}

func declAt(u *ast.Unit, id ast.NodeID) ast.Decl {
	d, _ := u.Index.Node(id).(ast.Decl)
	return d
}

// Explain writes the dependency information of the declaration name and the
// annotation of every node in its tree.
func (rs *RuleSet) Explain(w io.Writer, name string) error {
	d := rs.Decl(name)
	if d == nil {
		return errors.Wrap(ErrUnknownDecl, name)
	}
	f := rs.File(d.File)
	if f == nil || f.Tree == nil {
		return errors.Errorf("file %d of %s is missing", d.File, name)
	}

	fmt.Fprintf(w, "%s %s (%s:%d:%d)\n", d.Kind, d.Name, f.Name, d.Span.StartLine, d.Span.StartCol)
	fmt.Fprintf(w, "  constants: %s\n", list(d.Info.Constants))
	fmt.Fprintf(w, "  functions: %s\n", list(d.Info.Functions))
	fmt.Fprintf(w, "  reads instance: %t, reads external taxonomy: %t\n", d.Info.ReadsInstance, d.Info.ReadsExternalTaxonomy)
	fmt.Fprintln(w, "  nodes:")

	root := f.Tree.Index.Node(d.Node)
	depth := 0
	ast.Walk(root, func(n ast.Node) bool {
		fmt.Fprintf(w, "    %s#%d %s%s\n", strings.Repeat("  ", depth), n.NodeID(), n.Kind(), describe(f.Annotations.Node(n.NodeID())))
		depth++
		return true
	}, func(ast.Node) {
		depth--
	})
	return nil
}

func describe(info *iterability.Info) string {
	if info == nil {
		return ""
	}
	parts := []string{string(info.Cardinality)}
	if info.Type != "" {
		parts = append(parts, "type="+string(info.Type))
	}
	if info.IsIterable {
		parts = append(parts, "iterable")
	}
	if info.HasAlignment {
		parts = append(parts, "aligned")
	}
	if info.Cacheable {
		parts = append(parts, "cacheable")
	}
	if info.TableID != 0 {
		parts = append(parts, fmt.Sprintf("table=%d", info.TableID))
	}
	if len(info.DependentIterables) > 0 {
		parts = append(parts, "iterables="+ids(info.DependentIterables))
	}
	return ": " + strings.Join(parts, " ")
}

func ids(xs []ast.NodeID) string {
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = fmt.Sprintf("#%d", x)
	}
	return strings.Join(s, ",")
}

func list(xs []string) string {
	if len(xs) == 0 {
		return "-"
	}
	return strings.Join(xs, ", ")
}
