package catalog

import (
	"fmt"
	"strings"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// CheckPrefixes warns about qualified names whose prefix no namespace
// declaration binds.
func CheckPrefixes(c *Catalog, u *ast.Unit) []diagnostics.Diagnostic {
	var diags []diagnostics.Diagnostic
	decl := ""
	check := func(prefix string, span ast.Span) {
		if prefix == "" {
			return
		}
		if _, ok := c.Namespaces[prefix]; ok {
			return
		}
		d := diagnostics.MakeDiag(diagnostics.WPrefix,
			fmt.Sprintf("namespace prefix '%s' is not declared", prefix), &span,
			fmt.Sprintf("add `namespace %s = \"...\"`", prefix))
		diags = append(diags, d.InDecl(decl))
	}

	ast.Walk(u.Root, func(n ast.Node) bool {
		switch node := n.(type) {
		case ast.Decl:
			decl = ast.DeclName(node)
		case *ast.QName:
			check(node.Prefix, node.Span)
		case *ast.FuncCall:
			if i := strings.IndexByte(node.Name, ':'); i > 0 {
				check(node.Name[:i], node.Span)
			}
		}
		return true
	}, nil)
	return diags
}
