// Package formatter implements the rule language source formatter.
package formatter

import (
	"strings"

	"github.com/thomasrohde/rulec/pkg/ast"
)

const indent = "  "

// Precedence table for binary operators (higher = tighter binding)
var precedence = map[ast.BinaryOp]int{
	ast.OpOr:  1,
	ast.OpAnd: 2,
	ast.OpEq:  4, ast.OpNeq: 4, ast.OpLt: 4, ast.OpLtEq: 4, ast.OpGt: 4, ast.OpGtEq: 4,
	ast.OpIn: 4, ast.OpNotIn: 4,
	ast.OpSymDiff: 5,
	ast.OpInter:   6,
	ast.OpAdd:     7, ast.OpSub: 7, ast.OpUnion: 7,
	ast.OpMul: 8, ast.OpDiv: 8,
}

// Operand precedences of the prefix operators.
const (
	precNot   = 3
	precUnary = 9
)

// exprPrec returns how tightly e binds. Forms that extend as far to the
// right as possible return 0 so they are always parenthesized as operands.
func exprPrec(e ast.Expr) int {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		return precedence[n.Op]
	case *ast.UnaryExpr:
		if n.Op == ast.OpNot {
			return precNot
		}
		return precUnary
	case *ast.IfExpr, *ast.ForExpr, *ast.FilterExpr, *ast.NavigateExpr, *ast.BlockExpr:
		return 0
	}
	return 10
}

func needsParens(child ast.Expr, parentOp ast.BinaryOp, isRight bool) bool {
	childPrec := exprPrec(child)
	parentPrec := precedence[parentOp]
	if childPrec < parentPrec {
		return true
	}
	// Left-associativity: for same-precedence on right side, add parens
	return childPrec == parentPrec && isRight
}

// Format pretty-prints a parsed rule file back to source code.
func Format(file *ast.File) string {
	var parts []string
	prevSimple := false
	for i, d := range file.Decls {
		simple := isSimple(d)
		if i > 0 && !(simple && prevSimple) {
			parts = append(parts, "")
		}
		parts = append(parts, formatDecl(d))
		prevSimple = simple
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n") + "\n"
}

// FormatExpr prints a single expression on one logical line.
func FormatExpr(e ast.Expr) string {
	return formatExpr(e, 0)
}

// isSimple reports whether d is a one-line header declaration. Runs of
// them are printed without blank lines in between.
func isSimple(d ast.Decl) bool {
	switch d.(type) {
	case *ast.NamespaceDecl, *ast.RuleNamePrefixDecl, *ast.RuleNameSeparatorDecl,
		*ast.OutputAttributeDecl, *ast.VersionDecl:
		return true
	}
	return false
}

// HasComments checks if a source string contains comments, which the
// formatter does not preserve.
func HasComments(source string) bool {
	var quote byte
	for i := 0; i < len(source); i++ {
		ch := source[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '/':
			if i+1 < len(source) && (source[i+1] == '/' || source[i+1] == '*') {
				return true
			}
		}
	}
	return false
}

func formatDecl(d ast.Decl) string {
	switch decl := d.(type) {
	case *ast.NamespaceDecl:
		if decl.Prefix == "" {
			return "namespace " + quote(decl.URI)
		}
		return "namespace " + decl.Prefix + " = " + quote(decl.URI)
	case *ast.RuleNamePrefixDecl:
		return "rule-name-prefix " + decl.Name
	case *ast.RuleNameSeparatorDecl:
		return "rule-name-separator " + quote(decl.Separator)
	case *ast.OutputAttributeDecl:
		return "output-attribute " + decl.Name
	case *ast.VersionDecl:
		return "version " + quote(decl.Text)
	case *ast.ConstantDecl:
		return "constant $" + decl.Name + " = " + formatBody(decl.Value, 1)
	case *ast.FunctionDecl:
		params := make([]string, len(decl.Params))
		for i, p := range decl.Params {
			params[i] = "$" + p.Name
		}
		return "function " + decl.Name + "(" + strings.Join(params, ", ") + ")\n" +
			indent + formatBody(decl.Body, 1)
	case *ast.RuleDecl:
		var b strings.Builder
		if decl.Output {
			b.WriteString("output " + decl.Name)
		} else if decl.Satisfied {
			b.WriteString("assert " + decl.Name + " satisfied")
		} else {
			b.WriteString("assert " + decl.Name + " unsatisfied")
		}
		b.WriteString("\n" + indent + formatBody(decl.Body, 1))
		for _, r := range decl.Results {
			b.WriteString("\n" + r.Name + " " + formatExpr(r.Value, 0))
		}
		return b.String()
	}
	return ""
}

// formatBody prints a declaration body. A block puts each assignment on
// its own line.
func formatBody(e ast.Expr, depth int) string {
	blk, ok := e.(*ast.BlockExpr)
	if !ok {
		return formatExpr(e, depth)
	}
	return formatBlock(blk, depth)
}

func formatBlock(blk *ast.BlockExpr, depth int) string {
	prefix := strings.Repeat(indent, depth)
	lines := make([]string, 0, len(blk.Assigns)+1)
	for _, a := range blk.Assigns {
		lines = append(lines, "$"+a.Name+" = "+formatOr(a.Value, depth)+";")
	}
	lines = append(lines, formatOr(blk.Value, depth))
	return strings.Join(lines, "\n"+prefix)
}

// formatOr prints e where the grammar accepts an or-expression but not a
// block.
func formatOr(e ast.Expr, depth int) string {
	if blk, ok := e.(*ast.BlockExpr); ok {
		inner := strings.Repeat(indent, depth+1)
		return "(\n" + inner + formatBlock(blk, depth+1) + ")"
	}
	return formatExpr(e, depth)
}

// formatOperand prints e, parenthesized unless it is a primary that can
// take a postfix.
func formatOperand(e ast.Expr, depth int) string {
	switch e.(type) {
	case *ast.QName, *ast.VarRef, *ast.FuncCall, *ast.ListExpr, *ast.PropertyExpr,
		*ast.IndexExpr, *ast.FactSelector, *ast.StrLiteral, *ast.BoolLiteral,
		*ast.NoneLiteral, *ast.KeywordLiteral:
		return formatExpr(e, depth)
	}
	return "(" + formatOr(e, depth) + ")"
}

// leading returns the first character e prints with.
func leading(e ast.Expr) byte {
	switch n := e.(type) {
	case *ast.BinaryExpr:
		return leading(n.Left)
	case *ast.UnaryExpr:
		if n.Op == ast.OpNot {
			return 'n'
		}
		return n.Op[0]
	case *ast.ListExpr:
		return '['
	case *ast.PropertyExpr:
		return leading(n.Object)
	case *ast.IndexExpr:
		return leading(n.Object)
	}
	return 0
}

// formatBranch prints a branch that directly follows a parenthesized
// condition, where a leading bracket or sign would attach to it.
func formatBranch(e ast.Expr, depth int) string {
	switch leading(e) {
	case '[', '-', '+':
		return "(" + formatOr(e, depth) + ")"
	}
	return formatBody(e, depth)
}

func formatExpr(e ast.Expr, depth int) string {
	switch expr := e.(type) {
	case *ast.IntLiteral:
		return expr.Text
	case *ast.DecimalLiteral:
		return expr.Text
	case *ast.FloatLiteral:
		return expr.Text
	case *ast.BoolLiteral:
		if expr.Value {
			return "true"
		}
		return "false"
	case *ast.StrLiteral:
		return quote(expr.Value)
	case *ast.NoneLiteral:
		return "none"
	case *ast.KeywordLiteral:
		return expr.Word
	case *ast.QName:
		return expr.String()
	case *ast.VarRef:
		return "$" + expr.Name
	case *ast.FuncCall:
		return expr.Name + "(" + formatArgs(expr.Args, depth) + ")"
	case *ast.PropertyExpr:
		out := formatOperand(expr.Object, depth) + "." + expr.Name
		if expr.HasArgs {
			out += "(" + formatArgs(expr.Args, depth) + ")"
		}
		return out
	case *ast.IndexExpr:
		return formatOperand(expr.Object, depth) + "[" + formatExpr(expr.Index, depth) + "]"
	case *ast.ListExpr:
		return "[" + formatArgs(expr.Elements, depth) + "]"
	case *ast.BinaryExpr:
		leftStr := formatExpr(expr.Left, depth)
		rightStr := formatExpr(expr.Right, depth)
		if needsParens(expr.Left, expr.Op, false) {
			leftStr = "(" + formatOr(expr.Left, depth) + ")"
		}
		if needsParens(expr.Right, expr.Op, true) {
			rightStr = "(" + formatOr(expr.Right, depth) + ")"
		}
		return leftStr + " " + string(expr.Op) + " " + rightStr
	case *ast.UnaryExpr:
		operandStr := formatExpr(expr.Operand, depth)
		if expr.Op == ast.OpNot {
			if exprPrec(expr.Operand) < precNot {
				operandStr = "(" + formatOr(expr.Operand, depth) + ")"
			}
			return "not " + operandStr
		}
		if exprPrec(expr.Operand) < precUnary || leading(expr.Operand) == '-' || leading(expr.Operand) == '+' {
			operandStr = "(" + formatOr(expr.Operand, depth) + ")"
		}
		return string(expr.Op) + operandStr
	case *ast.IfExpr:
		var b strings.Builder
		for i := range expr.Conds {
			if i > 0 {
				b.WriteString(" else ")
			}
			b.WriteString("if (" + formatOr(expr.Conds[i], depth) + ") " + formatBranch(expr.Thens[i], depth))
		}
		b.WriteString(" else " + formatBody(expr.Else, depth))
		return b.String()
	case *ast.ForExpr:
		return "for ($" + expr.Var.Name + " in " + formatOr(expr.Control, depth) + ") " + formatBody(expr.Body, depth)
	case *ast.BlockExpr:
		return formatBlock(expr, depth)
	case *ast.NavigateExpr:
		return formatNavigate(expr, depth)
	case *ast.FilterExpr:
		out := "filter " + formatOr(expr.Collection, depth)
		if expr.Where != nil {
			out += " where " + formatOr(expr.Where, depth)
		}
		if expr.Returns != nil {
			out += " returns " + formatOr(expr.Returns, depth)
		}
		return out
	case *ast.FactSelector:
		return formatSelector(expr, depth)
	}
	return ""
}

func formatArgs(args []ast.Expr, depth int) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = formatExpr(a, depth)
	}
	return strings.Join(parts, ", ")
}

func formatNavigate(n *ast.NavigateExpr, depth int) string {
	parts := []string{"navigate"}
	if n.Arcrole != nil {
		parts = append(parts, formatExpr(n.Arcrole, depth))
	}
	parts = append(parts, n.Direction)
	if n.IncludeStart {
		parts = append(parts, "include start")
	}
	for _, slot := range []struct {
		word string
		e    ast.Expr
	}{{"from", n.From}, {"to", n.To}, {"role", n.Role}, {"taxonomy", n.Taxonomy}} {
		if slot.e != nil {
			parts = append(parts, slot.word, formatOr(slot.e, depth))
		}
	}
	if n.ReturnKind != "" || len(n.ReturnComponents) > 0 {
		parts = append(parts, "returns")
		if n.ReturnKind != "" {
			parts = append(parts, n.ReturnKind)
		}
		if len(n.ReturnComponents) > 0 {
			parts = append(parts, "("+strings.Join(n.ReturnComponents, ", ")+")")
		}
	}
	return strings.Join(parts, " ")
}

var namedAspects = map[string]bool{
	ast.AspectConcept: true,
	ast.AspectPeriod:  true,
	ast.AspectEntity:  true,
	ast.AspectUnit:    true,
	ast.AspectCube:    true,
}

func formatSelector(n *ast.FactSelector, depth int) string {
	var parts []string
	if n.Covered {
		parts = append(parts, "covered")
	}
	if n.Nils != "" {
		parts = append(parts, n.Nils)
	}
	for _, f := range n.Filters {
		parts = append(parts, formatAspect(f, depth))
	}
	if n.Where != nil {
		parts = append(parts, "where "+formatExpr(n.Where, depth))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func formatAspect(f *ast.AspectFilter, depth int) string {
	if q, ok := f.Value.(*ast.QName); ok && f.Aspect == ast.AspectConcept && f.Op == "=" && f.Alias == nil &&
		!(q.Prefix == "" && namedAspects[q.Local]) {
		return "@" + q.String()
	}
	out := "@" + f.Aspect
	if f.Aspect == ast.AspectDimension && f.Dimension != nil {
		out = "@" + f.Dimension.String()
	}
	if f.Op != "" {
		out += " " + f.Op + " "
		if f.Wildcard {
			out += "*"
		} else {
			out += formatOr(f.Value, depth)
		}
	}
	if f.Alias != nil {
		out += " as $" + f.Alias.Name
	}
	return out
}

func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
	return `"` + r.Replace(s) + `"`
}
