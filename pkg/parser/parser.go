// Package parser implements the rule language parser.
package parser

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
	"github.com/thomasrohde/rulec/pkg/lexer"
)

// MaxDepth bounds expression nesting. Deeper input is reported as a
// syntax error instead of exhausting the goroutine stack.
var MaxDepth = 10000

// SyntaxError reports the first malformed construct of a file.
type SyntaxError struct {
	File   string
	Line   int
	Col    int
	Offset int
	Msg    string
	Diag   diagnostics.Diagnostic
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
}

// Diagnostic returns the error as a coded diagnostic.
func (e *SyntaxError) Diagnostic() diagnostics.Diagnostic {
	return e.Diag
}

func syntaxError(d diagnostics.Diagnostic, filename string) *SyntaxError {
	se := &SyntaxError{File: filename, Msg: d.Message, Diag: d}
	if d.Span != nil {
		se.File = d.Span.File
		se.Line = d.Span.StartLine
		se.Col = d.Span.StartCol
		se.Offset = d.Span.Offset
	}
	return se
}

type parser struct {
	tokens []lexer.Token
	pos    int
	depth  int
	diag   *diagnostics.Diagnostic
}

// Parse tokenizes source and parses it into a file tree. Node ids are not
// assigned; see ast.AssignIDs. The returned error is always a *SyntaxError.
func Parse(source, filename string) (f *ast.File, err error) {
	p, err := newParser(source, filename)
	if err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			f = nil
			err = syntaxError(diagnostics.MakeDiag(diagnostics.EParse, fmt.Sprintf("internal parser error: %v", r), nil, ""), filename)
		}
	}()
	file := p.parseFile()
	if p.diag != nil {
		return nil, syntaxError(*p.diag, filename)
	}
	return file, nil
}

// ParseExpr parses a single expression.
func ParseExpr(source, filename string) (ast.Expr, error) {
	p, err := newParser(source, filename)
	if err != nil {
		return nil, err
	}
	e := p.parseExpr()
	if p.diag == nil && p.peek() != lexer.TokEOF {
		tok := p.current()
		p.addError(fmt.Sprintf("unexpected '%s' after expression", tok.Value), &tok.Span)
	}
	if p.diag != nil {
		return nil, syntaxError(*p.diag, filename)
	}
	return e, nil
}

func newParser(source, filename string) (*parser, error) {
	tokens, err := lexer.Tokenize(source, filename)
	if err != nil {
		if le, ok := err.(*lexer.LexError); ok {
			return nil, syntaxError(le.Diag, filename)
		}
		return nil, syntaxError(diagnostics.MakeDiag(diagnostics.ELex, err.Error(), nil, ""), filename)
	}
	return &parser{tokens: tokens}, nil
}

func (p *parser) current() lexer.Token {
	if p.pos >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1] // EOF
	}
	return p.tokens[p.pos]
}

func (p *parser) peek() lexer.TokenType {
	return p.current().Type
}

func (p *parser) peekAt(offset int) lexer.TokenType {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return lexer.TokEOF
	}
	return p.tokens[idx].Type
}

// peekWord reports whether the current token is the contextual word w.
func (p *parser) peekWord(w string) bool {
	tok := p.current()
	return tok.Type == lexer.TokIdent && tok.Value == w
}

func (p *parser) advance() lexer.Token {
	tok := p.current()
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *parser) expect(typ lexer.TokenType) (lexer.Token, bool) {
	tok := p.current()
	if tok.Type != typ {
		p.addError(fmt.Sprintf("expected %s, got '%s'", tokenName(typ), tok.Value), &tok.Span)
		return tok, false
	}
	return p.advance(), true
}

func (p *parser) expectWord(w string) bool {
	if !p.peekWord(w) {
		tok := p.current()
		p.addError(fmt.Sprintf("expected '%s', got '%s'", w, tok.Value), &tok.Span)
		return false
	}
	p.advance()
	return true
}

func (p *parser) addError(msg string, span *ast.Span) {
	if p.diag != nil {
		return
	}
	d := diagnostics.MakeDiag(diagnostics.EParse, msg, span, "")
	p.diag = &d
}

func (p *parser) failed() bool {
	return p.diag != nil
}

func (p *parser) enter() bool {
	p.depth++
	if p.depth > MaxDepth {
		tok := p.current()
		p.addError(fmt.Sprintf("expression nesting exceeds %d levels", MaxDepth), &tok.Span)
		return false
	}
	return true
}

func (p *parser) leave() {
	p.depth--
}

// spanFrom covers start through the last consumed token.
func (p *parser) spanFrom(start ast.Span) ast.Span {
	end := start
	if p.pos > 0 {
		end = p.tokens[p.pos-1].Span
	}
	return ast.Span{
		File:      start.File,
		StartLine: start.StartLine,
		StartCol:  start.StartCol,
		EndLine:   end.EndLine,
		EndCol:    end.EndCol,
		Offset:    start.Offset,
	}
}

func tokenName(t lexer.TokenType) string {
	switch t {
	case lexer.TokLBrace:
		return "'{'"
	case lexer.TokRBrace:
		return "'}'"
	case lexer.TokLBracket:
		return "'['"
	case lexer.TokRBracket:
		return "']'"
	case lexer.TokLParen:
		return "'('"
	case lexer.TokRParen:
		return "')'"
	case lexer.TokComma:
		return "','"
	case lexer.TokSemicolon:
		return "';'"
	case lexer.TokEquals:
		return "'='"
	case lexer.TokIn:
		return "'in'"
	case lexer.TokElse:
		return "'else'"
	case lexer.TokIdent:
		return "identifier"
	case lexer.TokVar:
		return "variable"
	case lexer.TokStringLit:
		return "string"
	case lexer.TokEOF:
		return "end of file"
	default:
		return fmt.Sprintf("token(%d)", t)
	}
}

// --- File ---

func (p *parser) parseFile() *ast.File {
	startSpan := p.current().Span

	var decls []ast.Decl
	for p.peek() != lexer.TokEOF {
		d := p.parseDecl()
		if d == nil || p.failed() {
			return nil
		}
		decls = append(decls, d)
	}

	return &ast.File{
		Span:  p.spanFrom(startSpan),
		Decls: decls,
	}
}

// --- Declarations ---

func (p *parser) parseDecl() ast.Decl {
	switch p.peek() {
	case lexer.TokNamespace:
		return p.parseNamespace()
	case lexer.TokRuleNamePrefix:
		start := p.advance()
		name, ok := p.expectName()
		if !ok {
			return nil
		}
		return &ast.RuleNamePrefixDecl{Span: p.spanFrom(start.Span), Name: name}
	case lexer.TokRuleNameSeparator:
		start := p.advance()
		sep, ok := p.expect(lexer.TokStringLit)
		if !ok {
			return nil
		}
		return &ast.RuleNameSeparatorDecl{Span: p.spanFrom(start.Span), Separator: sep.Value}
	case lexer.TokOutputAttribute:
		start := p.advance()
		name, ok := p.expectName()
		if !ok {
			return nil
		}
		return &ast.OutputAttributeDecl{Span: p.spanFrom(start.Span), Name: name}
	case lexer.TokVersion:
		start := p.advance()
		text, ok := p.expect(lexer.TokStringLit)
		if !ok {
			return nil
		}
		return &ast.VersionDecl{Span: p.spanFrom(start.Span), Text: text.Value}
	case lexer.TokConstant:
		return p.parseConstant()
	case lexer.TokFunction:
		return p.parseFunction()
	case lexer.TokAssert, lexer.TokOutput:
		return p.parseRule()
	}
	tok := p.current()
	p.addError(fmt.Sprintf("expected a declaration, got '%s'", tok.Value), &tok.Span)
	return nil
}

func (p *parser) expectName() (string, bool) {
	tok := p.current()
	if tok.Type != lexer.TokIdent {
		p.addError(fmt.Sprintf("expected name, got '%s'", tok.Value), &tok.Span)
		return "", false
	}
	p.advance()
	return tok.Value, true
}

func (p *parser) parseNamespace() ast.Decl {
	start := p.advance() // consume 'namespace'
	prefix := ""
	if p.peek() == lexer.TokIdent && p.peekAt(1) == lexer.TokEquals {
		prefix = p.advance().Value
		p.advance() // consume '='
	}
	uri, ok := p.expect(lexer.TokStringLit)
	if !ok {
		return nil
	}
	return &ast.NamespaceDecl{Span: p.spanFrom(start.Span), Prefix: prefix, URI: uri.Value}
}

func (p *parser) parseConstant() ast.Decl {
	start := p.advance() // consume 'constant'
	name, ok := p.expect(lexer.TokVar)
	if !ok {
		return nil
	}
	if _, ok := p.expect(lexer.TokEquals); !ok {
		return nil
	}
	value := p.parseExpr()
	if value == nil {
		return nil
	}
	return &ast.ConstantDecl{Span: p.spanFrom(start.Span), Name: name.Value, Value: value}
}

func (p *parser) parseFunction() ast.Decl {
	start := p.advance() // consume 'function'
	name, ok := p.expectName()
	if !ok {
		return nil
	}
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil
	}
	var params []*ast.VarDecl
	for p.peek() != lexer.TokRParen {
		tok, ok := p.expect(lexer.TokVar)
		if !ok {
			return nil
		}
		params = append(params, &ast.VarDecl{Span: tok.Span, Name: tok.Value, Binding: ast.BindArgument})
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil
	}
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.FunctionDecl{Span: p.spanFrom(start.Span), Name: name, Params: params, Body: body}
}

func (p *parser) parseRule() ast.Decl {
	start := p.advance() // consume 'assert' or 'output'
	rule := &ast.RuleDecl{Output: start.Type == lexer.TokOutput, Satisfied: true}
	name, ok := p.expectName()
	if !ok {
		return nil
	}
	rule.Name = name
	if !rule.Output {
		switch {
		case p.peekWord("satisfied"):
			p.advance()
		case p.peekWord("unsatisfied"):
			p.advance()
			rule.Satisfied = false
		}
	}
	rule.Body = p.parseExpr()
	if rule.Body == nil {
		return nil
	}
	for p.peek() == lexer.TokIdent {
		tok := p.advance()
		value := p.parseExpr()
		if value == nil {
			return nil
		}
		rule.Results = append(rule.Results, &ast.ResultClause{
			Span:  p.spanFrom(tok.Span),
			Name:  tok.Value,
			Value: value,
		})
	}
	rule.Span = p.spanFrom(start.Span)
	return rule
}

// --- Expressions ---

// parseExpr parses a block (`$v = e; ... value`) or an or-expression.
func (p *parser) parseExpr() ast.Expr {
	if !p.enter() {
		return nil
	}
	defer p.leave()

	if p.peek() == lexer.TokVar && p.peekAt(1) == lexer.TokEquals {
		return p.parseBlock()
	}
	return p.parseOr()
}

func (p *parser) parseBlock() ast.Expr {
	start := p.current().Span
	var assigns []*ast.VarDecl
	for p.peek() == lexer.TokVar && p.peekAt(1) == lexer.TokEquals {
		name := p.advance()
		p.advance() // consume '='
		value := p.parseOr()
		if value == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TokSemicolon); !ok {
			return nil
		}
		assigns = append(assigns, &ast.VarDecl{
			Span:    p.spanFrom(name.Span),
			Name:    name.Value,
			Binding: ast.BindLocal,
			Value:   value,
		})
	}
	value := p.parseOr()
	if value == nil {
		return nil
	}
	return &ast.BlockExpr{Span: p.spanFrom(start), Assigns: assigns, Value: value}
}

func (p *parser) binary(start ast.Span, op ast.BinaryOp, left, right ast.Expr) ast.Expr {
	return &ast.BinaryExpr{Span: p.spanFrom(start), Op: op, Left: left, Right: right}
}

func (p *parser) parseOr() ast.Expr {
	start := p.current().Span
	left := p.parseAnd()
	for left != nil && p.peek() == lexer.TokOr {
		p.advance()
		right := p.parseAnd()
		if right == nil {
			return nil
		}
		left = p.binary(start, ast.OpOr, left, right)
	}
	return left
}

func (p *parser) parseAnd() ast.Expr {
	start := p.current().Span
	left := p.parseNot()
	for left != nil && p.peek() == lexer.TokAnd {
		p.advance()
		right := p.parseNot()
		if right == nil {
			return nil
		}
		left = p.binary(start, ast.OpAnd, left, right)
	}
	return left
}

func (p *parser) parseNot() ast.Expr {
	if p.peek() != lexer.TokNot {
		return p.parseComparison()
	}
	if !p.enter() {
		return nil
	}
	defer p.leave()
	start := p.advance()
	operand := p.parseNot()
	if operand == nil {
		return nil
	}
	return &ast.UnaryExpr{Span: p.spanFrom(start.Span), Op: ast.OpNot, Operand: operand}
}

func (p *parser) comparisonOp() (ast.BinaryOp, int) {
	switch p.peek() {
	case lexer.TokEqEq:
		return ast.OpEq, 1
	case lexer.TokBangEq:
		return ast.OpNeq, 1
	case lexer.TokLt:
		return ast.OpLt, 1
	case lexer.TokLtEq:
		return ast.OpLtEq, 1
	case lexer.TokGt:
		return ast.OpGt, 1
	case lexer.TokGtEq:
		return ast.OpGtEq, 1
	case lexer.TokIn:
		return ast.OpIn, 1
	case lexer.TokNot:
		if p.peekAt(1) == lexer.TokIn {
			return ast.OpNotIn, 2
		}
	}
	return "", 0
}

func (p *parser) parseComparison() ast.Expr {
	start := p.current().Span
	left := p.parseSymDiff()
	for left != nil {
		op, n := p.comparisonOp()
		if n == 0 {
			break
		}
		for i := 0; i < n; i++ {
			p.advance()
		}
		right := p.parseSymDiff()
		if right == nil {
			return nil
		}
		left = p.binary(start, op, left, right)
	}
	return left
}

func (p *parser) parseSymDiff() ast.Expr {
	start := p.current().Span
	left := p.parseInter()
	for left != nil && p.peek() == lexer.TokCaret {
		p.advance()
		right := p.parseInter()
		if right == nil {
			return nil
		}
		left = p.binary(start, ast.OpSymDiff, left, right)
	}
	return left
}

func (p *parser) parseInter() ast.Expr {
	start := p.current().Span
	left := p.parseAdditive()
	for left != nil && p.peek() == lexer.TokAmp {
		p.advance()
		right := p.parseAdditive()
		if right == nil {
			return nil
		}
		left = p.binary(start, ast.OpInter, left, right)
	}
	return left
}

func (p *parser) parseAdditive() ast.Expr {
	start := p.current().Span
	left := p.parseMultiplicative()
	for left != nil {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokPlus:
			op = ast.OpAdd
		case lexer.TokMinus:
			op = ast.OpSub
		case lexer.TokPipe:
			op = ast.OpUnion
		default:
			return left
		}
		p.advance()
		right := p.parseMultiplicative()
		if right == nil {
			return nil
		}
		left = p.binary(start, op, left, right)
	}
	return left
}

func (p *parser) parseMultiplicative() ast.Expr {
	start := p.current().Span
	left := p.parseUnary()
	for left != nil {
		var op ast.BinaryOp
		switch p.peek() {
		case lexer.TokStar:
			op = ast.OpMul
		case lexer.TokSlash:
			op = ast.OpDiv
		default:
			return left
		}
		p.advance()
		right := p.parseUnary()
		if right == nil {
			return nil
		}
		left = p.binary(start, op, left, right)
	}
	return left
}

func (p *parser) parseUnary() ast.Expr {
	var op ast.UnaryOp
	switch p.peek() {
	case lexer.TokMinus:
		op = ast.OpNeg
	case lexer.TokPlus:
		op = ast.OpPos
	default:
		return p.parsePostfix()
	}
	if !p.enter() {
		return nil
	}
	defer p.leave()
	start := p.advance()
	operand := p.parseUnary()
	if operand == nil {
		return nil
	}
	return &ast.UnaryExpr{Span: p.spanFrom(start.Span), Op: op, Operand: operand}
}

func (p *parser) parsePostfix() ast.Expr {
	start := p.current().Span
	expr := p.parsePrimary()
	for expr != nil {
		switch p.peek() {
		case lexer.TokDot:
			p.advance()
			name, ok := p.expectName()
			if !ok {
				return nil
			}
			prop := &ast.PropertyExpr{Object: expr, Name: name}
			if p.peek() == lexer.TokLParen {
				args, ok := p.parseArgs()
				if !ok {
					return nil
				}
				prop.Args = args
				prop.HasArgs = true
			}
			prop.Span = p.spanFrom(start)
			expr = prop
		case lexer.TokLBracket:
			p.advance()
			idx := p.parseExpr()
			if idx == nil {
				return nil
			}
			if _, ok := p.expect(lexer.TokRBracket); !ok {
				return nil
			}
			expr = &ast.IndexExpr{Span: p.spanFrom(start), Object: expr, Index: idx}
		default:
			return expr
		}
	}
	return expr
}

// parseArgs parses `( e, e, ... )`.
func (p *parser) parseArgs() ([]ast.Expr, bool) {
	if _, ok := p.expect(lexer.TokLParen); !ok {
		return nil, false
	}
	var args []ast.Expr
	for p.peek() != lexer.TokRParen {
		arg := p.parseExpr()
		if arg == nil {
			return nil, false
		}
		args = append(args, arg)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokRParen); !ok {
		return nil, false
	}
	return args, true
}

var keywordLiterals = map[string]ast.LiteralClass{
	"forever":  ast.LitForever,
	"skip":     ast.LitSkip,
	"error":    ast.LitSeverity,
	"warning":  ast.LitSeverity,
	"ok":       ast.LitSeverity,
	"pass":     ast.LitSeverity,
	"debit":    ast.LitBalance,
	"credit":   ast.LitBalance,
	"instant":  ast.LitPeriodType,
	"duration": ast.LitPeriodType,
}

func splitQName(text string) (prefix, local string) {
	if i := strings.IndexByte(text, ':'); i >= 0 {
		return text[:i], text[i+1:]
	}
	return "", text
}

func (p *parser) parsePrimary() ast.Expr {
	tok := p.current()
	switch tok.Type {
	case lexer.TokIntLit:
		p.advance()
		v, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return &ast.DecimalLiteral{Span: tok.Span, Text: tok.Value}
		}
		return &ast.IntLiteral{Span: tok.Span, Text: tok.Value, Value: v}
	case lexer.TokDecimalLit:
		p.advance()
		return &ast.DecimalLiteral{Span: tok.Span, Text: tok.Value}
	case lexer.TokFloatLit:
		p.advance()
		v, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			p.addError(fmt.Sprintf("invalid float literal '%s'", tok.Value), &tok.Span)
			return nil
		}
		return &ast.FloatLiteral{Span: tok.Span, Text: tok.Value, Value: v}
	case lexer.TokStringLit:
		p.advance()
		return &ast.StrLiteral{Span: tok.Span, Value: tok.Value}
	case lexer.TokTrue, lexer.TokFalse:
		p.advance()
		return &ast.BoolLiteral{Span: tok.Span, Value: tok.Type == lexer.TokTrue}
	case lexer.TokNone:
		p.advance()
		return &ast.NoneLiteral{Span: tok.Span}
	case lexer.TokVar:
		p.advance()
		return &ast.VarRef{Span: tok.Span, Name: tok.Value}
	case lexer.TokIdent, lexer.TokQName:
		return p.parseName()
	case lexer.TokLBracket:
		return p.parseList()
	case lexer.TokLParen:
		p.advance()
		inner := p.parseExpr()
		if inner == nil {
			return nil
		}
		if _, ok := p.expect(lexer.TokRParen); !ok {
			return nil
		}
		return inner
	case lexer.TokIf:
		return p.parseIf()
	case lexer.TokFor:
		return p.parseFor()
	case lexer.TokNavigate:
		return p.parseNavigate()
	case lexer.TokFilter:
		return p.parseFilter()
	case lexer.TokLBrace:
		return p.parseFactSelector()
	case lexer.TokEOF:
		p.addError("unexpected end of file, expected an expression", &tok.Span)
		return nil
	}
	p.addError(fmt.Sprintf("unexpected '%s', expected an expression", tok.Value), &tok.Span)
	return nil
}

func (p *parser) parseName() ast.Expr {
	tok := p.advance()
	if p.peek() == lexer.TokLParen {
		args, ok := p.parseArgs()
		if !ok {
			return nil
		}
		return &ast.FuncCall{Span: p.spanFrom(tok.Span), Name: tok.Value, Args: args}
	}
	if tok.Type == lexer.TokIdent {
		if tok.Value == "INF" {
			return &ast.FloatLiteral{Span: tok.Span, Text: tok.Value, Value: math.Inf(1)}
		}
		if class, ok := keywordLiterals[tok.Value]; ok {
			return &ast.KeywordLiteral{Span: tok.Span, Class: class, Word: tok.Value}
		}
	}
	prefix, local := splitQName(tok.Value)
	return &ast.QName{Span: tok.Span, Prefix: prefix, Local: local}
}

func (p *parser) parseList() ast.Expr {
	start := p.advance() // consume '['
	var elems []ast.Expr
	for p.peek() != lexer.TokRBracket {
		e := p.parseExpr()
		if e == nil {
			return nil
		}
		elems = append(elems, e)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	if _, ok := p.expect(lexer.TokRBracket); !ok {
		return nil
	}
	return &ast.ListExpr{Span: p.spanFrom(start.Span), Elements: elems}
}

func (p *parser) parseIf() ast.Expr {
	start := p.advance() // consume 'if'
	n := &ast.IfExpr{}
	for {
		cond := p.parseOr()
		if cond == nil {
			return nil
		}
		then := p.parseExpr()
		if then == nil {
			return nil
		}
		n.Conds = append(n.Conds, cond)
		n.Thens = append(n.Thens, then)
		if _, ok := p.expect(lexer.TokElse); !ok {
			return nil
		}
		if p.peek() != lexer.TokIf {
			break
		}
		p.advance() // consume 'if' of 'else if'
	}
	n.Else = p.parseExpr()
	if n.Else == nil {
		return nil
	}
	n.Span = p.spanFrom(start.Span)
	return n
}

func (p *parser) parseFor() ast.Expr {
	start := p.advance() // consume 'for'
	paren := false
	if p.peek() == lexer.TokLParen {
		p.advance()
		paren = true
	}
	v, ok := p.expect(lexer.TokVar)
	if !ok {
		return nil
	}
	if _, ok := p.expect(lexer.TokIn); !ok {
		return nil
	}
	control := p.parseOr()
	if control == nil {
		return nil
	}
	if paren {
		if _, ok := p.expect(lexer.TokRParen); !ok {
			return nil
		}
	}
	body := p.parseExpr()
	if body == nil {
		return nil
	}
	return &ast.ForExpr{
		Span:    p.spanFrom(start.Span),
		Var:     &ast.VarDecl{Span: v.Span, Name: v.Value, Binding: ast.BindLoop},
		Control: control,
		Body:    body,
	}
}

var directions = map[string]bool{
	"children":            true,
	"parents":             true,
	"descendants":         true,
	"ancestors":           true,
	"siblings":            true,
	"self":                true,
	"descendants-or-self": true,
	"ancestors-or-self":   true,
}

func (p *parser) parseNavigate() ast.Expr {
	start := p.advance() // consume 'navigate'
	n := &ast.NavigateExpr{}

	tok := p.current()
	switch {
	case tok.Type == lexer.TokStringLit:
		p.advance()
		n.Arcrole = &ast.StrLiteral{Span: tok.Span, Value: tok.Value}
	case tok.Type == lexer.TokQName, tok.Type == lexer.TokIdent && !directions[tok.Value]:
		p.advance()
		prefix, local := splitQName(tok.Value)
		n.Arcrole = &ast.QName{Span: tok.Span, Prefix: prefix, Local: local}
	}

	dir := p.current()
	if dir.Type != lexer.TokIdent || !directions[dir.Value] {
		p.addError(fmt.Sprintf("expected navigation direction, got '%s'", dir.Value), &dir.Span)
		return nil
	}
	p.advance()
	n.Direction = dir.Value

	for p.peek() == lexer.TokIdent {
		word := p.current().Value
		switch word {
		case "include":
			p.advance()
			if !p.expectWord("start") {
				return nil
			}
			n.IncludeStart = true
			continue
		case "returns":
			p.advance()
			if !p.parseNavigateReturns(n) {
				return nil
			}
			continue
		}
		var slot *ast.Expr
		switch word {
		case "from":
			slot = &n.From
		case "to":
			slot = &n.To
		case "role":
			slot = &n.Role
		case "taxonomy":
			slot = &n.Taxonomy
		}
		if slot == nil {
			break
		}
		p.advance()
		e := p.parseOr()
		if e == nil {
			return nil
		}
		*slot = e
	}
	n.Span = p.spanFrom(start.Span)
	return n
}

func (p *parser) parseNavigateReturns(n *ast.NavigateExpr) bool {
	if p.peekWord("list") || p.peekWord("set") {
		n.ReturnKind = p.advance().Value
	}
	if p.peek() != lexer.TokLParen {
		return true
	}
	p.advance()
	for p.peek() != lexer.TokRParen {
		name, ok := p.expectName()
		if !ok {
			return false
		}
		n.ReturnComponents = append(n.ReturnComponents, name)
		if p.peek() != lexer.TokComma {
			break
		}
		p.advance()
	}
	_, ok := p.expect(lexer.TokRParen)
	return ok
}

func (p *parser) parseFilter() ast.Expr {
	start := p.advance() // consume 'filter'
	coll := p.parseOr()
	if coll == nil {
		return nil
	}
	n := &ast.FilterExpr{
		Collection: coll,
		Item:       &ast.VarDecl{Span: start.Span, Name: "item", Binding: ast.BindItem},
	}
	if p.peekWord("where") {
		p.advance()
		if n.Where = p.parseOr(); n.Where == nil {
			return nil
		}
	}
	if p.peekWord("returns") {
		p.advance()
		if n.Returns = p.parseOr(); n.Returns == nil {
			return nil
		}
	}
	n.Span = p.spanFrom(start.Span)
	return n
}

var namedAspects = map[string]bool{
	ast.AspectConcept: true,
	ast.AspectPeriod:  true,
	ast.AspectEntity:  true,
	ast.AspectUnit:    true,
	ast.AspectCube:    true,
}

func (p *parser) parseFactSelector() ast.Expr {
	start := p.advance() // consume '{'
	n := &ast.FactSelector{}
	if p.peekWord("covered") {
		p.advance()
		n.Covered = true
	}
	if p.peekWord("nils") || p.peekWord("nonils") {
		n.Nils = p.advance().Value
	}
	for p.peek() == lexer.TokAt {
		f := p.parseAspectFilter()
		if f == nil {
			return nil
		}
		n.Filters = append(n.Filters, f)
	}
	n.Fact = &ast.VarDecl{Span: start.Span, Name: "fact", Binding: ast.BindFact}
	if p.peekWord("where") {
		p.advance()
		if n.Where = p.parseExpr(); n.Where == nil {
			return nil
		}
	}
	if _, ok := p.expect(lexer.TokRBrace); !ok {
		return nil
	}
	n.Span = p.spanFrom(start.Span)
	return n
}

func (p *parser) aspectOp() (string, int) {
	switch p.peek() {
	case lexer.TokEquals:
		return "=", 1
	case lexer.TokBangEq:
		return "!=", 1
	case lexer.TokIn:
		return "in", 1
	case lexer.TokNot:
		if p.peekAt(1) == lexer.TokIn {
			return "not in", 2
		}
	}
	return "", 0
}

func (p *parser) parseAspectFilter() *ast.AspectFilter {
	start := p.advance() // consume '@'
	tok := p.current()
	if tok.Type != lexer.TokIdent && tok.Type != lexer.TokQName {
		p.addError(fmt.Sprintf("expected aspect name after '@', got '%s'", tok.Value), &tok.Span)
		return nil
	}
	p.advance()
	f := &ast.AspectFilter{}
	prefix, local := splitQName(tok.Value)
	name := &ast.QName{Span: tok.Span, Prefix: prefix, Local: local}

	_, opLen := p.aspectOp()
	switch {
	case tok.Type == lexer.TokIdent && namedAspects[tok.Value]:
		f.Aspect = tok.Value
	case opLen > 0 || p.peekWord("as"):
		f.Aspect = ast.AspectDimension
		f.Dimension = name
	default:
		// @Name alone is shorthand for @concept = Name.
		f.Aspect = ast.AspectConcept
		f.Op = "="
		f.Value = name
		f.Span = p.spanFrom(start.Span)
		return f
	}

	if op, n := p.aspectOp(); n > 0 {
		for i := 0; i < n; i++ {
			p.advance()
		}
		f.Op = op
		if p.peek() == lexer.TokStar {
			p.advance()
			f.Wildcard = true
		} else if f.Value = p.parseOr(); f.Value == nil {
			return nil
		}
	}
	if p.peekWord("as") {
		p.advance()
		v, ok := p.expect(lexer.TokVar)
		if !ok {
			return nil
		}
		f.Alias = &ast.VarDecl{Span: v.Span, Name: v.Value, Binding: ast.BindAlias}
	}
	f.Span = p.spanFrom(start.Span)
	return f
}
