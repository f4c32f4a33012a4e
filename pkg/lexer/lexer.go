// Package lexer implements the rule language tokenizer.
package lexer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/thomasrohde/rulec/pkg/ast"
	"github.com/thomasrohde/rulec/pkg/diagnostics"
)

// TokenType identifies the type of a lexer token.
type TokenType int

const (
	// Keywords
	TokNamespace TokenType = iota
	TokRuleNamePrefix
	TokRuleNameSeparator
	TokOutputAttribute
	TokVersion
	TokConstant
	TokFunction
	TokAssert
	TokOutput
	TokIf
	TokElse
	TokFor
	TokIn
	TokNot
	TokAnd
	TokOr
	TokNavigate
	TokFilter
	TokTrue
	TokFalse
	TokNone

	// Literals
	TokIntLit
	TokDecimalLit
	TokFloatLit
	TokStringLit

	// Names
	TokIdent
	TokQName // prefix:local
	TokVar   // $name, Value holds the name without '$'

	// Punctuation
	TokLBrace    // {
	TokRBrace    // }
	TokLBracket  // [
	TokRBracket  // ]
	TokLParen    // (
	TokRParen    // )
	TokComma     // ,
	TokSemicolon // ;
	TokDot       // .
	TokAt        // @
	TokEquals    // =

	// Comparison operators
	TokGtEq   // >=
	TokLtEq   // <=
	TokEqEq   // ==
	TokBangEq // !=
	TokGt     // >
	TokLt     // <

	// Arithmetic and set operators
	TokPlus  // +
	TokMinus // -
	TokStar  // *
	TokSlash // /
	TokAmp   // &
	TokCaret // ^
	TokPipe  // |

	// Special
	TokEOF
)

// Token represents a single lexer token.
type Token struct {
	Type  TokenType
	Value string
	Span  ast.Span
}

var keywords = map[string]TokenType{
	"namespace":           TokNamespace,
	"rule-name-prefix":    TokRuleNamePrefix,
	"rule-name-separator": TokRuleNameSeparator,
	"output-attribute":    TokOutputAttribute,
	"version":             TokVersion,
	"constant":            TokConstant,
	"function":            TokFunction,
	"assert":              TokAssert,
	"output":              TokOutput,
	"if":                  TokIf,
	"else":                TokElse,
	"for":                 TokFor,
	"in":                  TokIn,
	"not":                 TokNot,
	"and":                 TokAnd,
	"or":                  TokOr,
	"navigate":            TokNavigate,
	"filter":              TokFilter,
	"true":                TokTrue,
	"false":               TokFalse,
	"none":                TokNone,
}

// IsKeyword reports whether t is a reserved word.
func IsKeyword(t TokenType) bool {
	return t >= TokNamespace && t <= TokNone
}

type scanner struct {
	source   string
	filename string
	pos      int
	line     int
	col      int
}

func newScanner(source, filename string) *scanner {
	return &scanner{
		source:   source,
		filename: filename,
		pos:      0,
		line:     1,
		col:      1,
	}
}

func (s *scanner) atEnd() bool {
	return s.pos >= len(s.source)
}

func (s *scanner) peek() byte {
	if s.atEnd() {
		return 0
	}
	return s.source[s.pos]
}

func (s *scanner) peekAt(offset int) byte {
	p := s.pos + offset
	if p >= len(s.source) {
		return 0
	}
	return s.source[p]
}

func (s *scanner) advance() byte {
	ch := s.source[s.pos]
	s.pos++
	if ch == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return ch
}

func (s *scanner) span(startLine, startCol, startPos int) ast.Span {
	return ast.Span{
		File:      s.filename,
		StartLine: startLine,
		StartCol:  startCol,
		EndLine:   s.line,
		EndCol:    s.col,
		Offset:    startPos,
	}
}

func (s *scanner) skipWhitespaceAndComments() error {
	for !s.atEnd() {
		ch := s.peek()
		switch {
		case ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n':
			s.advance()
		case ch == '/' && s.peekAt(1) == '/':
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		case ch == '/' && s.peekAt(1) == '*':
			startLine, startCol, startPos := s.line, s.col, s.pos
			s.advance()
			s.advance()
			closed := false
			for !s.atEnd() {
				if s.peek() == '*' && s.peekAt(1) == '/' {
					s.advance()
					s.advance()
					closed = true
					break
				}
				s.advance()
			}
			if !closed {
				return s.lexError(startLine, startCol, startPos, "unterminated block comment")
			}
		default:
			return nil
		}
	}
	return nil
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isAlphaNumeric(ch byte) bool {
	return isAlpha(ch) || isDigit(ch)
}

// scanName consumes an identifier body. A '-' is part of the name only
// when a letter follows it, so `us-gaap` is one name and `a - b` is not.
func (s *scanner) scanName() string {
	start := s.pos
	for !s.atEnd() {
		ch := s.peek()
		if isAlphaNumeric(ch) {
			s.advance()
			continue
		}
		if ch == '-' && isAlpha(s.peekAt(1)) {
			s.advance()
			continue
		}
		break
	}
	return s.source[start:s.pos]
}

func (s *scanner) scanString() (Token, error) {
	startLine, startCol, startPos := s.line, s.col, s.pos
	quote := s.advance() // consume opening quote

	var buf strings.Builder
	for !s.atEnd() {
		ch := s.peek()
		if ch == quote {
			s.advance() // consume closing quote
			return Token{
				Type:  TokStringLit,
				Value: buf.String(),
				Span:  s.span(startLine, startCol, startPos),
			}, nil
		}
		if ch == '\\' {
			s.advance() // consume backslash
			if s.atEnd() {
				return Token{}, s.lexError(startLine, startCol, startPos, "unterminated string escape")
			}
			esc := s.advance()
			switch esc {
			case '"':
				buf.WriteByte('"')
			case '\'':
				buf.WriteByte('\'')
			case '\\':
				buf.WriteByte('\\')
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			default:
				return Token{}, s.lexError(startLine, startCol, startPos, fmt.Sprintf("invalid escape character: \\%c", esc))
			}
			continue
		}
		// Rule strings may span lines.
		r, size := utf8.DecodeRuneInString(s.source[s.pos:])
		if r == utf8.RuneError && size == 1 {
			return Token{}, s.lexError(startLine, startCol, startPos, "invalid UTF-8 character in string")
		}
		buf.WriteRune(r)
		for i := 0; i < size; i++ {
			s.advance()
		}
	}
	return Token{}, s.lexError(startLine, startCol, startPos, "unterminated string literal")
}

func (s *scanner) scanNumber() Token {
	startLine, startCol, startPos := s.line, s.col, s.pos
	tokType := TokIntLit

	for !s.atEnd() && isDigit(s.peek()) {
		s.advance()
	}

	if s.peek() == '.' && isDigit(s.peekAt(1)) {
		tokType = TokDecimalLit
		s.advance() // consume '.'
		for !s.atEnd() && isDigit(s.peek()) {
			s.advance()
		}
	}

	if s.peek() == 'e' || s.peek() == 'E' {
		next := s.peekAt(1)
		if isDigit(next) || ((next == '+' || next == '-') && isDigit(s.peekAt(2))) {
			tokType = TokFloatLit
			s.advance() // consume e/E
			if s.peek() == '+' || s.peek() == '-' {
				s.advance()
			}
			for !s.atEnd() && isDigit(s.peek()) {
				s.advance()
			}
		}
	}

	return Token{
		Type:  tokType,
		Value: s.source[startPos:s.pos],
		Span:  s.span(startLine, startCol, startPos),
	}
}

func (s *scanner) scanIdentOrKeyword() Token {
	startLine, startCol, startPos := s.line, s.col, s.pos
	text := s.scanName()

	if s.peek() == ':' && isAlpha(s.peekAt(1)) {
		s.advance() // consume ':'
		local := s.scanName()
		return Token{
			Type:  TokQName,
			Value: text + ":" + local,
			Span:  s.span(startLine, startCol, startPos),
		}
	}

	if tokType, ok := keywords[text]; ok {
		return Token{
			Type:  tokType,
			Value: text,
			Span:  s.span(startLine, startCol, startPos),
		}
	}

	return Token{
		Type:  TokIdent,
		Value: text,
		Span:  s.span(startLine, startCol, startPos),
	}
}

func (s *scanner) lexError(line, col, offset int, msg string) error {
	diag := diagnostics.MakeDiag(
		diagnostics.ELex,
		msg,
		&ast.Span{File: s.filename, StartLine: line, StartCol: col, EndLine: line, EndCol: col + 1, Offset: offset},
		"",
	)
	return &LexError{Diag: diag}
}

// LexError wraps a diagnostic for lex errors.
type LexError struct {
	Diag diagnostics.Diagnostic
}

func (e *LexError) Error() string {
	return e.Diag.Message
}

var singleChar = map[byte]TokenType{
	'{': TokLBrace,
	'}': TokRBrace,
	'[': TokLBracket,
	']': TokRBracket,
	'(': TokLParen,
	')': TokRParen,
	',': TokComma,
	';': TokSemicolon,
	'.': TokDot,
	'@': TokAt,
	'+': TokPlus,
	'-': TokMinus,
	'*': TokStar,
	'/': TokSlash,
	'&': TokAmp,
	'^': TokCaret,
	'|': TokPipe,
}

func (s *scanner) nextToken() (Token, error) {
	if err := s.skipWhitespaceAndComments(); err != nil {
		return Token{}, err
	}

	if s.atEnd() {
		return Token{
			Type:  TokEOF,
			Value: "",
			Span:  s.span(s.line, s.col, s.pos),
		}, nil
	}

	ch := s.peek()
	startLine, startCol, startPos := s.line, s.col, s.pos

	// Multi-char tokens
	switch ch {
	case '=':
		s.advance()
		if s.peek() == '=' {
			s.advance()
			return Token{Type: TokEqEq, Value: "==", Span: s.span(startLine, startCol, startPos)}, nil
		}
		return Token{Type: TokEquals, Value: "=", Span: s.span(startLine, startCol, startPos)}, nil

	case '!':
		s.advance()
		if s.peek() == '=' {
			s.advance()
			return Token{Type: TokBangEq, Value: "!=", Span: s.span(startLine, startCol, startPos)}, nil
		}
		return Token{}, s.lexError(startLine, startCol, startPos, "unexpected character '!'")

	case '>':
		s.advance()
		if s.peek() == '=' {
			s.advance()
			return Token{Type: TokGtEq, Value: ">=", Span: s.span(startLine, startCol, startPos)}, nil
		}
		return Token{Type: TokGt, Value: ">", Span: s.span(startLine, startCol, startPos)}, nil

	case '<':
		s.advance()
		if s.peek() == '=' {
			s.advance()
			return Token{Type: TokLtEq, Value: "<=", Span: s.span(startLine, startCol, startPos)}, nil
		}
		return Token{Type: TokLt, Value: "<", Span: s.span(startLine, startCol, startPos)}, nil

	case '$':
		s.advance()
		if !isAlpha(s.peek()) {
			return Token{}, s.lexError(startLine, startCol, startPos, "expected variable name after '$'")
		}
		name := s.scanName()
		return Token{Type: TokVar, Value: name, Span: s.span(startLine, startCol, startPos)}, nil
	}

	if typ, ok := singleChar[ch]; ok {
		s.advance()
		return Token{Type: typ, Value: string(ch), Span: s.span(startLine, startCol, startPos)}, nil
	}

	if isDigit(ch) {
		return s.scanNumber(), nil
	}

	if ch == '"' || ch == '\'' {
		return s.scanString()
	}

	if isAlpha(ch) {
		return s.scanIdentOrKeyword(), nil
	}

	r, _ := utf8.DecodeRuneInString(s.source[s.pos:])
	s.advance()
	return Token{}, s.lexError(startLine, startCol, startPos, fmt.Sprintf("unexpected character '%c'", r))
}

// Tokenize breaks source code into a slice of tokens.
func Tokenize(source, filename string) ([]Token, error) {
	s := newScanner(source, filename)
	var tokens []Token

	for {
		tok, err := s.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokEOF {
			break
		}
	}

	return tokens, nil
}
