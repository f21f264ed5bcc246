// Package lexer implements the Tern tokenizer.
package lexer

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/diagnostics"
)

// TokenType identifies the type of a lexer token.
type TokenType int

const (
	// Keywords
	TokIf TokenType = iota
	TokThen
	TokElse
	TokAnd
	TokOr
	TokNot
	TokWhile
	TokMatch
	TokTrue
	TokFalse
	TokNil

	// Literals
	TokNumber
	TokString

	// Identifiers
	TokIdent

	// Punctuation
	TokAssign // :=
	TokColon  // :
	TokComma  // ,
	TokPipe   // |
	TokLParen // (
	TokRParen // )
	TokLBrace // {
	TokRBrace // }
	TokDot    // .

	// Comparison operators
	TokEqEq // ==
	TokNeq  // !=
	TokLt   // <
	TokGt   // >
	TokLtEq // <=
	TokGtEq // >=

	// Arithmetic operators
	TokPlus    // +
	TokMinus   // -
	TokStar    // *
	TokSlash   // /
	TokPercent // %

	// Special
	TokError
	TokEOF
)

var tokenNames = map[TokenType]string{
	TokIf:      "'if'",
	TokThen:    "'then'",
	TokElse:    "'else'",
	TokAnd:     "'and'",
	TokOr:      "'or'",
	TokNot:     "'not'",
	TokWhile:   "'while'",
	TokMatch:   "'match'",
	TokTrue:    "'true'",
	TokFalse:   "'false'",
	TokNil:     "'nil'",
	TokNumber:  "number",
	TokString:  "string",
	TokIdent:   "identifier",
	TokAssign:  "':='",
	TokColon:   "':'",
	TokComma:   "','",
	TokPipe:    "'|'",
	TokLParen:  "'('",
	TokRParen:  "')'",
	TokLBrace:  "'{'",
	TokRBrace:  "'}'",
	TokDot:     "'.'",
	TokEqEq:    "'=='",
	TokNeq:     "'!='",
	TokLt:      "'<'",
	TokGt:      "'>'",
	TokLtEq:    "'<='",
	TokGtEq:    "'>='",
	TokPlus:    "'+'",
	TokMinus:   "'-'",
	TokStar:    "'*'",
	TokSlash:   "'/'",
	TokPercent: "'%'",
	TokError:   "invalid token",
	TokEOF:     "end of input",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token represents a single lexer token. Num is set for TokNumber, Text for
// TokString and Err for TokError.
type Token struct {
	Type   TokenType
	Lexeme string
	Pos    ast.Pos
	Num    float64
	Text   string
	Err    *LexError
}

func (t Token) String() string {
	switch t.Type {
	case TokEOF:
		return "end of input"
	case TokString:
		return "'" + t.Text + "'"
	}
	return t.Lexeme
}

var keywords = map[string]TokenType{
	"if":    TokIf,
	"then":  TokThen,
	"else":  TokElse,
	"and":   TokAnd,
	"or":    TokOr,
	"not":   TokNot,
	"while": TokWhile,
	"match": TokMatch,
	"true":  TokTrue,
	"false": TokFalse,
	"nil":   TokNil,
}

// LexErrorKind classifies lex errors.
type LexErrorKind string

const (
	UnterminatedString  LexErrorKind = "UnterminatedString"
	UnexpectedCharacter LexErrorKind = "UnexpectedCharacter"
	MalformedNumber     LexErrorKind = "MalformedNumber"
)

// LexError is carried by every TokError token.
type LexError struct {
	Kind   LexErrorKind
	Pos    ast.Pos
	Lexeme string
	Detail string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.message())
}

func (e *LexError) message() string {
	switch e.Kind {
	case UnterminatedString:
		return "unterminated string literal"
	case UnexpectedCharacter:
		return fmt.Sprintf("unexpected character %q", e.Lexeme)
	case MalformedNumber:
		return fmt.Sprintf("malformed number %q: %s", e.Lexeme, e.Detail)
	}
	return string(e.Kind)
}

// Diagnostic converts the error into an E_LEX diagnostic.
func (e *LexError) Diagnostic() diagnostics.Diagnostic {
	pos := e.Pos
	hint := ""
	switch e.Kind {
	case UnterminatedString:
		hint = "close the string with a single quote"
	case UnexpectedCharacter:
		if e.Lexeme == "=" {
			hint = "use ':=' to assign or '==' to compare"
		}
	}
	return diagnostics.MakeDiag(diagnostics.ELex, e.message(), &pos, hint)
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

// advance consumes one byte. Columns only move on the first byte of a UTF-8
// sequence so that they count runes.
func (s *scanner) advance() byte {
	ch := s.source[s.pos]
	s.pos++
	switch {
	case ch == '\n':
		s.line++
		s.col = 1
	case ch&0xC0 != 0x80:
		s.col++
	}
	return ch
}

func (s *scanner) here() ast.Pos {
	return ast.Pos{File: s.filename, Offset: s.pos, Line: s.line, Col: s.col}
}

func (s *scanner) skipWhitespaceAndComments() {
	for !s.atEnd() {
		ch := s.peek()
		if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' {
			s.advance()
		} else if ch == '#' {
			for !s.atEnd() && s.peek() != '\n' {
				s.advance()
			}
		} else {
			break
		}
	}
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

func (s *scanner) errorToken(kind LexErrorKind, start ast.Pos, detail string) Token {
	lexeme := s.source[start.Offset:s.pos]
	return Token{
		Type:   TokError,
		Lexeme: lexeme,
		Pos:    start,
		Err:    &LexError{Kind: kind, Pos: start, Lexeme: lexeme, Detail: detail},
	}
}

func (s *scanner) scanString() Token {
	start := s.here()
	s.advance() // opening quote

	for !s.atEnd() {
		if s.peek() == '\'' {
			s.advance()
			lexeme := s.source[start.Offset:s.pos]
			return Token{
				Type:   TokString,
				Lexeme: lexeme,
				Pos:    start,
				Text:   lexeme[1 : len(lexeme)-1],
			}
		}
		s.advance()
	}
	return s.errorToken(UnterminatedString, start, "")
}

// scanNumber consumes the maximal numeric-looking run, including glued
// letters and extra fractional parts, and validates it afterwards.
func (s *scanner) scanNumber() Token {
	start := s.here()
	for !s.atEnd() {
		ch := s.peek()
		if isAlphaNumeric(ch) || ch >= utf8.RuneSelf {
			s.advance()
			continue
		}
		if ch == '.' && isDigit(s.peekAt(1)) {
			s.advance()
			continue
		}
		break
	}

	text := s.source[start.Offset:s.pos]
	if detail := validateNumber(text); detail != "" {
		return s.errorToken(MalformedNumber, start, detail)
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return s.errorToken(MalformedNumber, start, "out of range")
	}
	return Token{Type: TokNumber, Lexeme: text, Pos: start, Num: n}
}

func validateNumber(text string) string {
	dots := 0
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case isDigit(ch):
		case ch == '_':
			if i+1 < len(text) && text[i+1] == '_' {
				return "doubled underscore"
			}
			if i+1 == len(text) || text[i+1] == '.' {
				return "trailing underscore"
			}
		case ch == '.':
			dots++
			if dots > 1 {
				return "more than one decimal point"
			}
		default:
			return "letter in numeric literal"
		}
	}
	return ""
}

func (s *scanner) scanIdentOrKeyword() Token {
	start := s.here()
	for !s.atEnd() && isAlphaNumeric(s.peek()) {
		s.advance()
	}

	text := s.source[start.Offset:s.pos]
	if tokType, ok := keywords[text]; ok {
		return Token{Type: tokType, Lexeme: text, Pos: start}
	}
	return Token{Type: TokIdent, Lexeme: text, Pos: start}
}

func (s *scanner) simple(start ast.Pos, typ TokenType, width int) Token {
	for i := 0; i < width; i++ {
		s.advance()
	}
	return Token{Type: typ, Lexeme: s.source[start.Offset:s.pos], Pos: start}
}

func (s *scanner) nextToken() Token {
	s.skipWhitespaceAndComments()

	start := s.here()
	if s.atEnd() {
		return Token{Type: TokEOF, Pos: start}
	}

	ch := s.peek()
	next := s.peekAt(1)

	switch ch {
	case '(':
		return s.simple(start, TokLParen, 1)
	case ')':
		return s.simple(start, TokRParen, 1)
	case '{':
		return s.simple(start, TokLBrace, 1)
	case '}':
		return s.simple(start, TokRBrace, 1)
	case ',':
		return s.simple(start, TokComma, 1)
	case '|':
		return s.simple(start, TokPipe, 1)
	case '.':
		return s.simple(start, TokDot, 1)
	case '+':
		return s.simple(start, TokPlus, 1)
	case '-':
		return s.simple(start, TokMinus, 1)
	case '*':
		return s.simple(start, TokStar, 1)
	case '/':
		return s.simple(start, TokSlash, 1)
	case '%':
		return s.simple(start, TokPercent, 1)
	case ':':
		if next == '=' {
			return s.simple(start, TokAssign, 2)
		}
		return s.simple(start, TokColon, 1)
	case '=':
		if next == '=' {
			return s.simple(start, TokEqEq, 2)
		}
		s.advance()
		return s.errorToken(UnexpectedCharacter, start, "")
	case '!':
		if next == '=' {
			return s.simple(start, TokNeq, 2)
		}
		return s.simple(start, TokNot, 1)
	case '<':
		if next == '=' {
			return s.simple(start, TokLtEq, 2)
		}
		return s.simple(start, TokLt, 1)
	case '>':
		if next == '=' {
			return s.simple(start, TokGtEq, 2)
		}
		return s.simple(start, TokGt, 1)
	case '\'':
		return s.scanString()
	}

	if isDigit(ch) {
		return s.scanNumber()
	}
	if isAlpha(ch) {
		return s.scanIdentOrKeyword()
	}

	_, size := utf8.DecodeRuneInString(s.source[s.pos:])
	for i := 0; i < size; i++ {
		s.advance()
	}
	return s.errorToken(UnexpectedCharacter, start, "")
}

// Tokenize breaks source code into a slice of tokens. The returned slice always
// covers the whole input and ends with TokEOF. Invalid input produces TokError
// tokens in place; when any exist, the returned error aggregates every
// *LexError in source order.
func Tokenize(source, filename string) ([]Token, error) {
	s := newScanner(source, filename)
	var tokens []Token
	var errs *multierror.Error

	for {
		tok := s.nextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokError {
			errs = multierror.Append(errs, tok.Err)
		}
		if tok.Type == TokEOF {
			break
		}
	}

	return tokens, errs.ErrorOrNil()
}
