package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/diagnostics"
	"github.com/thomasrohde/tern/pkg/lexer"
)

// ParseErrorKind classifies parse errors.
type ParseErrorKind string

const (
	UnexpectedToken     ParseErrorKind = "UnexpectedToken"
	ExpectedToken       ParseErrorKind = "ExpectedToken"
	InvalidAssignTarget ParseErrorKind = "InvalidAssignTarget"
	ChainedComparison   ParseErrorKind = "ChainedComparison"
	TooDeep             ParseErrorKind = "TooDeep"
	LexFailure          ParseErrorKind = "LexFailure"
)

// ParseError reports the first structural problem found in a token stream.
// Found is the offending token; Expected lists the alternatives that would
// have been accepted, when known. Cause is the *lexer.LexError for LexFailure.
type ParseError struct {
	Kind     ParseErrorKind
	Pos      ast.Pos
	Found    lexer.Token
	Expected []string
	Cause    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Pos, e.message())
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) message() string {
	switch e.Kind {
	case ExpectedToken:
		return fmt.Sprintf("expected %s, got %s", strings.Join(e.Expected, " or "), describe(e.Found))
	case InvalidAssignTarget:
		return "invalid assignment target"
	case ChainedComparison:
		return fmt.Sprintf("comparison operators cannot be chained, got %s", describe(e.Found))
	case TooDeep:
		return fmt.Sprintf("expression nested more than %d levels deep", maxDepth)
	case LexFailure:
		var lexErr *lexer.LexError
		if errors.As(e.Cause, &lexErr) {
			return lexErr.Diagnostic().Message
		}
		return "invalid token"
	}
	if len(e.Expected) > 0 {
		return fmt.Sprintf("unexpected %s, expected %s", describe(e.Found), strings.Join(e.Expected, " or "))
	}
	return fmt.Sprintf("unexpected %s", describe(e.Found))
}

// Diagnostic converts the error into an E_PARSE diagnostic; lex failures keep
// their E_LEX code.
func (e *ParseError) Diagnostic() diagnostics.Diagnostic {
	var lexErr *lexer.LexError
	if e.Kind == LexFailure && errors.As(e.Cause, &lexErr) {
		return lexErr.Diagnostic()
	}
	pos := e.Pos
	hint := ""
	switch e.Kind {
	case InvalidAssignTarget:
		hint = "only identifiers and properties can appear left of ':='"
	case ChainedComparison:
		hint = "combine comparisons with 'and', e.g. (a < b) and (b < c)"
	case UnexpectedToken:
		if e.Found.Type == lexer.TokRParen {
			hint = "write (,) for an empty list or (:) for an empty map"
		}
	}
	return diagnostics.MakeDiag(diagnostics.EParse, e.message(), &pos, hint)
}

func describe(tok lexer.Token) string {
	switch tok.Type {
	case lexer.TokEOF:
		return "end of input"
	case lexer.TokIdent:
		return fmt.Sprintf("identifier '%s'", tok.Lexeme)
	case lexer.TokNumber:
		return fmt.Sprintf("number %s", tok.Lexeme)
	case lexer.TokString:
		return fmt.Sprintf("string %s", tok.Lexeme)
	}
	return fmt.Sprintf("'%s'", tok.Lexeme)
}
