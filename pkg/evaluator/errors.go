package evaluator

import (
	"fmt"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/diagnostics"
	"github.com/thomasrohde/tern/pkg/profile"
)

// ErrorKind classifies runtime errors.
type ErrorKind string

const (
	UndefinedVariable ErrorKind = "UndefinedVariable"
	TypeError         ErrorKind = "TypeError"
	ArityError        ErrorKind = "ArityError"
	CapabilityDenied  ErrorKind = "CapabilityDenied"
	StackOverflow     ErrorKind = "StackOverflow"
	TimeLimitExceeded ErrorKind = "TimeLimitExceeded"
	HeapLimitExceeded ErrorKind = "HeapLimitExceeded"
	MatchError        ErrorKind = "MatchError"
	DivisionByZero    ErrorKind = "DivisionByZero"
	EffectFailed      ErrorKind = "EffectFailed"
)

var kindCodes = map[ErrorKind]string{
	UndefinedVariable: diagnostics.EUndefined,
	TypeError:         diagnostics.EType,
	ArityError:        diagnostics.EArity,
	CapabilityDenied:  diagnostics.ECapDenied,
	StackOverflow:     diagnostics.EStackOverflow,
	TimeLimitExceeded: diagnostics.ETimeLimit,
	HeapLimitExceeded: diagnostics.EHeapLimit,
	MatchError:        diagnostics.EMatch,
	DivisionByZero:    diagnostics.EDivByZero,
	EffectFailed:      diagnostics.EEffect,
}

// RuntimeError represents a runtime error during Tern execution. Name is the
// variable or builtin involved, when there is one.
type RuntimeError struct {
	Kind       ErrorKind
	Message    string
	Pos        *ast.Pos
	Name       string
	Capability profile.Capability
	Cause      error
}

func (e *RuntimeError) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s: %s", e.Pos, e.Message)
	}
	return e.Message
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// IsBudget reports whether the error is a resource budget breach.
func (e *RuntimeError) IsBudget() bool {
	switch e.Kind {
	case StackOverflow, TimeLimitExceeded, HeapLimitExceeded:
		return true
	}
	return false
}

// Diagnostic converts the error into a diagnostic.
func (e *RuntimeError) Diagnostic() diagnostics.Diagnostic {
	code, ok := kindCodes[e.Kind]
	if !ok {
		code = diagnostics.EInternal
	}
	hint := ""
	switch e.Kind {
	case UndefinedVariable:
		hint = fmt.Sprintf("bind it first with '%s := ...'", e.Name)
	case CapabilityDenied:
		hint = fmt.Sprintf("grant it with --allow %s or in a profile file", e.Capability)
	case StackOverflow:
		hint = "check for recursion without a base case or raise max_stack_depth"
	case TimeLimitExceeded:
		hint = "raise max_time_ms or shorten the loop"
	case HeapLimitExceeded:
		hint = "raise max_heap_size or release large collections"
	}
	return diagnostics.MakeDiag(code, e.Message, e.Pos, hint)
}

func newError(kind ErrorKind, pos ast.Pos, format string, args ...any) *RuntimeError {
	p := pos
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...), Pos: &p}
}

func typeError(pos ast.Pos, format string, args ...any) *RuntimeError {
	return newError(TypeError, pos, format, args...)
}
