// Package diagnostics defines Tern diagnostic types for lex, parse, validation and runtime errors.
package diagnostics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"

	"github.com/thomasrohde/tern/pkg/ast"
)

// Diagnostic code constants.
const (
	ELex           = "E_LEX"
	EParse         = "E_PARSE"
	EUnbound       = "E_UNBOUND"
	EDupParam      = "E_DUP_PARAM"
	EMapKey        = "E_MAP_KEY"
	EUndefined     = "E_UNDEFINED"
	EType          = "E_TYPE"
	EArity         = "E_ARITY"
	ECapDenied     = "E_CAP_DENIED"
	EStackOverflow = "E_STACK_OVERFLOW"
	ETimeLimit     = "E_TIME_LIMIT"
	EHeapLimit     = "E_HEAP_LIMIT"
	EMatch         = "E_MATCH"
	EDivByZero     = "E_DIV_ZERO"
	EEffect        = "E_EFFECT"
	EIO            = "E_IO"
	EProfile       = "E_PROFILE"
	EInternal      = "E_INTERNAL"
)

// Severity of a diagnostic. Validation can emit warnings; every other stage emits errors.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic represents a lex, parse, validation, or runtime diagnostic.
type Diagnostic struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity,omitempty"`
	Message  string   `json:"message"`
	Pos      *ast.Pos `json:"pos,omitempty"`
	Hint     string   `json:"hint,omitempty"`
}

// Diagnoser is implemented by every error type the pipeline returns.
type Diagnoser interface {
	Diagnostic() Diagnostic
}

// MakeDiag creates a new error Diagnostic.
func MakeDiag(code, message string, pos *ast.Pos, hint string) Diagnostic {
	return Diagnostic{
		Code:     code,
		Severity: SeverityError,
		Message:  message,
		Pos:      pos,
		Hint:     hint,
	}
}

// MakeWarning creates a new warning Diagnostic.
func MakeWarning(code, message string, pos *ast.Pos, hint string) Diagnostic {
	d := MakeDiag(code, message, pos, hint)
	d.Severity = SeverityWarning
	return d
}

// IsError reports whether d should fail a check.
func (d Diagnostic) IsError() bool {
	return d.Severity != SeverityWarning
}

// FromError flattens err into diagnostics. Aggregated errors contribute one
// diagnostic each; errors that do not know their diagnostic become E_INTERNAL.
func FromError(err error) []Diagnostic {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		var out []Diagnostic
		for _, e := range merr.Errors {
			out = append(out, FromError(e)...)
		}
		return out
	}
	var d Diagnoser
	if errors.As(err, &d) {
		return []Diagnostic{d.Diagnostic()}
	}
	return []Diagnostic{MakeDiag(EInternal, err.Error(), nil, "")}
}

var (
	errorLabel   = color.New(color.FgRed, color.Bold).SprintFunc()
	warningLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	arrow        = color.New(color.FgBlue).SprintFunc()
	hintLabel    = color.New(color.FgCyan).SprintFunc()
)

// FormatDiagnostic formats a single diagnostic for display.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Pos != nil {
		loc = d.Pos.String()
	}
	label := errorLabel(fmt.Sprintf("error[%s]", d.Code))
	if d.Severity == SeverityWarning {
		label = warningLabel(fmt.Sprintf("warning[%s]", d.Code))
	}
	out := fmt.Sprintf("%s: %s\n  %s %s", label, d.Message, arrow("-->"), loc)
	if d.Hint != "" {
		out += fmt.Sprintf("\n  %s %s", hintLabel("hint:"), d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}
