// Package formatter prints Tern ASTs back to canonical source.
package formatter

import (
	"strconv"
	"strings"

	"github.com/thomasrohde/tern/pkg/ast"
)

const (
	indent   = "  "
	maxWidth = 72
)

// Precedence table for binary operators (higher = tighter binding)
var precedence = map[ast.BinaryOp]int{
	ast.OpAnd: 1, ast.OpOr: 1,
	ast.OpEqEq: 2, ast.OpNeq: 2, ast.OpGt: 2, ast.OpLt: 2, ast.OpGtEq: 2, ast.OpLtEq: 2,
	ast.OpAdd: 3, ast.OpSub: 3,
	ast.OpMul: 4, ast.OpDiv: 4, ast.OpMod: 4,
}

// greedy reports whether e ends in an unterminated expression that would
// swallow an operator or postfix written after it.
func greedy(e ast.Expr) bool {
	switch e.(type) {
	case *ast.If, *ast.While, *ast.Lambda, *ast.Assign:
		return true
	}
	return false
}

func needsParens(child ast.Expr, parentOp ast.BinaryOp, isRight bool) bool {
	if greedy(child) {
		return true
	}
	bin, ok := child.(*ast.Binary)
	if !ok {
		return false
	}
	childPrec := precedence[bin.Op]
	parentPrec := precedence[parentOp]
	if childPrec < parentPrec {
		return true
	}
	// Comparisons do not chain.
	if childPrec == parentPrec && parentOp.IsComparison() {
		return true
	}
	// Left associativity: same precedence on the right keeps its parens.
	return childPrec == parentPrec && isRight
}

// Format pretty-prints a program. Each top-level expression goes on its own
// line. Comments are not preserved.
func Format(program []ast.Expr) string {
	if len(program) == 0 {
		return ""
	}
	return formatSequence(program, 0) + "\n"
}

// FormatExpr prints a single expression.
func FormatExpr(e ast.Expr) string {
	return formatExpr(e, 0)
}

// formatSequence prints expressions one per line at the given depth. A line
// starting with '-' would continue the previous expression as a
// subtraction, so it is wrapped in parentheses.
func formatSequence(exprs []ast.Expr, depth int) string {
	prefix := strings.Repeat(indent, depth)
	lines := make([]string, len(exprs))
	for i, e := range exprs {
		s := formatExpr(e, depth)
		if i > 0 && strings.HasPrefix(s, "-") {
			s = "(" + s + ")"
		}
		lines[i] = prefix + s
	}
	return strings.Join(lines, "\n")
}

func wrap(s string) string {
	return "(" + s + ")"
}

// formatOperand prints the object of a call or property access.
func formatOperand(e ast.Expr, depth int) string {
	s := formatExpr(e, depth)
	switch e.(type) {
	case *ast.Binary, *ast.Unary:
		return wrap(s)
	}
	if greedy(e) {
		return wrap(s)
	}
	return s
}

func formatExpr(e ast.Expr, depth int) string {
	switch expr := e.(type) {
	case *ast.NumberLit:
		return formatNumber(expr.Value)
	case *ast.StringLit:
		return "'" + expr.Value + "'"
	case *ast.BoolLit:
		if expr.Value {
			return "true"
		}
		return "false"
	case *ast.NilLit:
		return "nil"
	case *ast.Identifier:
		return expr.Name
	case *ast.ListLit:
		return formatList(expr, depth)
	case *ast.MapLit:
		return formatMap(expr, depth)

	case *ast.Call:
		args := make([]string, len(expr.Args))
		for i, a := range expr.Args {
			args[i] = formatExpr(a, depth)
		}
		return formatOperand(expr.Callee, depth) + "(" + strings.Join(args, ", ") + ")"

	case *ast.Property:
		return formatOperand(expr.Object, depth) + "." + expr.Name

	case *ast.Assign:
		return formatExpr(expr.Target, depth) + " := " + formatExpr(expr.Value, depth)

	case *ast.Block:
		return formatBlock(expr, depth)

	case *ast.If:
		then := formatExpr(expr.Then, depth)
		if expr.Else == nil {
			return "if " + formatExpr(expr.Cond, depth) + " then " + then
		}
		// The else would otherwise bind to a nested if.
		if greedy(expr.Then) {
			then = wrap(then)
		}
		return "if " + formatExpr(expr.Cond, depth) + " then " + then + " else " + formatExpr(expr.Else, depth)

	case *ast.While:
		cond := formatExpr(expr.Cond, depth)
		if greedy(expr.Cond) {
			cond = wrap(cond)
		}
		body := formatExpr(expr.Body, depth)
		if strings.HasPrefix(body, "-") {
			body = wrap(body)
		}
		// A body opening with '(' or '|' on the condition's line would be
		// read as a call of the condition.
		if strings.HasPrefix(body, "(") || strings.HasPrefix(body, "|") {
			return "while " + cond + "\n" + strings.Repeat(indent, depth+1) + body
		}
		return "while " + cond + " " + body

	case *ast.Match:
		return formatMatch(expr, depth)

	case *ast.Binary:
		leftStr := formatExpr(expr.Left, depth)
		rightStr := formatExpr(expr.Right, depth)
		if needsParens(expr.Left, expr.Op, false) {
			leftStr = wrap(leftStr)
		}
		if needsParens(expr.Right, expr.Op, true) {
			rightStr = wrap(rightStr)
		}
		return leftStr + " " + string(expr.Op) + " " + rightStr

	case *ast.Unary:
		operandStr := formatExpr(expr.Operand, depth)
		switch expr.Operand.(type) {
		case *ast.Binary, *ast.Unary:
			operandStr = wrap(operandStr)
		default:
			if greedy(expr.Operand) {
				operandStr = wrap(operandStr)
			}
		}
		if expr.Op == ast.OpNot {
			return "not " + operandStr
		}
		return "-" + operandStr

	case *ast.Lambda:
		return "|" + strings.Join(expr.Params, ", ") + "| " + formatExpr(expr.Body, depth)
	}
	return ""
}

// formatNumber prints a literal the lexer reads back to the same value.
func formatNumber(v float64) string {
	if v == float64(int64(v)) && v < 1e15 && v > -1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatBlock(b *ast.Block, depth int) string {
	switch len(b.Exprs) {
	case 0:
		return "{}"
	case 1:
		inline := formatExpr(b.Exprs[0], depth)
		if !strings.Contains(inline, "\n") && len(inline) <= maxWidth {
			return "{ " + inline + " }"
		}
	}
	return "{\n" + formatSequence(b.Exprs, depth+1) + "\n" + strings.Repeat(indent, depth) + "}"
}

func formatList(list *ast.ListLit, depth int) string {
	switch len(list.Elements) {
	case 0:
		return "(,)"
	case 1:
		return "(" + formatExpr(list.Elements[0], depth) + ",)"
	}
	parts := make([]string, len(list.Elements))
	for i, e := range list.Elements {
		parts[i] = formatExpr(e, depth+1)
	}
	return joinWrapped(parts, depth)
}

func formatMap(m *ast.MapLit, depth int) string {
	if len(m.Entries) == 0 {
		return "(:)"
	}
	parts := make([]string, len(m.Entries))
	for i, entry := range m.Entries {
		parts[i] = formatExpr(entry.Key, depth+1) + ": " + formatExpr(entry.Value, depth+1)
	}
	return joinWrapped(parts, depth)
}

// joinWrapped prints a parenthesised, comma-separated sequence inline when it
// fits and one element per line otherwise.
func joinWrapped(parts []string, depth int) string {
	inline := "(" + strings.Join(parts, ", ") + ")"
	if len(inline) <= maxWidth && !strings.Contains(inline, "\n") {
		return inline
	}
	inner := strings.Repeat(indent, depth+1)
	outer := strings.Repeat(indent, depth)
	return "(\n" + inner + strings.Join(parts, ",\n"+inner) + ",\n" + outer + ")"
}

func formatMatch(m *ast.Match, depth int) string {
	arms := make([]string, 0, len(m.Arms)+1)
	for _, arm := range m.Arms {
		arms = append(arms, formatExpr(arm.Pattern, depth+1)+": "+formatExpr(arm.Result, depth+1))
	}
	if m.Else != nil {
		arms = append(arms, "else: "+formatExpr(m.Else, depth+1))
	}

	head := "match " + formatExpr(m.Scrutinee, depth) + " {"
	if len(arms) == 0 {
		return head + "}"
	}
	inline := head + " " + strings.Join(arms, ", ") + " }"
	if len(arms) <= 2 && len(inline) <= maxWidth && !strings.Contains(inline, "\n") {
		return inline
	}
	inner := strings.Repeat(indent, depth+1)
	return head + "\n" + inner + strings.Join(arms, ",\n"+inner) + ",\n" + strings.Repeat(indent, depth) + "}"
}

// HasComments reports whether source contains a '#' comment outside string
// literals. Formatting drops comments, so callers use this to refuse or warn.
func HasComments(source string) bool {
	inString := false
	for i := 0; i < len(source); i++ {
		switch source[i] {
		case '\'':
			inString = !inString
		case '#':
			if !inString {
				return true
			}
		}
	}
	return false
}
