package evaluator

import (
	"math"

	"github.com/thomasrohde/tern/pkg/ast"
)

func (ev *evaluator) evalBinary(e *ast.Binary, env *Env) (Value, error) {
	left, err := ev.evalExpr(e.Left, env)
	if err != nil {
		return nil, err
	}

	// and/or short-circuit on truthiness
	switch e.Op {
	case ast.OpAnd:
		if !Truthy(left) {
			return NewBool(false), nil
		}
		right, err := ev.evalExpr(e.Right, env)
		if err != nil {
			return nil, err
		}
		return NewBool(Truthy(right)), nil
	case ast.OpOr:
		if Truthy(left) {
			return NewBool(true), nil
		}
		right, err := ev.evalExpr(e.Right, env)
		if err != nil {
			return nil, err
		}
		return NewBool(Truthy(right)), nil
	}

	right, err := ev.evalExpr(e.Right, env)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ast.OpEqEq:
		return NewBool(Equal(left, right)), nil
	case ast.OpNeq:
		return NewBool(!Equal(left, right)), nil
	case ast.OpLt, ast.OpGt, ast.OpLtEq, ast.OpGtEq:
		return compare(e.Op, left, right, e.Pos)
	}

	ln, lok := left.(Number)
	rn, rok := right.(Number)
	if !lok || !rok {
		return nil, typeError(e.Pos, "operator '%s' needs two numbers, got %s and %s", e.Op, TypeName(left), TypeName(right))
	}
	a, b := ln.Value, rn.Value

	switch e.Op {
	case ast.OpAdd:
		return NewNumber(a + b), nil
	case ast.OpSub:
		return NewNumber(a - b), nil
	case ast.OpMul:
		return NewNumber(a * b), nil
	case ast.OpDiv:
		if b == 0 {
			return nil, newError(DivisionByZero, e.Pos, "division by zero")
		}
		return NewNumber(a / b), nil
	case ast.OpMod:
		if b == 0 {
			return nil, newError(DivisionByZero, e.Pos, "modulo by zero")
		}
		return NewNumber(math.Mod(a, b)), nil
	}
	return nil, typeError(e.Pos, "unknown operator '%s'", e.Op)
}

// compare orders two numbers or two strings.
func compare(op ast.BinaryOp, left, right Value, pos ast.Pos) (Value, error) {
	var c int
	switch l := left.(type) {
	case Number:
		r, ok := right.(Number)
		if !ok {
			return nil, typeError(pos, "cannot compare number with %s", TypeName(right))
		}
		switch {
		case l.Value < r.Value:
			c = -1
		case l.Value > r.Value:
			c = 1
		case l.Value != r.Value: // NaN
			return NewBool(false), nil
		}
	case String:
		r, ok := right.(String)
		if !ok {
			return nil, typeError(pos, "cannot compare string with %s", TypeName(right))
		}
		switch {
		case l.Value < r.Value:
			c = -1
		case l.Value > r.Value:
			c = 1
		}
	default:
		return nil, typeError(pos, "operator '%s' needs two numbers or two strings, got %s and %s",
			op, TypeName(left), TypeName(right))
	}

	switch op {
	case ast.OpLt:
		return NewBool(c < 0), nil
	case ast.OpGt:
		return NewBool(c > 0), nil
	case ast.OpLtEq:
		return NewBool(c <= 0), nil
	default:
		return NewBool(c >= 0), nil
	}
}

func (ev *evaluator) evalUnary(e *ast.Unary, env *Env) (Value, error) {
	operand, err := ev.evalExpr(e.Operand, env)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case ast.OpNeg:
		n, ok := operand.(Number)
		if !ok {
			return nil, typeError(e.Pos, "cannot negate a %s", TypeName(operand))
		}
		return NewNumber(-n.Value), nil
	case ast.OpNot:
		return NewBool(!Truthy(operand)), nil
	}
	return nil, typeError(e.Pos, "unknown operator '%s'", e.Op)
}
