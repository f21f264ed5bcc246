// Package validator implements static checks on Tern programs before they run.
package validator

import (
	"fmt"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/diagnostics"
	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/profile"
)

// scope mirrors one runtime scope. declared holds every name assigned
// directly in the scope, collected before the scope is walked; assigned holds
// the names whose assignment has been walked so far. fn marks a closure body,
// which runs later than the code around it.
type scope struct {
	declared map[string]bool
	assigned map[string]bool
	parent   *scope
	fn       bool
}

func newScope(parent *scope, fn bool, body []ast.Expr) *scope {
	s := &scope{
		declared: make(map[string]bool),
		assigned: make(map[string]bool),
		parent:   parent,
		fn:       fn,
	}
	for _, e := range body {
		collectAssigned(e, s.declared)
	}
	return s
}

// collectAssigned records identifier assignments in e that bind into the
// current scope. Blocks and lambdas open their own scopes and are skipped.
func collectAssigned(e ast.Expr, into map[string]bool) {
	switch n := e.(type) {
	case *ast.Assign:
		if id, ok := n.Target.(*ast.Identifier); ok {
			into[id.Name] = true
		} else {
			collectAssigned(n.Target, into)
		}
		collectAssigned(n.Value, into)
	case *ast.Block, *ast.Lambda, nil:
	case *ast.ListLit:
		for _, el := range n.Elements {
			collectAssigned(el, into)
		}
	case *ast.MapLit:
		for _, entry := range n.Entries {
			collectAssigned(entry.Key, into)
			collectAssigned(entry.Value, into)
		}
	case *ast.Call:
		collectAssigned(n.Callee, into)
		for _, a := range n.Args {
			collectAssigned(a, into)
		}
	case *ast.Property:
		collectAssigned(n.Object, into)
	case *ast.If:
		collectAssigned(n.Cond, into)
		collectAssigned(n.Then, into)
		collectAssigned(n.Else, into)
	case *ast.While:
		collectAssigned(n.Cond, into)
		collectAssigned(n.Body, into)
	case *ast.Match:
		collectAssigned(n.Scrutinee, into)
		for _, arm := range n.Arms {
			collectAssigned(arm.Pattern, into)
			collectAssigned(arm.Result, into)
		}
		collectAssigned(n.Else, into)
	case *ast.Binary:
		collectAssigned(n.Left, into)
		collectAssigned(n.Right, into)
	case *ast.Unary:
		collectAssigned(n.Operand, into)
	}
}

type validator struct {
	diags []diagnostics.Diagnostic
	prof  *profile.Profile
}

// Validate performs static analysis on a program and returns diagnostics.
// Unbound names are warnings because a later run in the same session may bind
// them; duplicate parameters and non-string literal map keys are errors.
// When prof is non-nil, direct calls to builtins whose capability it denies
// are reported as warnings.
func Validate(program []ast.Expr, prof *profile.Profile) []diagnostics.Diagnostic {
	v := &validator{prof: prof}
	root := newScope(nil, false, program)
	for _, e := range program {
		v.validateExpr(e, root)
	}
	return v.diags
}

// HasErrors reports whether any diagnostic is an error rather than a warning.
func HasErrors(diags []diagnostics.Diagnostic) bool {
	for _, d := range diags {
		if d.IsError() {
			return true
		}
	}
	return false
}

func (v *validator) addError(code, msg string, pos ast.Pos, hint string) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, &pos, hint))
}

func (v *validator) addWarning(code, msg string, pos ast.Pos, hint string) {
	v.diags = append(v.diags, diagnostics.MakeWarning(code, msg, &pos, hint))
}

func (v *validator) checkIdentifier(id *ast.Identifier, sc *scope) {
	// A name assigned later in the same scope still resolves to an outer
	// binding at run time, so keep walking before deciding.
	pending := false
	crossedFn := false
	for s := sc; s != nil; s = s.parent {
		if s.assigned[id.Name] || (crossedFn && s.declared[id.Name]) {
			return
		}
		if s.declared[id.Name] {
			pending = true
		}
		if s.fn {
			crossedFn = true
		}
	}
	if evaluator.IsBuiltin(id.Name) {
		return
	}
	if pending {
		v.addWarning(diagnostics.EUnbound,
			fmt.Sprintf("'%s' is used before it is assigned", id.Name), id.Pos, "")
		return
	}
	v.addWarning(diagnostics.EUnbound, fmt.Sprintf("unbound variable '%s'", id.Name), id.Pos,
		fmt.Sprintf("bind it first with '%s := ...'", id.Name))
}

func (v *validator) validateExpr(expr ast.Expr, sc *scope) {
	if expr == nil {
		return
	}

	switch e := expr.(type) {
	case *ast.NumberLit, *ast.StringLit, *ast.BoolLit, *ast.NilLit:
		// literals are always valid

	case *ast.Identifier:
		v.checkIdentifier(e, sc)

	case *ast.ListLit:
		for _, elem := range e.Elements {
			v.validateExpr(elem, sc)
		}

	case *ast.MapLit:
		seen := make(map[string]bool)
		for _, entry := range e.Entries {
			switch k := entry.Key.(type) {
			case *ast.NumberLit, *ast.BoolLit, *ast.NilLit, *ast.ListLit, *ast.MapLit, *ast.Lambda:
				v.addWarning(diagnostics.EMapKey, fmt.Sprintf("map key must be a string, not %s", describeKey(k)),
					k.Position(), "quote the key: 'name': value")
			case *ast.StringLit:
				if seen[k.Value] {
					v.addWarning(diagnostics.EMapKey, fmt.Sprintf("duplicate map key '%s'", k.Value), k.Pos,
						"the later value overwrites the earlier one")
				}
				seen[k.Value] = true
			default:
				v.validateExpr(k, sc)
			}
			v.validateExpr(entry.Value, sc)
		}

	case *ast.Call:
		v.validateExpr(e.Callee, sc)
		for _, arg := range e.Args {
			v.validateExpr(arg, sc)
		}
		v.checkCapability(e, sc)

	case *ast.Property:
		v.validateExpr(e.Object, sc)

	case *ast.Assign:
		v.validateExpr(e.Value, sc)
		switch t := e.Target.(type) {
		case *ast.Identifier:
			sc.assigned[t.Name] = true
		case *ast.Property:
			v.validateExpr(t.Object, sc)
		}

	case *ast.Block:
		child := newScope(sc, false, e.Exprs)
		for _, sub := range e.Exprs {
			v.validateExpr(sub, child)
		}

	case *ast.If:
		v.validateExpr(e.Cond, sc)
		v.validateExpr(e.Then, sc)
		v.validateExpr(e.Else, sc)

	case *ast.While:
		v.validateExpr(e.Cond, sc)
		v.validateExpr(e.Body, sc)

	case *ast.Match:
		v.validateExpr(e.Scrutinee, sc)
		for _, arm := range e.Arms {
			v.validateExpr(arm.Pattern, sc)
			v.validateExpr(arm.Result, sc)
		}
		v.validateExpr(e.Else, sc)

	case *ast.Binary:
		v.validateExpr(e.Left, sc)
		v.validateExpr(e.Right, sc)

	case *ast.Unary:
		v.validateExpr(e.Operand, sc)

	case *ast.Lambda:
		params := make(map[string]bool, len(e.Params))
		child := newScope(sc, true, []ast.Expr{e.Body})
		for _, p := range e.Params {
			if params[p] {
				v.addError(diagnostics.EDupParam, fmt.Sprintf("duplicate parameter '%s'", p), e.Pos, "")
			}
			params[p] = true
			child.assigned[p] = true
		}
		v.validateExpr(e.Body, child)
	}
}

// checkCapability warns about direct builtin calls the profile would deny.
func (v *validator) checkCapability(call *ast.Call, sc *scope) {
	if v.prof == nil {
		return
	}
	id, ok := call.Callee.(*ast.Identifier)
	if !ok || shadowed(id.Name, sc) {
		return
	}
	for _, b := range evaluator.Builtins() {
		if b.Name == id.Name && !v.prof.Allows(b.Capability) {
			v.addWarning(diagnostics.ECapDenied,
				fmt.Sprintf("%s needs capability '%s', which the profile denies", b.Name, b.Capability),
				call.Pos, fmt.Sprintf("grant it with --allow %s or in a profile file", b.Capability))
		}
	}
}

func shadowed(name string, sc *scope) bool {
	for s := sc; s != nil; s = s.parent {
		if s.declared[name] || s.assigned[name] {
			return true
		}
	}
	return false
}

func describeKey(e ast.Expr) string {
	switch e.(type) {
	case *ast.NumberLit:
		return "a number"
	case *ast.BoolLit:
		return "a boolean"
	case *ast.NilLit:
		return "nil"
	case *ast.ListLit:
		return "a list"
	case *ast.MapLit:
		return "a map"
	case *ast.Lambda:
		return "a lambda"
	}
	return e.Kind()
}
