package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/profile"
)

// ExecOptions configures program execution.
type ExecOptions struct {
	// Profile is copied at run start; nil means deny-all with no budgets.
	Profile *profile.Profile
	// Host performs effects. Without one, permitted effects fail with EffectFailed.
	Host  Host
	Trace func(event TraceEvent)
	RunID string
}

// ExecResult holds the result of a program execution.
type ExecResult struct {
	Value Value
	Stats Stats
}

type evaluator struct {
	ctx        context.Context
	opts       ExecOptions
	prof       *profile.Profile
	frames     []*Env
	deferred   []deferredCall
	nesting    int
	callDepth  int
	heapDirty  bool
	startHires int64 // high-resolution monotonic start time
	stats      Stats
}

type deferredCall struct {
	fn  Value
	pos ast.Pos
}

// Evaluate runs program in a fresh root environment under prof.
func Evaluate(program []ast.Expr, prof *profile.Profile) (Value, error) {
	res, err := Execute(context.Background(), program, ExecOptions{Profile: prof})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// Execute runs program in a fresh root environment.
func Execute(ctx context.Context, program []ast.Expr, opts ExecOptions) (*ExecResult, error) {
	return ExecuteIn(ctx, program, NewEnv(nil), opts)
}

// ExecuteIn runs program with env as its root scope. Bindings made at the top
// level stay in env, so a host can evaluate several programs in one session.
// Budgets apply to each call separately. The result's Stats are filled in
// even when err is non-nil.
func ExecuteIn(ctx context.Context, program []ast.Expr, env *Env, opts ExecOptions) (*ExecResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ev := &evaluator{
		ctx:        ctx,
		opts:       opts,
		prof:       opts.Profile.Clone(),
		frames:     []*Env{env},
		heapDirty:  true,
		startHires: hiresNow(),
	}

	// Effects see the time budget as a context deadline.
	if ev.prof.MaxTimeMs != nil {
		var cancel context.CancelFunc
		ev.ctx, cancel = context.WithTimeout(ctx, time.Duration(*ev.prof.MaxTimeMs)*time.Millisecond)
		defer cancel()
	}

	ev.emit(TraceRunStart, nil, map[string]any{"profile": ev.prof.String()})

	val, err := ev.run(program, env)

	ev.stats.Elapsed = hiresSince(ev.startHires)
	data := map[string]any{"nodes": ev.stats.Nodes, "ok": err == nil}
	if err != nil {
		data["error"] = err.Error()
	}
	ev.emit(TraceRunEnd, nil, data)

	res := &ExecResult{Value: val, Stats: ev.stats}
	if err != nil {
		res.Value = nil
		return res, err
	}
	return res, nil
}

func (ev *evaluator) run(program []ast.Expr, env *Env) (Value, error) {
	var last Value = NewNil()
	for _, expr := range program {
		val, err := ev.evalExpr(expr, env)
		if err != nil {
			return nil, err
		}
		last = val
	}

	// Deferred callables run FIFO; ones queued while draining run too.
	for i := 0; i < len(ev.deferred); i++ {
		d := ev.deferred[i]
		ev.stats.Deferred++
		ev.emit(TraceDeferredRun, &d.pos, map[string]any{"index": i})
		if _, err := ev.apply(d.fn, nil, d.pos); err != nil {
			return nil, err
		}
	}
	return last, nil
}

func (ev *evaluator) pushFrame(env *Env) {
	ev.frames = append(ev.frames, env)
}

func (ev *evaluator) popFrame() {
	ev.frames = ev.frames[:len(ev.frames)-1]
	// Popping can only shrink the graph, but a scope captured elsewhere
	// stays reachable; the next growth re-measures.
}

func (ev *evaluator) evalExpr(expr ast.Expr, env *Env) (Value, error) {
	if expr == nil {
		return NewNil(), nil
	}

	ev.nesting++
	defer func() { ev.nesting-- }()
	if err := ev.checkpoint(expr.Position()); err != nil {
		return nil, err
	}

	switch e := expr.(type) {
	case *ast.NumberLit:
		return NewNumber(e.Value), nil

	case *ast.StringLit:
		return NewString(e.Value), nil

	case *ast.BoolLit:
		return NewBool(e.Value), nil

	case *ast.NilLit:
		return NewNil(), nil

	case *ast.Identifier:
		return ev.evalIdentifier(e, env)

	case *ast.ListLit:
		return ev.evalList(e, env)

	case *ast.MapLit:
		return ev.evalMap(e, env)

	case *ast.Call:
		return ev.evalCall(e, env)

	case *ast.Property:
		obj, err := ev.evalExpr(e.Object, env)
		if err != nil {
			return nil, err
		}
		return ev.property(obj, e.Name, e.Pos)

	case *ast.Assign:
		return ev.evalAssign(e, env)

	case *ast.Block:
		return ev.evalBlock(e, env)

	case *ast.If:
		return ev.evalIf(e, env)

	case *ast.While:
		return ev.evalWhile(e, env)

	case *ast.Match:
		return ev.evalMatch(e, env)

	case *ast.Binary:
		return ev.evalBinary(e, env)

	case *ast.Unary:
		return ev.evalUnary(e, env)

	case *ast.Lambda:
		ev.markDirty()
		return &Closure{Params: e.Params, Body: e.Body, Env: env, Pos: e.Pos}, nil
	}

	return nil, typeError(expr.Position(), "unsupported expression type: %T", expr)
}

func (ev *evaluator) evalIdentifier(e *ast.Identifier, env *Env) (Value, error) {
	if val, ok := env.Get(e.Name); ok {
		return val, nil
	}
	if b, ok := builtins[e.Name]; ok {
		return b, nil
	}
	err := newError(UndefinedVariable, e.Pos, "undefined variable '%s'", e.Name)
	err.Name = e.Name
	return nil, err
}

func (ev *evaluator) evalList(e *ast.ListLit, env *Env) (Value, error) {
	items := make([]Value, 0, len(e.Elements))
	for _, elem := range e.Elements {
		val, err := ev.evalExpr(elem, env)
		if err != nil {
			return nil, err
		}
		items = append(items, val)
	}
	ev.markDirty()
	return NewList(items), nil
}

func (ev *evaluator) evalMap(e *ast.MapLit, env *Env) (Value, error) {
	m := NewMap(nil)
	for _, entry := range e.Entries {
		key, err := ev.evalExpr(entry.Key, env)
		if err != nil {
			return nil, err
		}
		ks, ok := key.(String)
		if !ok {
			return nil, typeError(entry.Key.Position(), "map key must be a string, got %s", TypeName(key))
		}
		val, err := ev.evalExpr(entry.Value, env)
		if err != nil {
			return nil, err
		}
		m.Set(ks.Value, val)
	}
	ev.markDirty()
	return m, nil
}

func (ev *evaluator) evalCall(e *ast.Call, env *Env) (Value, error) {
	callee, err := ev.evalExpr(e.Callee, env)
	if err != nil {
		return nil, err
	}
	args := make([]Value, 0, len(e.Args))
	for _, arg := range e.Args {
		val, err := ev.evalExpr(arg, env)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}
	return ev.apply(callee, args, e.Pos)
}

// apply calls callee with already evaluated arguments.
func (ev *evaluator) apply(callee Value, args []Value, pos ast.Pos) (Value, error) {
	switch fn := callee.(type) {
	case *Closure:
		return ev.callClosure(fn, args, pos)

	case *Builtin:
		return ev.callBuiltin(fn, args, pos)

	case *Map:
		if len(args) != 1 {
			return nil, arityError(pos, "map lookup", 1, 1, len(args))
		}
		key, ok := args[0].(String)
		if !ok {
			return nil, typeError(pos, "map lookup needs a string key, got %s", TypeName(args[0]))
		}
		if val, found := fn.Get(key.Value); found {
			return val, nil
		}
		return NewNil(), nil

	case *List:
		if len(args) != 1 {
			return nil, arityError(pos, "list index", 1, 1, len(args))
		}
		i, err := indexArg(args[0], len(fn.Items), pos)
		if err != nil {
			return nil, err
		}
		return fn.Items[i], nil
	}
	return nil, typeError(pos, "cannot call a %s", TypeName(callee))
}

func (ev *evaluator) callClosure(c *Closure, args []Value, pos ast.Pos) (Value, error) {
	if len(args) != len(c.Params) {
		return nil, arityError(pos, closureName(c), len(c.Params), len(c.Params), len(args))
	}

	defer ev.leaveCall()
	if err := ev.enterCall(pos); err != nil {
		return nil, err
	}

	scope := c.Env.Child()
	for i, param := range c.Params {
		scope.Define(param, args[i])
	}
	if len(c.Params) > 0 {
		ev.markDirty()
	}
	ev.pushFrame(scope)
	defer ev.popFrame()

	if ev.tracing() {
		ev.emit(TraceCallStart, &pos, map[string]any{"name": closureName(c), "depth": ev.callDepth})
	}
	result, err := ev.evalExpr(c.Body, scope)
	if ev.tracing() {
		ev.emit(TraceCallEnd, &pos, map[string]any{"name": closureName(c), "ok": err == nil})
	}
	return result, err
}

func (ev *evaluator) callBuiltin(b *Builtin, args []Value, pos ast.Pos) (Value, error) {
	if len(args) < b.minArgs || (b.maxArgs >= 0 && len(args) > b.maxArgs) {
		return nil, arityError(pos, b.Name, b.minArgs, b.maxArgs, len(args))
	}

	if b.Capability != "" {
		if !ev.prof.Allows(b.Capability) {
			ev.emit(TraceCapabilityDenied, &pos, map[string]any{"name": b.Name, "capability": string(b.Capability)})
			err := newError(CapabilityDenied, pos, "capability '%s' denied: cannot call %s", b.Capability, b.Name)
			err.Name = b.Name
			err.Capability = b.Capability
			return nil, err
		}
		ev.stats.Effects++
		ev.emit(TraceEffect, &pos, map[string]any{"name": b.Name, "capability": string(b.Capability)})
	}

	result, err := b.fn(ev, pos, args)
	if err != nil {
		if _, ok := err.(*RuntimeError); ok {
			return nil, err
		}
		p := pos
		return nil, &RuntimeError{
			Kind:       EffectFailed,
			Message:    fmt.Sprintf("%s failed: %v", b.Name, err),
			Pos:        &p,
			Name:       b.Name,
			Capability: b.Capability,
			Cause:      err,
		}
	}
	return result, nil
}

func closureName(c *Closure) string {
	if c.Name != "" {
		return c.Name
	}
	return fmt.Sprintf("<lambda/%d>", len(c.Params))
}

func arityError(pos ast.Pos, name string, min, max, got int) *RuntimeError {
	var want string
	switch {
	case max < 0:
		want = fmt.Sprintf("at least %d", min)
	case min == max:
		want = fmt.Sprintf("%d", min)
	default:
		want = fmt.Sprintf("%d to %d", min, max)
	}
	err := newError(ArityError, pos, "%s expects %s argument(s), got %d", name, want, got)
	err.Name = name
	return err
}

func indexArg(v Value, n int, pos ast.Pos) (int, error) {
	num, ok := v.(Number)
	if !ok {
		return 0, typeError(pos, "index must be a number, got %s", TypeName(v))
	}
	i := int(num.Value)
	if float64(i) != num.Value {
		return 0, typeError(pos, "index must be an integer, got %s", FormatNumber(num.Value))
	}
	if i < 0 || i >= n {
		return 0, typeError(pos, "index %d out of range for list of length %d", i, n)
	}
	return i, nil
}

func (ev *evaluator) evalAssign(e *ast.Assign, env *Env) (Value, error) {
	switch target := e.Target.(type) {
	case *ast.Identifier:
		val, err := ev.evalExpr(e.Value, env)
		if err != nil {
			return nil, err
		}
		if c, ok := val.(*Closure); ok && c.Name == "" {
			c.Name = target.Name
		}
		env.Define(target.Name, val)
		ev.markDirty()
		return val, nil

	case *ast.Property:
		obj, err := ev.evalExpr(target.Object, env)
		if err != nil {
			return nil, err
		}
		val, err := ev.evalExpr(e.Value, env)
		if err != nil {
			return nil, err
		}
		return ev.setProperty(obj, target.Name, val, target.Pos)
	}
	return nil, typeError(e.Pos, "cannot assign to %s", e.Target.Kind())
}

func (ev *evaluator) setProperty(obj Value, name string, val Value, pos ast.Pos) (Value, error) {
	switch o := obj.(type) {
	case *Map:
		o.Set(name, val)
		ev.markDirty()
		return val, nil

	case *List:
		if name != "first" && name != "last" {
			return nil, typeError(pos, "cannot assign list property '%s'", name)
		}
		if len(o.Items) == 0 {
			return nil, typeError(pos, "cannot assign %s of an empty list", name)
		}
		if name == "first" {
			o.Items[0] = val
		} else {
			o.Items[len(o.Items)-1] = val
		}
		ev.markDirty()
		return val, nil
	}
	return nil, typeError(pos, "cannot assign property '%s' on a %s", name, TypeName(obj))
}

func (ev *evaluator) evalBlock(e *ast.Block, env *Env) (Value, error) {
	scope := env.Child()
	ev.pushFrame(scope)
	defer ev.popFrame()

	var last Value = NewNil()
	for _, expr := range e.Exprs {
		val, err := ev.evalExpr(expr, scope)
		if err != nil {
			return nil, err
		}
		last = val
	}
	return last, nil
}

func (ev *evaluator) evalIf(e *ast.If, env *Env) (Value, error) {
	cond, err := ev.evalExpr(e.Cond, env)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return ev.evalExpr(e.Then, env)
	}
	if e.Else != nil {
		return ev.evalExpr(e.Else, env)
	}
	return NewNil(), nil
}

func (ev *evaluator) evalWhile(e *ast.While, env *Env) (Value, error) {
	var last Value = NewNil()
	for {
		cond, err := ev.evalExpr(e.Cond, env)
		if err != nil {
			return nil, err
		}
		if !Truthy(cond) {
			return last, nil
		}
		if last, err = ev.evalExpr(e.Body, env); err != nil {
			return nil, err
		}
	}
}

func (ev *evaluator) evalMatch(e *ast.Match, env *Env) (Value, error) {
	scrutinee, err := ev.evalExpr(e.Scrutinee, env)
	if err != nil {
		return nil, err
	}
	for _, arm := range e.Arms {
		pattern, err := ev.evalExpr(arm.Pattern, env)
		if err != nil {
			return nil, err
		}
		if Equal(scrutinee, pattern) {
			return ev.evalExpr(arm.Result, env)
		}
	}
	if e.Else != nil {
		return ev.evalExpr(e.Else, env)
	}
	return nil, newError(MatchError, e.Pos, "no arm matched %s", RenderNested(scrutinee))
}
