package evaluator

import (
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/profile"
)

// builtins is the read-only namespace consulted after every scope misses.
// It holds only capability-gated effects; it is never mutated after init and
// is shared by all runs.
var builtins map[string]*Builtin

func init() {
	builtins = map[string]*Builtin{}
	for _, b := range []*Builtin{
		{Name: "print", Capability: profile.CapIO, minArgs: 0, maxArgs: -1, fn: effectPrint},
		{Name: "input", Capability: profile.CapIO, minArgs: 0, maxArgs: 0, fn: effectInput},
		{Name: "readFile", Capability: profile.CapFilesystem, minArgs: 1, maxArgs: 1, fn: effectReadFile},
		{Name: "writeFile", Capability: profile.CapFilesystem, minArgs: 2, maxArgs: 2, fn: effectWriteFile},
		{Name: "listDir", Capability: profile.CapFilesystem, minArgs: 1, maxArgs: 1, fn: effectListDir},
		{Name: "fileExists", Capability: profile.CapFilesystem, minArgs: 1, maxArgs: 1, fn: effectFileExists},
		{Name: "fetch", Capability: profile.CapNetwork, minArgs: 1, maxArgs: 1, fn: effectFetch},
		{Name: "defer", Capability: profile.CapDeferred, minArgs: 1, maxArgs: 1, fn: effectDefer},
	} {
		builtins[b.Name] = b
	}
}

// BuiltinInfo describes one entry of the builtin namespace.
type BuiltinInfo struct {
	Name       string
	Capability profile.Capability
	MinArgs    int
	MaxArgs    int // negative means variadic
}

// Builtins lists the builtin namespace sorted by name.
func Builtins() []BuiltinInfo {
	out := make([]BuiltinInfo, 0, len(builtins))
	for _, b := range builtins {
		out = append(out, BuiltinInfo{Name: b.Name, Capability: b.Capability, MinArgs: b.minArgs, MaxArgs: b.maxArgs})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// IsBuiltin reports whether name resolves to the builtin namespace.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

var errNoHost = errors.New("no host attached")

func (ev *evaluator) host() (Host, error) {
	if ev.opts.Host == nil {
		return nil, errNoHost
	}
	return ev.opts.Host, nil
}

func effectPrint(ev *evaluator, _ ast.Pos, args []Value) (Value, error) {
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = Render(a)
	}
	if err := h.Print(ev.ctx, strings.Join(parts, " ")+"\n"); err != nil {
		return nil, err
	}
	return NewNil(), nil
}

func effectInput(ev *evaluator, _ ast.Pos, _ []Value) (Value, error) {
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	line, err := h.Input(ev.ctx)
	if errors.Is(err, io.EOF) {
		return NewNil(), nil
	}
	if err != nil {
		return nil, err
	}
	return NewString(line), nil
}

func effectReadFile(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
	path, err := stringArg("readFile", args[0], pos)
	if err != nil {
		return nil, err
	}
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	text, err := h.ReadFile(ev.ctx, path)
	if err != nil {
		return nil, err
	}
	return NewString(text), nil
}

func effectWriteFile(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
	path, err := stringArg("writeFile", args[0], pos)
	if err != nil {
		return nil, err
	}
	text, err := stringArg("writeFile", args[1], pos)
	if err != nil {
		return nil, err
	}
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	if err := h.WriteFile(ev.ctx, path, text); err != nil {
		return nil, err
	}
	return NewNil(), nil
}

func effectListDir(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
	path, err := stringArg("listDir", args[0], pos)
	if err != nil {
		return nil, err
	}
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	names, err := h.ListDir(ev.ctx, path)
	if err != nil {
		return nil, err
	}
	items := make([]Value, len(names))
	for i, n := range names {
		items[i] = NewString(n)
	}
	ev.markDirty()
	return NewList(items), nil
}

func effectFileExists(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
	path, err := stringArg("fileExists", args[0], pos)
	if err != nil {
		return nil, err
	}
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	ok, err := h.FileExists(ev.ctx, path)
	if err != nil {
		return nil, err
	}
	return NewBool(ok), nil
}

func effectFetch(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
	url, err := stringArg("fetch", args[0], pos)
	if err != nil {
		return nil, err
	}
	h, err := ev.host()
	if err != nil {
		return nil, err
	}
	status, body, err := h.Fetch(ev.ctx, url)
	if err != nil {
		return nil, err
	}
	ev.markDirty()
	return NewMap([]KeyValue{
		{Key: "status", Value: NewNumber(float64(status))},
		{Key: "body", Value: NewString(body)},
	}), nil
}

// effectDefer queues a zero-argument callable to run after the program.
func effectDefer(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
	switch fn := args[0].(type) {
	case *Closure:
		if len(fn.Params) != 0 {
			return nil, arityError(pos, "deferred "+closureName(fn), len(fn.Params), len(fn.Params), 0)
		}
	case *Builtin:
	default:
		return nil, typeError(pos, "defer expects a callable, got %s", TypeName(args[0]))
	}
	ev.deferred = append(ev.deferred, deferredCall{fn: args[0], pos: pos})
	return NewNil(), nil
}
