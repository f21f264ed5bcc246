package evaluator

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/thomasrohde/tern/pkg/ast"
)

// method is one entry of a receiver's fixed dispatch table. Immediate methods
// are computed on property access (l.len); the others are returned as a
// Builtin bound to the receiver and run when called (l.push(3)).
type method struct {
	immediate bool
	minArgs   int
	maxArgs   int
	fn        func(ev *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error)
}

// The tables reach back into the evaluator through callbacks, so they are
// filled in init to avoid an initialization cycle.
var (
	listMethods   map[string]method
	mapMethods    map[string]method
	stringMethods map[string]method
	numberMethods map[string]method
)

func init() {
	listMethods = map[string]method{
		"len":      {immediate: true, fn: listLen},
		"first":    {immediate: true, fn: listFirst},
		"last":     {immediate: true, fn: listLast},
		"push":     {minArgs: 1, maxArgs: 1, fn: listPush},
		"pop":      {fn: listPop},
		"get":      {minArgs: 1, maxArgs: 1, fn: listGet},
		"contains": {minArgs: 1, maxArgs: 1, fn: listContains},
		"each":     {minArgs: 1, maxArgs: 1, fn: listEach},
		"map":      {minArgs: 1, maxArgs: 1, fn: listMap},
		"filter":   {minArgs: 1, maxArgs: 1, fn: listFilter},
		"join":     {minArgs: 0, maxArgs: 1, fn: listJoin},
	}
	mapMethods = map[string]method{
		"len":    {immediate: true, fn: mapLen},
		"keys":   {immediate: true, fn: mapKeys},
		"values": {immediate: true, fn: mapValues},
		"has":    {minArgs: 1, maxArgs: 1, fn: mapHas},
		"remove": {minArgs: 1, maxArgs: 1, fn: mapRemove},
	}
	stringMethods = map[string]method{
		"len":      {immediate: true, fn: strLen},
		"upper":    {immediate: true, fn: strUpper},
		"lower":    {immediate: true, fn: strLower},
		"trim":     {immediate: true, fn: strTrim},
		"number":   {immediate: true, fn: strNumber},
		"split":    {minArgs: 1, maxArgs: 1, fn: strSplit},
		"concat":   {minArgs: 1, maxArgs: 1, fn: strConcat},
		"contains": {minArgs: 1, maxArgs: 1, fn: strContains},
	}
	numberMethods = map[string]method{
		"string": {immediate: true, fn: numString},
		"floor":  {immediate: true, fn: numFloor},
		"abs":    {immediate: true, fn: numAbs},
	}
}

// property resolves obj.name. Map keys shadow map methods; an absent key
// without a method of that name is nil.
func (ev *evaluator) property(obj Value, name string, pos ast.Pos) (Value, error) {
	var table map[string]method
	switch o := obj.(type) {
	case *Map:
		if val, ok := o.Get(name); ok {
			return val, nil
		}
		if _, ok := mapMethods[name]; !ok {
			return NewNil(), nil
		}
		table = mapMethods
	case *List:
		table = listMethods
	case String:
		table = stringMethods
	case Number:
		table = numberMethods
	default:
		return nil, typeError(pos, "%s has no property '%s'", TypeName(obj), name)
	}

	m, ok := table[name]
	if !ok {
		return nil, typeError(pos, "%s has no property '%s'", TypeName(obj), name)
	}
	if m.immediate {
		return m.fn(ev, obj, pos, nil)
	}
	return &Builtin{
		Name:    TypeName(obj) + "." + name,
		minArgs: m.minArgs,
		maxArgs: m.maxArgs,
		fn: func(ev *evaluator, pos ast.Pos, args []Value) (Value, error) {
			return m.fn(ev, obj, pos, args)
		},
	}, nil
}

func stringArg(name string, v Value, pos ast.Pos) (string, error) {
	s, ok := v.(String)
	if !ok {
		return "", typeError(pos, "%s expects a string, got %s", name, TypeName(v))
	}
	return s.Value, nil
}

// --- List ---

func listLen(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewNumber(float64(len(recv.(*List).Items))), nil
}

func listFirst(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	l := recv.(*List)
	if len(l.Items) == 0 {
		return NewNil(), nil
	}
	return l.Items[0], nil
}

func listLast(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	l := recv.(*List)
	if len(l.Items) == 0 {
		return NewNil(), nil
	}
	return l.Items[len(l.Items)-1], nil
}

func listPush(ev *evaluator, recv Value, _ ast.Pos, args []Value) (Value, error) {
	l := recv.(*List)
	l.Items = append(l.Items, args[0])
	ev.markDirty()
	return l, nil
}

func listPop(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	l := recv.(*List)
	if len(l.Items) == 0 {
		return NewNil(), nil
	}
	last := l.Items[len(l.Items)-1]
	l.Items = l.Items[:len(l.Items)-1]
	return last, nil
}

func listGet(_ *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	l := recv.(*List)
	n, ok := args[0].(Number)
	if !ok {
		return nil, typeError(pos, "list.get expects a number, got %s", TypeName(args[0]))
	}
	i := int(n.Value)
	if float64(i) != n.Value || i < 0 || i >= len(l.Items) {
		return NewNil(), nil
	}
	return l.Items[i], nil
}

func listContains(_ *evaluator, recv Value, _ ast.Pos, args []Value) (Value, error) {
	for _, item := range recv.(*List).Items {
		if Equal(item, args[0]) {
			return NewBool(true), nil
		}
	}
	return NewBool(false), nil
}

// snapshot copies the items so callbacks that mutate the list do not change
// the iteration.
func snapshot(l *List) []Value {
	return append([]Value(nil), l.Items...)
}

func listEach(ev *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	for _, item := range snapshot(recv.(*List)) {
		if _, err := ev.apply(args[0], []Value{item}, pos); err != nil {
			return nil, err
		}
	}
	return recv, nil
}

func listMap(ev *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	items := snapshot(recv.(*List))
	out := make([]Value, 0, len(items))
	for _, item := range items {
		val, err := ev.apply(args[0], []Value{item}, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	ev.markDirty()
	return NewList(out), nil
}

func listFilter(ev *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	out := []Value{}
	for _, item := range snapshot(recv.(*List)) {
		keep, err := ev.apply(args[0], []Value{item}, pos)
		if err != nil {
			return nil, err
		}
		if Truthy(keep) {
			out = append(out, item)
		}
	}
	ev.markDirty()
	return NewList(out), nil
}

func listJoin(_ *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	sep := ""
	if len(args) == 1 {
		s, err := stringArg("list.join", args[0], pos)
		if err != nil {
			return nil, err
		}
		sep = s
	}
	items := recv.(*List).Items
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = Render(item)
	}
	return NewString(strings.Join(parts, sep)), nil
}

// --- Map ---

func mapLen(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewNumber(float64(recv.(*Map).Len())), nil
}

func mapKeys(ev *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	keys := recv.(*Map).Keys()
	items := make([]Value, len(keys))
	for i, k := range keys {
		items[i] = NewString(k)
	}
	ev.markDirty()
	return NewList(items), nil
}

func mapValues(ev *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	pairs := recv.(*Map).Pairs
	items := make([]Value, len(pairs))
	for i, kv := range pairs {
		items[i] = kv.Value
	}
	ev.markDirty()
	return NewList(items), nil
}

func mapHas(_ *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	key, err := stringArg("map.has", args[0], pos)
	if err != nil {
		return nil, err
	}
	_, ok := recv.(*Map).Get(key)
	return NewBool(ok), nil
}

func mapRemove(_ *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	key, err := stringArg("map.remove", args[0], pos)
	if err != nil {
		return nil, err
	}
	if val, ok := recv.(*Map).Remove(key); ok {
		return val, nil
	}
	return NewNil(), nil
}

// --- String ---

func strLen(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewNumber(float64(utf8.RuneCountInString(recv.(String).Value))), nil
}

func strUpper(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewString(strings.ToUpper(recv.(String).Value)), nil
}

func strLower(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewString(strings.ToLower(recv.(String).Value)), nil
}

func strTrim(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewString(strings.TrimSpace(recv.(String).Value)), nil
}

func strNumber(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	n, err := strconv.ParseFloat(strings.TrimSpace(recv.(String).Value), 64)
	if err != nil {
		return NewNil(), nil
	}
	return NewNumber(n), nil
}

func strSplit(ev *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	sep, err := stringArg("string.split", args[0], pos)
	if err != nil {
		return nil, err
	}
	parts := strings.Split(recv.(String).Value, sep)
	items := make([]Value, len(parts))
	for i, p := range parts {
		items[i] = NewString(p)
	}
	ev.markDirty()
	return NewList(items), nil
}

func strConcat(_ *evaluator, recv Value, _ ast.Pos, args []Value) (Value, error) {
	return NewString(recv.(String).Value + Render(args[0])), nil
}

func strContains(_ *evaluator, recv Value, pos ast.Pos, args []Value) (Value, error) {
	sub, err := stringArg("string.contains", args[0], pos)
	if err != nil {
		return nil, err
	}
	return NewBool(strings.Contains(recv.(String).Value, sub)), nil
}

// --- Number ---

func numString(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewString(FormatNumber(recv.(Number).Value)), nil
}

func numFloor(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewNumber(math.Floor(recv.(Number).Value)), nil
}

func numAbs(_ *evaluator, recv Value, _ ast.Pos, _ []Value) (Value, error) {
	return NewNumber(math.Abs(recv.(Number).Value)), nil
}
