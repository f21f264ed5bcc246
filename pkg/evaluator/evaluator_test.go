package evaluator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/thomasrohde/tern/pkg/effects"
	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/parser"
	"github.com/thomasrohde/tern/pkg/profile"
)

// --- helpers ---

// runWith parses and executes Tern source with custom ExecOptions.
func runWith(t *testing.T, src string, opts evaluator.ExecOptions) (*evaluator.ExecResult, error) {
	t.Helper()
	prog, err := parser.ParseSource(src, "test.tern")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return evaluator.Execute(context.Background(), prog, opts)
}

// run executes source under the deny-all profile.
func run(t *testing.T, src string) (evaluator.Value, error) {
	t.Helper()
	res, err := runWith(t, src, evaluator.ExecOptions{})
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// mustRun is like run but also fails on runtime errors.
func mustRun(t *testing.T, src string) evaluator.Value {
	t.Helper()
	val, err := run(t, src)
	if err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
	return val
}

func expectNumber(t *testing.T, val evaluator.Value, expected float64) {
	t.Helper()
	num, ok := val.(evaluator.Number)
	if !ok {
		t.Fatalf("expected Number, got %T (%v)", val, val)
	}
	if num.Value != expected {
		t.Errorf("got %v, want %v", num.Value, expected)
	}
}

func expectString(t *testing.T, val evaluator.Value, expected string) {
	t.Helper()
	s, ok := val.(evaluator.String)
	if !ok {
		t.Fatalf("expected String, got %T (%v)", val, val)
	}
	if s.Value != expected {
		t.Errorf("got %q, want %q", s.Value, expected)
	}
}

func expectBool(t *testing.T, val evaluator.Value, expected bool) {
	t.Helper()
	b, ok := val.(evaluator.Bool)
	if !ok {
		t.Fatalf("expected Bool, got %T (%v)", val, val)
	}
	if b.Value != expected {
		t.Errorf("got %v, want %v", b.Value, expected)
	}
}

func expectNil(t *testing.T, val evaluator.Value) {
	t.Helper()
	if _, ok := val.(evaluator.Nil); !ok {
		t.Fatalf("expected Nil, got %T (%v)", val, val)
	}
}

// expectRendered compares the nested rendering of val.
func expectRendered(t *testing.T, val evaluator.Value, expected string) {
	t.Helper()
	if got := evaluator.RenderNested(val); got != expected {
		t.Errorf("got %s, want %s", got, expected)
	}
}

// expectRuntimeError asserts the error is a *RuntimeError of the expected kind.
func expectRuntimeError(t *testing.T, err error, kind evaluator.ErrorKind) *evaluator.RuntimeError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected runtime error of kind %s, got nil", kind)
	}
	var rtErr *evaluator.RuntimeError
	if !errors.As(err, &rtErr) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if rtErr.Kind != kind {
		t.Errorf("error kind = %s, want %s (message: %s)", rtErr.Kind, kind, rtErr.Message)
	}
	return rtErr
}

// --- literals and arithmetic ---

func TestLiterals(t *testing.T) {
	expectNumber(t, mustRun(t, `42`), 42)
	expectNumber(t, mustRun(t, `1_000.5`), 1000.5)
	expectString(t, mustRun(t, `'hello'`), "hello")
	expectBool(t, mustRun(t, `true`), true)
	expectBool(t, mustRun(t, `false`), false)
	expectNil(t, mustRun(t, `nil`))
}

func TestEmptyProgramIsNil(t *testing.T) {
	expectNil(t, mustRun(t, ``))
	expectNil(t, mustRun(t, `# only a comment`))
}

func TestArithmetic_Precedence(t *testing.T) {
	expectNumber(t, mustRun(t, `1 + 2 * 3`), 7)
	expectNumber(t, mustRun(t, `(1 + 2) * 3`), 9)
	expectNumber(t, mustRun(t, `10 - 4 - 3`), 3)
	expectNumber(t, mustRun(t, `10 / 4`), 2.5)
	expectNumber(t, mustRun(t, `10 % 3`), 1)
	expectNumber(t, mustRun(t, `-2 * 3`), -6)
}

func TestArithmetic_TypeError(t *testing.T) {
	_, err := run(t, `1 + 'a'`)
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestArithmetic_DivisionByZero(t *testing.T) {
	_, err := run(t, `1 / 0`)
	expectRuntimeError(t, err, evaluator.DivisionByZero)
	_, err = run(t, `1 % 0`)
	expectRuntimeError(t, err, evaluator.DivisionByZero)
}

func TestComparison(t *testing.T) {
	expectBool(t, mustRun(t, `1 < 2`), true)
	expectBool(t, mustRun(t, `2 <= 2`), true)
	expectBool(t, mustRun(t, `'b' > 'a'`), true)
	expectBool(t, mustRun(t, `'a' >= 'b'`), false)
	expectBool(t, mustRun(t, `1 == 1`), true)
	expectBool(t, mustRun(t, `1 != '1'`), true)

	_, err := run(t, `1 < 'a'`)
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestLogical_ShortCircuit(t *testing.T) {
	expectBool(t, mustRun(t, `false and missing`), false)
	expectBool(t, mustRun(t, `true or missing`), true)
	expectBool(t, mustRun(t, `nil or 5`), true)
	expectBool(t, mustRun(t, `1 and ''`), false)
	expectBool(t, mustRun(t, `not nil`), true)
	expectBool(t, mustRun(t, `not 0`), true)

	_, err := run(t, `true and missing`)
	expectRuntimeError(t, err, evaluator.UndefinedVariable)
}

func TestUnaryMinusNeedsNumber(t *testing.T) {
	_, err := run(t, `-'a'`)
	expectRuntimeError(t, err, evaluator.TypeError)
}

// --- variables, scoping and closures ---

func TestUndefinedVariable(t *testing.T) {
	_, err := run(t, `y`)
	rtErr := expectRuntimeError(t, err, evaluator.UndefinedVariable)
	if rtErr.Name != "y" {
		t.Errorf("Name = %q, want %q", rtErr.Name, "y")
	}
	if rtErr.Pos == nil || rtErr.Pos.Line != 1 || rtErr.Pos.Col != 1 {
		t.Errorf("Pos = %v, want 1:1", rtErr.Pos)
	}
}

func TestAssignReturnsValue(t *testing.T) {
	expectNumber(t, mustRun(t, `x := 3`), 3)
	expectNumber(t, mustRun(t, "x := 3\nx := x + 1\nx"), 4)
}

func TestBlockIntroducesScope(t *testing.T) {
	expectNumber(t, mustRun(t, "x := 1\n{ x := 2 }\nx"), 1)
	expectNumber(t, mustRun(t, "x := 1\n{ x + 1 }"), 2)

	_, err := run(t, "{ y := 1 }\ny")
	expectRuntimeError(t, err, evaluator.UndefinedVariable)
}

func TestEmptyBlockIsNil(t *testing.T) {
	expectNil(t, mustRun(t, `{}`))
}

func TestClosureCapturesByReference(t *testing.T) {
	env := evaluator.NewEnv(nil)
	exec := func(src string) evaluator.Value {
		t.Helper()
		prog, err := parser.ParseSource(src, "session.tern")
		if err != nil {
			t.Fatalf("parse error: %v", err)
		}
		res, err := evaluator.ExecuteIn(context.Background(), prog, env, evaluator.ExecOptions{})
		if err != nil {
			t.Fatalf("unexpected runtime error: %v", err)
		}
		return res.Value
	}

	exec(`x := 5`)
	exec(`f := |w| { x + w }`)
	expectNumber(t, exec(`f(3)`), 8)
	exec(`x := 10`)
	expectNumber(t, exec(`f(3)`), 13)
}

func TestClosureLexicalScope(t *testing.T) {
	src := `
make := || {
  s := ('n': 0)
  || { s.n := s.n + 1 }
}
c := make()
c()
c()
`
	expectNumber(t, mustRun(t, src), 2)

	// The callee sees its defining scope, not the caller's.
	src = `
x := 'outer'
get := || x
call := |fn| { x := 'inner'  fn() }
call(get)
`
	expectString(t, mustRun(t, src), "outer")
}

func TestClosureArity(t *testing.T) {
	_, err := run(t, "f := |a, b| a\nf(1)")
	rtErr := expectRuntimeError(t, err, evaluator.ArityError)
	if rtErr.Name != "f" {
		t.Errorf("Name = %q, want %q", rtErr.Name, "f")
	}
}

func TestRecursion(t *testing.T) {
	src := `
fact := |n| if n <= 1 then 1 else n * fact(n - 1)
fact(10)
`
	expectNumber(t, mustRun(t, src), 3628800)
}

func TestTrailingLambda(t *testing.T) {
	expectRendered(t, mustRun(t, `(1, 2, 3).map |x| x * 2`), "(2, 4, 6)")
	expectRendered(t, mustRun(t, `(1, 2, 3).filter(|x| x > 1)`), "(2, 3)")
}

// --- collections ---

func TestListLiteral(t *testing.T) {
	expectRendered(t, mustRun(t, `(,)`), "(,)")
	expectRendered(t, mustRun(t, `(1,)`), "(1,)")
	expectRendered(t, mustRun(t, `(1, 'a', nil, true,)`), "(1, 'a', nil, true)")
}

func TestMapLiteral(t *testing.T) {
	expectRendered(t, mustRun(t, `(:)`), "(:)")
	expectRendered(t, mustRun(t, `('a': 1, 'b': 2)`), "('a': 1, 'b': 2)")
	// Duplicate keys overwrite the value and keep the first position.
	expectRendered(t, mustRun(t, `('a': 1, 'b': 2, 'a': 3)`), "('a': 3, 'b': 2)")
	expectRendered(t, mustRun(t, "k := 'key'\n(k: 1)"), "('key': 1)")
}

func TestMapLiteral_NonStringKey(t *testing.T) {
	_, err := run(t, `(1: 'one')`)
	expectRuntimeError(t, err, evaluator.TypeError)
	_, err = run(t, `((,): 'x')`)
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestListsAreShared(t *testing.T) {
	src := `
a := (1,)
b := a
b.push(2)
a.len
`
	expectNumber(t, mustRun(t, src), 2)
}

func TestListMethods(t *testing.T) {
	expectNumber(t, mustRun(t, `(1, 2, 3).len`), 3)
	expectNumber(t, mustRun(t, `(1, 2, 3).first`), 1)
	expectNumber(t, mustRun(t, `(1, 2, 3).last`), 3)
	expectNil(t, mustRun(t, `(,).first`))
	expectRendered(t, mustRun(t, "l := (1,)\nl.push(2).push(3)"), "(1, 2, 3)")
	expectNumber(t, mustRun(t, "l := (1, 2)\nl.pop()"), 2)
	expectNil(t, mustRun(t, `(,).pop()`))
	expectNumber(t, mustRun(t, `(5, 6).get(1)`), 6)
	expectNil(t, mustRun(t, `(5, 6).get(9)`))
	expectBool(t, mustRun(t, `((1, 2), 3).contains((1, 2))`), true)
	expectString(t, mustRun(t, `(1, 'a', 2.5).join('-')`), "1-a-2.5")
	expectString(t, mustRun(t, `('x', 'y').join()`), "xy")
}

func TestListEachSeesSnapshot(t *testing.T) {
	src := `
l := (1, 2)
seen := (,)
l.each |x| { l.push(x)  seen.push(x) }
(l.len, seen.len)
`
	expectRendered(t, mustRun(t, src), "(4, 2)")
}

func TestListCallIndexing(t *testing.T) {
	expectString(t, mustRun(t, `('a', 'b')(1)`), "b")
	_, err := run(t, `('a', 'b')(2)`)
	expectRuntimeError(t, err, evaluator.TypeError)
	_, err = run(t, `('a', 'b')(0.5)`)
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestUnknownPropertyIsTypeError(t *testing.T) {
	_, err := run(t, `(1, 2).size`)
	expectRuntimeError(t, err, evaluator.TypeError)
	_, err = run(t, `nil.len`)
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestMapProperties(t *testing.T) {
	expectNumber(t, mustRun(t, "m := ('a': 1)\nm.a"), 1)
	expectNil(t, mustRun(t, "m := ('a': 1)\nm.b"))
	expectNumber(t, mustRun(t, `('a': 1, 'b': 2).len`), 2)
	// A key shadows the method of the same name.
	expectNumber(t, mustRun(t, `('len': 9).len`), 9)
	expectRendered(t, mustRun(t, `('a': 1, 'b': 2).keys`), "('a', 'b')")
	expectRendered(t, mustRun(t, `('a': 1, 'b': 2).values`), "(1, 2)")
	expectBool(t, mustRun(t, `('a': 1).has('a')`), true)
	expectNumber(t, mustRun(t, "m := ('a': 1)\nm.remove('a')"), 1)
	expectNil(t, mustRun(t, `(:).remove('a')`))
	expectNumber(t, mustRun(t, "m := ('a': 1)\nm('a')"), 1)
}

func TestPropertyAssignment(t *testing.T) {
	expectRendered(t, mustRun(t, "m := (:)\nm.a := 1\nm.b := 2\nm"), "('a': 1, 'b': 2)")
	expectRendered(t, mustRun(t, "l := (1, 2)\nl.first := 9\nl.last := 8\nl"), "(9, 8)")

	_, err := run(t, "l := (,)\nl.first := 1")
	expectRuntimeError(t, err, evaluator.TypeError)
	_, err = run(t, "s := 'abc'\ns.len := 1")
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestStringMethods(t *testing.T) {
	expectNumber(t, mustRun(t, `'héllo'.len`), 5)
	expectString(t, mustRun(t, `'abc'.upper`), "ABC")
	expectString(t, mustRun(t, `'ABC'.lower`), "abc")
	expectString(t, mustRun(t, `'  x '.trim`), "x")
	expectNumber(t, mustRun(t, `'42'.number + 1`), 43)
	expectNil(t, mustRun(t, `'abc'.number`))
	expectRendered(t, mustRun(t, `'a,b'.split(',')`), "('a', 'b')")
	expectString(t, mustRun(t, `'n='.concat(3)`), "n=3")
	expectBool(t, mustRun(t, `'haystack'.contains('st')`), true)
}

func TestNumberMethods(t *testing.T) {
	expectString(t, mustRun(t, `(3).string`), "3")
	expectNumber(t, mustRun(t, "x := 3.7\nx.floor"), 3)
	expectNumber(t, mustRun(t, `(-5).abs`), 5)
}

// --- control flow ---

func TestIf(t *testing.T) {
	expectNumber(t, mustRun(t, `if 1 < 2 then 10 else 20`), 10)
	expectNumber(t, mustRun(t, `if (,) then 10 else 20`), 20)
	expectNil(t, mustRun(t, `if false then 1`))
}

func TestWhile(t *testing.T) {
	src := `
s := ('i': 0, 'sum': 0)
while s.i < 5 {
  s.i := s.i + 1
  s.sum := s.sum + s.i
}
s.sum
`
	expectNumber(t, mustRun(t, src), 15)
	expectNil(t, mustRun(t, `while false 1`))
	expectNumber(t, mustRun(t, "i := 0\nwhile i < 3 i := i + 1\ni"), 3)
}

func TestMatch(t *testing.T) {
	expectString(t, mustRun(t, `match 2 { 1: 'one', 2: 'two' }`), "two")
	expectString(t, mustRun(t, `match (1, 2) { (1, 2): 'pair' else: 'other' }`), "pair")
	expectString(t, mustRun(t, `match 'z' { 'a': 1 else: 'fallback' }`), "fallback")

	_, err := run(t, `match 3 { 1: 'one' }`)
	expectRuntimeError(t, err, evaluator.MatchError)
}

func TestMatchEvaluatesScrutineeOnce(t *testing.T) {
	src := `
calls := (,)
next := || { calls.push(1)  calls.len }
match next() { 2: 'two', 1: 'one' }
calls.len
`
	expectNumber(t, mustRun(t, src), 1)
}

// --- equality and truthiness ---

func TestEqualityAndTruthiness(t *testing.T) {
	expectBool(t, mustRun(t, `(1, 2) == (1, 2)`), true)
	expectBool(t, mustRun(t, `(1, 2) == (2, 1)`), false)
	expectBool(t, mustRun(t, `('a': 1, 'b': 2) == ('b': 2, 'a': 1)`), true)
	expectBool(t, mustRun(t, "f := |x| x\nf == f"), false)
	expectBool(t, mustRun(t, `not (,)`), true)
	expectBool(t, mustRun(t, `not (:)`), true)
	expectBool(t, mustRun(t, `not (0,)`), false)
	expectBool(t, mustRun(t, `not ('a': nil)`), false)
	expectBool(t, mustRun(t, `nil == nil`), true)
}

// --- capabilities and effects ---

func TestCapabilityDenied(t *testing.T) {
	host := effects.NewMemoryHost().SetFile("a.txt", "secret")
	cases := []struct {
		src string
		cap profile.Capability
	}{
		{`print('x')`, profile.CapIO},
		{`input()`, profile.CapIO},
		{`readFile('a.txt')`, profile.CapFilesystem},
		{`writeFile('b.txt', 'x')`, profile.CapFilesystem},
		{`listDir('.')`, profile.CapFilesystem},
		{`fileExists('a.txt')`, profile.CapFilesystem},
		{`fetch('https://example.com')`, profile.CapNetwork},
		{`defer(|| nil)`, profile.CapDeferred},
	}
	for _, tc := range cases {
		t.Run(tc.src, func(t *testing.T) {
			_, err := runWith(t, tc.src, evaluator.ExecOptions{Profile: profile.DenyAll(), Host: host})
			rtErr := expectRuntimeError(t, err, evaluator.CapabilityDenied)
			if rtErr.Capability != tc.cap {
				t.Errorf("Capability = %s, want %s", rtErr.Capability, tc.cap)
			}
		})
	}
	if calls := host.Calls(); len(calls) != 0 {
		t.Errorf("denied effects reached the host: %v", calls)
	}
}

func TestArityCheckedBeforeCapability(t *testing.T) {
	_, err := runWith(t, `readFile()`, evaluator.ExecOptions{Profile: profile.DenyAll()})
	expectRuntimeError(t, err, evaluator.ArityError)
}

func TestSingleCapabilityGrant(t *testing.T) {
	prof := profile.DenyAll()
	prof.Capabilities.IO = true
	host := effects.NewMemoryHost()

	_, err := runWith(t, `print('ok')`, evaluator.ExecOptions{Profile: prof, Host: host})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = runWith(t, `readFile('x')`, evaluator.ExecOptions{Profile: prof, Host: host})
	expectRuntimeError(t, err, evaluator.CapabilityDenied)
	if got := host.Output(); got != "ok\n" {
		t.Errorf("output = %q, want %q", got, "ok\n")
	}
}

func TestEffectWithoutHost(t *testing.T) {
	_, err := runWith(t, `print(1)`, evaluator.ExecOptions{Profile: profile.AllowAll()})
	expectRuntimeError(t, err, evaluator.EffectFailed)
}

func TestEffectArgumentTypes(t *testing.T) {
	host := effects.NewMemoryHost()
	_, err := runWith(t, `readFile(1)`, evaluator.ExecOptions{Profile: profile.AllowAll(), Host: host})
	expectRuntimeError(t, err, evaluator.TypeError)
}

func TestPrintRendersArguments(t *testing.T) {
	host := effects.NewMemoryHost()
	_, err := runWith(t, `print('n:', 3, (1, 'a'), ('k': nil))`,
		evaluator.ExecOptions{Profile: profile.AllowAll(), Host: host})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "n: 3 (1, 'a') ('k': nil)\n"
	if got := host.Output(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestBuiltinsCanBeShadowed(t *testing.T) {
	expectNumber(t, mustRun(t, "print := |x| x * 2\nprint(4)"), 8)
}

func TestDeferredRunsAfterProgram(t *testing.T) {
	host := effects.NewMemoryHost()
	src := `
defer(|| print('later'))
defer(|| { print('last')  defer(|| print('nested')) })
print('now')
42
`
	res, err := runWith(t, src, evaluator.ExecOptions{Profile: profile.AllowAll(), Host: host})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectNumber(t, res.Value, 42)
	want := "now\nlater\nlast\nnested\n"
	if got := host.Output(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
	if res.Stats.Deferred != 3 {
		t.Errorf("Stats.Deferred = %d, want 3", res.Stats.Deferred)
	}
}

func TestDeferRejectsNonCallable(t *testing.T) {
	_, err := runWith(t, `defer(1)`, evaluator.ExecOptions{Profile: profile.AllowAll()})
	expectRuntimeError(t, err, evaluator.TypeError)
	_, err = runWith(t, `defer(|x| x)`, evaluator.ExecOptions{Profile: profile.AllowAll()})
	expectRuntimeError(t, err, evaluator.ArityError)
}

// --- budgets ---

func TestStackDepthBudget(t *testing.T) {
	prof := profile.DenyAll()
	prof.MaxStackDepth = profile.Int(10)
	src := "f := |n| f(n + 1)\nf(0)"
	_, err := runWith(t, src, evaluator.ExecOptions{Profile: prof})
	rtErr := expectRuntimeError(t, err, evaluator.StackOverflow)
	if !rtErr.IsBudget() {
		t.Error("StackOverflow should be a budget error")
	}
}

func TestStackDepthBudgetAllowsShallowRecursion(t *testing.T) {
	prof := profile.DenyAll()
	prof.MaxStackDepth = profile.Int(10)
	src := "down := |n| if n == 0 then 'done' else down(n - 1)\ndown(9)"
	res, err := runWith(t, src, evaluator.ExecOptions{Profile: prof})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectString(t, res.Value, "done")
	if res.Stats.MaxCallDepth != 10 {
		t.Errorf("MaxCallDepth = %d, want 10", res.Stats.MaxCallDepth)
	}
}

func TestUnboundedRecursionHitsNestingCeiling(t *testing.T) {
	_, err := run(t, "f := |n| f(n + 1)\nf(0)")
	expectRuntimeError(t, err, evaluator.StackOverflow)
}

func TestTimeBudget(t *testing.T) {
	prof := profile.DenyAll()
	prof.MaxTimeMs = profile.Int64(20)
	_, err := runWith(t, `while true nil`, evaluator.ExecOptions{Profile: prof})
	expectRuntimeError(t, err, evaluator.TimeLimitExceeded)
}

func TestHeapBudget(t *testing.T) {
	prof := profile.DenyAll()
	prof.MaxHeapSize = profile.Int(50)
	src := "l := (,)\nwhile l.len < 1000 l.push(l.len)"
	res, err := runWith(t, src, evaluator.ExecOptions{Profile: prof})
	expectRuntimeError(t, err, evaluator.HeapLimitExceeded)
	if res == nil || res.Stats.PeakHeap <= 50 {
		t.Errorf("expected PeakHeap above the budget, got %+v", res)
	}
}

func TestHeapBudgetIgnoresGarbage(t *testing.T) {
	prof := profile.DenyAll()
	prof.MaxHeapSize = profile.Int(50)
	// Each iteration's list becomes unreachable once the block returns.
	src := `
s := ('i': 0)
while s.i < 100 {
  tmp := (1, 2, 3, 4, 5, 6, 7, 8, 9, 10)
  s.i := s.i + 1
}
s.i
`
	res, err := runWith(t, src, evaluator.ExecOptions{Profile: prof})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectNumber(t, res.Value, 100)
}

func TestHeapBudgetWeighsStrings(t *testing.T) {
	prof := profile.DenyAll()
	prof.MaxHeapSize = profile.Int(20)
	src := "s := 'x'\nwhile s.len < 100000000 s := s.concat(s)\ns.len"
	res, err := runWith(t, src, evaluator.ExecOptions{Profile: prof})
	expectRuntimeError(t, err, evaluator.HeapLimitExceeded)
	if res == nil || res.Stats.PeakHeap <= 20 {
		t.Errorf("expected PeakHeap above the budget, got %+v", res)
	}
}

func TestEffectsBeforeBudgetBreachStay(t *testing.T) {
	prof := profile.AllowAll()
	prof.MaxStackDepth = profile.Int(3)
	host := effects.NewMemoryHost()
	src := "print('before')\nf := |n| f(n)\nf(0)"
	_, err := runWith(t, src, evaluator.ExecOptions{Profile: prof, Host: host})
	expectRuntimeError(t, err, evaluator.StackOverflow)
	if got := host.Output(); got != "before\n" {
		t.Errorf("output = %q, want %q", got, "before\n")
	}
}

// --- API ---

func TestEvaluate(t *testing.T) {
	prog, err := parser.ParseSource(`1 + 2 * 3`, "")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	val, err := evaluator.Evaluate(prog, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectNumber(t, val, 7)

	prog, _ = parser.ParseSource(`print(1)`, "")
	_, err = evaluator.Evaluate(prog, nil)
	expectRuntimeError(t, err, evaluator.CapabilityDenied)
}

func TestStats(t *testing.T) {
	res, err := runWith(t, "f := |x| x + 1\nf(f(1))", evaluator.ExecOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stats.Nodes == 0 {
		t.Error("expected nodes to be counted")
	}
	if res.Stats.MaxCallDepth != 1 {
		t.Errorf("MaxCallDepth = %d, want 1", res.Stats.MaxCallDepth)
	}
}

func TestTraceEvents(t *testing.T) {
	var events []evaluator.TraceEvent
	opts := evaluator.ExecOptions{
		Profile: profile.DenyAll(),
		RunID:   "run-1",
		Trace:   func(ev evaluator.TraceEvent) { events = append(events, ev) },
	}
	_, err := runWith(t, "f := |x| x\nf(1)\nprint(f(2))", opts)
	expectRuntimeError(t, err, evaluator.CapabilityDenied)

	var kinds []evaluator.TraceEventType
	for _, ev := range events {
		if ev.RunID != "run-1" {
			t.Errorf("event %s has RunID %q", ev.Event, ev.RunID)
		}
		kinds = append(kinds, ev.Event)
	}
	want := []evaluator.TraceEventType{
		evaluator.TraceRunStart,
		evaluator.TraceCallStart, evaluator.TraceCallEnd,
		evaluator.TraceCallStart, evaluator.TraceCallEnd,
		evaluator.TraceCapabilityDenied,
		evaluator.TraceRunEnd,
	}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if ok, _ := events[len(events)-1].Data["ok"].(bool); ok {
		t.Error("run_end should report ok=false")
	}
}

func TestRuntimeErrorDiagnostic(t *testing.T) {
	_, err := run(t, "\n  missing")
	rtErr := expectRuntimeError(t, err, evaluator.UndefinedVariable)
	d := rtErr.Diagnostic()
	if d.Code != "E_UNDEFINED" {
		t.Errorf("code = %s", d.Code)
	}
	if d.Pos == nil || d.Pos.Line != 2 || d.Pos.Col != 3 {
		t.Errorf("pos = %v, want 2:3", d.Pos)
	}
	if d.Hint == "" {
		t.Error("expected a hint")
	}
}
