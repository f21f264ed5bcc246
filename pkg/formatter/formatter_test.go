package formatter_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/formatter"
	"github.com/thomasrohde/tern/pkg/parser"
)

var astOpts = cmp.Options{
	cmp.FilterPath(func(p cmp.Path) bool {
		return p.Last().String() == ".Pos"
	}, cmp.Ignore()),
	cmpopts.EquateEmpty(),
}

func mustParse(t *testing.T, source string) []ast.Expr {
	t.Helper()
	prog, err := parser.ParseSource(source, "test.tern")
	if err != nil {
		t.Fatalf("unexpected parse error for %q: %v", source, err)
	}
	return prog
}

// roundTrip formats source, checks the output, and checks that the output
// parses back to the same AST and formats to itself.
func roundTrip(t *testing.T, source, want string) {
	t.Helper()
	prog := mustParse(t, source)
	got := formatter.Format(prog)
	if got != want {
		t.Errorf("Format(%q)\n got: %q\nwant: %q", source, got, want)
	}
	reparsed := mustParse(t, got)
	if diff := cmp.Diff(prog, reparsed, astOpts); diff != "" {
		t.Errorf("formatted source parses differently (-orig +reparsed):\n%s", diff)
	}
	if again := formatter.Format(reparsed); again != got {
		t.Errorf("Format is not idempotent:\n first: %q\nsecond: %q", got, again)
	}
}

func TestFormatLiterals(t *testing.T) {
	roundTrip(t, `42`, "42\n")
	roundTrip(t, `1_000.50`, "1000.5\n")
	roundTrip(t, `'hi there'`, "'hi there'\n")
	roundTrip(t, `true  false   nil`, "true\nfalse\nnil\n")
}

func TestFormatCollections(t *testing.T) {
	roundTrip(t, `( , )`, "(,)\n")
	roundTrip(t, `( : )`, "(:)\n")
	roundTrip(t, `(1 ,)`, "(1,)\n")
	roundTrip(t, `(1,2,3,)`, "(1, 2, 3)\n")
	roundTrip(t, `('a':1,'b':(2,3))`, "('a': 1, 'b': (2, 3))\n")
}

func TestFormatLongListWraps(t *testing.T) {
	src := `('aaaaaaaaaaaa', 'bbbbbbbbbbbb', 'cccccccccccc', 'dddddddddddd', 'eeeeeeeeeeee')`
	want := "(\n  'aaaaaaaaaaaa',\n  'bbbbbbbbbbbb',\n  'cccccccccccc',\n  'dddddddddddd',\n  'eeeeeeeeeeee',\n)\n"
	roundTrip(t, src, want)
}

func TestFormatOperators(t *testing.T) {
	roundTrip(t, `1+2*3`, "1 + 2 * 3\n")
	roundTrip(t, `(1+2)*3`, "(1 + 2) * 3\n")
	roundTrip(t, `1-(2-3)`, "1 - (2 - 3)\n")
	roundTrip(t, `(1-2)-3`, "1 - 2 - 3\n")
	roundTrip(t, `(a < b) == true`, "(a < b) == true\n")
	roundTrip(t, `a and b or not c`, "a and b or not c\n")
	roundTrip(t, `-(1+2)`, "-(1 + 2)\n")
	roundTrip(t, `- -x`, "-(-x)\n")
	roundTrip(t, `!x`, "not x\n")
}

func TestFormatPostfix(t *testing.T) {
	roundTrip(t, `f(1,2)`, "f(1, 2)\n")
	roundTrip(t, `xs.map |x| x * 2`, "xs.map(|x| x * 2)\n")
	roundTrip(t, `(-5).abs`, "(-5).abs\n")
	roundTrip(t, `(|x| x)(1)`, "(|x| x)(1)\n")
	roundTrip(t, `(1 + 2).string`, "(1 + 2).string\n")
	roundTrip(t, `m.a.b := 1`, "m.a.b := 1\n")
}

func TestFormatLambdaAndAssign(t *testing.T) {
	roundTrip(t, `f:=|a,b|a+b`, "f := |a, b| a + b\n")
	roundTrip(t, `g := || nil`, "g := || nil\n")
	roundTrip(t, `(x := 1) + 2`, "(x := 1) + 2\n")
	roundTrip(t, `a := b := 3`, "a := b := 3\n")
}

func TestFormatBlocks(t *testing.T) {
	roundTrip(t, `{}`, "{}\n")
	roundTrip(t, `{ 1 }`, "{ 1 }\n")
	roundTrip(t, `f := |x| { y := x * 2  y + 1 }`, "f := |x| {\n  y := x * 2\n  y + 1\n}\n")
}

func TestFormatControlFlow(t *testing.T) {
	roundTrip(t, `if a then 1 else 2`, "if a then 1 else 2\n")
	roundTrip(t, `if a then (if b then 1) else 2`, "if a then (if b then 1) else 2\n")
	roundTrip(t, `while i < 3 i := i + 1`, "while i < 3 i := i + 1\n")
	roundTrip(t, "while x\n(1, 2)", "while x\n  (1, 2)\n")
	roundTrip(t, "while x\n(-1)", "while x\n  (-1)\n")
	roundTrip(t, `match x { 1: 'a' 2: 'b' }`, "match x { 1: 'a', 2: 'b' }\n")
	roundTrip(t, `match x { 1: 'a', 2: 'b', else: 'c' }`, "match x {\n  1: 'a',\n  2: 'b',\n  else: 'c',\n}\n")
	roundTrip(t, `match x {}`, "match x {}\n")
}

func TestFormatSequenceGuardsLeadingMinus(t *testing.T) {
	roundTrip(t, "a\n(-b)", "a\n(-b)\n")
}

func TestFormatEmptyProgram(t *testing.T) {
	if got := formatter.Format(nil); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestFormatExpr(t *testing.T) {
	prog := mustParse(t, `x.push(1)`)
	if got := formatter.FormatExpr(prog[0]); got != "x.push(1)" {
		t.Errorf("got %q", got)
	}
}

func TestHasComments(t *testing.T) {
	tests := []struct {
		src  string
		want bool
	}{
		{"x := 1 # note", true},
		{"# header\nx", true},
		{"'# not a comment'", false},
		{"'multi\nline # still string'\nx", false},
		{"x := 1", false},
	}
	for _, tt := range tests {
		if got := formatter.HasComments(tt.src); got != tt.want {
			t.Errorf("HasComments(%q) = %v, want %v", tt.src, got, tt.want)
		}
	}
}
