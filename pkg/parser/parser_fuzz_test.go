package parser_test

import (
	"errors"
	"testing"

	"github.com/thomasrohde/tern/pkg/lexer"
	"github.com/thomasrohde/tern/pkg/parser"
)

// FuzzParse feeds random inputs through the lexer and parser. Parsing must
// terminate, and every failure must point at a token from the stream.
func FuzzParse(f *testing.F) {
	seeds := []string{
		`1 + 2 * 3`,
		`x := 5`,
		`x := |w| { x + w }`,
		`(,) (:) (1,) ('a': 1, 'b': (2, 3))`,
		`if a then b else c`,
		`while i < 10 { i := i + 1 }`,
		`match x { 1: 'a', 2: 'b' else: 'c' }`,
		`xs.each |x| { print(x) }`,
		`fold(0) |acc, x| acc + x`,
		`m.k := 1`,
		`a < b < c`,
		`1 := 2`,
		`((((`,
		`{ { {`,
		`'unterminated`,
		`|a, b`,
		`match { `,
		`not not -x`,
		``,
	}

	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, input string) {
		tokens, _ := lexer.Tokenize(input, "fuzz.tern")
		_, err := parser.Parse(tokens)
		if err == nil {
			return
		}
		var perr *parser.ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("unexpected error type %T", err)
		}
		for _, tok := range tokens {
			if tok.Pos == perr.Found.Pos && tok.Type == perr.Found.Type {
				return
			}
		}
		t.Fatalf("error token %v not found in stream for %q", perr.Found, input)
	})
}
