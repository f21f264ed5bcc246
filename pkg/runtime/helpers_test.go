package runtime_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/parser"
)

func mustParse(t *testing.T, src string) []ast.Expr {
	t.Helper()
	prog, err := parser.ParseSource(src, "repl")
	require.NoError(t, err)
	return prog
}
