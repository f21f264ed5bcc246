package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/formatter"
	"github.com/thomasrohde/tern/pkg/parser"
	"github.com/thomasrohde/tern/pkg/runtime"
	"github.com/thomasrohde/tern/pkg/validator"
)

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Parse and validate a program without running it.",
		ArgsUsage: "<file|->",
		Flags:     []cli.Flag{jsonFlag, profileFlag},
		Action:    cmdCheck,
	}
}

func cmdCheck(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "usage: tern check <file|->")
	}
	source, filename, err := readSource(c, c.Args().First())
	if err != nil {
		return err
	}
	prof, _, err := resolveProfile(c)
	if err != nil {
		return profileError(c, err)
	}

	diags := runtime.New(runtime.WithProfile(prof)).Check(source, filename)
	reportDiagnostics(c, diags)
	if validator.HasErrors(diags) {
		return cli.Exit("", runtime.ExitInvalid)
	}
	if c.Bool(jsonFlagName) {
		if len(diags) == 0 {
			fmt.Fprintln(c.App.Writer, "[]")
		}
	} else {
		fmt.Fprintln(c.App.Writer, "No errors found.")
	}
	return nil
}

func fmtCommand() *cli.Command {
	return &cli.Command{
		Name:      "fmt",
		Usage:     "Print a program in canonical form.",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  writeFlagName,
				Usage: "Rewrite the file in place.",
			},
		},
		Action: cmdFmt,
	}
}

func cmdFmt(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "usage: tern fmt <file|-> [--write]")
	}
	file := c.Args().First()
	source, filename, err := readSource(c, file)
	if err != nil {
		return err
	}

	formatted, err := runtime.New().Format(source, filename)
	if err != nil {
		return exit(c, err)
	}
	if formatter.HasComments(source) {
		fmt.Fprintln(c.App.ErrWriter, "warning: comments are not preserved by the formatter")
	}

	if c.Bool(writeFlagName) && file != "-" {
		if err := os.WriteFile(file, []byte(formatted), 0644); err != nil {
			return usageError(c, "cannot write file: %s", err)
		}
		return nil
	}
	fmt.Fprint(c.App.Writer, formatted)
	return nil
}

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Print the syntax tree of a program.",
		ArgsUsage: "<file|->",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  dumpFlagName,
				Usage: "Dump every node field instead of an outline.",
			},
		},
		Action: cmdParse,
	}
}

var dumpConfig = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func cmdParse(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "usage: tern parse <file|-> [--dump]")
	}
	source, filename, err := readSource(c, c.Args().First())
	if err != nil {
		return err
	}
	program, err := parser.ParseSource(source, filename)
	if err != nil {
		return exit(c, &runtime.DiagnosticError{Diagnostics: runtime.Diagnostics(err)})
	}

	if c.Bool(dumpFlagName) {
		dumpConfig.Fdump(c.App.Writer, program)
		return nil
	}
	var b strings.Builder
	for _, e := range program {
		outline(&b, e, 0)
	}
	fmt.Fprint(c.App.Writer, b.String())
	return nil
}

// outline writes one line per node: position, kind and the node's own
// scalar detail, children indented below.
func outline(b *strings.Builder, e ast.Expr, depth int) {
	if e == nil {
		return
	}
	pos := e.Position()
	fmt.Fprintf(b, "%s%d:%d %s", strings.Repeat("  ", depth), pos.Line, pos.Col, e.Kind())
	var children []ast.Expr
	switch n := e.(type) {
	case *ast.NumberLit, *ast.StringLit, *ast.BoolLit:
		fmt.Fprintf(b, " %s", formatter.FormatExpr(n))
	case *ast.Identifier:
		fmt.Fprintf(b, " %s", n.Name)
	case *ast.ListLit:
		children = n.Elements
	case *ast.MapLit:
		for _, entry := range n.Entries {
			children = append(children, entry.Key, entry.Value)
		}
	case *ast.Call:
		children = append([]ast.Expr{n.Callee}, n.Args...)
	case *ast.Property:
		fmt.Fprintf(b, " .%s", n.Name)
		children = []ast.Expr{n.Object}
	case *ast.Assign:
		children = []ast.Expr{n.Target, n.Value}
	case *ast.Block:
		children = n.Exprs
	case *ast.If:
		children = []ast.Expr{n.Cond, n.Then, n.Else}
	case *ast.While:
		children = []ast.Expr{n.Cond, n.Body}
	case *ast.Match:
		children = []ast.Expr{n.Scrutinee}
		for _, arm := range n.Arms {
			children = append(children, arm.Pattern, arm.Result)
		}
		children = append(children, n.Else)
	case *ast.Binary:
		fmt.Fprintf(b, " %s", n.Op)
		children = []ast.Expr{n.Left, n.Right}
	case *ast.Unary:
		fmt.Fprintf(b, " %s", n.Op)
		children = []ast.Expr{n.Operand}
	case *ast.Lambda:
		fmt.Fprintf(b, " |%s|", strings.Join(n.Params, ", "))
		children = []ast.Expr{n.Body}
	}
	b.WriteByte('\n')
	for _, child := range children {
		outline(b, child, depth+1)
	}
}
