package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/effects"
	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/lexer"
	"github.com/thomasrohde/tern/pkg/parser"
	"github.com/thomasrohde/tern/pkg/runtime"
)

const (
	promptMain  = "tern> "
	promptCont  = "  ... "
	historyFile = ".tern_history"
)

const replHelp = `:help          show this help
:quit          leave the REPL (Ctrl+D works too)
:reset         drop every binding
:names         list bindings in the session
:fmt <expr>    print an expression in canonical form
:profile       show the active profile
`

func replCommand() *cli.Command {
	return &cli.Command{
		Name:   "repl",
		Usage:  "Start an interactive session. Piped stdin runs as one program.",
		Flags:  append([]cli.Flag{jsonFlag}, sandboxFlags...),
		Action: cmdRepl,
	}
}

// session is one REPL's state: the runtime and the root scope that
// top-level bindings persist in.
type session struct {
	rt  *runtime.Runtime
	env *evaluator.Env
	out io.Writer
	err io.Writer
}

func (s *session) eval(ctx context.Context, program []ast.Expr) {
	res, err := s.rt.RunProgram(ctx, program, s.env)
	if err != nil {
		fmt.Fprintln(s.err, err)
		return
	}
	fmt.Fprintln(s.out, evaluator.Render(res.Value))
}

// command handles a ':' line and reports whether the REPL should exit.
func (s *session) command(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case ":help":
		fmt.Fprint(s.out, replHelp)
	case ":quit", ":exit":
		return true
	case ":reset":
		s.env = evaluator.NewEnv(nil)
		fmt.Fprintln(s.out, "session reset.")
	case ":names":
		fmt.Fprintln(s.out, strings.Join(s.env.Names(), " "))
	case ":profile":
		fmt.Fprintln(s.out, s.rt.Profile())
	case ":fmt":
		src := strings.TrimSpace(strings.TrimPrefix(line, ":fmt"))
		out, err := s.rt.Format(src, "repl")
		if err != nil {
			fmt.Fprintln(s.err, err)
			return false
		}
		fmt.Fprint(s.out, out)
	default:
		fmt.Fprintln(s.out, "unknown command. Type :help for help.")
	}
	return false
}

func cmdRepl(c *cli.Context) error {
	log := newLogger(c)
	prof, _, err := resolveProfile(c)
	if err != nil {
		return profileError(c, err)
	}
	rt := runtime.New(
		runtime.WithProfile(prof),
		runtime.WithHost(effects.NewOSHost(effects.WithLogger(log))),
		runtime.WithLogger(log),
	)

	f, ok := c.App.Reader.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return runPiped(c, rt)
	}

	s := &session{rt: rt, env: evaluator.NewEnv(nil), out: c.App.Writer, err: c.App.ErrWriter}
	fmt.Fprintln(s.out, "Tern REPL. Type :help for commands.")

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	histPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		histPath = filepath.Join(home, historyFile)
		if hf, err := os.Open(histPath); err == nil {
			_, _ = ln.ReadHistory(hf)
			_ = hf.Close()
		}
	}

	for {
		code, program, ok := readUntilParsed(ln)
		if !ok {
			fmt.Fprintln(s.out)
			break
		}
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(code, "\n", " "))
		if strings.HasPrefix(trimmed, ":") {
			if s.command(trimmed) {
				break
			}
			continue
		}
		if program == nil {
			_, err := parser.ParseSource(code, "repl")
			reportDiagnostics(c, runtime.Diagnostics(err))
			continue
		}
		s.eval(c.Context, program)
	}

	if histPath != "" {
		if hf, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(hf)
			_ = hf.Close()
		}
	}
	return nil
}

// runPiped runs all of stdin as one program, so `echo 'x' | tern repl`
// behaves like `tern run -`.
func runPiped(c *cli.Context, rt *runtime.Runtime) error {
	data, err := io.ReadAll(c.App.Reader)
	if err != nil {
		return usageError(c, "cannot read stdin: %s", err)
	}
	res, err := rt.Run(c.Context, string(data), "<stdin>")
	if err != nil {
		return exit(c, err)
	}
	reportDiagnostics(c, res.Warnings)
	return printValue(c, res.Value)
}

// readUntilParsed reads lines until they parse or fail for a reason more
// input cannot fix. It returns the parsed program, or nil with the raw text
// when parsing failed. ok is false at EOF.
func readUntilParsed(ln *liner.State) (string, []ast.Expr, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", nil, false
		}
		if err != nil {
			// Ctrl+C drops the pending input.
			return "", nil, true
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if strings.HasPrefix(strings.TrimSpace(src), ":") {
			return src, nil, true
		}
		program, perr := parser.ParseSource(src, "repl")
		if perr == nil {
			return src, program, true
		}
		if !incomplete(perr) {
			return src, nil, true
		}
	}
}

// incomplete reports whether err means the input stopped early: the parser
// hit end of input, or a string is still open.
func incomplete(err error) bool {
	var perr *parser.ParseError
	if !errors.As(err, &perr) {
		return false
	}
	if perr.Kind == parser.LexFailure {
		var lerr *lexer.LexError
		return errors.As(err, &lerr) && lerr.Kind == lexer.UnterminatedString
	}
	return perr.Found.Type == lexer.TokEOF
}
