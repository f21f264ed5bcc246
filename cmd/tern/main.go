// Command tern is the Tern CLI: run, check and format sandboxed scripts.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/jcgregorio/logger"
	"github.com/jcgregorio/slog"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/diagnostics"
	"github.com/thomasrohde/tern/pkg/runtime"
)

// flag names
const (
	verboseFlagName  = "verbose"
	jsonFlagName     = "json"
	profileFlagName  = "profile"
	allowFlagName    = "allow"
	maxTimeFlagName  = "max-time-ms"
	maxDepthFlagName = "max-depth"
	maxHeapFlagName  = "max-heap"
	traceFlagName    = "trace"
	metricsFlagName  = "metrics"
	writeFlagName    = "write"
	dumpFlagName     = "dump"
	textFlagName     = "text"
)

var (
	verboseFlag = &cli.BoolFlag{
		Name:  verboseFlagName,
		Usage: "Log run details to stderr.",
	}
	jsonFlag = &cli.BoolFlag{
		Name:  jsonFlagName,
		Usage: "Print results and diagnostics as JSON.",
	}
	profileFlag = &cli.StringFlag{
		Name:  profileFlagName,
		Usage: "Profile file (.toml, .yaml or .json). Defaults to .tern.* in the working directory, then ~/.tern/profile.*.",
	}
)

func main() {
	app := newApp(os.Stdin, os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(runtime.ExitUsage)
	}
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "tern",
		Usage:     "run small untrusted scripts under a capability profile",
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Flags:     []cli.Flag{verboseFlag},
		Commands: []*cli.Command{
			runCommand(),
			checkCommand(),
			fmtCommand(),
			parseCommand(),
			replCommand(),
			traceCommand(),
			profileCommand(),
		},
	}
}

// newLogger returns a stderr logger when --verbose is set and a no-op one
// otherwise.
func newLogger(c *cli.Context) slog.Logger {
	if !c.Bool(verboseFlagName) {
		return logger.NewNopLogger()
	}
	return logger.NewFromOptions(&logger.Options{
		SyncWriter:   os.Stderr,
		IncludeDebug: true,
	})
}

// pretty reports whether diagnostics should be rendered for a terminal.
func pretty(c *cli.Context) bool {
	if c.Bool(jsonFlagName) {
		return false
	}
	f, ok := c.App.ErrWriter.(*os.File)
	return !ok || isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func reportDiagnostics(c *cli.Context, diags []diagnostics.Diagnostic) {
	if len(diags) == 0 {
		return
	}
	fmt.Fprintln(c.App.ErrWriter, diagnostics.FormatDiagnostics(diags, pretty(c)))
}

// exit reports err's diagnostics and returns the matching exit status.
func exit(c *cli.Context, err error) error {
	if err == nil {
		return nil
	}
	reportDiagnostics(c, runtime.Diagnostics(err))
	return cli.Exit("", runtime.ExitCode(err))
}

// usageError reports an I/O or usage problem with exit status 1.
func usageError(c *cli.Context, format string, args ...any) error {
	d := diagnostics.MakeDiag(diagnostics.EIO, fmt.Sprintf(format, args...), nil, "")
	reportDiagnostics(c, []diagnostics.Diagnostic{d})
	return cli.Exit("", runtime.ExitUsage)
}

func readSource(c *cli.Context, file string) (string, string, error) {
	if file == "-" {
		data, err := io.ReadAll(c.App.Reader)
		if err != nil {
			return "", "", usageError(c, "cannot read stdin: %s", err)
		}
		return string(data), "<stdin>", nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return "", "", usageError(c, "cannot read file: %s", file)
	}
	return string(data), file, nil
}
