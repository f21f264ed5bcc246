package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/diagnostics"
	"github.com/thomasrohde/tern/pkg/effects"
	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/profile"
	"github.com/thomasrohde/tern/pkg/runtime"
)

var sandboxFlags = []cli.Flag{
	profileFlag,
	&cli.StringSliceFlag{
		Name:  allowFlagName,
		Usage: "Grant a capability: io, network, filesystem or deferred_execution. Repeatable, or comma separated.",
	},
	&cli.Int64Flag{
		Name:  maxTimeFlagName,
		Usage: "Wall-clock budget in milliseconds.",
	},
	&cli.IntFlag{
		Name:  maxDepthFlagName,
		Usage: "Maximum closure call depth.",
	},
	&cli.IntFlag{
		Name:  maxHeapFlagName,
		Usage: "Maximum number of live values.",
	},
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run one or more programs; several files run concurrently.",
		ArgsUsage: "<file|-> [file...]",
		Flags: append([]cli.Flag{
			jsonFlag,
			&cli.StringFlag{
				Name:  traceFlagName,
				Usage: "Write trace events as JSON lines to this file.",
			},
			&cli.StringFlag{
				Name:  metricsFlagName,
				Usage: "Write Prometheus metrics in text format to this file.",
			},
		}, sandboxFlags...),
		Action: cmdRun,
	}
}

// resolveProfile loads the effective profile and applies flag overrides.
func resolveProfile(c *cli.Context) (*profile.Profile, string, error) {
	var prof *profile.Profile
	var source string
	if path := c.String(profileFlagName); path != "" {
		p, err := profile.LoadFile(path)
		if err != nil {
			return nil, "", err
		}
		prof, source = p, path
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, "", errors.Wrap(err, "finding working directory")
		}
		if prof, source, err = profile.Load(cwd); err != nil {
			return nil, "", err
		}
	}

	for _, name := range c.StringSlice(allowFlagName) {
		capability, err := profile.ParseCapability(name)
		if err != nil {
			return nil, "", err
		}
		if err := prof.Capabilities.Set(capability, true); err != nil {
			return nil, "", err
		}
	}
	if c.IsSet(maxTimeFlagName) {
		prof.MaxTimeMs = profile.Int64(c.Int64(maxTimeFlagName))
	}
	if c.IsSet(maxDepthFlagName) {
		prof.MaxStackDepth = profile.Int(c.Int(maxDepthFlagName))
	}
	if c.IsSet(maxHeapFlagName) {
		prof.MaxHeapSize = profile.Int(c.Int(maxHeapFlagName))
	}
	if err := prof.Validate(); err != nil {
		return nil, "", err
	}
	return prof, source, nil
}

func profileError(c *cli.Context, err error) error {
	var d diagnostics.Diagnoser
	if errors.As(err, &d) {
		reportDiagnostics(c, []diagnostics.Diagnostic{d.Diagnostic()})
	} else {
		reportDiagnostics(c, []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.EProfile, err.Error(), nil, "")})
	}
	return cli.Exit("", runtime.ExitUsage)
}

// traceWriter appends trace events to w as JSON lines. Concurrent runs
// share it.
type traceWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newTraceWriter(w io.Writer) *traceWriter {
	return &traceWriter{enc: json.NewEncoder(w)}
}

func (t *traceWriter) write(ev evaluator.TraceEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_ = t.enc.Encode(ev)
}

func cmdRun(c *cli.Context) error {
	files := c.Args().Slice()
	if len(files) == 0 {
		return usageError(c, "usage: tern run <file|-> [file...]")
	}

	log := newLogger(c)
	prof, source, err := resolveProfile(c)
	if err != nil {
		return profileError(c, err)
	}
	if source != "" {
		log.Debugf("profile loaded from %s", source)
	}

	sources := make([]runtime.Source, 0, len(files))
	for _, f := range files {
		text, name, err := readSource(c, f)
		if err != nil {
			return err
		}
		sources = append(sources, runtime.Source{Name: name, Text: text})
	}

	host := effects.NewOSHost(effects.WithStdio(c.App.Reader, c.App.Writer), effects.WithLogger(log))
	opts := []runtime.Option{
		runtime.WithProfile(prof),
		runtime.WithHost(host),
		runtime.WithLogger(log),
	}
	if path := c.String(traceFlagName); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return usageError(c, "cannot create trace file: %s", path)
		}
		defer f.Close()
		opts = append(opts, runtime.WithTrace(newTraceWriter(f).write))
	}
	reg := prometheus.NewRegistry()
	opts = append(opts, runtime.WithRegisterer(reg))

	rt := runtime.New(opts...)
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	outcomes := rt.RunAll(ctx, sources)

	if path := c.String(metricsFlagName); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			return usageError(c, "cannot write metrics: %s", err)
		}
	}

	code := runtime.ExitOK
	for _, o := range outcomes {
		if o.Result != nil {
			reportDiagnostics(c, o.Result.Warnings)
		}
		if o.Err != nil {
			reportDiagnostics(c, runtime.Diagnostics(o.Err))
			if code == runtime.ExitOK {
				code = runtime.ExitCode(o.Err)
			}
			continue
		}
		if err := printValue(c, o.Result.Value); err != nil {
			return usageError(c, "cannot print result of %s: %s", o.Name, err)
		}
	}
	if code != runtime.ExitOK {
		return cli.Exit("", code)
	}
	return nil
}

// printValue writes a program's final value. Nil prints nothing unless
// JSON output is requested.
func printValue(c *cli.Context, v evaluator.Value) error {
	if c.Bool(jsonFlagName) {
		b, err := evaluator.ValueToJSON(v)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, string(b))
		return err
	}
	if _, ok := v.(evaluator.Nil); ok || v == nil {
		return nil
	}
	_, err := fmt.Fprintln(c.App.Writer, evaluator.Render(v))
	return err
}
