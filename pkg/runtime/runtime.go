// Package runtime provides the top-level Tern runtime orchestrator.
package runtime

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jcgregorio/logger"
	"github.com/jcgregorio/slog"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/thomasrohde/tern/pkg/ast"
	"github.com/thomasrohde/tern/pkg/diagnostics"
	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/formatter"
	"github.com/thomasrohde/tern/pkg/parser"
	"github.com/thomasrohde/tern/pkg/profile"
	"github.com/thomasrohde/tern/pkg/validator"
)

// Result holds the outcome of a program execution.
type Result struct {
	RunID    string
	Value    evaluator.Value
	Stats    evaluator.Stats
	Warnings []diagnostics.Diagnostic
}

// Runtime wires together all Tern components for program execution. A
// Runtime is safe for concurrent use as long as its Host is.
type Runtime struct {
	profile     *profile.Profile
	host        evaluator.Host
	log         slog.Logger
	trace       func(event evaluator.TraceEvent)
	metrics     *metrics
	parallelism int
	newRunID    func() string
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithProfile sets the sandbox profile. Each run works on its own copy.
func WithProfile(p *profile.Profile) Option {
	return func(rt *Runtime) {
		rt.profile = p.Clone()
	}
}

// WithHost sets the host that performs permitted effects.
func WithHost(h evaluator.Host) Option {
	return func(rt *Runtime) {
		rt.host = h
	}
}

// WithLogger sets the logger.
func WithLogger(l slog.Logger) Option {
	return func(rt *Runtime) {
		rt.log = l
	}
}

// WithTrace sets the trace callback. With RunAll it is called from several
// goroutines.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// WithRegisterer registers the runtime's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(rt *Runtime) {
		rt.metrics = newMetrics(reg)
	}
}

// WithParallelism bounds how many programs RunAll evaluates at once.
func WithParallelism(n int) Option {
	return func(rt *Runtime) {
		rt.parallelism = n
	}
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(fn func() string) Option {
	return func(rt *Runtime) {
		rt.newRunID = fn
	}
}

// New creates a new Runtime with the given options. By default the profile
// is deny-all, there is no host, and nothing is logged.
func New(opts ...Option) *Runtime {
	rt := &Runtime{
		profile:     profile.DenyAll(),
		log:         logger.NewNopLogger(),
		parallelism: goruntime.GOMAXPROCS(0),
		newRunID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.metrics == nil {
		rt.metrics = newMetrics(nil)
	}
	return rt
}

// Profile returns a copy of the runtime's profile.
func (rt *Runtime) Profile() *profile.Profile {
	return rt.profile.Clone()
}

// Run parses, validates, and executes a Tern program. Validation warnings
// do not stop the run and are returned in the Result.
func (rt *Runtime) Run(ctx context.Context, source, filename string) (*Result, error) {
	runID := rt.newRunID()
	program, err := parser.ParseSource(source, filename)
	if err != nil {
		rt.metrics.runs.WithLabelValues(OutcomeInvalid).Inc()
		return nil, &DiagnosticError{Diagnostics: diagnostics.FromError(err)}
	}

	diags := validator.Validate(program, rt.profile)
	if validator.HasErrors(diags) {
		rt.metrics.runs.WithLabelValues(OutcomeInvalid).Inc()
		return nil, &DiagnosticError{Diagnostics: diags}
	}
	res, err := rt.execute(ctx, runID, program, nil)
	if res != nil {
		res.Warnings = diags
	}
	return res, err
}

// RunProgram executes an already parsed program in env. A nil env gets a
// fresh root scope; passing the same env across calls keeps top-level
// bindings, which is how the REPL works.
func (rt *Runtime) RunProgram(ctx context.Context, program []ast.Expr, env *evaluator.Env) (*Result, error) {
	return rt.execute(ctx, rt.newRunID(), program, env)
}

func (rt *Runtime) execute(ctx context.Context, runID string, program []ast.Expr, env *evaluator.Env) (*Result, error) {
	if env == nil {
		env = evaluator.NewEnv(nil)
	}
	rt.log.Debugf("run %s: start, profile %s", runID, rt.profile)

	start := time.Now()
	out, err := evaluator.ExecuteIn(ctx, program, env, evaluator.ExecOptions{
		Profile: rt.profile,
		Host:    rt.host,
		Trace:   rt.trace,
		RunID:   runID,
	})
	elapsed := time.Since(start)
	rt.metrics.duration.Observe(elapsed.Seconds())

	res := &Result{RunID: runID}
	if out != nil {
		res.Value = out.Value
		res.Stats = out.Stats
	}
	outcome := rt.observe(runID, err)
	rt.metrics.runs.WithLabelValues(outcome).Inc()
	rt.log.Infof("run %s: %s in %s (%d nodes)", runID, outcome, elapsed, res.Stats.Nodes)
	return res, err
}

// observe classifies err for metrics and logs breaches.
func (rt *Runtime) observe(runID string, err error) string {
	if err == nil {
		return OutcomeOK
	}
	var rerr *evaluator.RuntimeError
	if !errors.As(err, &rerr) {
		rt.log.Errorf("run %s: %s", runID, err)
		return OutcomeRuntimeError
	}
	switch {
	case rerr.Kind == evaluator.CapabilityDenied:
		rt.metrics.denials.WithLabelValues(string(rerr.Capability)).Inc()
		rt.log.Warningf("run %s: %s denied for %s", runID, rerr.Capability, rerr.Name)
		return OutcomeCapabilityDenied
	case rerr.IsBudget():
		rt.log.Warningf("run %s: %s", runID, rerr.Message)
		return OutcomeBudgetExceeded
	}
	return OutcomeRuntimeError
}

// Check parses and validates a Tern program without executing it.
func (rt *Runtime) Check(source, filename string) []diagnostics.Diagnostic {
	program, err := parser.ParseSource(source, filename)
	if err != nil {
		return diagnostics.FromError(err)
	}
	return validator.Validate(program, rt.profile)
}

// Format parses and formats a Tern program.
func (rt *Runtime) Format(source, filename string) (string, error) {
	program, err := parser.ParseSource(source, filename)
	if err != nil {
		return "", &DiagnosticError{Diagnostics: diagnostics.FromError(err)}
	}
	return formatter.Format(program), nil
}

// Source is one named program for RunAll.
type Source struct {
	Name string
	Text string
}

// Outcome is the result of one program in a batch.
type Outcome struct {
	Name   string
	Result *Result
	Err    error
}

// RunAll runs every source concurrently, each in its own root scope. One
// program failing does not affect the others. Outcomes are in input order.
func (rt *Runtime) RunAll(ctx context.Context, sources []Source) []Outcome {
	outcomes := make([]Outcome, len(sources))
	var g errgroup.Group
	if rt.parallelism > 0 {
		g.SetLimit(rt.parallelism)
	}
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			res, err := rt.Run(ctx, src.Text, src.Name)
			outcomes[i] = Outcome{Name: src.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// DiagnosticError wraps static diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		if d.Pos != nil {
			msgs[i] = fmt.Sprintf("%s %s: %s", d.Pos, d.Code, d.Message)
		} else {
			msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// Diagnostics flattens any error returned by the runtime into diagnostics.
func Diagnostics(err error) []diagnostics.Diagnostic {
	var derr *DiagnosticError
	if errors.As(err, &derr) {
		return derr.Diagnostics
	}
	return diagnostics.FromError(err)
}

// Exit codes used by the tern command.
const (
	ExitOK               = 0
	ExitUsage            = 1
	ExitInvalid          = 2
	ExitCapabilityDenied = 3
	ExitRuntimeError     = 4
	ExitBudgetExceeded   = 6
)

// ExitCode maps an error returned by Run onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var derr *DiagnosticError
	if errors.As(err, &derr) {
		return ExitInvalid
	}
	var rerr *evaluator.RuntimeError
	if errors.As(err, &rerr) {
		switch {
		case rerr.Kind == evaluator.CapabilityDenied:
			return ExitCapabilityDenied
		case rerr.IsBudget():
			return ExitBudgetExceeded
		}
		return ExitRuntimeError
	}
	return ExitUsage
}
