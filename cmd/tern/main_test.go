package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/runtime"
)

type result struct {
	code   int
	stdout string
	stderr string
}

// runCLI runs the tern app in-process with the given arguments.
func runCLI(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	app := newApp(strings.NewReader(stdin), &stdout, &stderr)
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"tern"}, args...))
	code := runtime.ExitOK
	if err != nil {
		code = runtime.ExitUsage
		if ec, ok := err.(cli.ExitCoder); ok {
			code = ec.ExitCode()
		}
	}
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// fixture writes name under a temp dir and returns its path.
func fixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// denyAll returns a profile path that grants nothing, so tests do not depend
// on profile files around the working directory.
func denyAll(t *testing.T, dir string) string {
	return fixture(t, dir, "deny.json", "{}")
}

func TestRunPrintsValue(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "sum.tern", "x := 1 + 2\nx * 2")

	r := runCLI(t, "", "run", "--profile", denyAll(t, dir), prog)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "6\n", r.stdout)
}

func TestRunFromStdin(t *testing.T) {
	dir := t.TempDir()
	r := runCLI(t, "('a': (1, 'two'))", "run", "--profile", denyAll(t, dir), "-")
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "('a': (1, 'two'))\n", r.stdout)
}

func TestRunJSON(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "map.tern", "('b': 1, 'a': (true, nil))")

	r := runCLI(t, "", "run", "--json", "--profile", denyAll(t, dir), prog)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.JSONEq(t, `{"b":1,"a":[true,null]}`, r.stdout)
}

func TestRunDeniedCapability(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "hello.tern", "print('hi')")

	r := runCLI(t, "", "run", "--json", "--profile", denyAll(t, dir), prog)
	assert.Equal(t, runtime.ExitCapabilityDenied, r.code)
	assert.Empty(t, r.stdout)
	assert.Contains(t, r.stderr, "E_CAP_DENIED")
}

func TestRunAllowFlag(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "hello.tern", "print('hi', 2)")

	r := runCLI(t, "", "run", "--profile", denyAll(t, dir), "--allow", "io", prog)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "hi 2\n", r.stdout)
}

func TestRunProfileFile(t *testing.T) {
	dir := t.TempDir()
	prof := fixture(t, dir, "p.toml", "max_stack_depth = 5\n\n[capabilities]\nio = true\n")
	prog := fixture(t, dir, "deep.tern", "print('start')\nf := |n| f(n + 1)\nf(0)")

	r := runCLI(t, "", "run", "--profile", prof, prog)
	assert.Equal(t, runtime.ExitBudgetExceeded, r.code)
	assert.Equal(t, "start\n", r.stdout)
	assert.Contains(t, r.stderr, "E_STACK_OVERFLOW")
}

func TestRunBudgetFlagOverridesProfile(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "deep.tern", "f := |n| if n == 0 then 0 else f(n - 1)\nf(20)")

	r := runCLI(t, "", "run", "--profile", denyAll(t, dir), prog)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)

	r = runCLI(t, "", "run", "--profile", denyAll(t, dir), "--max-depth", "5", prog)
	assert.Equal(t, runtime.ExitBudgetExceeded, r.code)
}

func TestRunBadProfile(t *testing.T) {
	dir := t.TempDir()
	prof := fixture(t, dir, "bad.yaml", "nonsense: 1\n")
	prog := fixture(t, dir, "x.tern", "1")

	r := runCLI(t, "", "run", "--json", "--profile", prof, prog)
	assert.Equal(t, runtime.ExitUsage, r.code)
	assert.Contains(t, r.stderr, "E_PROFILE")
}

func TestRunMissingFile(t *testing.T) {
	r := runCLI(t, "", "run", filepath.Join(t.TempDir(), "nope.tern"))
	assert.Equal(t, runtime.ExitUsage, r.code)
}

func TestRunSyntaxError(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "bad.tern", "x := (1, 2")

	r := runCLI(t, "", "run", "--json", "--profile", denyAll(t, dir), prog)
	assert.Equal(t, runtime.ExitInvalid, r.code)
	assert.Contains(t, r.stderr, "E_PARSE")
}

func TestRunSeveralFiles(t *testing.T) {
	dir := t.TempDir()
	a := fixture(t, dir, "a.tern", "'a'")
	b := fixture(t, dir, "b.tern", "undefinedName")
	c := fixture(t, dir, "c.tern", "'c'")

	r := runCLI(t, "", "run", "--json", "--profile", denyAll(t, dir), a, b, c)
	assert.Equal(t, runtime.ExitRuntimeError, r.code)
	assert.Equal(t, "\"a\"\n\"c\"\n", r.stdout)
	assert.Contains(t, r.stderr, "E_UNDEFINED")
}

func TestRunTraceAndSummary(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "t.tern", "print(1)\nfetch('http://example.com')")
	tracePath := filepath.Join(dir, "out.jsonl")

	r := runCLI(t, "", "run", "--profile", denyAll(t, dir), "--allow", "io", "--trace", tracePath, prog)
	assert.Equal(t, runtime.ExitCapabilityDenied, r.code)

	r = runCLI(t, "", "trace", tracePath)
	require.Equal(t, runtime.ExitOK, r.code, r.stderr)
	var summary TraceSummary
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &summary))
	assert.Len(t, summary.Runs, 1)
	assert.Equal(t, 1, summary.Effects)
	assert.Equal(t, map[string]int{"print": 1}, summary.EffectsByName)
	assert.Equal(t, map[string]int{"network": 1}, summary.Denials)
	assert.Equal(t, 1, summary.Failed)

	r = runCLI(t, "", "trace", "--text", tracePath)
	require.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Effects: 1")
	assert.Contains(t, r.stdout, "network: 1")
}

func TestComputeTraceSummarySkipsBadLines(t *testing.T) {
	in := `{"ts":"2024-01-01T00:00:00Z","runId":"r1","event":"run_start"}
not json

{"ts":"2024-01-01T00:00:00.5Z","runId":"r1","event":"run_end","data":{"ok":true,"nodes":12}}
`
	s, err := computeTraceSummary(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalEvents)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, []string{"r1"}, s.Runs)
	assert.Equal(t, int64(12), s.Nodes)
	assert.Equal(t, 0, s.Failed)
	assert.InDelta(t, 500.0, s.DurationMs, 0.001)
}

func TestRunWritesMetrics(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "m.tern", "1")
	metrics := filepath.Join(dir, "out.prom")

	r := runCLI(t, "", "run", "--profile", denyAll(t, dir), "--metrics", metrics, prog)
	require.Equal(t, runtime.ExitOK, r.code, r.stderr)
	data, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(data), `tern_runs_total{outcome="ok"} 1`)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	good := fixture(t, dir, "good.tern", "x := 1\nx")
	bad := fixture(t, dir, "bad.tern", "f := |a, a| a")

	r := runCLI(t, "", "check", "--profile", denyAll(t, dir), good)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "No errors found.\n", r.stdout)

	r = runCLI(t, "", "check", "--json", "--profile", denyAll(t, dir), bad)
	assert.Equal(t, runtime.ExitInvalid, r.code)
	assert.Contains(t, r.stderr, "E_DUP_PARAM")
}

func TestFmt(t *testing.T) {
	dir := t.TempDir()
	prog := fixture(t, dir, "f.tern", "x:=(1,2)\n# note\nx.map |v|v*2")

	r := runCLI(t, "", "fmt", prog)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "x := (1, 2)\nx.map(|v| v * 2)\n", r.stdout)
	assert.Contains(t, r.stderr, "comments are not preserved")

	r = runCLI(t, "", "fmt", "--write", prog)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	data, err := os.ReadFile(prog)
	require.NoError(t, err)
	assert.Equal(t, "x := (1, 2)\nx.map(|v| v * 2)\n", string(data))
}

func TestParseOutline(t *testing.T) {
	r := runCLI(t, "x := -1", "parse", "-")
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "1:1 Assign\n  1:1 Identifier x\n  1:6 Unary -\n    1:7 NumberLit 1\n", r.stdout)
}

func TestParseDump(t *testing.T) {
	r := runCLI(t, "'hi'", "parse", "--dump", "-")
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "StringLit")
	assert.Contains(t, r.stdout, `Value: (string) (len=2) "hi"`)
}

func TestReplPipedInput(t *testing.T) {
	dir := t.TempDir()
	r := runCLI(t, "x := 20\nx + 1", "repl", "--profile", denyAll(t, dir))
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Equal(t, "21\n", r.stdout)
}

func TestProfileTable(t *testing.T) {
	dir := t.TempDir()
	prof := fixture(t, dir, "p.yaml", "max_time_ms: 1500\nallow: [io]\n")

	r := runCLI(t, "", "profile", "--profile", prof)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Profile: "+prof)
	assert.Contains(t, r.stdout, "1,500 ms")
	assert.Contains(t, r.stdout, "unlimited")
	for _, name := range []string{"print", "input", "readFile", "writeFile", "listDir", "fileExists", "fetch", "defer"} {
		assert.Contains(t, r.stdout, name)
	}

	r = runCLI(t, "", "profile", "--json", "--profile", prof)
	assert.Equal(t, runtime.ExitOK, r.code, r.stderr)
	assert.JSONEq(t, `{"max_time_ms":1500,"capabilities":{"io":true,"network":false,"filesystem":false,"deferred_execution":false}}`, r.stdout)
}
