package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/evaluator"
)

func traceCommand() *cli.Command {
	return &cli.Command{
		Name:      "trace",
		Usage:     "Summarise a trace file written by 'tern run --trace'.",
		ArgsUsage: "<file.jsonl|->",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  textFlagName,
				Usage: "Print a human-readable summary instead of JSON.",
			},
		},
		Action: cmdTrace,
	}
}

// TraceSummary aggregates the events of one or more runs.
type TraceSummary struct {
	Runs           []string       `json:"runs"`
	TotalEvents    int            `json:"totalEvents"`
	Effects        int            `json:"effects"`
	EffectsByName  map[string]int `json:"effectsByName"`
	Denials        map[string]int `json:"denials"`
	BudgetExceeded int            `json:"budgetExceeded"`
	Deferred       int            `json:"deferred"`
	Failed         int            `json:"failed"`
	Nodes          int64          `json:"nodes"`
	DurationMs     float64        `json:"durationMs"`
	Skipped        int            `json:"skipped,omitempty"`
}

func computeTraceSummary(r io.Reader) (*TraceSummary, error) {
	summary := &TraceSummary{
		Runs:          []string{},
		EffectsByName: map[string]int{},
		Denials:       map[string]int{},
	}
	starts := map[string]time.Time{}
	seen := map[string]bool{}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event evaluator.TraceEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			summary.Skipped++
			continue
		}

		summary.TotalEvents++
		if !seen[event.RunID] {
			seen[event.RunID] = true
			summary.Runs = append(summary.Runs, event.RunID)
		}

		switch event.Event {
		case evaluator.TraceRunStart:
			if ts, err := time.Parse(time.RFC3339Nano, event.Timestamp); err == nil {
				starts[event.RunID] = ts
			}
		case evaluator.TraceRunEnd:
			if ts, err := time.Parse(time.RFC3339Nano, event.Timestamp); err == nil {
				if start, ok := starts[event.RunID]; ok {
					summary.DurationMs += float64(ts.Sub(start).Microseconds()) / 1000
				}
			}
			if ok, _ := event.Data["ok"].(bool); !ok {
				summary.Failed++
			}
			if n, ok := event.Data["nodes"].(float64); ok {
				summary.Nodes += int64(n)
			}
		case evaluator.TraceEffect:
			summary.Effects++
			if name, ok := event.Data["name"].(string); ok {
				summary.EffectsByName[name]++
			}
		case evaluator.TraceCapabilityDenied:
			if capability, ok := event.Data["capability"].(string); ok {
				summary.Denials[capability]++
			}
		case evaluator.TraceBudgetExceeded:
			summary.BudgetExceeded++
		case evaluator.TraceDeferredRun:
			summary.Deferred++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printTraceSummaryText(w io.Writer, s *TraceSummary) {
	fmt.Fprintf(w, "Runs: %s\n", strings.Join(s.Runs, ", "))
	fmt.Fprintf(w, "Events: %s\n", humanize.Comma(int64(s.TotalEvents)))
	fmt.Fprintf(w, "Nodes evaluated: %s\n", humanize.Comma(s.Nodes))
	fmt.Fprintf(w, "Effects: %d\n", s.Effects)
	for _, name := range sortedKeys(s.EffectsByName) {
		fmt.Fprintf(w, "  %s: %d\n", name, s.EffectsByName[name])
	}
	if len(s.Denials) > 0 {
		fmt.Fprintln(w, "Denied:")
		for _, capability := range sortedKeys(s.Denials) {
			fmt.Fprintf(w, "  %s: %d\n", capability, s.Denials[capability])
		}
	}
	fmt.Fprintf(w, "Deferred calls: %d\n", s.Deferred)
	fmt.Fprintf(w, "Budget breaches: %d\n", s.BudgetExceeded)
	fmt.Fprintf(w, "Failed runs: %d\n", s.Failed)
	if s.DurationMs > 0 {
		fmt.Fprintf(w, "Duration: %.3fms\n", s.DurationMs)
	}
}

func cmdTrace(c *cli.Context) error {
	if c.NArg() != 1 {
		return usageError(c, "usage: tern trace <file.jsonl|-> [--text]")
	}
	var r io.Reader = c.App.Reader
	if file := c.Args().First(); file != "-" {
		f, err := os.Open(file)
		if err != nil {
			return usageError(c, "cannot read file: %s", file)
		}
		defer f.Close()
		r = f
	}

	summary, err := computeTraceSummary(r)
	if err != nil {
		return usageError(c, "cannot read trace: %s", err)
	}
	if c.Bool(textFlagName) {
		printTraceSummaryText(c.App.Writer, summary)
		return nil
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return usageError(c, "cannot encode summary: %s", err)
	}
	fmt.Fprintln(c.App.Writer, string(b))
	return nil
}
