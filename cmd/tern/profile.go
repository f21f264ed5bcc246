package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"

	"github.com/thomasrohde/tern/pkg/evaluator"
	"github.com/thomasrohde/tern/pkg/profile"
)

func profileCommand() *cli.Command {
	return &cli.Command{
		Name:   "profile",
		Usage:  "Show the effective sandbox profile and the builtins it gates.",
		Flags:  append([]cli.Flag{jsonFlag}, sandboxFlags...),
		Action: cmdProfile,
	}
}

func cmdProfile(c *cli.Context) error {
	prof, source, err := resolveProfile(c)
	if err != nil {
		return profileError(c, err)
	}
	if c.Bool(jsonFlagName) {
		b, err := json.MarshalIndent(prof, "", "  ")
		if err != nil {
			return usageError(c, "cannot encode profile: %s", err)
		}
		fmt.Fprintln(c.App.Writer, string(b))
		return nil
	}
	if source == "" {
		source = "default (deny all)"
	}
	fmt.Fprintf(c.App.Writer, "Profile: %s\n\n", source)
	writeProfileTable(c.App.Writer, prof)
	return nil
}

func budgetString(v *int64, unit string) string {
	if v == nil {
		return "unlimited"
	}
	return humanize.Comma(*v) + unit
}

// writeProfileTable prints one row per budget and one per builtin.
func writeProfileTable(w io.Writer, prof *profile.Profile) {
	var depth, heap *int64
	if prof.MaxStackDepth != nil {
		depth = profile.Int64(int64(*prof.MaxStackDepth))
	}
	if prof.MaxHeapSize != nil {
		heap = profile.Int64(int64(*prof.MaxHeapSize))
	}

	budgets := tablewriter.NewWriter(w)
	budgets.SetHeader([]string{"Budget", "Limit"})
	budgets.SetAutoFormatHeaders(false)
	budgets.Append([]string{"max_stack_depth", budgetString(depth, "")})
	budgets.Append([]string{"max_heap_size", budgetString(heap, " values")})
	budgets.Append([]string{"max_time_ms", budgetString(prof.MaxTimeMs, " ms")})
	budgets.Render()
	fmt.Fprintln(w)

	builtins := tablewriter.NewWriter(w)
	builtins.SetHeader([]string{"Builtin", "Capability", "Allowed"})
	builtins.SetAutoFormatHeaders(false)
	for _, b := range evaluator.Builtins() {
		allowed := "no"
		if prof.Allows(b.Capability) {
			allowed = "yes"
		}
		builtins.Append([]string{b.Name, string(b.Capability), allowed})
	}
	builtins.Render()
}
