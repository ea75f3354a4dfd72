package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/ratelimit"
	"github.com/steveyegge/trackersync/internal/types"
	"github.com/steveyegge/trackersync/internal/ui"
)

type estimateReport struct {
	Estimates  []ratelimit.Estimate  `json:"estimates" yaml:"estimates"`
	Validation *ratelimit.Validation `json:"validation,omitempty" yaml:"validation,omitempty"`
}

func newEstimateCmd(a *app) *cobra.Command {
	var (
		rng    string
		factor float64
		all    bool
	)
	cmd := &cobra.Command{
		Use:   "estimate <tool>",
		Short: "Estimate the API cost of syncing a range of history",
		Long: `Estimate items, API calls, duration and rate limit impact of an initial sync.

Ranges: 1W, 2W, 1M, 3M, 6M, 1Y, ALL. --factor scales the typical item count
for busier or quieter projects.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := types.ParseTool(args[0])
			if err != nil {
				return err
			}
			ranges := []ratelimit.TimeRange{ratelimit.TimeRange(strings.ToUpper(rng))}
			if all {
				ranges = ratelimit.TimeRanges()
			}

			var report estimateReport
			for _, r := range ranges {
				est, err := ratelimit.EstimateSync(tool, r, factor)
				if err != nil {
					return err
				}
				report.Estimates = append(report.Estimates, est)
			}
			if !all {
				v := ratelimit.ValidateSync(report.Estimates[0], nil)
				report.Validation = &v
			}

			if err := a.emit(report, func(w io.Writer) {
				fmt.Fprint(w, ui.RenderMarkdown(estimateMarkdown(tool, report)))
			}); err != nil {
				return err
			}
			if report.Validation != nil && !report.Validation.Safe {
				return fmt.Errorf("sync of %s on %s is not safe: %s", rng, tool.DisplayName(),
					strings.Join(report.Validation.Blockers, "; "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&rng, "range", "r", string(ratelimit.Range1M), "Time range to estimate")
	cmd.Flags().Float64Var(&factor, "factor", 1, "Scale the typical item count")
	cmd.Flags().BoolVar(&all, "all-ranges", false, "Estimate every time range")
	return cmd
}

func estimateMarkdown(tool types.Tool, r estimateReport) string {
	limits := ratelimit.ProviderLimits[tool]
	var b strings.Builder
	fmt.Fprintf(&b, "# %s sync estimate\n\n", tool.DisplayName())
	fmt.Fprintf(&b, "Quota: %d requests per %s (%s)\n\n", limits.Limit, limits.Window, ratelimit.CapabilityOf(tool))
	b.WriteString("| Range | Items | API calls | Minutes | Impact |\n")
	b.WriteString("|-------|------:|----------:|--------:|--------|\n")
	for _, e := range r.Estimates {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %s |\n", e.Range, e.Items, e.APICalls, e.DurationMinutes, e.Impact)
	}
	if v := r.Validation; v != nil {
		b.WriteString("\n")
		for _, blocker := range v.Blockers {
			fmt.Fprintf(&b, "- **Blocker:** %s\n", blocker)
		}
		for _, w := range v.Warnings {
			fmt.Fprintf(&b, "- Warning: %s\n", w)
		}
		if v.Safe && len(v.Warnings) == 0 {
			b.WriteString("Safe to sync.\n")
		}
	}
	return b.String()
}
