package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/ratelimit"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
	"github.com/steveyegge/trackersync/internal/ui"
)

type rateLimitEntry struct {
	Tool       types.Tool           `json:"tool" yaml:"tool"`
	Capability ratelimit.Capability `json:"capability" yaml:"capability"`
	Limit      int                  `json:"limit" yaml:"limit"`
	Window     string               `json:"window" yaml:"window"`
	Current    *ratelimit.Info      `json:"current,omitempty" yaml:"current,omitempty"`
	Error      string               `json:"error,omitempty" yaml:"error,omitempty"`
}

func newRateLimitCmd(a *app) *cobra.Command {
	var (
		live  bool
		flags platformFlags
	)
	cmd := &cobra.Command{
		Use:   "ratelimit [tool...]",
		Short: "Show platform rate limit quotas",
		Long: `Show each platform's nominal quota and whether it is reported live or estimated.

With --live, query the platform (as detect does) and report the quota seen in
the response headers.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools := types.AllTools()
			if len(args) > 0 {
				tools = nil
				for _, arg := range args {
					tool, err := types.ParseTool(arg)
					if err != nil {
						return err
					}
					tools = append(tools, tool)
				}
			}

			limiter := ratelimit.New(a.cfg.RateLimit, ratelimit.WithLogger(a.log))
			var entries []rateLimitEntry
			for _, tool := range tools {
				limits := ratelimit.ProviderLimits[tool]
				e := rateLimitEntry{
					Tool:       tool,
					Capability: limiter.Capability(tool),
					Limit:      limits.Limit,
					Window:     limits.Window.String(),
				}
				if live {
					params := a.params(tool, flags)
					params.OnResponse = func(tool types.Tool, h http.Header) { limiter.Observe(tool, h) }
					if _, err := tracker.DetectWorkflow(cmd.Context(), params); err != nil {
						e.Error = err.Error()
					}
					if info, ok := limiter.Get(tool); ok {
						e.Current = &info
					}
				}
				entries = append(entries, e)
			}

			return a.emit(entries, func(w io.Writer) {
				now := time.Now()
				for _, e := range entries {
					fmt.Fprintf(w, "%s %d requests / %s (%s)\n",
						ui.RenderAccent(fmt.Sprintf("%-13s", e.Tool.DisplayName())), e.Limit, e.Window, e.Capability)
					if e.Current != nil {
						line := ratelimit.FormatInfo(*e.Current, now)
						if limiter.ShouldWarn(e.Tool) {
							line = ui.RenderWarn(line)
						}
						fmt.Fprintf(w, "%s%s%s\n", ui.TreeIndent, ui.TreeLast, line)
					}
					if e.Error != "" {
						fmt.Fprintf(w, "%s%s%s\n", ui.TreeIndent, ui.TreeLast, ui.RenderFail(e.Error))
					}
				}
			})
		},
	}
	cmd.Flags().BoolVar(&live, "live", false, "Query the platform for its current quota")
	flags.register(cmd)
	return cmd
}
