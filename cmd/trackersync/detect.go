package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/ratelimit"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
	"github.com/steveyegge/trackersync/internal/ui"
)

// platformFlags are the per-invocation overrides of the platform settings in config.
type platformFlags struct {
	baseURL      string
	issue        string
	workItemType string
}

func (f *platformFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.baseURL, "base-url", "", "Override the platform API URL (GitHub Enterprise, JIRA site, ADO server)")
	cmd.Flags().StringVar(&f.issue, "issue", "", "JIRA issue key whose transitions are sampled")
	cmd.Flags().StringVar(&f.workItemType, "work-item-type", "", "Azure DevOps work item type (default \"User Story\")")
}

// params builds the platform parameters from config, environment and flags.
func (a *app) params(tool types.Tool, f platformFlags) tracker.DetectParams {
	params := tracker.ParamsFromConfig(tool, a.cfg)
	if f.baseURL != "" {
		params.BaseURL = f.baseURL
	}
	if f.issue != "" && params.Jira != nil {
		params.Jira.IssueKey = f.issue
	}
	if f.workItemType != "" && params.ADO != nil {
		params.ADO.WorkItemType = f.workItemType
	}
	return params
}

type detectReport struct {
	Workflow  *tracker.WorkflowInfo `json:"workflow" yaml:"workflow"`
	Check     *tracker.MappingCheck `json:"mappingCheck,omitempty" yaml:"mappingCheck,omitempty"`
	RateLimit *ratelimit.Info       `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
}

func newDetectCmd(a *app) *cobra.Command {
	var flags platformFlags
	cmd := &cobra.Command{
		Use:   "detect <tool>",
		Short: "Discover the statuses a platform project accepts and check the mappings",
		Long: `Query the platform for its workflow and cross-check the configured status mapping.

Credentials are read from the config document (e.g. github.token) or the
environment (GITHUB_TOKEN, JIRA_API_TOKEN, ADO_PAT).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, err := types.ParseTool(args[0])
			if err != nil {
				return err
			}
			limiter := ratelimit.New(a.cfg.RateLimit, ratelimit.WithLogger(a.log))
			params := a.params(tool, flags)
			params.OnResponse = func(tool types.Tool, h http.Header) { limiter.Observe(tool, h) }

			info, err := tracker.DetectWorkflow(cmd.Context(), params)
			if err != nil {
				return err
			}
			report := detectReport{Workflow: info}
			if rl, ok := limiter.Get(tool); ok {
				report.RateLimit = &rl
			}
			if a.mappingErr() == nil {
				if mapper := a.cfg.Mapper(); mapper.HasTool(tool) {
					check := tracker.CheckMapping(info, mapper)
					report.Check = &check
				}
			}

			if err := a.emit(report, func(w io.Writer) { writeDetect(w, report) }); err != nil {
				return err
			}
			if report.Check != nil && !report.Check.Valid {
				return fmt.Errorf("%s mapping does not match the platform workflow", tool.DisplayName())
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func writeDetect(w io.Writer, r detectReport) {
	info := r.Workflow
	fmt.Fprintf(w, "%s\n", ui.RenderCategory(info.Tool.DisplayName()+" workflow"))
	fmt.Fprintf(w, "Statuses: %s\n", strings.Join(info.Statuses, ", "))
	from := make([]string, 0, len(info.CanTransitionTo))
	for s := range info.CanTransitionTo {
		from = append(from, s)
	}
	sort.Strings(from)
	for _, s := range from {
		fmt.Fprintf(w, "%s%s -> %s\n", ui.TreeIndent, s, strings.Join(info.CanTransitionTo[s], ", "))
	}
	if labels := info.Labels(); len(labels) > 0 {
		fmt.Fprintf(w, "Labels: %s\n", strings.Join(labels, ", "))
	}
	if r.RateLimit != nil {
		fmt.Fprintf(w, "Rate limit: %s\n", ratelimit.FormatInfo(*r.RateLimit, time.Now()))
	}
	if r.Check == nil {
		fmt.Fprintln(w, ui.RenderMuted("no mapping configured for "+string(info.Tool)))
		return
	}
	for _, e := range r.Check.Errors {
		fmt.Fprintf(w, "%s %s\n", ui.RenderFailIcon(), e)
	}
	for _, wn := range r.Check.Warnings {
		fmt.Fprintf(w, "%s %s\n", ui.RenderWarnIcon(), wn)
	}
	if r.Check.Valid {
		fmt.Fprintln(w, ui.Check(true, "mapping matches the platform workflow"))
	}
}
