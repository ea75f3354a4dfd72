package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/perf"
	"github.com/steveyegge/trackersync/internal/permission"
	"github.com/steveyegge/trackersync/internal/ratelimit"
	"github.com/steveyegge/trackersync/internal/statussync"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/tracker/azuredevops"
	"github.com/steveyegge/trackersync/internal/tracker/github"
	"github.com/steveyegge/trackersync/internal/tracker/jira"
	"github.com/steveyegge/trackersync/internal/types"
	"github.com/steveyegge/trackersync/internal/ui"
)

// itemSpec is the on-disk form of a sync item.
type itemSpec struct {
	ID         string `yaml:"id"`
	ExternalID string `yaml:"externalId"`
	Status     string `yaml:"status"`
	UpdatedAt  string `yaml:"updatedAt"`
}

func (s itemSpec) item() (statussync.Item, error) {
	if s.ID == "" || s.ExternalID == "" {
		return statussync.Item{}, fmt.Errorf("item needs both id and externalId")
	}
	status, err := types.ParseLocalStatus(s.Status)
	if err != nil {
		return statussync.Item{}, fmt.Errorf("item %s: %w", s.ID, err)
	}
	item := statussync.Item{ID: s.ID, ExternalID: s.ExternalID, Status: status}
	if s.UpdatedAt != "" {
		t, err := time.Parse(time.RFC3339, s.UpdatedAt)
		if err != nil {
			return statussync.Item{}, fmt.Errorf("item %s: invalid updatedAt %q: %w", s.ID, s.UpdatedAt, err)
		}
		item.UpdatedAt = t
	}
	return item, nil
}

// parseItemArg parses ID=EXTERNAL:STATUS[@RFC3339].
func parseItemArg(arg string) (statussync.Item, error) {
	id, rest, ok := strings.Cut(arg, "=")
	if !ok {
		return statussync.Item{}, fmt.Errorf("invalid item %q (want ID=EXTERNAL:STATUS[@TIME])", arg)
	}
	rest, updated, _ := strings.Cut(rest, "@")
	i := strings.LastIndex(rest, ":")
	if i < 0 {
		return statussync.Item{}, fmt.Errorf("invalid item %q (want ID=EXTERNAL:STATUS[@TIME])", arg)
	}
	return itemSpec{ID: id, ExternalID: rest[:i], Status: rest[i+1:], UpdatedAt: updated}.item()
}

func readItemsFile(path string) ([]statussync.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read items: %w", err)
	}
	var specs []itemSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse items %s: %w", path, err)
	}
	items := make([]statussync.Item, 0, len(specs))
	for _, s := range specs {
		item, err := s.item()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// newPlatform builds the statussync adapter for tool.
func newPlatform(params tracker.DetectParams, mapper *tracker.StatusMapper) (statussync.Platform, error) {
	detector, err := tracker.NewDetector(params.Tool)
	if err != nil {
		return nil, err
	}
	if err := detector.ValidateParams(params); err != nil {
		return nil, err
	}
	switch params.Tool {
	case types.ToolGitHub:
		return github.NewPlatform(github.ClientFromParams(params), mapper.ManagedLabels(params.Tool)), nil
	case types.ToolJira:
		return jira.NewPlatform(jira.ClientFromParams(params)), nil
	case types.ToolADO:
		return azuredevops.NewPlatform(azuredevops.ClientFromParams(params)), nil
	}
	return nil, fmt.Errorf("unsupported tool %q", params.Tool)
}

type syncOptions struct {
	itemsFile string
	strategy  string
	batchSize int
	stats     bool
	flags     platformFlags
}

type syncReport struct {
	statussync.BulkResult `yaml:",inline"`

	Cache   *perf.CacheStats   `json:"cache,omitempty" yaml:"cache,omitempty"`
	Targets *perf.TargetReport `json:"targets,omitempty" yaml:"targets,omitempty"`
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync item statuses with a platform",
		Long: `Push local statuses to a platform or pull platform statuses back.

Items are given as ID=EXTERNAL:STATUS[@TIME] arguments or in a YAML/JSON file:

  - id: task-1
    externalId: "42"
    status: active
    updatedAt: 2026-01-02T15:04:05Z

Requires sync.statusSync.enabled and sync.settings.canUpdateStatus.`,
	}
	cmd.AddCommand(
		newSyncDirectionCmd(a, "push", "Push local statuses to the platform", statussync.ToExternal),
		newSyncDirectionCmd(a, "pull", "Report platform statuses to apply locally", statussync.FromExternal),
	)
	return cmd
}

func newSyncDirectionCmd(a *app, use, short string, dir statussync.Direction) *cobra.Command {
	var opts syncOptions
	cmd := &cobra.Command{
		Use:   use + " <tool> [item...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, mapper, err := a.toolMapper(args[0])
			if err != nil {
				return err
			}
			items, err := collectItems(args[1:], opts.itemsFile)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				return fmt.Errorf("no items to sync")
			}

			engine, err := a.newEngine(tool, mapper, opts)
			if err != nil {
				return err
			}
			batch := a.cfg.Performance.BatchOptions()
			if opts.batchSize > 0 {
				batch.Size = opts.batchSize
			}

			var bulk statussync.BulkResult
			if dir == statussync.ToExternal {
				bulk, err = engine.PushStatuses(cmd.Context(), items, batch)
			} else {
				bulk, err = engine.PullStatuses(cmd.Context(), items, batch)
			}
			if err != nil {
				return err
			}

			report := syncReport{BulkResult: bulk}
			if opts.stats {
				cache := engine.Optimizer().CacheStats()
				targets := engine.Optimizer().CheckTargets()
				report.Cache, report.Targets = &cache, &targets
			}
			if err := a.emit(report, func(w io.Writer) { writeSync(w, report) }); err != nil {
				return err
			}
			if bulk.Failed > 0 {
				return fmt.Errorf("%d of %d items failed", bulk.Failed, bulk.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&opts.itemsFile, "items", "f", "", "YAML or JSON file listing items")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Conflict resolution: timestamp, local or external (default from config)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Items synced concurrently per batch (default from config)")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "Report cache and performance target statistics")
	opts.flags.register(cmd)
	return cmd
}

func collectItems(args []string, file string) ([]statussync.Item, error) {
	var items []statussync.Item
	if file != "" {
		fromFile, err := readItemsFile(file)
		if err != nil {
			return nil, err
		}
		items = append(items, fromFile...)
	}
	for _, arg := range args {
		item, err := parseItemArg(arg)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func (a *app) newEngine(tool types.Tool, mapper *tracker.StatusMapper, opts syncOptions) (*statussync.Engine, error) {
	resolution := a.cfg.StatusSync.ConflictResolution
	if opts.strategy != "" {
		r, ok := config.ParseConflictResolution(opts.strategy)
		if !ok {
			return nil, fmt.Errorf("unknown conflict resolution %q (valid: timestamp, local, external)", opts.strategy)
		}
		resolution = r
	}
	platform, err := newPlatform(a.params(tool, opts.flags), mapper)
	if err != nil {
		return nil, err
	}
	return statussync.New(statussync.Options{
		Platform:    platform,
		Permissions: permission.New(a.cfg.Sync),
		Mapper:      mapper,
		Enabled:     a.cfg.StatusSync.Enabled,
		Limiter:     ratelimit.New(a.cfg.RateLimit, ratelimit.WithLogger(a.log)),
		Retry:       a.cfg.Retry,
		Optimizer: perf.New(
			perf.WithCacheTTL(a.cfg.Performance.CacheTTL),
			perf.WithBatchOptions(a.cfg.Performance.BatchOptions()),
			perf.WithLogger(a.log),
		),
		Resolution: resolution,
		Batch:      a.cfg.Performance.BatchOptions(),
		Logger:     a.log,
	})
}

func writeSync(w io.Writer, r syncReport) {
	for _, res := range r.Results {
		switch {
		case !res.Success():
			fmt.Fprintf(w, "%s %s %s\n", ui.RenderFailIcon(), res.ItemID, ui.RenderFail(res.Error))
		case res.Action == statussync.NoSyncNeeded:
			fmt.Fprintf(w, "%s %s %s\n", ui.RenderSkipIcon(), res.ItemID, ui.RenderMuted(string(res.Status)))
		case res.Action == statussync.SyncedToExternal:
			fmt.Fprintf(w, "%s %s -> %s\n", ui.RenderPassIcon(), res.ItemID, res.External.String())
		default:
			fmt.Fprintf(w, "%s %s <- %s\n", ui.RenderPassIcon(), res.ItemID, res.Status)
		}
	}
	fmt.Fprintf(w, "%d items: %d changed, %d unchanged, %d failed (%s)\n",
		r.Total, r.Changed, r.Succeeded-r.Changed, r.Failed, r.Duration.Round(time.Millisecond))
	if r.Cache != nil {
		fmt.Fprintf(w, "Cache: %d hits, %d misses (%.0f%%)\n", r.Cache.Hits, r.Cache.Misses, r.Cache.HitRate*100)
	}
	if r.Targets != nil {
		fmt.Fprint(w, r.Targets.String())
	}
}
