package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/permission"
	"github.com/steveyegge/trackersync/internal/ui"
)

type permissionsReport struct {
	Path            string              `json:"path" yaml:"path"`
	Exists          bool                `json:"exists" yaml:"exists"`
	Settings        config.SyncSettings `json:"settings" yaml:"settings"`
	LegacyDirection string              `json:"legacyDirection,omitempty" yaml:"legacyDirection,omitempty"`
}

func newPermissionsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Show the sync permissions granted by the config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			checker := permission.New(a.cfg.Sync)
			report := permissionsReport{
				Path:            a.cfg.Path,
				Exists:          a.cfg.Exists,
				Settings:        checker.Settings(),
				LegacyDirection: a.cfg.LegacyDirection,
			}
			return a.emit(report, func(w io.Writer) {
				fmt.Fprintln(w, ui.RenderCategory("Sync permissions"))
				fmt.Fprintln(w, checker.Summary())
				if !a.cfg.Exists {
					fmt.Fprintln(w, ui.RenderMuted(ui.TreeLast+"no config at "+a.cfg.Path+", everything is denied"))
				} else if a.cfg.LegacyDirection != "" {
					fmt.Fprintln(w, ui.RenderMuted(ui.TreeLast+"migrated from syncDirection="+a.cfg.LegacyDirection))
				}
			})
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check <operation>",
		Short: "Exit non-zero unless the operation is permitted",
		Long: `Check a single operation against the sync permissions.

Operations: upsert-internal, update-external, update-status`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op := permission.Operation(args[0])
			if err := permission.New(a.cfg.Sync).RequirePermission(op); err != nil {
				return err
			}
			a.printf("%s %s is allowed\n", ui.RenderPassIcon(), op)
			return nil
		},
	}
	cmd.AddCommand(checkCmd)
	return cmd
}
