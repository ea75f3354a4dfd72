package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

func newMapCmd(a *app) *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "map [tool]",
		Short: "Print status mappings",
		Long: `Print the configured status mappings as YAML (or JSON with --json).

With --defaults, print the built-in starting tables instead; copy them into
sync.statusSync.mappings to enable status sync.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mappings := tracker.DefaultMappings()
			if !defaults {
				if err := a.mappingErr(); err != nil {
					return err
				}
				mappings = a.cfg.StatusSync.Mappings
			}
			if len(args) == 1 {
				tool, err := types.ParseTool(args[0])
				if err != nil {
					return err
				}
				table, ok := mappings[tool]
				if !ok {
					return fmt.Errorf("%w %s", tracker.ErrNoToolMappings, tool)
				}
				mappings = map[types.Tool]tracker.ToolMappings{tool: table}
			}
			if len(mappings) == 0 {
				return fmt.Errorf("no status mappings configured in %s (see 'trackersync map --defaults')", a.cfg.Path)
			}
			if a.format == formatJSON {
				return a.emit(mappings, nil)
			}
			data, err := config.MarshalMappingsYAML(mappings)
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&defaults, "defaults", false, "Print the built-in default mappings")

	toCmd := &cobra.Command{
		Use:   "to <tool> <status>",
		Short: "Map a local status to the platform status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, mapper, err := a.toolMapper(args[0])
			if err != nil {
				return err
			}
			status, err := types.ParseLocalStatus(args[1])
			if err != nil {
				return err
			}
			ext, err := mapper.MapToExternal(status, tool)
			if err != nil {
				return err
			}
			return a.emit(ext, func(w io.Writer) { fmt.Fprintln(w, ext.String()) })
		},
	}

	var labels []string
	fromCmd := &cobra.Command{
		Use:   "from <tool> <state>",
		Short: "Map a platform state (and labels) back to a local status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tool, mapper, err := a.toolMapper(args[0])
			if err != nil {
				return err
			}
			status, ok := mapper.MapFromExternalWithLabels(args[1], labels, tool)
			if !ok {
				return fmt.Errorf("%s state %q has no mapping", tool.DisplayName(), args[1])
			}
			return a.emit(map[string]types.LocalStatus{"status": status}, func(w io.Writer) { fmt.Fprintln(w, status) })
		},
	}
	fromCmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "Labels present on the platform item (repeatable)")

	cmd.AddCommand(toCmd, fromCmd)
	return cmd
}

// toolMapper parses name and returns the configured mapper, failing when the
// tool has no mapping table.
func (a *app) toolMapper(name string) (types.Tool, *tracker.StatusMapper, error) {
	tool, err := types.ParseTool(name)
	if err != nil {
		return "", nil, err
	}
	if err := a.mappingErr(); err != nil {
		return "", nil, err
	}
	mapper := a.cfg.Mapper()
	if !mapper.HasTool(tool) {
		return "", nil, fmt.Errorf("%w %s", tracker.ErrNoToolMappings, tool)
	}
	return tool, mapper, nil
}
