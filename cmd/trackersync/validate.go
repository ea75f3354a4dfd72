package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/types"
	"github.com/steveyegge/trackersync/internal/ui"
)

// errInvalidConfig is returned by validate when the report has errors.
var errInvalidConfig = errors.New("configuration is invalid")

type validateReport struct {
	Path     string       `json:"path" yaml:"path"`
	Exists   bool         `json:"exists" yaml:"exists"`
	Tools    []types.Tool `json:"tools" yaml:"tools"`
	Valid    bool         `json:"valid" yaml:"valid"`
	Errors   []string     `json:"errors,omitempty" yaml:"errors,omitempty"`
	Warnings []string     `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [tool...]",
		Short: "Check the config document and its status mappings",
		Long: `Check the config document and its status mappings.

Without arguments every supported platform must have a complete mapping
table. Name tools to check only the platforms this project syncs with.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tools := make([]types.Tool, 0, len(args))
			for _, arg := range args {
				tool, err := types.ParseTool(arg)
				if err != nil {
					return err
				}
				tools = append(tools, tool)
			}
			report := a.validate(tools)
			err := a.emit(report, func(w io.Writer) {
				fmt.Fprintf(w, "%s %s\n", ui.RenderCategory("Config"), ui.RenderMuted(report.Path))
				for _, e := range report.Errors {
					fmt.Fprintf(w, "%s %s\n", ui.RenderFailIcon(), e)
				}
				for _, wn := range report.Warnings {
					fmt.Fprintf(w, "%s %s\n", ui.RenderWarnIcon(), wn)
				}
				if report.Valid {
					fmt.Fprintln(w, ui.Check(true, fmt.Sprintf("mappings valid for %v", report.Tools)))
				}
			})
			if err != nil {
				return err
			}
			if !report.Valid {
				return errInvalidConfig
			}
			return nil
		},
	}
}

func (a *app) validate(tools []types.Tool) validateReport {
	r := validateReport{Path: a.cfg.Path, Exists: a.cfg.Exists}
	if !a.cfg.Exists {
		r.Errors = append(r.Errors, "config file not found")
	}
	if a.cfgErr != nil && a.cfg.Exists {
		r.Errors = append(r.Errors, a.cfgErr.Error())
	}
	r.Warnings = append(r.Warnings, a.cfg.Warnings...)

	mapper := a.cfg.Mapper()
	if len(mapper.Tools()) == 0 && !errors.Is(a.cfgErr, config.ErrInvalidMapping) {
		r.Warnings = append(r.Warnings, "no status mappings configured; run 'trackersync map --defaults' for a starting point")
	}
	if len(tools) == 0 {
		tools = types.AllTools()
	}
	r.Tools = tools
	r.Errors = append(r.Errors, mapper.ValidateTools(tools...).Errors...)
	if a.cfg.StatusSync.Enabled && !a.cfg.Sync.CanUpdateStatus {
		r.Warnings = append(r.Warnings, "statusSync is enabled but canUpdateStatus is false; every status sync will be denied")
	}
	r.Valid = len(r.Errors) == 0
	return r
}
