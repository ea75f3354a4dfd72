// Command trackersync inspects and runs status synchronization between local
// work items and GitHub, JIRA or Azure DevOps.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/telemetry"
	"github.com/steveyegge/trackersync/internal/ui"

	// Workflow detectors register themselves with the tracker registry.
	_ "github.com/steveyegge/trackersync/internal/tracker/azuredevops"
	_ "github.com/steveyegge/trackersync/internal/tracker/github"
	_ "github.com/steveyegge/trackersync/internal/tracker/jira"
)

// Version is set at build time.
var Version = "dev"

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// app holds the state shared by every command of one invocation.
type app struct {
	root     string
	format   string
	json     bool
	verbose  bool
	quiet    bool
	noColor  bool
	cfg      *config.File
	cfgErr   error
	log      *slog.Logger
	out, err io.Writer
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{out: out, err: errOut}

	rootCmd := &cobra.Command{
		Use:           "trackersync",
		Short:         "trackersync - status sync with external issue trackers",
		Long:          `Synchronize work item statuses with GitHub, JIRA and Azure DevOps, gated by the sync permissions in .trackersync/config.json.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.PersistentFlags().StringVar(&a.root, "root", "", "Project root (default: nearest directory containing .trackersync/)")
	rootCmd.PersistentFlags().StringVar(&a.format, "format", formatText, "Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolVar(&a.json, "json", false, "Output in JSON format (same as --format json)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable verbose/debug output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "Suppress non-essential output (errors only)")
	rootCmd.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(
		newPermissionsCmd(a),
		newValidateCmd(a),
		newMapCmd(a),
		newDetectCmd(a),
		newEstimateCmd(a),
		newRateLimitCmd(a),
		newSyncCmd(a),
	)
	return rootCmd
}

// setup resolves the project root, loads the config document and builds the logger.
func (a *app) setup() error {
	if a.json {
		a.format = formatJSON
	}
	switch a.format {
	case formatText, formatJSON, formatYAML:
	default:
		return fmt.Errorf("unknown format %q (valid: text, json, yaml)", a.format)
	}
	if a.noColor {
		ui.SetColor(false)
	}
	ui.Init()

	if a.root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		a.root = findProjectRoot(cwd)
	}

	a.cfg, a.cfgErr = config.Load(a.root)

	level := a.cfg.SlogLevel()
	switch {
	case a.verbose:
		level = slog.LevelDebug
	case a.quiet:
		level = slog.LevelError
	}
	a.log = slog.New(slog.NewTextHandler(a.err, &slog.HandlerOptions{Level: level}))

	switch {
	case errors.Is(a.cfgErr, config.ErrMalformed):
		a.log.Warn("config unreadable, all sync permissions denied", "error", a.cfgErr)
	case a.cfgErr != nil && !errors.Is(a.cfgErr, config.ErrInvalidMapping):
		a.log.Warn("config not loaded", "error", a.cfgErr)
	}
	if a.cfg.LegacyDirection != "" {
		a.log.Debug("migrated legacy syncDirection", "direction", a.cfg.LegacyDirection)
	}
	for _, w := range a.cfg.Warnings {
		a.log.Warn(w)
	}
	return nil
}

// findProjectRoot walks up from dir looking for a .trackersync directory and
// falls back to dir itself.
func findProjectRoot(dir string) string {
	for d := dir; ; {
		if info, err := os.Stat(filepath.Join(d, config.DirName)); err == nil && info.IsDir() {
			return d
		}
		parent := filepath.Dir(d)
		if parent == d {
			return dir
		}
		d = parent
	}
}

// mappingErr reports a config problem that makes the status mappings unusable.
func (a *app) mappingErr() error {
	if errors.Is(a.cfgErr, config.ErrInvalidMapping) || errors.Is(a.cfgErr, config.ErrMalformed) {
		return a.cfgErr
	}
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := telemetry.Init(ctx, telemetry.SettingsFromEnv("trackersync", Version)); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry disabled: %v\n", err)
	}

	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if serr := telemetry.Shutdown(shutdownCtx); serr != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry flush: %v\n", serr)
	}
	shutdownCancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
