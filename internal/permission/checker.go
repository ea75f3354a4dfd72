// Package permission gates sync operations on the project's three permission flags.
//
// Every flag defaults to false. A missing or unreadable config never grants access.
package permission

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/ui"
)

// Operation is a class of sync work guarded by one permission flag.
type Operation string

// Operations.
const (
	OpUpsertInternal Operation = "upsert-internal"
	OpUpdateExternal Operation = "update-external"
	OpUpdateStatus   Operation = "update-status"
)

// ErrPermissionDenied matches every *PermissionError.
var ErrPermissionDenied = errors.New("permission denied")

// PermissionError reports an operation blocked by a false flag.
type PermissionError struct {
	Operation Operation
	Flag      string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("Permission denied: %s is not allowed (%s=false); set %s.%s to true in %s/%s",
		e.Operation, e.Flag, config.KeySyncSettings, e.Flag, config.DirName, config.FileName)
}

// Is makes errors.Is(err, ErrPermissionDenied) succeed.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Checker answers permission questions. It is immutable and safe for concurrent use.
type Checker struct {
	settings config.SyncSettings
}

// New creates a checker over explicit settings.
func New(settings config.SyncSettings) *Checker {
	return &Checker{settings: settings}
}

// Load reads permissions from <projectRoot>/.trackersync/config.json. It never
// fails: any problem reading the file yields a checker that denies everything.
// Status mapping errors in the same file do not affect permissions.
func Load(projectRoot string, log *slog.Logger) *Checker {
	if log == nil {
		log = slog.Default()
	}
	f, err := config.Load(projectRoot)
	if err != nil && !errors.Is(err, config.ErrInvalidMapping) {
		log.Warn("could not read sync permissions, denying all", "path", config.Path(projectRoot), "error", err)
		return New(config.DefaultSyncSettings())
	}
	if f.LegacyDirection != "" {
		log.Debug("migrated legacy syncDirection", "direction", f.LegacyDirection, "settings", f.Sync)
	}
	for _, w := range f.Warnings {
		log.Warn(w)
	}
	return New(f.Sync)
}

// CanUpsertInternalItems reports whether locally-owned items may be created or updated on the platform.
func (c *Checker) CanUpsertInternalItems() bool { return c.settings.CanUpsertInternalItems }

// CanUpdateExternalItems reports whether platform-owned items may receive full-content updates.
func (c *Checker) CanUpdateExternalItems() bool { return c.settings.CanUpdateExternalItems }

// CanUpdateStatus reports whether status may be synced in either direction.
func (c *Checker) CanUpdateStatus() bool { return c.settings.CanUpdateStatus }

// Settings returns a copy of the loaded settings.
func (c *Checker) Settings() config.SyncSettings { return c.settings }

// Allowed reports whether op is permitted. Unknown operations are denied.
func (c *Checker) Allowed(op Operation) bool {
	return c.RequirePermission(op) == nil
}

// RequirePermission returns nil when op is allowed, a *PermissionError when its
// flag is false, and a plain error for an unrecognised operation.
func (c *Checker) RequirePermission(op Operation) error {
	var allowed bool
	var flag string
	switch op {
	case OpUpsertInternal:
		allowed, flag = c.settings.CanUpsertInternalItems, config.KeyCanUpsertInternalItems
	case OpUpdateExternal:
		allowed, flag = c.settings.CanUpdateExternalItems, config.KeyCanUpdateExternalItems
	case OpUpdateStatus:
		allowed, flag = c.settings.CanUpdateStatus, config.KeyCanUpdateStatus
	default:
		return fmt.Errorf("unknown operation %q (valid: %s, %s, %s)", op, OpUpsertInternal, OpUpdateExternal, OpUpdateStatus)
	}
	if !allowed {
		return &PermissionError{Operation: op, Flag: flag}
	}
	return nil
}

// Summary renders one line per permission.
func (c *Checker) Summary() string {
	lines := []string{
		line(c.settings.CanUpsertInternalItems,
			"Can CREATE and UPDATE internal items",
			"Cannot create internal items (local-only)"),
		line(c.settings.CanUpdateExternalItems,
			"Can UPDATE external items (full content)",
			"Cannot update external items (read-only)"),
		line(c.settings.CanUpdateStatus,
			"Can UPDATE status (both internal & external)",
			"Cannot update status (manual only)"),
	}
	return strings.Join(lines, "\n")
}

func line(ok bool, yes, no string) string {
	msg := no
	if ok {
		msg = yes
	}
	if !ui.ShouldUseEmoji() {
		return ui.Check(ok, msg)
	}
	if ok {
		return "✅ " + msg
	}
	return "❌ " + msg
}
