// Package config loads the project's trackersync configuration document.
//
// The document lives at <projectRoot>/.trackersync/config.json and holds the
// sync permission flags, status mappings and tuning knobs. Tunables may be
// overridden from TRACKERSYNC_* environment variables; permissions never are.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/steveyegge/trackersync/internal/perf"
	"github.com/steveyegge/trackersync/internal/ratelimit"
	"github.com/steveyegge/trackersync/internal/retry"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// Location of the config document relative to the project root.
const (
	DirName   = ".trackersync"
	FileName  = "config.json"
	EnvPrefix = "TRACKERSYNC"
)

var (
	// ErrMalformed means the config file exists but could not be parsed.
	ErrMalformed = errors.New("malformed config")
	// ErrInvalidMapping means sync.statusSync.mappings contains an unusable entry.
	ErrInvalidMapping = errors.New("invalid status mapping")
)

// Config keys.
const (
	KeySyncSettings       = "sync.settings"
	KeyStatusSyncEnabled  = "sync.statusSync.enabled"
	KeyConflictResolution = "sync.statusSync.conflictResolution"
	KeyStatusMappings     = "sync.statusSync.mappings"

	KeyRetryMaxRetries        = "retry.maxRetries"
	KeyRetryInitialDelay      = "retry.initialDelay"
	KeyRetryMaxDelay          = "retry.maxDelay"
	KeyRetryBackoffMultiplier = "retry.backoffMultiplier"

	KeyRateLimitWarningThreshold = "rateLimit.warningThreshold"
	KeyRateLimitPauseThreshold   = "rateLimit.pauseThreshold"
	KeyRateLimitPauseDuration    = "rateLimit.pauseDuration"

	KeyPerfCacheTTL   = "performance.cacheTTL"
	KeyPerfBatchSize  = "performance.batchSize"
	KeyPerfBatchDelay = "performance.batchDelay"

	KeyLogLevel = "log.level"
)

// tunableKeys may be overridden from the environment, e.g. retry.maxRetries
// from TRACKERSYNC_RETRY_MAXRETRIES.
var tunableKeys = []string{
	KeyRetryMaxRetries, KeyRetryInitialDelay, KeyRetryMaxDelay, KeyRetryBackoffMultiplier,
	KeyRateLimitWarningThreshold, KeyRateLimitPauseThreshold, KeyRateLimitPauseDuration,
	KeyPerfCacheTTL, KeyPerfBatchSize, KeyPerfBatchDelay,
	KeyLogLevel,
}

// StatusSync is the sync.statusSync section.
type StatusSync struct {
	Enabled            bool
	ConflictResolution ConflictResolution
	// Mappings holds only the tools the document configures.
	Mappings map[types.Tool]tracker.ToolMappings
}

// Performance is the performance section.
type Performance struct {
	CacheTTL   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

// BatchOptions converts the section to perf.BatchOptions.
func (p Performance) BatchOptions() perf.BatchOptions {
	return perf.BatchOptions{Size: p.BatchSize, Delay: p.BatchDelay}
}

// File is a loaded config document. Everything that could be read is
// populated even when Load returns an error.
type File struct {
	Path   string
	Exists bool

	Sync SyncSettings
	// LegacyDirection is the syncDirection value the flags were migrated from, if any.
	LegacyDirection string

	StatusSync  StatusSync
	Retry       retry.Config
	RateLimit   ratelimit.Config
	Performance Performance
	LogLevel    string

	// Warnings lists invalid values that were replaced by defaults.
	Warnings []string

	v *viper.Viper
}

// Path returns the config file location for projectRoot.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, DirName, FileName)
}

// Load reads the config document under projectRoot. A missing file is not an
// error: the result denies every permission and uses default tunables. A
// malformed file returns ErrMalformed alongside that same fail-closed result.
func Load(projectRoot string) (*File, error) {
	path := Path(projectRoot)
	v := newViper(path)
	f := &File{Path: path, v: v}

	if _, err := os.Stat(path); err == nil {
		f.Exists = true
		if err := v.ReadInConfig(); err != nil {
			// Drop anything half-read so the result is purely defaults.
			v = newViper(path)
			f.v = v
			f.readTunables()
			return f, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
	} else if !os.IsNotExist(err) {
		f.readTunables()
		return f, fmt.Errorf("stat config %s: %w", path, err)
	}

	f.readSyncSettings()
	f.readTunables()

	f.StatusSync.Enabled = v.GetBool(KeyStatusSyncEnabled)
	f.StatusSync.ConflictResolution = f.readConflictResolution()
	mappings, err := ParseMappings(v.Get(KeyStatusMappings))
	f.StatusSync.Mappings = mappings
	if err != nil {
		return f, err
	}
	return f, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetDefault(KeyStatusSyncEnabled, false)
	v.SetDefault(KeyConflictResolution, string(ConflictResolutionTimestamp))
	v.SetDefault(KeyRetryMaxRetries, retry.DefaultMaxRetries)
	v.SetDefault(KeyRetryInitialDelay, retry.DefaultInitialDelay.String())
	v.SetDefault(KeyRetryMaxDelay, retry.DefaultMaxDelay.String())
	v.SetDefault(KeyRetryBackoffMultiplier, retry.DefaultBackoffMultiplier)
	v.SetDefault(KeyRateLimitWarningThreshold, ratelimit.DefaultWarningThreshold)
	v.SetDefault(KeyRateLimitPauseThreshold, ratelimit.DefaultPauseThreshold)
	v.SetDefault(KeyRateLimitPauseDuration, ratelimit.DefaultPauseDuration.String())
	v.SetDefault(KeyPerfCacheTTL, perf.DefaultCacheTTL.String())
	v.SetDefault(KeyPerfBatchSize, perf.DefaultBatchSize)
	v.SetDefault(KeyPerfBatchDelay, perf.DefaultBatchDelay.String())
	v.SetDefault(KeyLogLevel, "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range tunableKeys {
		_ = v.BindEnv(key)
	}
	return v
}

// readSyncSettings applies the fail-closed permission rules. A legacy
// syncDirection, when present, is migrated and takes precedence over flags.
func (f *File) readSyncSettings() {
	f.Sync = DefaultSyncSettings()
	if f.v.IsSet(KeySyncSettings + "." + KeySyncDirection) {
		raw := f.v.Get(KeySyncSettings + "." + KeySyncDirection)
		dir, ok := raw.(string)
		if !ok {
			f.warn("%s.%s must be a string (got %T), denying all", KeySyncSettings, KeySyncDirection, raw)
			return
		}
		f.LegacyDirection = dir
		f.Sync = MigrateSyncDirection(dir)
		return
	}
	f.Sync.CanUpsertInternalItems = f.flag(KeyCanUpsertInternalItems)
	f.Sync.CanUpdateExternalItems = f.flag(KeyCanUpdateExternalItems)
	f.Sync.CanUpdateStatus = f.flag(KeyCanUpdateStatus)
}

// flag reads one permission flag. Only a JSON true grants the permission.
func (f *File) flag(name string) bool {
	key := KeySyncSettings + "." + name
	raw := f.v.Get(key)
	if raw == nil {
		return false
	}
	b, ok := raw.(bool)
	if !ok {
		f.warn("%s must be a boolean (got %T), treating as false", key, raw)
		return false
	}
	return b
}

func (f *File) readConflictResolution() ConflictResolution {
	value := f.v.GetString(KeyConflictResolution)
	cr, ok := ParseConflictResolution(value)
	if !ok {
		f.warn("invalid %s %q (valid: timestamp, local, external), using default 'timestamp'", KeyConflictResolution, value)
	}
	return cr
}

func (f *File) readTunables() {
	def := retry.DefaultConfig()
	f.Retry = retry.Config{
		MaxRetries:        f.intValue(KeyRetryMaxRetries, def.MaxRetries, 0),
		InitialDelay:      f.durationValue(KeyRetryInitialDelay, def.InitialDelay),
		MaxDelay:          f.durationValue(KeyRetryMaxDelay, def.MaxDelay),
		BackoffMultiplier: f.floatValue(KeyRetryBackoffMultiplier, def.BackoffMultiplier, 1),
	}

	rl := ratelimit.DefaultConfig()
	f.RateLimit = ratelimit.Config{
		WarningThreshold: f.intValue(KeyRateLimitWarningThreshold, rl.WarningThreshold, 1),
		PauseThreshold:   f.intValue(KeyRateLimitPauseThreshold, rl.PauseThreshold, 1),
		PauseDuration:    f.durationValue(KeyRateLimitPauseDuration, rl.PauseDuration),
	}

	f.Performance = Performance{
		CacheTTL:   f.durationValue(KeyPerfCacheTTL, perf.DefaultCacheTTL),
		BatchSize:  f.intValue(KeyPerfBatchSize, perf.DefaultBatchSize, 1),
		BatchDelay: f.durationValue(KeyPerfBatchDelay, perf.DefaultBatchDelay),
	}

	level := strings.ToLower(strings.TrimSpace(f.v.GetString(KeyLogLevel)))
	switch level {
	case "debug", "info", "warn", "error":
		f.LogLevel = level
	default:
		f.warn("invalid %s %q (valid: debug, info, warn, error), using default 'info'", KeyLogLevel, level)
		f.LogLevel = "info"
	}
}

// SlogLevel converts LogLevel for slog handlers.
func (f *File) SlogLevel() slog.Level {
	switch f.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// GetString returns a string value by dotted key. It lets tracker.Config read
// platform credentials and identifiers from the document.
func (f *File) GetString(key string) string {
	if f == nil || f.v == nil {
		return ""
	}
	return f.v.GetString(key)
}

// Mapper builds a StatusMapper over the configured mappings.
func (f *File) Mapper() *tracker.StatusMapper {
	return tracker.NewStatusMapper(f.StatusSync.Mappings)
}

func (f *File) warn(format string, args ...interface{}) {
	f.Warnings = append(f.Warnings, fmt.Sprintf(format, args...))
}

func (f *File) intValue(key string, def, min int) int {
	raw := f.v.Get(key)
	var n int
	switch x := raw.(type) {
	case int:
		n = x
	case int64:
		n = int(x)
	case float64:
		if x != float64(int(x)) {
			f.warn("invalid %s %v (must be a whole number), using default %d", key, raw, def)
			return def
		}
		n = int(x)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			f.warn("invalid %s %q, using default %d", key, x, def)
			return def
		}
		n = parsed
	default:
		f.warn("invalid %s %v, using default %d", key, raw, def)
		return def
	}
	if n < min {
		f.warn("invalid %s %d (minimum %d), using default %d", key, n, min, def)
		return def
	}
	return n
}

func (f *File) floatValue(key string, def, min float64) float64 {
	raw := f.v.Get(key)
	var n float64
	switch x := raw.(type) {
	case float64:
		n = x
	case int:
		n = float64(x)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			f.warn("invalid %s %q, using default %g", key, x, def)
			return def
		}
		n = parsed
	default:
		f.warn("invalid %s %v, using default %g", key, raw, def)
		return def
	}
	if n < min {
		f.warn("invalid %s %g (minimum %g), using default %g", key, n, min, def)
		return def
	}
	return n
}

// durationValue accepts a Go duration string ("1s", "5m") or a number of milliseconds.
func (f *File) durationValue(key string, def time.Duration) time.Duration {
	raw := f.v.Get(key)
	var d time.Duration
	switch x := raw.(type) {
	case string:
		s := strings.TrimSpace(x)
		if ms, err := strconv.Atoi(s); err == nil {
			d = time.Duration(ms) * time.Millisecond
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			f.warn("invalid %s %q, using default %s", key, x, def)
			return def
		}
		d = parsed
	case float64:
		d = time.Duration(x * float64(time.Millisecond))
	case int:
		d = time.Duration(x) * time.Millisecond
	default:
		f.warn("invalid %s %v, using default %s", key, raw, def)
		return def
	}
	if d <= 0 {
		f.warn("invalid %s %s (must be positive), using default %s", key, d, def)
		return def
	}
	return d
}

// ParseMappings decodes the raw sync.statusSync.mappings value. Each status
// maps to a bare state string or a {state, labels} object. Tool aliases such
// as "azure-devops" are accepted.
func ParseMappings(raw interface{}) (map[types.Tool]tracker.ToolMappings, error) {
	out := make(map[types.Tool]tracker.ToolMappings)
	if raw == nil {
		return out, nil
	}
	tools, ok := raw.(map[string]interface{})
	if !ok {
		return out, fmt.Errorf("%w: mappings must be an object (got %T)", ErrInvalidMapping, raw)
	}

	var problems []string
	for _, toolName := range sortedNames(tools) {
		tool, err := types.ParseTool(toolName)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}
		statuses, ok := tools[toolName].(map[string]interface{})
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: mapping table must be an object", tool))
			continue
		}
		table := make(tracker.ToolMappings, len(statuses))
		for _, statusName := range sortedNames(statuses) {
			status, err := types.ParseLocalStatus(statusName)
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", tool, err))
				continue
			}
			ext, err := parseExternalStatus(statuses[statusName])
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s.%s: %v", tool, status, err))
				continue
			}
			table[status] = ext
		}
		out[tool] = table
	}
	if len(problems) > 0 {
		return out, fmt.Errorf("%w: %s", ErrInvalidMapping, strings.Join(problems, "; "))
	}
	return out, nil
}

func parseExternalStatus(raw interface{}) (tracker.ExternalStatus, error) {
	switch x := raw.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return tracker.ExternalStatus{}, fmt.Errorf("state is empty")
		}
		return tracker.ExternalStatus{State: x}, nil
	case map[string]interface{}:
		state, _ := lookupFold(x, "state")
		s, ok := state.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return tracker.ExternalStatus{}, fmt.Errorf("object must have a non-empty \"state\"")
		}
		ext := tracker.ExternalStatus{State: s}
		if labels, ok := lookupFold(x, "labels"); ok && labels != nil {
			list, ok := labels.([]interface{})
			if !ok {
				return tracker.ExternalStatus{}, fmt.Errorf("labels must be a list of strings")
			}
			for _, l := range list {
				ls, ok := l.(string)
				if !ok {
					return tracker.ExternalStatus{}, fmt.Errorf("labels must be a list of strings")
				}
				ext.Labels = append(ext.Labels, ls)
			}
		}
		return ext, nil
	}
	return tracker.ExternalStatus{}, fmt.Errorf("must be a string or {state, labels} (got %T)", raw)
}

func sortedNames(m map[string]interface{}) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
