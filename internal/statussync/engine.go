// Package statussync reconciles local work item statuses with one external
// platform. It composes permission gating, status mapping, retry, rate
// limiting and batching around an injected Platform.
package statussync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/perf"
	"github.com/steveyegge/trackersync/internal/permission"
	"github.com/steveyegge/trackersync/internal/ratelimit"
	"github.com/steveyegge/trackersync/internal/retry"
	"github.com/steveyegge/trackersync/internal/telemetry"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// ErrSyncDisabled is returned when sync.statusSync.enabled is false.
var ErrSyncDisabled = errors.New("status synchronization is disabled")

// Direction of a sync request.
type Direction string

const (
	ToExternal    Direction = "to-external"
	FromExternal  Direction = "from-external"
	Bidirectional Direction = "bidirectional"
)

// Action is what a sync did.
type Action string

const (
	NoSyncNeeded     Action = "no-sync-needed"
	SyncedToExternal Action = "sync-to-external"
	// SyncedFromExternal means Result.Status should be applied locally.
	SyncedFromExternal Action = "sync-from-external"
)

// Result describes one item's sync.
type Result struct {
	ItemID     string                  `json:"itemId" yaml:"itemId"`
	Direction  Direction               `json:"direction" yaml:"direction"`
	Action     Action                  `json:"action" yaml:"action"`
	Conflict   *Conflict               `json:"conflict,omitempty" yaml:"conflict,omitempty"`
	Resolution *Resolution             `json:"resolution,omitempty" yaml:"resolution,omitempty"`
	External   *tracker.ExternalStatus `json:"external,omitempty" yaml:"external,omitempty"`
	// Status is the item's status once the action is applied.
	Status   types.LocalStatus `json:"status" yaml:"status"`
	Attempts int               `json:"attempts" yaml:"attempts"`
	Err      error             `json:"-" yaml:"-"`
	Error    string            `json:"error,omitempty" yaml:"error,omitempty"`
}

// Success reports whether the item synced without error.
func (r Result) Success() bool { return r.Err == nil }

func (r *Result) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// Options configures an Engine. Platform, Permissions and Mapper are required.
type Options struct {
	Platform    Platform
	Permissions *permission.Checker
	Mapper      *tracker.StatusMapper
	// Enabled mirrors sync.statusSync.enabled. A disabled engine refuses to sync.
	Enabled bool

	Limiter      *ratelimit.Limiter
	Retry        retry.Config
	RetryOptions []retry.Option
	Optimizer    *perf.Optimizer
	Resolution   config.ConflictResolution
	Batch        perf.BatchOptions
	Logger       *slog.Logger
}

// Engine syncs statuses for one platform. It is safe for concurrent use.
type Engine struct {
	platform   Platform
	tool       types.Tool
	perms      *permission.Checker
	mapper     *tracker.StatusMapper
	enabled    bool
	limiter    *ratelimit.Limiter
	retry      *retry.Handler
	optimizer  *perf.Optimizer
	resolution config.ConflictResolution
	batch      perf.BatchOptions
	log        *slog.Logger
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Platform == nil:
		return nil, fmt.Errorf("statussync: platform is required")
	case opts.Permissions == nil:
		return nil, fmt.Errorf("statussync: permission checker is required")
	case opts.Mapper == nil:
		return nil, fmt.Errorf("statussync: status mapper is required")
	}
	tool := opts.Platform.Tool()
	if !opts.Mapper.HasTool(tool) {
		return nil, fmt.Errorf("statussync: %w %s", tracker.ErrNoToolMappings, tool)
	}

	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("tool", tool)

	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultConfig(), ratelimit.WithLogger(log))
	}
	optimizer := opts.Optimizer
	if optimizer == nil {
		optimizer = perf.New(perf.WithLogger(log))
	}
	resolution, _ := config.ParseConflictResolution(string(opts.Resolution))

	retryOpts := append([]retry.Option{retry.WithLimiter(limiter, tool), retry.WithLogger(log)}, opts.RetryOptions...)
	return &Engine{
		platform:   WrapPlatform(opts.Platform),
		tool:       tool,
		perms:      opts.Permissions,
		mapper:     opts.Mapper,
		enabled:    opts.Enabled,
		limiter:    limiter,
		retry:      retry.NewHandler(opts.Retry, retryOpts...),
		optimizer:  optimizer,
		resolution: resolution,
		batch:      opts.Batch,
		log:        log,
	}, nil
}

// Tool returns the engine's platform.
func (e *Engine) Tool() types.Tool { return e.tool }

// Limiter returns the rate limiter fed by the engine's responses.
func (e *Engine) Limiter() *ratelimit.Limiter { return e.limiter }

// Optimizer returns the engine's cache and metrics.
func (e *Engine) Optimizer() *perf.Optimizer { return e.optimizer }

// Resolution returns the configured conflict strategy.
func (e *Engine) Resolution() config.ConflictResolution { return e.resolution }

// SyncToExternal pushes the item's status when the conflict resolves in the
// local status's favour.
func (e *Engine) SyncToExternal(ctx context.Context, item Item) (Result, error) {
	return e.syncOne(ctx, item, ToExternal)
}

// SyncFromExternal reports the platform status to apply locally when the
// conflict resolves in the platform's favour. It never mutates the platform.
func (e *Engine) SyncFromExternal(ctx context.Context, item Item) (Result, error) {
	return e.syncOne(ctx, item, FromExternal)
}

// Bidirectional syncs in whichever direction the resolution picks.
func (e *Engine) Bidirectional(ctx context.Context, item Item) (Result, error) {
	return e.syncOne(ctx, item, Bidirectional)
}

func (e *Engine) gate() error {
	if !e.enabled {
		return ErrSyncDisabled
	}
	return e.perms.RequirePermission(permission.OpUpdateStatus)
}

func (e *Engine) syncOne(ctx context.Context, item Item, dir Direction) (Result, error) {
	if err := e.gate(); err != nil {
		return Result{ItemID: item.ID, Direction: dir, Action: NoSyncNeeded, Status: item.Status, Err: err, Error: err.Error()}, err
	}
	var res Result
	err := e.optimizer.Track(perf.OpStatusSync, 1, func() error {
		res = e.sync(ctx, item, dir)
		return res.Err
	})
	return res, err
}

// sync runs one item through fetch, conflict detection, resolution and, for
// a local win outside FromExternal, the platform update.
func (e *Engine) sync(ctx context.Context, item Item, dir Direction) Result {
	ctx, span := telemetry.Tracer("statussync").Start(ctx, "statussync.item")
	defer span.End()
	span.SetAttributes(
		attribute.String("trackersync.tool", string(e.tool)),
		attribute.String("trackersync.item", item.ID),
		attribute.String("trackersync.direction", string(dir)),
	)

	res := Result{ItemID: item.ID, Direction: dir, Action: NoSyncNeeded, Status: item.Status}
	defer func() {
		if res.Err != nil {
			span.SetStatus(codes.Error, res.Err.Error())
		}
		span.SetAttributes(attribute.String("trackersync.action", string(res.Action)))
	}()

	remote, attempts, err := e.fetchRemote(ctx, item.ExternalID)
	res.Attempts = attempts
	if err != nil {
		res.fail(err)
		return res
	}

	conflict := e.DetectConflict(item, remote)
	if conflict == nil {
		return res
	}
	res.Conflict = conflict
	resolution := Resolve(conflict, e.resolution)
	res.Resolution = &resolution

	switch {
	case resolution.Winner == UseRemote && dir != ToExternal:
		res.Action = SyncedFromExternal
		res.Status = resolution.Status
		e.log.Debug("platform status wins", "item", item.ID, "status", resolution.Status, "reason", resolution.Reason)

	case resolution.Winner == UseLocal && dir != FromExternal:
		ext, err := e.mapper.MapToExternal(item.Status, e.tool)
		if err != nil {
			res.fail(err)
			return res
		}
		res.External = &ext
		n, err := e.pushStatus(ctx, item.ExternalID, ext)
		res.Attempts += n
		if err != nil {
			res.fail(err)
			return res
		}
		res.Action = SyncedToExternal
		e.log.Debug("pushed local status", "item", item.ID, "status", item.Status, "external", ext.String())
	}
	return res
}

func (e *Engine) cacheKey(id string) string {
	return "remote:" + string(e.tool) + ":" + id
}

// fetchRemote reads the platform status through the cache and retry handler.
func (e *Engine) fetchRemote(ctx context.Context, id string) (Remote, int, error) {
	if remote, ok := perf.Get[Remote](e.optimizer, e.cacheKey(id)); ok {
		return remote, 0, nil
	}
	r := retry.Execute(ctx, e.retry, func(ctx context.Context) (Remote, error) {
		remote, header, err := e.platform.FetchStatus(ctx, id)
		e.observe(header)
		return remote, err
	}, nil)
	if !r.Success {
		return Remote{}, r.Attempts, e.wrap(r.Err, r.Message(e.retry.Config().MaxRetries))
	}
	perf.Set(e.optimizer, e.cacheKey(id), r.Value, 0)
	return r.Value, r.Attempts, nil
}

func (e *Engine) pushStatus(ctx context.Context, id string, status tracker.ExternalStatus) (int, error) {
	r := retry.Do(ctx, e.retry, func(ctx context.Context) error {
		header, err := e.platform.UpdateStatus(ctx, id, status)
		e.observe(header)
		return err
	}, nil)
	e.optimizer.Delete(e.cacheKey(id))
	if !r.Success {
		return r.Attempts, e.wrap(r.Err, r.Message(e.retry.Config().MaxRetries))
	}
	return r.Attempts, nil
}

func (e *Engine) observe(header http.Header) {
	if header == nil {
		return
	}
	e.limiter.Observe(e.tool, header)
	if e.limiter.ShouldWarn(e.tool) {
		if info, ok := e.limiter.Get(e.tool); ok {
			e.log.Warn("rate limit running low", "remaining", info.Remaining, "limit", info.Limit)
		}
	}
}

// SyncError carries a user-facing message alongside the original error.
type SyncError struct {
	Message string
	Err     error
}

func (e *SyncError) Error() string { return e.Message }
func (e *SyncError) Unwrap() error { return e.Err }

func (e *Engine) wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	if msg == "" {
		msg = err.Error()
	}
	return &SyncError{Message: msg, Err: err}
}

// BulkResult aggregates a batch sync.
type BulkResult struct {
	Total     int           `json:"total" yaml:"total"`
	Succeeded int           `json:"succeeded" yaml:"succeeded"`
	Failed    int           `json:"failed" yaml:"failed"`
	Changed   int           `json:"changed" yaml:"changed"`
	Results   []Result      `json:"results" yaml:"results"`
	Duration  time.Duration `json:"duration" yaml:"duration"`
}

// PushStatuses syncs items to the platform. A denied permission skips the
// whole batch. Item failures are recorded per item and do not stop the batch.
func (e *Engine) PushStatuses(ctx context.Context, items []Item, opts perf.BatchOptions) (BulkResult, error) {
	return e.bulk(ctx, items, ToExternal, opts)
}

// PullStatuses resolves platform statuses for items. Results with
// SyncedFromExternal carry the status to apply locally.
func (e *Engine) PullStatuses(ctx context.Context, items []Item, opts perf.BatchOptions) (BulkResult, error) {
	return e.bulk(ctx, items, FromExternal, opts)
}

func (e *Engine) bulk(ctx context.Context, items []Item, dir Direction, opts perf.BatchOptions) (BulkResult, error) {
	out := BulkResult{Total: len(items)}
	if err := e.gate(); err != nil {
		e.log.Warn("skipping status sync batch", "items", len(items), "direction", dir, "error", err)
		return out, err
	}
	if opts == (perf.BatchOptions{}) {
		opts = e.batch
	}

	ctx, span := telemetry.Tracer("statussync").Start(ctx, "statussync.bulk")
	defer span.End()
	span.SetAttributes(
		attribute.String("trackersync.tool", string(e.tool)),
		attribute.String("trackersync.direction", string(dir)),
		attribute.Int("trackersync.items", len(items)),
	)

	start := time.Now()
	before := e.optimizer.CacheStats()
	results, err := perf.BatchProcess(ctx, e.optimizer, items, func(ctx context.Context, item Item) (Result, error) {
		res, _ := e.syncOne(ctx, item, dir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		return res, nil
	}, opts)
	out.Duration = time.Since(start)
	hits, misses := e.optimizer.CacheStats().Since(before)
	e.optimizer.RecordMetric(perf.Metric{
		Operation:   perf.OpBulkSync,
		Duration:    out.Duration,
		ItemCount:   len(items),
		CacheHits:   hits,
		CacheMisses: misses,
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return out, err
	}

	out.Results = results
	for _, r := range results {
		if r.Success() {
			out.Succeeded++
			if r.Action != NoSyncNeeded {
				out.Changed++
			}
		} else {
			out.Failed++
		}
	}
	e.log.Info("status sync batch complete", "direction", dir, "total", out.Total,
		"succeeded", out.Succeeded, "failed", out.Failed, "changed", out.Changed, "duration", out.Duration)
	return out, nil
}
