package statussync

import (
	"fmt"
	"time"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/perf"
	"github.com/steveyegge/trackersync/internal/types"
)

// Conflict records a disagreement between the local and platform status.
type Conflict struct {
	ItemID string     `json:"itemId" yaml:"itemId"`
	Tool   types.Tool `json:"tool" yaml:"tool"`

	Local types.LocalStatus `json:"local" yaml:"local"`
	// Remote is the platform state mapped back to a local status. Empty when
	// the platform state has no mapping.
	Remote      types.LocalStatus `json:"remote,omitempty" yaml:"remote,omitempty"`
	RemoteState string            `json:"remoteState" yaml:"remoteState"`

	LocalUpdatedAt  time.Time `json:"localUpdatedAt" yaml:"localUpdatedAt"`
	RemoteUpdatedAt time.Time `json:"remoteUpdatedAt" yaml:"remoteUpdatedAt"`
}

// RemoteMapped reports whether the platform state maps to a local status.
func (c *Conflict) RemoteMapped() bool {
	return c.Remote != ""
}

// Winner says which side a resolution keeps.
type Winner string

const (
	UseLocal  Winner = "use-local"
	UseRemote Winner = "use-remote"
)

// Resolution is the outcome of resolving a Conflict.
type Resolution struct {
	Winner   Winner                    `json:"winner" yaml:"winner"`
	Status   types.LocalStatus         `json:"status" yaml:"status"`
	Strategy config.ConflictResolution `json:"strategy" yaml:"strategy"`
	Reason   string                    `json:"reason" yaml:"reason"`
}

// DetectConflict compares an item with its platform status. It returns nil
// when the platform state maps to the item's status.
func (e *Engine) DetectConflict(item Item, remote Remote) *Conflict {
	var conflict *Conflict
	_ = e.optimizer.Track(perf.OpConflictDetection, 1, func() error {
		mapped, ok := e.mapper.MapFromExternalWithLabels(remote.State, remote.Labels, e.tool)
		if ok && mapped == item.Status {
			return nil
		}
		conflict = &Conflict{
			ItemID:          item.ID,
			Tool:            e.tool,
			Local:           item.Status,
			RemoteState:     remote.State,
			LocalUpdatedAt:  item.UpdatedAt,
			RemoteUpdatedAt: remote.UpdatedAt,
		}
		if ok {
			conflict.Remote = mapped
		}
		return nil
	})
	return conflict
}

// Resolve picks a winner for conflict. An unmapped platform state can never
// win, since there is no local status to apply.
func Resolve(conflict *Conflict, strategy config.ConflictResolution) Resolution {
	res := Resolution{Strategy: strategy}
	local := func(reason string) Resolution {
		res.Winner, res.Status, res.Reason = UseLocal, conflict.Local, reason
		return res
	}
	remote := func(reason string) Resolution {
		res.Winner, res.Status, res.Reason = UseRemote, conflict.Remote, reason
		return res
	}

	if !conflict.RemoteMapped() {
		return local(fmt.Sprintf("platform state %q has no mapping", conflict.RemoteState))
	}
	switch strategy {
	case config.ConflictResolutionLocal:
		return local("local status always wins")
	case config.ConflictResolutionExternal:
		return remote("platform status always wins")
	}

	res.Strategy = config.ConflictResolutionTimestamp
	if conflict.RemoteUpdatedAt.After(conflict.LocalUpdatedAt) {
		return remote("platform changed more recently")
	}
	return local("local changed more recently")
}
