package statussync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/perf"
	"github.com/steveyegge/trackersync/internal/types"
)

func TestResolve(t *testing.T) {
	base := Conflict{
		ItemID:          "a",
		Tool:            types.ToolJira,
		Local:           types.StatusActive,
		Remote:          types.StatusCompleted,
		RemoteState:     "Done",
		LocalUpdatedAt:  older,
		RemoteUpdatedAt: newer,
	}
	tests := []struct {
		name     string
		edit     func(*Conflict)
		strategy config.ConflictResolution
		want     Winner
		status   types.LocalStatus
	}{
		{"timestamp remote newer", nil, config.ConflictResolutionTimestamp, UseRemote, types.StatusCompleted},
		{"timestamp local newer", func(c *Conflict) { c.LocalUpdatedAt = newer.Add(time.Minute) }, config.ConflictResolutionTimestamp, UseLocal, types.StatusActive},
		{"timestamp tie keeps local", func(c *Conflict) { c.LocalUpdatedAt = newer }, config.ConflictResolutionTimestamp, UseLocal, types.StatusActive},
		{"empty strategy is timestamp", nil, "", UseRemote, types.StatusCompleted},
		{"local", nil, config.ConflictResolutionLocal, UseLocal, types.StatusActive},
		{"external", func(c *Conflict) { c.RemoteUpdatedAt = older.Add(-time.Hour) }, config.ConflictResolutionExternal, UseRemote, types.StatusCompleted},
		{"unmapped remote never wins", func(c *Conflict) { c.Remote = "" }, config.ConflictResolutionExternal, UseLocal, types.StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			if tt.edit != nil {
				tt.edit(&c)
			}
			got := Resolve(&c, tt.strategy)
			assert.Equal(t, tt.want, got.Winner)
			assert.Equal(t, tt.status, got.Status)
			assert.NotEmpty(t, got.Reason)
		})
	}
}

func TestDetectConflict(t *testing.T) {
	e := newEngine(t, newFakePlatform(), allowAll, "")

	assert.Nil(t, e.DetectConflict(Item{ID: "a", Status: types.StatusPlanning}, Remote{State: "OPEN"}))
	assert.Nil(t, e.DetectConflict(Item{ID: "a", Status: types.StatusActive}, Remote{State: "open", Labels: []string{"in-progress"}}))

	c := e.DetectConflict(Item{ID: "a", Status: types.StatusActive, UpdatedAt: older}, Remote{State: "closed", UpdatedAt: newer})
	if assert.NotNil(t, c) {
		assert.Equal(t, types.StatusCompleted, c.Remote)
		assert.True(t, c.RemoteMapped())
		assert.Equal(t, newer, c.RemoteUpdatedAt)
	}

	c = e.DetectConflict(Item{ID: "a", Status: types.StatusActive}, Remote{State: "triage"})
	if assert.NotNil(t, c) {
		assert.False(t, c.RemoteMapped())
		assert.Equal(t, "triage", c.RemoteState)
	}

	assert.Len(t, e.Optimizer().Metrics(perf.OpConflictDetection), 4)
}
