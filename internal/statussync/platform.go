package statussync

import (
	"context"
	"net/http"
	"time"

	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// Item is a locally tracked work item linked to a platform item.
type Item struct {
	ID         string            `json:"id" yaml:"id"`
	ExternalID string            `json:"externalId" yaml:"externalId"`
	Status     types.LocalStatus `json:"status" yaml:"status"`
	UpdatedAt  time.Time         `json:"updatedAt" yaml:"updatedAt"`
}

// Remote is the platform's view of an item's status.
type Remote struct {
	ID        string    `json:"id" yaml:"id"`
	State     string    `json:"state" yaml:"state"`
	Labels    []string  `json:"labels,omitempty" yaml:"labels,omitempty"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// Platform is the HTTP boundary to one issue tracker. Implementations return
// response headers so the engine can track rate limits, and should report
// HTTP failures as *retry.ClassifiedError.
type Platform interface {
	Tool() types.Tool
	FetchStatus(ctx context.Context, id string) (Remote, http.Header, error)
	UpdateStatus(ctx context.Context, id string, status tracker.ExternalStatus) (http.Header, error)
}
