package azuredevops

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/steveyegge/trackersync/internal/statussync"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// Platform adapts a Client to statussync.Platform. Item IDs are work item IDs.
// Mapping labels are stored as work item tags.
type Platform struct {
	client *Client
}

// NewPlatform creates a status sync adapter.
func NewPlatform(client *Client) *Platform {
	return &Platform{client: client}
}

var _ statussync.Platform = (*Platform)(nil)

// Tool returns types.ToolADO.
func (p *Platform) Tool() types.Tool { return types.ToolADO }

// FetchStatus returns the work item's state and tags.
func (p *Platform) FetchStatus(ctx context.Context, id string) (statussync.Remote, http.Header, error) {
	n, err := workItemID(id)
	if err != nil {
		return statussync.Remote{}, nil, err
	}
	wi, headers, err := p.client.FetchWorkItem(ctx, n)
	if err != nil {
		return statussync.Remote{}, headers, err
	}
	r := statussync.Remote{
		ID:     strconv.Itoa(wi.ID),
		State:  wi.Fields.State,
		Labels: SplitTags(wi.Fields.Tags),
	}
	if ts, err := parseTimestamp(wi.Fields.ChangedDate); err == nil {
		r.UpdatedAt = ts.UTC()
	}
	return r, headers, nil
}

// UpdateStatus sets System.State and merges the status's labels into System.Tags.
func (p *Platform) UpdateStatus(ctx context.Context, id string, status tracker.ExternalStatus) (http.Header, error) {
	n, err := workItemID(id)
	if err != nil {
		return nil, err
	}
	ops := []PatchOperation{{Op: "add", Path: "/fields/System.State", Value: status.State}}

	if len(status.Labels) > 0 {
		wi, headers, err := p.client.FetchWorkItem(ctx, n)
		if err != nil {
			return headers, err
		}
		tags := SplitTags(wi.Fields.Tags)
		have := make(map[string]bool, len(tags))
		for _, t := range tags {
			have[strings.ToLower(t)] = true
		}
		for _, l := range status.Labels {
			if !have[strings.ToLower(l)] {
				tags = append(tags, l)
				have[strings.ToLower(l)] = true
			}
		}
		ops = append(ops, PatchOperation{Op: "add", Path: "/fields/System.Tags", Value: strings.Join(tags, "; ")})
	}

	_, headers, err := p.client.UpdateWorkItem(ctx, n, ops)
	return headers, err
}

func workItemID(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(id))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid Azure DevOps work item ID %q", id)
	}
	return n, nil
}
