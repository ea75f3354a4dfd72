package jira

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/steveyegge/trackersync/internal/statussync"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// Platform adapts a Client to statussync.Platform. Item IDs are issue keys.
type Platform struct {
	client *Client
}

// NewPlatform creates a status sync adapter.
func NewPlatform(client *Client) *Platform {
	return &Platform{client: client}
}

var _ statussync.Platform = (*Platform)(nil)

// Tool returns types.ToolJira.
func (p *Platform) Tool() types.Tool { return types.ToolJira }

// FetchStatus returns the issue's status name and labels.
func (p *Platform) FetchStatus(ctx context.Context, id string) (statussync.Remote, http.Header, error) {
	issue, headers, err := p.client.GetIssue(ctx, id)
	if err != nil {
		return statussync.Remote{}, headers, err
	}
	r := statussync.Remote{ID: issue.Key, Labels: issue.Fields.Labels}
	if issue.Fields.Status != nil {
		r.State = issue.Fields.Status.Name
	}
	if issue.Fields.Updated != "" {
		if ts, err := ParseTimestamp(issue.Fields.Updated); err == nil {
			r.UpdatedAt = ts.UTC()
		}
	}
	return r, headers, nil
}

// UpdateStatus transitions the issue into status.State, then adds any labels.
// An issue already in the target status is not transitioned.
func (p *Platform) UpdateStatus(ctx context.Context, id string, status tracker.ExternalStatus) (http.Header, error) {
	issue, headers, err := p.client.GetIssue(ctx, id)
	if err != nil {
		return headers, err
	}

	current := ""
	if issue.Fields.Status != nil {
		current = issue.Fields.Status.Name
	}
	if !strings.EqualFold(current, status.State) {
		transitions, h, err := p.client.Transitions(ctx, id)
		if err != nil {
			return h, err
		}
		var transitionID string
		for _, t := range transitions {
			if strings.EqualFold(t.To.Name, status.State) || strings.EqualFold(t.Name, status.State) {
				transitionID = t.ID
				break
			}
		}
		if transitionID == "" {
			return h, fmt.Errorf("%s: no transition from %q to %q", id, current, status.State)
		}
		if headers, err = p.client.DoTransition(ctx, id, transitionID); err != nil {
			return headers, err
		}
	}

	if len(status.Labels) > 0 {
		return p.client.AddLabels(ctx, id, status.Labels)
	}
	return headers, nil
}
