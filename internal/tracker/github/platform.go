package github

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

// Platform adapts a Client to statussync.Platform. Item IDs are issue numbers.
type Platform struct {
	client *Client
	// managed labels are removed before a new status's labels are applied.
	managed map[string]bool
}

// NewPlatform creates a status sync adapter. managedLabels are the labels the
// status mappings own, typically StatusMapper.ManagedLabels(types.ToolGitHub).
func NewPlatform(client *Client, managedLabels []string) *Platform {
	p := &Platform{client: client, managed: make(map[string]bool, len(managedLabels))}
	for _, l := range managedLabels {
		p.managed[strings.ToLower(l)] = true
	}
	return p
}

var _ statussync.Platform = (*Platform)(nil)

// Tool returns types.ToolGitHub.
func (p *Platform) Tool() types.Tool { return types.ToolGitHub }

// FetchStatus returns the issue's state and labels.
func (p *Platform) FetchStatus(ctx context.Context, id string) (statussync.Remote, http.Header, error) {
	number, err := issueNumber(id)
	if err != nil {
		return statussync.Remote{}, nil, err
	}
	issue, headers, err := p.client.FetchIssue(ctx, number)
	if err != nil {
		return statussync.Remote{}, headers, err
	}
	return remoteFromIssue(issue), headers, nil
}

// UpdateStatus sets the issue state and replaces its managed labels with the
// status's labels. Labels the mappings do not own are preserved.
func (p *Platform) UpdateStatus(ctx context.Context, id string, status tracker.ExternalStatus) (http.Header, error) {
	number, err := issueNumber(id)
	if err != nil {
		return nil, err
	}
	issue, headers, err := p.client.FetchIssue(ctx, number)
	if err != nil {
		return headers, err
	}

	labels := make([]string, 0, len(issue.Labels)+len(status.Labels))
	have := make(map[string]bool)
	for _, name := range issue.LabelNames() {
		if p.managed[strings.ToLower(name)] {
			continue
		}
		labels = append(labels, name)
		have[strings.ToLower(name)] = true
	}
	for _, name := range status.Labels {
		if !have[strings.ToLower(name)] {
			labels = append(labels, name)
			have[strings.ToLower(name)] = true
		}
	}

	_, headers, err = p.client.UpdateIssue(ctx, number, IssueUpdate{
		State:  strings.ToLower(status.State),
		Labels: labels,
	})
	return headers, err
}

func remoteFromIssue(issue *Issue) statussync.Remote {
	r := statussync.Remote{
		ID:     strconv.Itoa(issue.Number),
		State:  issue.State,
		Labels: issue.LabelNames(),
	}
	if issue.UpdatedAt != nil {
		r.UpdatedAt = issue.UpdatedAt.UTC()
	}
	return r
}

// issueNumber accepts "42" or "#42".
func issueNumber(id string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(id), "#"))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid GitHub issue number %q", id)
	}
	return n, nil
}
