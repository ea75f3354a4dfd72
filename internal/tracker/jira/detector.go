package jira

import (
	"context"
	"net/http"
	"strings"

	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

func init() {
	tracker.Register(types.ToolJira, func() tracker.WorkflowDetector {
		return &Detector{}
	})
}

// Detector discovers a JIRA project's statuses and samples transitions from
// one issue. JIRA only exposes transitions relative to an issue's current
// status, so CanTransitionTo covers the sampled issue's status alone.
type Detector struct{}

// Tool returns types.ToolJira.
func (d *Detector) Tool() types.Tool { return types.ToolJira }

// ValidateParams requires base URL, email, API token and project key.
func (d *Detector) ValidateParams(params tracker.DetectParams) error {
	p := params.Jira
	if p == nil {
		return tracker.MissingParam(types.ToolJira, "baseUrl")
	}
	switch {
	case strings.TrimSpace(p.BaseURL) == "" && params.BaseURL == "":
		return tracker.MissingParam(types.ToolJira, "baseUrl")
	case strings.TrimSpace(p.Email) == "":
		return tracker.MissingParam(types.ToolJira, "email")
	case strings.TrimSpace(p.APIToken) == "":
		return tracker.MissingParam(types.ToolJira, "apiToken")
	case strings.TrimSpace(p.ProjectKey) == "":
		return tracker.MissingParam(types.ToolJira, "projectKey")
	}
	return nil
}

// Detect fetches project statuses and the transitions of a sample issue.
func (d *Detector) Detect(ctx context.Context, params tracker.DetectParams) (*tracker.WorkflowInfo, error) {
	client := ClientFromParams(params)
	p := params.Jira

	statuses, err := client.ProjectStatuses(ctx, p.ProjectKey)
	if err != nil {
		return nil, err
	}

	info := &tracker.WorkflowInfo{
		Tool:            types.ToolJira,
		Statuses:        statuses,
		CanTransitionTo: make(map[string][]string),
		Metadata: map[string]interface{}{
			tracker.MetadataProject: p.ProjectKey,
		},
	}

	issueKey := p.IssueKey
	if issueKey == "" {
		if issueKey, err = client.FirstIssueKey(ctx, p.ProjectKey); err != nil {
			return nil, err
		}
	}
	if issueKey == "" {
		return info, nil
	}

	issue, _, err := client.GetIssue(ctx, issueKey)
	if err != nil {
		return nil, err
	}
	transitions, _, err := client.Transitions(ctx, issueKey)
	if err != nil {
		return nil, err
	}
	info.Metadata[tracker.MetadataSampleIssue] = issueKey
	if issue.Fields.Status != nil {
		from := issue.Fields.Status.Name
		targets := make([]string, 0, len(transitions))
		for _, t := range transitions {
			targets = append(targets, t.To.Name)
		}
		info.CanTransitionTo[from] = targets
	}
	return info, nil
}

// ClientFromParams builds a client honouring the BaseURL, HTTPClient and
// OnResponse overrides in params.
func ClientFromParams(params tracker.DetectParams) *Client {
	p := params.Jira
	if p == nil {
		p = &tracker.JiraParams{}
	}
	baseURL := p.BaseURL
	if params.BaseURL != "" {
		baseURL = params.BaseURL
	}
	c := NewClient(baseURL, p.Email, p.APIToken)
	if params.HTTPClient != nil {
		c.HTTPClient = params.HTTPClient
	}
	if params.OnResponse != nil {
		hook := params.OnResponse
		c.OnResponse = func(h http.Header) { hook(types.ToolJira, h) }
	}
	return c
}
