package github

import (
	"context"
	"net/http"
	"strings"

	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

func init() {
	tracker.Register(types.ToolGitHub, func() tracker.WorkflowDetector {
		return &Detector{}
	})
}

// Detector reports the GitHub Issues workflow. GitHub has a fixed two-state
// model, so the only network call lists the repository's labels.
type Detector struct{}

// Tool returns types.ToolGitHub.
func (d *Detector) Tool() types.Tool { return types.ToolGitHub }

// ValidateParams requires owner, repo and token.
func (d *Detector) ValidateParams(params tracker.DetectParams) error {
	p := params.GitHub
	if p == nil {
		return tracker.MissingParam(types.ToolGitHub, "owner")
	}
	switch {
	case strings.TrimSpace(p.Owner) == "":
		return tracker.MissingParam(types.ToolGitHub, "owner")
	case strings.TrimSpace(p.Repo) == "":
		return tracker.MissingParam(types.ToolGitHub, "repo")
	case strings.TrimSpace(p.Token) == "":
		return tracker.MissingParam(types.ToolGitHub, "token")
	}
	return nil
}

// Detect lists repository labels and returns the open/closed workflow.
func (d *Detector) Detect(ctx context.Context, params tracker.DetectParams) (*tracker.WorkflowInfo, error) {
	client := ClientFromParams(params)
	labels, err := client.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(labels))
	for i, l := range labels {
		names[i] = l.Name
	}

	return &tracker.WorkflowInfo{
		Tool:     types.ToolGitHub,
		Statuses: []string{StateOpen, StateClosed},
		CanTransitionTo: map[string][]string{
			StateOpen:   {StateClosed},
			StateClosed: {StateOpen},
		},
		Metadata: map[string]interface{}{
			tracker.MetadataLabels:     names,
			tracker.MetadataRepository: params.GitHub.Owner + "/" + params.GitHub.Repo,
		},
	}, nil
}

// ClientFromParams builds a client honouring the BaseURL, HTTPClient and
// OnResponse overrides in params.
func ClientFromParams(params tracker.DetectParams) *Client {
	p := params.GitHub
	if p == nil {
		p = &tracker.GitHubParams{}
	}
	c := NewClient(p.Token, p.Owner, p.Repo)
	if params.BaseURL != "" {
		c = c.WithBaseURL(params.BaseURL)
	}
	if params.HTTPClient != nil {
		c = c.WithHTTPClient(params.HTTPClient)
	}
	if params.OnResponse != nil {
		hook := params.OnResponse
		c = c.WithResponseHook(func(h http.Header) { hook(types.ToolGitHub, h) })
	}
	return c
}
