package azuredevops

import (
	"context"
	"net/http"
	"strings"

	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

func init() {
	tracker.Register(types.ToolADO, func() tracker.WorkflowDetector {
		return &Detector{}
	})
}

// Detector discovers the states of one Azure DevOps work item type. ADO
// permits a transition between any two states of a type.
type Detector struct{}

// Tool returns types.ToolADO.
func (d *Detector) Tool() types.Tool { return types.ToolADO }

// ValidateParams requires organization, project and PAT.
func (d *Detector) ValidateParams(params tracker.DetectParams) error {
	p := params.ADO
	if p == nil {
		return tracker.MissingParam(types.ToolADO, "organization")
	}
	switch {
	case strings.TrimSpace(p.Organization) == "" && params.BaseURL == "":
		return tracker.MissingParam(types.ToolADO, "organization")
	case strings.TrimSpace(p.Project) == "":
		return tracker.MissingParam(types.ToolADO, "project")
	case strings.TrimSpace(p.PAT) == "":
		return tracker.MissingParam(types.ToolADO, "pat")
	}
	return nil
}

// Detect lists the work item type's states.
func (d *Detector) Detect(ctx context.Context, params tracker.DetectParams) (*tracker.WorkflowInfo, error) {
	client := ClientFromParams(params)
	wit := WorkItemType(params)

	states, err := client.WorkItemTypeStates(ctx, wit)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.Name
	}

	return &tracker.WorkflowInfo{
		Tool:            types.ToolADO,
		Statuses:        names,
		CanTransitionTo: tracker.AnyToAny(names),
		Metadata: map[string]interface{}{
			tracker.MetadataProject:      params.ADO.Project,
			tracker.MetadataWorkItemType: wit,
		},
	}, nil
}

// WorkItemType returns the configured type or tracker.DefaultWorkItemType.
func WorkItemType(params tracker.DetectParams) string {
	if params.ADO != nil && strings.TrimSpace(params.ADO.WorkItemType) != "" {
		return params.ADO.WorkItemType
	}
	return tracker.DefaultWorkItemType
}

// ClientFromParams builds a client honouring the BaseURL, HTTPClient and
// OnResponse overrides in params.
func ClientFromParams(params tracker.DetectParams) *Client {
	p := params.ADO
	if p == nil {
		p = &tracker.ADOParams{}
	}
	c := NewClient(p.Organization, p.Project, p.PAT)
	if params.BaseURL != "" {
		c.BaseURL = strings.TrimSuffix(params.BaseURL, "/")
	}
	if params.HTTPClient != nil {
		c.HTTPClient = params.HTTPClient
	}
	if params.OnResponse != nil {
		hook := params.OnResponse
		c.OnResponse = func(h http.Header) { hook(types.ToolADO, h) }
	}
	return c
}
