// Package tracker provides the status vocabulary bridge and workflow discovery framework
// for external issue tracker integrations.
//
// It defines the StatusMapper that translates local statuses to each platform's states
// and labels, and a WorkflowDetector plugin interface that platform packages
// (github, jira, azuredevops) implement to report the statuses their projects accept.
package tracker

import (
	"net/http"

	"github.com/steveyegge/trackersync/internal/types"
)

// WorkflowInfo describes the statuses and transitions a platform project actually accepts.
// It is used to validate configured mappings at setup time and is not consulted per sync.
type WorkflowInfo struct {
	Tool            types.Tool             `json:"tool" yaml:"tool"`
	Statuses        []string               `json:"statuses" yaml:"statuses"`
	CanTransitionTo map[string][]string    `json:"canTransitionTo" yaml:"canTransitionTo"`
	Metadata        map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// HasStatus reports whether the platform accepts the status (case-insensitive).
func (w *WorkflowInfo) HasStatus(status string) bool {
	for _, s := range w.Statuses {
		if equalFold(s, status) {
			return true
		}
	}
	return false
}

// Labels returns the informational label list recorded in metadata, if any.
func (w *WorkflowInfo) Labels() []string {
	if w.Metadata == nil {
		return nil
	}
	labels, _ := w.Metadata[MetadataLabels].([]string)
	return labels
}

// Metadata keys set by detectors.
const (
	MetadataLabels       = "labels"
	MetadataProject      = "project"
	MetadataWorkItemType = "workItemType"
	MetadataSampleIssue  = "sampleIssue"
	MetadataRepository   = "repository"
)

// GitHubParams identifies a GitHub repository.
type GitHubParams struct {
	Owner string
	Repo  string
	Token string
}

// JiraParams identifies a JIRA project.
type JiraParams struct {
	BaseURL    string // e.g. https://company.atlassian.net
	Email      string
	APIToken   string
	ProjectKey string
	// IssueKey optionally names an issue whose transitions are sampled.
	// When empty the first issue of the project is used.
	IssueKey string
}

// ADOParams identifies an Azure DevOps project and work item type.
type ADOParams struct {
	Organization string // organization name or full URL
	Project      string
	PAT          string
	WorkItemType string // defaults to DefaultWorkItemType
}

// DefaultWorkItemType is the Azure DevOps work item type queried when none is given.
const DefaultWorkItemType = "User Story"

// DetectParams carries the per-platform parameter set for workflow discovery.
// Only the block matching Tool is consulted.
type DetectParams struct {
	Tool   types.Tool
	GitHub *GitHubParams
	Jira   *JiraParams
	ADO    *ADOParams

	// BaseURL overrides the platform API endpoint (GitHub Enterprise, tests).
	BaseURL string
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
	// OnResponse receives the headers of every discovery response, typically
	// to feed a rate limiter.
	OnResponse func(tool types.Tool, header http.Header)
}

// MappingCheck is the result of cross-checking a configured mapping against a workflow.
type MappingCheck struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
