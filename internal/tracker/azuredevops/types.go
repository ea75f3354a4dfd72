// Package azuredevops discovers Azure DevOps work item workflows and syncs
// work item state through the Azure DevOps REST API.
package azuredevops

import (
	"net/http"
	"time"
)

// API constants
const (
	DefaultTimeout = 30 * time.Second
	APIVersion     = "7.1"
)

// Client provides methods to interact with the Azure DevOps REST API.
type Client struct {
	Organization string // Organization name or URL
	Project      string
	PAT          string // Personal Access Token
	BaseURL      string // Full base URL (derived from Organization)
	HTTPClient   *http.Client

	// OnResponse, when set, receives the headers of every response.
	OnResponse func(http.Header)
}

// WorkItem represents an Azure DevOps work item.
type WorkItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields WorkItemFields `json:"fields"`
}

// WorkItemFields contains the work item field values used for status sync.
type WorkItemFields struct {
	State        string `json:"System.State"`
	WorkItemType string `json:"System.WorkItemType"`
	ChangedDate  string `json:"System.ChangedDate"`
	Tags         string `json:"System.Tags,omitempty"` // Semicolon-separated
}

// WorkItemTypeState is one state of a work item type's workflow.
type WorkItemTypeState struct {
	Name     string `json:"name"`
	Color    string `json:"color,omitempty"`
	Category string `json:"category,omitempty"` // Proposed, InProgress, Resolved, Completed, Removed
}

// StatesResponse is the response of the work item type states endpoint.
type StatesResponse struct {
	Count int                 `json:"count"`
	Value []WorkItemTypeState `json:"value"`
}

// PatchOperation is a JSON Patch operation for work item updates.
type PatchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}
