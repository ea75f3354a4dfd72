// Package github discovers GitHub Issues workflows and syncs issue status
// through the GitHub REST API.
package github

import (
	"net/http"
	"time"
)

// API configuration constants.
const (
	// DefaultAPIEndpoint is the GitHub REST API base URL.
	DefaultAPIEndpoint = "https://api.github.com"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// APIVersion is sent as X-GitHub-Api-Version.
	APIVersion = "2022-11-28"

	// MaxPageSize is the maximum number of labels to fetch per page.
	MaxPageSize = 100

	// MaxPages is the maximum number of pages to fetch before stopping.
	// This prevents infinite loops from malformed Link headers.
	MaxPages = 50

	// maxResponseSize caps how much of a response body is read.
	maxResponseSize = 10 * 1024 * 1024
)

// Issue states.
const (
	StateOpen   = "open"
	StateClosed = "closed"
)

// Client provides methods to interact with the GitHub REST API.
type Client struct {
	Token      string       // GitHub personal access token
	Owner      string       // Repository owner (user or org)
	Repo       string       // Repository name
	BaseURL    string       // API base URL (default: https://api.github.com)
	HTTPClient *http.Client // Optional custom HTTP client

	// OnResponse, when set, receives the headers of every response.
	OnResponse func(http.Header)
}

// Issue is the subset of a GitHub issue needed for status sync.
type Issue struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"` // "open" or "closed"
	Labels    []Label    `json:"labels"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// LabelNames returns the names of the issue's labels.
func (i Issue) LabelNames() []string {
	names := make([]string, len(i.Labels))
	for j, l := range i.Labels {
		names[j] = l.Name
	}
	return names
}

// Label represents a GitHub label.
type Label struct {
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// IssueUpdate is the PATCH body for a status change. Labels replaces the
// issue's label set.
type IssueUpdate struct {
	State  string   `json:"state,omitempty"`
	Labels []string `json:"labels"`
}
