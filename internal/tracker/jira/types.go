// Package jira discovers JIRA project workflows and syncs issue status
// through the JIRA Cloud REST API (v3).
package jira

import (
	"net/http"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string // account email for Jira Cloud
	APIToken   string
	HTTPClient *http.Client

	// OnResponse, when set, receives the headers of every response.
	OnResponse func(http.Header)
}

// Issue represents a Jira issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the fields requested for status sync.
type IssueFields struct {
	Status  *StatusField `json:"status"`
	Labels  []string     `json:"labels"`
	Updated string       `json:"updated"`
}

// StatusField represents a Jira issue status.
type StatusField struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// IssueTypeStatuses is one entry of GET /project/{key}/statuses.
type IssueTypeStatuses struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	Statuses []StatusField `json:"statuses"`
}

// Transition is an action available on an issue in its current status.
type Transition struct {
	ID   string      `json:"id"`
	Name string      `json:"name"`
	To   StatusField `json:"to"`
}

// TransitionsResult is the response of GET /issue/{key}/transitions.
type TransitionsResult struct {
	Transitions []Transition `json:"transitions"`
}

// SearchResult represents a Jira JQL search response.
type SearchResult struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}
