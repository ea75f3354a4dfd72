package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/steveyegge/trackersync/internal/retry"
)

// NewClient creates a new Jira client.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(url, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// ProjectStatuses returns the distinct status names used by any issue type in
// the project, in first-seen order.
func (c *Client) ProjectStatuses(ctx context.Context, projectKey string) ([]string, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/project/%s/statuses", c.URL, url.PathEscape(projectKey))
	body, _, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch statuses for project %s: %w", projectKey, err)
	}

	var issueTypes []IssueTypeStatuses
	if err := json.Unmarshal(body, &issueTypes); err != nil {
		return nil, fmt.Errorf("parse project statuses: %w", err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, it := range issueTypes {
		for _, s := range it.Statuses {
			key := strings.ToLower(s.Name)
			if s.Name == "" || seen[key] {
				continue
			}
			seen[key] = true
			names = append(names, s.Name)
		}
	}
	return names, nil
}

// FirstIssueKey returns the key of one issue in the project, or "" if the
// project has none.
func (c *Client) FirstIssueKey(ctx context.Context, projectKey string) (string, error) {
	params := url.Values{}
	params.Set("jql", fmt.Sprintf("project=%s ORDER BY created DESC", projectKey))
	params.Set("maxResults", "1")
	params.Set("fields", "status")
	apiURL := fmt.Sprintf("%s/rest/api/3/search?%s", c.URL, params.Encode())

	body, _, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", fmt.Errorf("search project %s: %w", projectKey, err)
	}
	var result SearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parse search response: %w", err)
	}
	if len(result.Issues) == 0 {
		return "", nil
	}
	return result.Issues[0].Key, nil
}

// Transitions lists the transitions available on an issue.
func (c *Client) Transitions(ctx context.Context, issueKey string) ([]Transition, http.Header, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/transitions", c.URL, url.PathEscape(issueKey))
	body, headers, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, headers, fmt.Errorf("fetch transitions for %s: %w", issueKey, err)
	}
	var result TransitionsResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, headers, fmt.Errorf("parse transitions: %w", err)
	}
	return result.Transitions, headers, nil
}

// GetIssue fetches an issue's status, labels and update time.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, http.Header, error) {
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=status,labels,updated", c.URL, url.PathEscape(key))
	body, headers, err := c.doRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, headers, fmt.Errorf("fetch issue %s: %w", key, err)
	}
	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, headers, fmt.Errorf("parse issue %s: %w", key, err)
	}
	return &issue, headers, nil
}

// DoTransition moves an issue through the transition with the given ID.
func (c *Client) DoTransition(ctx context.Context, key, transitionID string) (http.Header, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal transition: %w", err)
	}
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s/transitions", c.URL, url.PathEscape(key))
	_, headers, err := c.doRequest(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return headers, fmt.Errorf("transition issue %s: %w", key, err)
	}
	return headers, nil
}

// AddLabels adds labels to an issue without touching existing ones.
func (c *Client) AddLabels(ctx context.Context, key string, labels []string) (http.Header, error) {
	ops := make([]map[string]string, len(labels))
	for i, l := range labels {
		ops[i] = map[string]string{"add": l}
	}
	payload, err := json.Marshal(map[string]interface{}{
		"update": map[string]interface{}{"labels": ops},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal labels: %w", err)
	}
	apiURL := fmt.Sprintf("%s/rest/api/3/issue/%s", c.URL, url.PathEscape(key))
	_, headers, err := c.doRequest(ctx, http.MethodPut, apiURL, payload)
	if err != nil {
		return headers, fmt.Errorf("update labels on %s: %w", key, err)
	}
	return headers, nil
}

// doRequest executes an authenticated HTTP request and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, apiURL string, body []byte) ([]byte, http.Header, error) {
	if c.URL == "" {
		return nil, nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, nil, fmt.Errorf("jira API token not configured")
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, bodyReader)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "trackersync/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if c.OnResponse != nil {
		c.OnResponse(resp.Header)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, fmt.Errorf("read response: %w", err)
	}

	// PUT and transition POST return 204 No Content on success
	if resp.StatusCode == http.StatusNoContent {
		return nil, resp.Header, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, retry.FromStatus(resp.StatusCode, resp.Header,
			fmt.Errorf("jira API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	return respBody, resp.Header, nil
}

// setAuth sets the appropriate authentication header on the request.
// Cloud instances use Basic auth with email and API token; a bare token
// is sent as a Bearer PAT for Server/Data Center.
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}

// ParseTimestamp parses Jira's timestamp formats.
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", ts)
}
