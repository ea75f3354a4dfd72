package azuredevops

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

// NewClient creates a new Azure DevOps client.
func NewClient(organization, project, pat string) *Client {
	// Handle both organization name and full URL
	baseURL := organization
	if !strings.HasPrefix(organization, "http") {
		baseURL = fmt.Sprintf("https://dev.azure.com/%s", organization)
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	return &Client{
		Organization: organization,
		Project:      project,
		PAT:          pat,
		BaseURL:      baseURL,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// doRequest performs an HTTP request with authentication.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, contentType string) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	// Add API version to path
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	reqURL := c.BaseURL + path + separator + "api-version=" + APIVersion

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Azure DevOps uses Basic auth with empty username and PAT as password
	auth := base64.StdEncoding.EncodeToString([]byte(":" + c.PAT))
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	} else if body != nil {
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
		return nil, resp.Header, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, retry.FromStatus(resp.StatusCode, resp.Header,
			fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	return respBody, resp.Header, nil
}

func (c *Client) projectPath() string {
	return "/" + url.PathEscape(c.Project)
}

// WorkItemTypeStates lists the states of a work item type in the project.
func (c *Client) WorkItemTypeStates(ctx context.Context, workItemType string) ([]WorkItemTypeState, error) {
	path := fmt.Sprintf("%s/_apis/wit/workitemtypes/%s/states", c.projectPath(), url.PathEscape(workItemType))
	respBody, _, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch states for %s: %w", workItemType, err)
	}

	var states StatesResponse
	if err := json.Unmarshal(respBody, &states); err != nil {
		return nil, fmt.Errorf("failed to parse states response: %w", err)
	}
	return states.Value, nil
}

// FetchWorkItem retrieves a single work item by ID.
func (c *Client) FetchWorkItem(ctx context.Context, id int) (*WorkItem, http.Header, error) {
	path := fmt.Sprintf("%s/_apis/wit/workitems/%d", c.projectPath(), id)
	respBody, headers, err := c.doRequest(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, headers, fmt.Errorf("failed to fetch work item %d: %w", id, err)
	}

	var wi WorkItem
	if err := json.Unmarshal(respBody, &wi); err != nil {
		return nil, headers, fmt.Errorf("failed to parse work item: %w", err)
	}
	return &wi, headers, nil
}

// UpdateWorkItem applies JSON Patch operations to a work item.
func (c *Client) UpdateWorkItem(ctx context.Context, id int, ops []PatchOperation) (*WorkItem, http.Header, error) {
	path := fmt.Sprintf("%s/_apis/wit/workitems/%d", c.projectPath(), id)
	respBody, headers, err := c.doRequest(ctx, http.MethodPatch, path, ops, "application/json-patch+json")
	if err != nil {
		return nil, headers, fmt.Errorf("failed to update work item %d: %w", id, err)
	}

	var wi WorkItem
	if err := json.Unmarshal(respBody, &wi); err != nil {
		return nil, headers, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &wi, headers, nil
}

// SplitTags parses the semicolon-separated System.Tags field.
func SplitTags(tags string) []string {
	var out []string
	for _, t := range strings.Split(tags, ";") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// parseTimestamp parses Azure DevOps timestamp formats.
func parseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999Z"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", ts)
}
