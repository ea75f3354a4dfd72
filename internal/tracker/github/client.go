package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyegge/trackersync/internal/retry"
)

// NewClient creates a new GitHub client.
func NewClient(token, owner, repo string) *Client {
	return &Client{
		Token:   token,
		Owner:   owner,
		Repo:    repo,
		BaseURL: DefaultAPIEndpoint,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// WithHTTPClient returns a new client with a custom HTTP client.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

// WithBaseURL returns a new client with a custom base URL (for testing or GitHub Enterprise).
func (c *Client) WithBaseURL(baseURL string) *Client {
	cp := *c
	cp.BaseURL = strings.TrimSuffix(baseURL, "/")
	return &cp
}

// WithResponseHook returns a new client that reports every response's headers to fn.
func (c *Client) WithResponseHook(fn func(http.Header)) *Client {
	cp := *c
	cp.OnResponse = fn
	return &cp
}

// repoPath returns the "owner/repo" path segment.
func (c *Client) repoPath() string {
	return url.PathEscape(c.Owner) + "/" + url.PathEscape(c.Repo)
}

// buildURL constructs a full API URL.
func (c *Client) buildURL(path string, params map[string]string) string {
	u := c.BaseURL + path
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		u += "?" + values.Encode()
	}
	return u
}

// doRequest performs one authenticated request. Retrying is the caller's
// concern; failures carry their HTTP classification.
func (c *Client) doRequest(ctx context.Context, method, urlStr string, body interface{}) ([]byte, http.Header, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, reqBody)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", APIVersion)
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

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, resp.Header, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.Header, retry.FromStatus(resp.StatusCode, resp.Header,
			fmt.Errorf("API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))))
	}
	return respBody, resp.Header, nil
}

// linkNextPattern matches the "next" relation in GitHub Link headers.
var linkNextPattern = regexp.MustCompile(`<([^>]+)>;\s*rel="next"`)

// hasNextPage checks the Link header for a next page URL and returns it.
func hasNextPage(headers http.Header) (string, bool) {
	link := headers.Get("Link")
	if link == "" {
		return "", false
	}
	matches := linkNextPattern.FindStringSubmatch(link)
	if len(matches) < 2 {
		return "", false
	}
	return matches[1], true
}

// ListLabels retrieves every label defined on the repository.
func (c *Client) ListLabels(ctx context.Context) ([]Label, error) {
	var all []Label
	for page := 1; ; page++ {
		if page > MaxPages {
			return nil, fmt.Errorf("pagination limit exceeded: stopped after %d pages", MaxPages)
		}
		urlStr := c.buildURL("/repos/"+c.repoPath()+"/labels", map[string]string{
			"per_page": strconv.Itoa(MaxPageSize),
			"page":     strconv.Itoa(page),
		})
		respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to list labels: %w", err)
		}

		var labels []Label
		if err := json.Unmarshal(respBody, &labels); err != nil {
			return nil, fmt.Errorf("failed to parse labels response: %w", err)
		}
		all = append(all, labels...)

		if _, ok := hasNextPage(headers); !ok {
			return all, nil
		}
	}
}

// FetchIssue retrieves a single issue by its number.
func (c *Client) FetchIssue(ctx context.Context, number int) (*Issue, http.Header, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, headers, err := c.doRequest(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, headers, fmt.Errorf("failed to fetch issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, headers, fmt.Errorf("failed to parse issue response: %w", err)
	}
	return &issue, headers, nil
}

// UpdateIssue applies a status change to an issue.
func (c *Client) UpdateIssue(ctx context.Context, number int, update IssueUpdate) (*Issue, http.Header, error) {
	urlStr := c.buildURL("/repos/"+c.repoPath()+"/issues/"+strconv.Itoa(number), nil)
	respBody, headers, err := c.doRequest(ctx, http.MethodPatch, urlStr, update)
	if err != nil {
		return nil, headers, fmt.Errorf("failed to update issue #%d: %w", number, err)
	}

	var issue Issue
	if err := json.Unmarshal(respBody, &issue); err != nil {
		return nil, headers, fmt.Errorf("failed to parse update response: %w", err)
	}
	return &issue, headers, nil
}
