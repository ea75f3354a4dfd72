// Package testutil provides an httptest-backed platform server for workflow
// discovery and status sync tests.
package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RecordedRequest stores information about a request made to the mock server.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Headers  http.Header
	Body     []byte
}

// MockResponse represents a configured response for the mock server.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Headers    map[string]string
}

// MockTrackerServer records requests and serves canned JSON responses keyed
// by "METHOD /path" or by path alone.
type MockTrackerServer struct {
	Server *httptest.Server
	mu     sync.RWMutex

	requests []RecordedRequest

	responses      map[string]MockResponse
	defaultHeaders map[string]string
	defaultHandler func(w http.ResponseWriter, r *http.Request)

	authError      bool
	rateLimitError bool
	serverError    bool

	rateLimitRetries int
	rateLimitCount   int
}

// NewMockTrackerServer starts a mock server. It is closed when the test ends.
func NewMockTrackerServer(t testing.TB) *MockTrackerServer {
	t.Helper()
	m := &MockTrackerServer{
		responses:      make(map[string]MockResponse),
		defaultHeaders: make(map[string]string),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	t.Cleanup(m.Server.Close)
	return m
}

func (m *MockTrackerServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Headers:  r.Header.Clone(),
		Body:     body,
	})
	for k, v := range m.defaultHeaders {
		w.Header().Set(k, v)
	}
	limited := false
	if m.rateLimitError {
		m.rateLimitCount++
		limited = m.rateLimitCount <= m.rateLimitRetries
	}
	authError, serverError := m.authError, m.serverError
	resp, found := m.responses[r.Method+" "+r.URL.Path]
	if !found {
		resp, found = m.responses[r.URL.Path]
	}
	handler := m.defaultHandler
	m.mu.Unlock()

	switch {
	case authError:
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	case limited:
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limited"})
		return
	case serverError:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	if found {
		for k, v := range resp.Headers {
			w.Header().Set(k, v)
		}
		status := resp.StatusCode
		if status == 0 {
			status = http.StatusOK
		}
		writeJSON(w, status, resp.Body)
		return
	}
	if handler != nil {
		handler(w, r)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
}

// URL returns the mock server URL.
func (m *MockTrackerServer) URL() string {
	return m.Server.URL
}

// SetResponse configures a response for a path, optionally prefixed with a method ("PATCH /x").
func (m *MockTrackerServer) SetResponse(route string, statusCode int, body interface{}) {
	m.SetResponseWithHeaders(route, statusCode, body, nil)
}

// SetResponseWithHeaders configures a response with custom headers.
func (m *MockTrackerServer) SetResponseWithHeaders(route string, statusCode int, body interface{}, headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[route] = MockResponse{StatusCode: statusCode, Body: body, Headers: headers}
}

// SetDefaultHeader adds a header to every response, e.g. rate limit headers.
func (m *MockTrackerServer) SetDefaultHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultHeaders[key] = value
}

// SetDefaultHandler sets a custom handler for unmatched requests.
func (m *MockTrackerServer) SetDefaultHandler(handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultHandler = handler
}

// SetAuthError enables/disables 401 Unauthorized responses.
func (m *MockTrackerServer) SetAuthError(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authError = enabled
}

// SetRateLimitError makes the next retries requests fail with 429 and Retry-After: 1.
func (m *MockTrackerServer) SetRateLimitError(enabled bool, retries int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimitError = enabled
	m.rateLimitRetries = retries
	m.rateLimitCount = 0
}

// SetServerError enables/disables 500 Internal Server Error responses.
func (m *MockTrackerServer) SetServerError(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.serverError = enabled
}

// GetRequests returns all recorded requests.
func (m *MockTrackerServer) GetRequests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]RecordedRequest, len(m.requests))
	copy(result, m.requests)
	return result
}

// GetRequestCount returns the number of recorded requests.
func (m *MockTrackerServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// Reset clears all recorded requests, responses and error simulation.
func (m *MockTrackerServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responses = make(map[string]MockResponse)
	m.defaultHeaders = make(map[string]string)
	m.authError = false
	m.rateLimitError = false
	m.serverError = false
	m.rateLimitCount = 0
	m.rateLimitRetries = 0
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
