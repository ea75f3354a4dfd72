package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/steveyegge/trackersync/internal/retry"
	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/tracker/testutil"
	"github.com/steveyegge/trackersync/internal/types"
)

func validParams(baseURL string) tracker.DetectParams {
	return tracker.DetectParams{
		Tool:    types.ToolGitHub,
		GitHub:  &tracker.GitHubParams{Owner: "acme", Repo: "widgets", Token: "ghp_test"},
		BaseURL: baseURL,
	}
}

func TestValidateParams(t *testing.T) {
	tests := []struct {
		name   string
		params *tracker.GitHubParams
		field  string
	}{
		{"nil", nil, "owner"},
		{"no owner", &tracker.GitHubParams{Repo: "r", Token: "t"}, "owner"},
		{"no repo", &tracker.GitHubParams{Owner: "o", Token: "t"}, "repo"},
		{"no token", &tracker.GitHubParams{Owner: "o", Repo: "r", Token: "  "}, "token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockTrackerServer(t)
			params := tracker.DetectParams{Tool: types.ToolGitHub, GitHub: tt.params, BaseURL: server.URL()}

			_, err := tracker.DetectWorkflow(context.Background(), params)
			if !errors.Is(err, tracker.ErrMissingParam) {
				t.Fatalf("DetectWorkflow() error = %v, want ErrMissingParam", err)
			}
			if want := "GitHub: missing required parameter: " + tt.field; err.Error() != want {
				t.Errorf("error = %q, want %q", err, want)
			}
			if n := server.GetRequestCount(); n != 0 {
				t.Errorf("made %d requests before validation passed", n)
			}
		})
	}
}

func TestDetectWorkflow(t *testing.T) {
	server := testutil.NewMockTrackerServer(t)
	server.SetDefaultHeader("X-RateLimit-Remaining", "4990")
	server.SetDefaultHeader("X-RateLimit-Limit", "5000")
	server.SetDefaultHandler(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/acme/widgets/labels" {
			testutil.WriteJSON(w, http.StatusNotFound, nil)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer ghp_test" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/labels?page=2>; rel="next"`, "http://"+r.Host))
			testutil.WriteJSON(w, http.StatusOK, []Label{{Name: "bug"}, {Name: "in-progress"}})
		default:
			testutil.WriteJSON(w, http.StatusOK, []Label{{Name: "paused"}})
		}
	})

	var mu sync.Mutex
	var seen []string
	params := validParams(server.URL())
	params.OnResponse = func(tool types.Tool, h http.Header) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(tool)+":"+h.Get("X-RateLimit-Remaining"))
	}

	info, err := tracker.DetectWorkflow(context.Background(), params)
	if err != nil {
		t.Fatalf("DetectWorkflow() error = %v", err)
	}
	if info.Tool != types.ToolGitHub || len(info.Statuses) != 2 {
		t.Errorf("info = %+v", info)
	}
	if got := info.CanTransitionTo[StateOpen]; len(got) != 1 || got[0] != StateClosed {
		t.Errorf("open transitions = %v", got)
	}
	labels := info.Labels()
	if len(labels) != 3 || labels[2] != "paused" {
		t.Errorf("labels = %v, want three across two pages", labels)
	}
	if info.Metadata[tracker.MetadataRepository] != "acme/widgets" {
		t.Errorf("repository = %v", info.Metadata[tracker.MetadataRepository])
	}
	if len(seen) != 2 || seen[0] != "github:4990" {
		t.Errorf("OnResponse saw %v, want two github responses", seen)
	}
}

func TestDetectWorkflowErrors(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*testutil.MockTrackerServer)
		wantClass retry.ErrorClass
		wantCode  int
	}{
		{
			name:      "unauthorized",
			setup:     func(s *testutil.MockTrackerServer) { s.SetAuthError(true) },
			wantClass: retry.ClassUnknown,
			wantCode:  http.StatusUnauthorized,
		},
		{
			name: "primary rate limit",
			setup: func(s *testutil.MockTrackerServer) {
				s.SetResponseWithHeaders("/repos/acme/widgets/labels", http.StatusForbidden,
					map[string]string{"message": "API rate limit exceeded"},
					map[string]string{"X-RateLimit-Remaining": "0"})
			},
			wantClass: retry.ClassRateLimit,
			wantCode:  http.StatusForbidden,
		},
		{
			name:      "server error",
			setup:     func(s *testutil.MockTrackerServer) { s.SetServerError(true) },
			wantClass: retry.ClassServer,
			wantCode:  http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := testutil.NewMockTrackerServer(t)
			tt.setup(server)

			_, err := tracker.DetectWorkflow(context.Background(), validParams(server.URL()))
			if err == nil {
				t.Fatal("DetectWorkflow() succeeded, want error")
			}
			if got := retry.Classify(err); got != tt.wantClass {
				t.Errorf("Classify() = %s, want %s", got, tt.wantClass)
			}
			var ce *retry.ClassifiedError
			if !errors.As(err, &ce) || ce.StatusCode != tt.wantCode {
				t.Errorf("status code = %+v, want %d", ce, tt.wantCode)
			}
		})
	}
}

func TestPlatformFetchStatus(t *testing.T) {
	server := testutil.NewMockTrackerServer(t)
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	server.SetResponse("GET /repos/acme/widgets/issues/42", http.StatusOK, Issue{
		Number: 42, State: "open", Labels: []Label{{Name: "in-progress"}}, UpdatedAt: &updated,
	})

	p := NewPlatform(ClientFromParams(validParams(server.URL())), nil)
	remote, headers, err := p.FetchStatus(context.Background(), "#42")
	if err != nil {
		t.Fatalf("FetchStatus() error = %v", err)
	}
	if headers == nil {
		t.Error("FetchStatus() returned nil headers")
	}
	if remote.ID != "42" || remote.State != "open" || !remote.UpdatedAt.Equal(updated) {
		t.Errorf("remote = %+v", remote)
	}
	if len(remote.Labels) != 1 || remote.Labels[0] != "in-progress" {
		t.Errorf("labels = %v", remote.Labels)
	}

	if _, _, err := p.FetchStatus(context.Background(), "abc"); err == nil {
		t.Error("FetchStatus(abc) succeeded, want invalid number error")
	}
}

func TestPlatformUpdateStatusReplacesManagedLabels(t *testing.T) {
	server := testutil.NewMockTrackerServer(t)
	server.SetResponse("GET /repos/acme/widgets/issues/7", http.StatusOK, Issue{
		Number: 7, State: "open", Labels: []Label{{Name: "bug"}, {Name: "Paused"}},
	})
	server.SetResponse("PATCH /repos/acme/widgets/issues/7", http.StatusOK, Issue{Number: 7, State: "open"})

	managed := tracker.NewStatusMapper(tracker.DefaultMappings()).ManagedLabels(types.ToolGitHub)
	p := NewPlatform(ClientFromParams(validParams(server.URL())), managed)

	_, err := p.UpdateStatus(context.Background(), "7", tracker.ExternalStatus{State: "Open", Labels: []string{"in-progress"}})
	if err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	reqs := server.GetRequests()
	if len(reqs) != 2 || reqs[1].Method != http.MethodPatch {
		t.Fatalf("requests = %+v, want GET then PATCH", reqs)
	}
	var body IssueUpdate
	if err := json.Unmarshal(reqs[1].Body, &body); err != nil {
		t.Fatalf("decode PATCH body: %v", err)
	}
	if body.State != "open" {
		t.Errorf("state = %q, want open", body.State)
	}
	if len(body.Labels) != 2 || body.Labels[0] != "bug" || body.Labels[1] != "in-progress" {
		t.Errorf("labels = %v, want [bug in-progress]", body.Labels)
	}
}
