package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/steveyegge/trackersync/internal/config"
	"github.com/steveyegge/trackersync/internal/permission"
	"github.com/steveyegge/trackersync/internal/statussync"
	"github.com/steveyegge/trackersync/internal/tracker/github"
	"github.com/steveyegge/trackersync/internal/tracker/testutil"
	"github.com/steveyegge/trackersync/internal/types"
)

const githubConfig = `{
  "sync": {
    "settings": {"canUpsertInternalItems": true, "canUpdateExternalItems": false, "canUpdateStatus": true},
    "statusSync": {
      "enabled": true,
      "mappings": {
        "github": {
          "planning": "open",
          "active": {"state": "open", "labels": ["in-progress"]},
          "paused": {"state": "open", "labels": ["paused"]},
          "completed": "closed",
          "abandoned": {"state": "closed", "labels": ["wontfix"]}
        }
      }
    }
  },
  "github": {"owner": "acme", "repo": "widgets", "token": "ghp_test"},
  "retry": {"maxRetries": 1, "initialDelay": 1, "maxDelay": 2},
  "performance": {"batchDelay": 1}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, config.DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, config.FileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return root
}

func run(t *testing.T, root string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(&stdout, &stderr)
	cmd.SetArgs(append([]string{"--root", root, "--no-color"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestPermissionsCommand(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("TRACKERSYNC_NO_EMOJI", "")
	root := writeConfig(t, githubConfig)

	out, _, err := run(t, root, "permissions")
	if err != nil {
		t.Fatalf("permissions: %v", err)
	}
	for _, want := range []string{"SYNC PERMISSIONS", "✅ Can UPDATE status", "❌ Cannot update external items"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, _, err = run(t, root, "permissions", "--json")
	if err != nil {
		t.Fatalf("permissions --json: %v", err)
	}
	var report permissionsReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if !report.Exists || !report.Settings.CanUpdateStatus || report.Settings.CanUpdateExternalItems {
		t.Errorf("report = %+v", report)
	}
}

func TestPermissionsMissingConfig(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "permissions")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "everything is denied") {
		t.Errorf("output = %q", out)
	}
}

func TestPermissionsCheck(t *testing.T) {
	root := writeConfig(t, githubConfig)

	if _, _, err := run(t, root, "permissions", "check", "update-status"); err != nil {
		t.Errorf("update-status should be allowed: %v", err)
	}
	_, _, err := run(t, root, "permissions", "check", "update-external")
	if !errors.Is(err, permission.ErrPermissionDenied) {
		t.Errorf("update-external error = %v, want permission denied", err)
	}
	if _, _, err := run(t, root, "permissions", "check", "delete"); err == nil || !strings.Contains(err.Error(), "unknown operation") {
		t.Errorf("unknown operation error = %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	t.Run("valid for the project's tool", func(t *testing.T) {
		out, _, err := run(t, writeConfig(t, githubConfig), "validate", "github")
		if err != nil {
			t.Fatalf("validate: %v\n%s", err, out)
		}
		if !strings.Contains(out, "mappings valid for [github]") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("every platform by default", func(t *testing.T) {
		out, _, err := run(t, writeConfig(t, githubConfig), "validate")
		if !errors.Is(err, errInvalidConfig) {
			t.Fatalf("err = %v, want errInvalidConfig", err)
		}
		for _, want := range []string{"no mappings configured for tool jira", "no mappings configured for tool ado"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("unknown tool", func(t *testing.T) {
		if _, _, err := run(t, writeConfig(t, githubConfig), "validate", "trello"); err == nil {
			t.Error("expected an error for an unknown tool")
		}
	})

	t.Run("incomplete mapping", func(t *testing.T) {
		root := writeConfig(t, `{"sync": {"statusSync": {"mappings": {"jira": {"planning": "To Do"}}}}}`)
		out, _, err := run(t, root, "validate", "--format", "yaml")
		if !errors.Is(err, errInvalidConfig) {
			t.Fatalf("err = %v, want errInvalidConfig", err)
		}
		if got := strings.Count(out, "missing mapping for status"); got != 4 {
			t.Errorf("missing mapping count = %d, want 4:\n%s", got, out)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		out, _, err := run(t, t.TempDir(), "validate")
		if !errors.Is(err, errInvalidConfig) {
			t.Fatalf("err = %v", err)
		}
		if !strings.Contains(out, "config file not found") {
			t.Errorf("output = %q", out)
		}
	})
}

func TestMalformedConfigDeniesEverything(t *testing.T) {
	root := writeConfig(t, `{"sync": {"settings": {"canUpdateStatus": true}`)
	_, stderr, err := run(t, root, "permissions", "check", "update-status")
	if !errors.Is(err, permission.ErrPermissionDenied) {
		t.Errorf("err = %v, want permission denied", err)
	}
	if !strings.Contains(stderr, "config unreadable") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestMapCommand(t *testing.T) {
	root := writeConfig(t, githubConfig)

	out, _, err := run(t, root, "map")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "github:\n") || !strings.Contains(out, "labels: [in-progress]") {
		t.Errorf("map output:\n%s", out)
	}

	out, _, err = run(t, root, "map", "--defaults", "ado")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "paused: On Hold") || strings.Contains(out, "github") {
		t.Errorf("map --defaults ado:\n%s", out)
	}

	out, _, err = run(t, root, "map", "to", "github", "active")
	if err != nil || strings.TrimSpace(out) != "open [in-progress]" {
		t.Errorf("map to = %q, %v", out, err)
	}

	out, _, err = run(t, root, "map", "from", "github", "closed", "-l", "bug", "-l", "wontfix")
	if err != nil || strings.TrimSpace(out) != "abandoned" {
		t.Errorf("map from = %q, %v", out, err)
	}

	if _, _, err := run(t, root, "map", "to", "jira", "active"); err == nil {
		t.Error("expected error for unmapped tool")
	}
}

func TestEstimateCommand(t *testing.T) {
	root := t.TempDir()

	out, _, err := run(t, root, "estimate", "github", "--range", "1m", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var report estimateReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	est := report.Estimates[0]
	if est.Items != 200 || est.APICalls != 300 || est.DurationMinutes != 2 || est.Impact != "medium" {
		t.Errorf("estimate = %+v", est)
	}
	if report.Validation == nil || !report.Validation.Safe {
		t.Errorf("validation = %+v", report.Validation)
	}

	out, _, err = run(t, root, "estimate", "jira", "-r", "ALL")
	if err == nil || !strings.Contains(err.Error(), "not safe") {
		t.Errorf("jira ALL err = %v", err)
	}
	if !strings.Contains(out, "| ALL | 5000 | 7500 | 50 | critical |") {
		t.Errorf("markdown output:\n%s", out)
	}

	out, _, err = run(t, root, "estimate", "ado", "--all-ranges", "--format", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out, "- tool: ado"); got != 7 {
		t.Errorf("ranges = %d, want 7:\n%s", got, out)
	}
}

func TestRateLimitCommand(t *testing.T) {
	out, _, err := run(t, t.TempDir(), "ratelimit")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"5000 requests / 1h0m0s (live)", "100 requests / 1m0s (estimated)", "200 requests / 5m0s (estimated)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func newGitHubServer(t *testing.T) *testutil.MockTrackerServer {
	t.Helper()
	server := testutil.NewMockTrackerServer(t)
	server.SetDefaultHeader("X-RateLimit-Limit", "5000")
	server.SetDefaultHeader("X-RateLimit-Remaining", "4321")
	server.SetResponse("/repos/acme/widgets/labels", 200, []github.Label{{Name: "bug"}, {Name: "in-progress"}})
	return server
}

func TestDetectCommand(t *testing.T) {
	root := writeConfig(t, githubConfig)
	server := newGitHubServer(t)

	out, _, err := run(t, root, "detect", "github", "--base-url", server.URL())
	if err != nil {
		t.Fatalf("detect: %v\n%s", err, out)
	}
	for _, want := range []string{"Statuses: open, closed", "Labels: bug, in-progress", "4321/5000", `label "paused"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	reqs := server.GetRequests()
	if len(reqs) != 1 || reqs[0].Headers.Get("Authorization") != "Bearer ghp_test" {
		t.Errorf("requests = %+v", reqs)
	}
}

func TestDetectMissingCredentials(t *testing.T) {
	for _, k := range []string{"JIRA_URL", "JIRA_EMAIL", "JIRA_API_TOKEN", "JIRA_PROJECT"} {
		t.Setenv(k, "")
	}
	_, _, err := run(t, writeConfig(t, githubConfig), "detect", "jira")
	if err == nil || !strings.Contains(err.Error(), "missing required parameter") {
		t.Errorf("err = %v", err)
	}
}

func TestSyncPush(t *testing.T) {
	root := writeConfig(t, githubConfig)
	server := newGitHubServer(t)
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	server.SetResponse("GET /repos/acme/widgets/issues/42", 200, github.Issue{
		Number: 42, State: "open", Labels: []github.Label{{Name: "bug"}}, UpdatedAt: &older,
	})
	server.SetResponse("GET /repos/acme/widgets/issues/43", 200, github.Issue{
		Number: 43, State: "closed", UpdatedAt: &older,
	})
	server.SetResponse("PATCH /repos/acme/widgets/issues/42", 200, github.Issue{Number: 42, State: "closed"})

	out, _, err := run(t, root, "sync", "push", "github", "--base-url", server.URL(), "--json",
		"task-1=42:completed@2026-02-01T00:00:00Z",
		"task-2=#43:completed@2026-02-01T00:00:00Z")
	if err != nil {
		t.Fatalf("sync push: %v\n%s", err, out)
	}

	var report statussync.BulkResult
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if report.Total != 2 || report.Changed != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.Results[0].Action != statussync.SyncedToExternal || report.Results[1].Action != statussync.NoSyncNeeded {
		t.Errorf("actions = %s, %s", report.Results[0].Action, report.Results[1].Action)
	}

	var patch *testutil.RecordedRequest
	for _, r := range server.GetRequests() {
		if r.Method == "PATCH" {
			patch = &r
		}
	}
	if patch == nil {
		t.Fatal("no PATCH request recorded")
	}
	var update github.IssueUpdate
	if err := json.Unmarshal(patch.Body, &update); err != nil {
		t.Fatal(err)
	}
	if update.State != "closed" || len(update.Labels) != 1 || update.Labels[0] != "bug" {
		t.Errorf("update = %+v", update)
	}
}

func TestSyncPullFromFile(t *testing.T) {
	root := writeConfig(t, githubConfig)
	server := newGitHubServer(t)
	newer := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	server.SetResponse("GET /repos/acme/widgets/issues/7", 200, github.Issue{
		Number: 7, State: "open", Labels: []github.Label{{Name: "paused"}}, UpdatedAt: &newer,
	})
	items := filepath.Join(t.TempDir(), "items.yaml")
	if err := os.WriteFile(items, []byte("- id: task-7\n  externalId: \"7\"\n  status: active\n  updatedAt: 2026-01-01T00:00:00Z\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, root, "sync", "pull", "github", "--base-url", server.URL(), "-f", items, "--stats")
	if err != nil {
		t.Fatalf("sync pull: %v\n%s", err, out)
	}
	for _, want := range []string{"task-7 <- paused", "1 items: 1 changed", "Cache: 0 hits, 1 misses"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	for _, r := range server.GetRequests() {
		if r.Method != "GET" {
			t.Errorf("pull sent %s %s", r.Method, r.Path)
		}
	}
}

func TestSyncGates(t *testing.T) {
	server := newGitHubServer(t)

	disabled := strings.Replace(githubConfig, `"enabled": true`, `"enabled": false`, 1)
	_, _, err := run(t, writeConfig(t, disabled), "sync", "push", "github", "--base-url", server.URL(), "a=1:active")
	if !errors.Is(err, statussync.ErrSyncDisabled) {
		t.Errorf("disabled err = %v", err)
	}

	denied := strings.Replace(githubConfig, `"canUpdateStatus": true`, `"canUpdateStatus": false`, 1)
	_, _, err = run(t, writeConfig(t, denied), "sync", "push", "github", "--base-url", server.URL(), "a=1:active")
	if !errors.Is(err, permission.ErrPermissionDenied) {
		t.Errorf("denied err = %v", err)
	}
	if n := server.GetRequestCount(); n != 0 {
		t.Errorf("gated sync made %d requests", n)
	}
}

func TestSyncItemFailure(t *testing.T) {
	root := writeConfig(t, githubConfig)
	server := newGitHubServer(t)

	out, _, err := run(t, root, "sync", "push", "github", "--base-url", server.URL(), "a=99:active")
	if err == nil || !strings.Contains(err.Error(), "1 of 1 items failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out, "a ") {
		t.Errorf("output = %q", out)
	}
}

func TestParseItemArg(t *testing.T) {
	tests := []struct {
		arg     string
		want    statussync.Item
		wantErr bool
	}{
		{arg: "task-1=42:active", want: statussync.Item{ID: "task-1", ExternalID: "42", Status: types.StatusActive}},
		{arg: "t=PROJ-7:Completed", want: statussync.Item{ID: "t", ExternalID: "PROJ-7", Status: types.StatusCompleted}},
		{
			arg:  "t=1:paused@2026-01-02T03:04:05Z",
			want: statussync.Item{ID: "t", ExternalID: "1", Status: types.StatusPaused, UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		{arg: "no-equals", wantErr: true},
		{arg: "t=42", wantErr: true},
		{arg: "t=42:done", wantErr: true},
		{arg: "t=42:active@yesterday", wantErr: true},
		{arg: "=42:active", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseItemArg(tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseItemArg(%q) error = %v, wantErr %v", tt.arg, err, tt.wantErr)
			}
			if !tt.wantErr && !got.UpdatedAt.Equal(tt.want.UpdatedAt) {
				t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, tt.want.UpdatedAt)
			}
			got.UpdatedAt, tt.want.UpdatedAt = time.Time{}, time.Time{}
			if got != tt.want {
				t.Errorf("parseItemArg(%q) = %+v, want %+v", tt.arg, got, tt.want)
			}
		})
	}
}

func TestFindProjectRoot(t *testing.T) {
	root := writeConfig(t, "{}")
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if got := findProjectRoot(nested); got != root {
		t.Errorf("findProjectRoot = %q, want %q", got, root)
	}
	lone := t.TempDir()
	if got := findProjectRoot(lone); got != lone {
		t.Errorf("findProjectRoot without config = %q, want %q", got, lone)
	}
}
