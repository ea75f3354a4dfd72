package tracker

import (
	"strings"
	"testing"
)

type mapStore map[string]string

func (m mapStore) GetString(key string) string { return m[key] }

func TestConfigGet(t *testing.T) {
	t.Setenv("JIRA_API_TOKEN", "from-env")
	t.Setenv("JIRA_EMAIL", "env@example.com")

	c := NewConfig("jira", mapStore{"jira.email": "cfg@example.com"})

	if got := c.Get("email"); got != "cfg@example.com" {
		t.Errorf("Get(email) = %q, want config value", got)
	}
	if got := c.Get("api_token"); got != "from-env" {
		t.Errorf("Get(api_token) = %q, want env fallback", got)
	}
	if got := c.Get("url"); got != "" {
		t.Errorf("Get(url) = %q, want empty", got)
	}
}

func TestConfigGetRequired(t *testing.T) {
	c := NewConfig("ado", nil)
	_, err := c.GetRequired("pat")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "ADO_PAT") {
		t.Errorf("error should mention env var: %v", err)
	}
}

func TestParamsFromConfig(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "ghp_test")
	p := ParamsFromConfig("github", mapStore{"github.owner": "acme", "github.repo": "widgets"})
	if p.GitHub == nil || p.GitHub.Owner != "acme" || p.GitHub.Repo != "widgets" || p.GitHub.Token != "ghp_test" {
		t.Errorf("GitHub params = %+v", p.GitHub)
	}

	p = ParamsFromConfig("ado", mapStore{"ado.organization": "contoso", "ado.project": "Fabrikam"})
	if p.ADO == nil || p.ADO.Project != "Fabrikam" {
		t.Errorf("ADO params = %+v", p.ADO)
	}
	if p := ParamsFromConfig("gitlab", nil); p.Tool != "" {
		t.Errorf("unknown tool should yield empty params, got %+v", p)
	}
}
