package tracker

import (
	"fmt"
	"os"
	"strings"

	"github.com/steveyegge/trackersync/internal/types"
)

// Config resolves platform credentials and identifiers for a tracker integration.
// Values come from the project config document first and fall back to environment
// variables, so tokens need not be committed alongside the sync settings.
type Config struct {
	// Prefix is the config key prefix for this tracker (e.g., "github", "jira")
	Prefix string

	// Store provides access to the loaded config document
	Store ConfigStore
}

// ConfigStore provides read access to string config values by dotted key.
type ConfigStore interface {
	GetString(key string) string
}

// NewConfig creates a new tracker config with the given prefix and store.
func NewConfig(prefix string, store ConfigStore) *Config {
	return &Config{Prefix: prefix, Store: store}
}

// Get retrieves a config value by key, checking both the config store
// and environment variables. The key should not include the tracker prefix.
// Example: cfg.Get("api_token") for "jira" prefix looks up "jira.api_token"
// and falls back to "JIRA_API_TOKEN" env var.
func (c *Config) Get(key string) string {
	if c.Store != nil {
		if value := c.Store.GetString(c.Prefix + "." + key); value != "" {
			return value
		}
	}
	return os.Getenv(c.envVarName(key))
}

// GetRequired is like Get but returns an error if the value is empty.
func (c *Config) GetRequired(key string) (string, error) {
	value := c.Get(key)
	if value == "" {
		fullKey := c.Prefix + "." + key
		return "", fmt.Errorf("%s not configured\nSet %q in .trackersync/config.json\nOr: export %s=VALUE",
			fullKey, fullKey, c.envVarName(key))
	}
	return value, nil
}

// envVarName converts a config key to its environment variable name.
// Example: for prefix "ado" and key "pat", returns "ADO_PAT"
func (c *Config) envVarName(key string) string {
	envKey := strings.ToUpper(c.Prefix + "_" + key)
	return strings.ReplaceAll(envKey, ".", "_")
}

// CredentialKeys names the config keys read for each platform.
var CredentialKeys = struct {
	Token        string
	Owner        string
	Repo         string
	BaseURL      string
	Email        string
	APIToken     string
	ProjectKey   string
	Organization string
	Project      string
	PAT          string
	WorkItemType string
}{
	Token:        "token",
	Owner:        "owner",
	Repo:         "repo",
	BaseURL:      "url",
	Email:        "email",
	APIToken:     "api_token",
	ProjectKey:   "project",
	Organization: "organization",
	Project:      "project",
	PAT:          "pat",
	WorkItemType: "work_item_type",
}

// ParamsFromConfig assembles the DetectParams for tool from config and environment.
// Missing values are left empty; the detector reports them via ValidateParams.
func ParamsFromConfig(tool types.Tool, store ConfigStore) DetectParams {
	k := CredentialKeys
	switch tool {
	case types.ToolGitHub:
		c := NewConfig(string(tool), store)
		return DetectParams{Tool: tool, GitHub: &GitHubParams{
			Owner: c.Get(k.Owner),
			Repo:  c.Get(k.Repo),
			Token: c.Get(k.Token),
		}, BaseURL: c.Get(k.BaseURL)}
	case types.ToolJira:
		c := NewConfig(string(tool), store)
		return DetectParams{Tool: tool, Jira: &JiraParams{
			BaseURL:    c.Get(k.BaseURL),
			Email:      c.Get(k.Email),
			APIToken:   c.Get(k.APIToken),
			ProjectKey: c.Get(k.ProjectKey),
			IssueKey:   c.Get("issue"),
		}}
	case types.ToolADO:
		c := NewConfig(string(tool), store)
		return DetectParams{Tool: tool, ADO: &ADOParams{
			Organization: c.Get(k.Organization),
			Project:      c.Get(k.Project),
			PAT:          c.Get(k.PAT),
			WorkItemType: c.Get(k.WorkItemType),
		}}
	}
	return DetectParams{}
}
