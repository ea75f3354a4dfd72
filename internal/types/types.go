// Package types defines the canonical status vocabulary shared by every tracker integration.
package types

import (
	"fmt"
	"strings"
)

// LocalStatus is the platform-independent lifecycle state of a work item.
type LocalStatus string

// Local status constants. The set is closed: every platform maps onto these five values.
const (
	StatusPlanning  LocalStatus = "planning"
	StatusActive    LocalStatus = "active"
	StatusPaused    LocalStatus = "paused"
	StatusCompleted LocalStatus = "completed"
	StatusAbandoned LocalStatus = "abandoned"
)

// canonicalStatuses is the fixed iteration order used wherever a tie must be broken.
var canonicalStatuses = [...]LocalStatus{
	StatusPlanning,
	StatusActive,
	StatusPaused,
	StatusCompleted,
	StatusAbandoned,
}

// AllLocalStatuses returns the five canonical statuses in canonical order.
func AllLocalStatuses() []LocalStatus {
	out := make([]LocalStatus, len(canonicalStatuses))
	copy(out, canonicalStatuses[:])
	return out
}

// IsValid checks if the status is one of the five canonical values.
func (s LocalStatus) IsValid() bool {
	switch s {
	case StatusPlanning, StatusActive, StatusPaused, StatusCompleted, StatusAbandoned:
		return true
	}
	return false
}

// IsTerminal reports whether no further work is expected on an item in this status.
func (s LocalStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAbandoned
}

// ParseLocalStatus converts a string to a LocalStatus.
func ParseLocalStatus(s string) (LocalStatus, error) {
	status := LocalStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", fmt.Errorf("invalid status %q (valid: planning, active, paused, completed, abandoned)", s)
	}
	return status, nil
}

// Tool identifies an external issue-tracking platform.
type Tool string

// Supported platforms.
const (
	ToolGitHub Tool = "github"
	ToolJira   Tool = "jira"
	ToolADO    Tool = "ado"
)

// AllTools returns the supported platforms in a stable order.
func AllTools() []Tool {
	return []Tool{ToolGitHub, ToolJira, ToolADO}
}

// IsValid checks if the tool is a supported platform.
func (t Tool) IsValid() bool {
	switch t {
	case ToolGitHub, ToolJira, ToolADO:
		return true
	}
	return false
}

// DisplayName returns the human-readable platform name.
func (t Tool) DisplayName() string {
	switch t {
	case ToolGitHub:
		return "GitHub"
	case ToolJira:
		return "JIRA"
	case ToolADO:
		return "Azure DevOps"
	default:
		return string(t)
	}
}

// ParseTool converts a string to a Tool, accepting the common Azure DevOps spellings.
func ParseTool(s string) (Tool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "github", "gh":
		return ToolGitHub, nil
	case "jira":
		return ToolJira, nil
	case "ado", "azuredevops", "azure-devops":
		return ToolADO, nil
	}
	return "", fmt.Errorf("unknown tool %q (valid: github, jira, ado)", s)
}
