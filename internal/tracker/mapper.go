package tracker

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/trackersync/internal/types"
)

var (
	// ErrNoToolMappings means the tool has no mapping table at all (setup omission).
	ErrNoToolMappings = errors.New("no mappings configured for tool")
	// ErrNoStatusMapping means the tool's table exists but lacks the status (incomplete table).
	ErrNoStatusMapping = errors.New("no mapping for status")
)

// ExternalStatus is a platform status: a state token plus optional labels for platforms
// whose native state machine is coarser than the five local statuses.
type ExternalStatus struct {
	State  string   `json:"state" yaml:"state"`
	Labels []string `json:"labels,omitempty" yaml:"labels,omitempty"`
}

// IsCompound reports whether the status carries labels in addition to its state.
func (s ExternalStatus) IsCompound() bool {
	return len(s.Labels) > 0
}

// String renders the status as "state" or "state [label, label]".
func (s ExternalStatus) String() string {
	if !s.IsCompound() {
		return s.State
	}
	return fmt.Sprintf("%s [%s]", s.State, strings.Join(s.Labels, ", "))
}

// UnmarshalJSON accepts either a bare state string or a {state, labels} object.
func (s *ExternalStatus) UnmarshalJSON(data []byte) error {
	var state string
	if err := json.Unmarshal(data, &state); err == nil {
		*s = ExternalStatus{State: state}
		return nil
	}
	type compound ExternalStatus
	var c compound
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("status mapping must be a string or {state, labels}: %w", err)
	}
	if c.State == "" {
		return fmt.Errorf("status mapping object is missing \"state\"")
	}
	*s = ExternalStatus(c)
	return nil
}

func (s ExternalStatus) clone() ExternalStatus {
	out := ExternalStatus{State: s.State}
	if len(s.Labels) > 0 {
		out.Labels = append([]string(nil), s.Labels...)
	}
	return out
}

// ToolMappings maps each local status to a platform status for one tool.
type ToolMappings map[types.LocalStatus]ExternalStatus

// StatusMapper translates between local statuses and each platform's vocabulary.
// It is read-only after construction and safe for concurrent use.
type StatusMapper struct {
	mappings map[types.Tool]ToolMappings
}

// NewStatusMapper creates a mapper over a deep copy of the given tables.
func NewStatusMapper(mappings map[types.Tool]ToolMappings) *StatusMapper {
	m := &StatusMapper{mappings: make(map[types.Tool]ToolMappings, len(mappings))}
	for tool, table := range mappings {
		cp := make(ToolMappings, len(table))
		for status, ext := range table {
			cp[status] = ext.clone()
		}
		m.mappings[tool] = cp
	}
	return m
}

// Tools returns the tools that have a mapping table, sorted.
func (m *StatusMapper) Tools() []types.Tool {
	tools := make([]types.Tool, 0, len(m.mappings))
	for tool := range m.mappings {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })
	return tools
}

// HasTool reports whether a mapping table exists for the tool.
func (m *StatusMapper) HasTool(tool types.Tool) bool {
	_, ok := m.mappings[tool]
	return ok
}

// Table returns a copy of the tool's mapping table.
func (m *StatusMapper) Table(tool types.Tool) (ToolMappings, bool) {
	table, ok := m.mappings[tool]
	if !ok {
		return nil, false
	}
	cp := make(ToolMappings, len(table))
	for status, ext := range table {
		cp[status] = ext.clone()
	}
	return cp, true
}

// MapToExternal converts a local status to the tool's platform status.
func (m *StatusMapper) MapToExternal(status types.LocalStatus, tool types.Tool) (ExternalStatus, error) {
	table, ok := m.mappings[tool]
	if !ok {
		return ExternalStatus{}, fmt.Errorf("%w %s", ErrNoToolMappings, tool)
	}
	ext, ok := table[status]
	if !ok {
		return ExternalStatus{}, fmt.Errorf("%w %s in tool %s", ErrNoStatusMapping, status, tool)
	}
	return ext.clone(), nil
}

// MapFromExternal returns the first local status, in canonical order, whose mapping state
// equals state. Unknown inbound states return false rather than an error so that one odd
// item cannot abort a sync pass.
func (m *StatusMapper) MapFromExternal(state string, tool types.Tool) (types.LocalStatus, bool) {
	table, ok := m.mappings[tool]
	if !ok {
		return "", false
	}
	for _, status := range types.AllLocalStatuses() {
		ext, ok := table[status]
		if ok && strings.EqualFold(ext.State, state) {
			return status, true
		}
	}
	return "", false
}

// MapFromExternalWithLabels resolves compound mappings using the item's labels. Among
// statuses whose state matches and whose labels are all present, the one requiring the
// most labels wins; ties keep canonical order. Falls back to MapFromExternal.
func (m *StatusMapper) MapFromExternalWithLabels(state string, labels []string, tool types.Tool) (types.LocalStatus, bool) {
	table, ok := m.mappings[tool]
	if !ok {
		return "", false
	}
	have := make(map[string]bool, len(labels))
	for _, l := range labels {
		have[strings.ToLower(l)] = true
	}

	var best types.LocalStatus
	bestLabels := 0
	for _, status := range types.AllLocalStatuses() {
		ext, ok := table[status]
		if !ok || !ext.IsCompound() || !strings.EqualFold(ext.State, state) {
			continue
		}
		if !containsAll(have, ext.Labels) {
			continue
		}
		if len(ext.Labels) > bestLabels {
			best, bestLabels = status, len(ext.Labels)
		}
	}
	if bestLabels > 0 {
		return best, true
	}

	// Prefer a simple mapping for the bare state over a compound one whose labels are absent.
	for _, status := range types.AllLocalStatuses() {
		ext, ok := table[status]
		if ok && !ext.IsCompound() && strings.EqualFold(ext.State, state) {
			return status, true
		}
	}
	return m.MapFromExternal(state, tool)
}

// ManagedLabels returns every label the tool's mappings use, sorted and
// deduplicated case-insensitively. Platform adapters remove these before
// applying a new compound status.
func (m *StatusMapper) ManagedLabels(tool types.Tool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ext := range m.mappings[tool] {
		for _, l := range ext.Labels {
			if !seen[strings.ToLower(l)] {
				seen[strings.ToLower(l)] = true
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}

func containsAll(have map[string]bool, want []string) bool {
	for _, l := range want {
		if !have[strings.ToLower(l)] {
			return false
		}
	}
	return true
}

// ValidationResult reports problems found in the mapping tables.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks that every supported tool has a table mapping all five
// local statuses. Intended for setup time, not per call.
func (m *StatusMapper) Validate() ValidationResult {
	return m.ValidateTools(types.AllTools()...)
}

// ValidateTools is Validate restricted to the given tools, for projects that
// sync with a subset of platforms.
func (m *StatusMapper) ValidateTools(tools ...types.Tool) ValidationResult {
	var errs []string
	for _, tool := range tools {
		table, ok := m.mappings[tool]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: %v %s", tool, ErrNoToolMappings, tool))
			continue
		}
		for _, status := range types.AllLocalStatuses() {
			ext, ok := table[status]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: missing mapping for status %q", tool, status))
				continue
			}
			if strings.TrimSpace(ext.State) == "" {
				errs = append(errs, fmt.Sprintf("%s: empty state for status %q", tool, status))
			}
		}
	}
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// DefaultMappings returns a conventional starting table for each platform.
func DefaultMappings() map[types.Tool]ToolMappings {
	return map[types.Tool]ToolMappings{
		types.ToolGitHub: {
			types.StatusPlanning:  {State: "open"},
			types.StatusActive:    {State: "open", Labels: []string{"in-progress"}},
			types.StatusPaused:    {State: "open", Labels: []string{"paused"}},
			types.StatusCompleted: {State: "closed"},
			types.StatusAbandoned: {State: "closed", Labels: []string{"wontfix"}},
		},
		types.ToolJira: {
			types.StatusPlanning:  {State: "To Do"},
			types.StatusActive:    {State: "In Progress"},
			types.StatusPaused:    {State: "On Hold"},
			types.StatusCompleted: {State: "Done"},
			types.StatusAbandoned: {State: "Cancelled"},
		},
		types.ToolADO: {
			types.StatusPlanning:  {State: "New"},
			types.StatusActive:    {State: "Active"},
			types.StatusPaused:    {State: "On Hold"},
			types.StatusCompleted: {State: "Closed"},
			types.StatusAbandoned: {State: "Removed"},
		},
	}
}
