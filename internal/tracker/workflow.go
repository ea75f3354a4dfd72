package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/trackersync/internal/types"
)

// ErrMissingParam is returned when a detector's required parameter is absent.
var ErrMissingParam = errors.New("missing required parameter")

// MissingParam builds an ErrMissingParam error naming the tool and field.
func MissingParam(tool types.Tool, field string) error {
	return fmt.Errorf("%s: %w: %s", tool.DisplayName(), ErrMissingParam, field)
}

// DetectWorkflow discovers the statuses and transitions the platform named by
// params.Tool accepts. Parameters are validated before any network call.
func DetectWorkflow(ctx context.Context, params DetectParams) (*WorkflowInfo, error) {
	if !params.Tool.IsValid() {
		return nil, fmt.Errorf("unsupported tool %q", params.Tool)
	}
	detector, err := NewDetector(params.Tool)
	if err != nil {
		return nil, err
	}
	if err := detector.ValidateParams(params); err != nil {
		return nil, err
	}
	info, err := detector.Detect(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("detect %s workflow: %w", params.Tool.DisplayName(), err)
	}
	return info, nil
}

// CheckMapping cross-checks the tool's configured mapping against a discovered workflow.
// States the platform does not accept are errors. Labels that do not exist yet are
// warnings, since platforms such as GitHub create labels on first use.
func CheckMapping(info *WorkflowInfo, mapper *StatusMapper) MappingCheck {
	if info == nil {
		return MappingCheck{Errors: []string{"no workflow information"}}
	}
	table, ok := mapper.Table(info.Tool)
	if !ok {
		return MappingCheck{Errors: []string{fmt.Sprintf("%s: %s", ErrNoToolMappings, info.Tool)}}
	}

	known := make(map[string]bool)
	for _, l := range info.Labels() {
		known[strings.ToLower(l)] = true
	}

	var check MappingCheck
	for _, status := range types.AllLocalStatuses() {
		ext, ok := table[status]
		if !ok {
			check.Errors = append(check.Errors, fmt.Sprintf("%s: missing mapping for status %q", info.Tool, status))
			continue
		}
		if !info.HasStatus(ext.State) {
			check.Errors = append(check.Errors, fmt.Sprintf("%s: state %q (for %s) not in workflow %v",
				info.Tool, ext.State, status, info.Statuses))
		}
		if len(known) == 0 {
			continue
		}
		for _, label := range ext.Labels {
			if !known[strings.ToLower(label)] {
				check.Warnings = append(check.Warnings, fmt.Sprintf("%s: label %q (for %s) does not exist yet",
					info.Tool, label, status))
			}
		}
	}
	check.Valid = len(check.Errors) == 0
	return check
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// AnyToAny builds a transition table where every status may move to every other.
func AnyToAny(statuses []string) map[string][]string {
	out := make(map[string][]string, len(statuses))
	for _, from := range statuses {
		var targets []string
		for _, to := range statuses {
			if to != from {
				targets = append(targets, to)
			}
		}
		out[from] = targets
	}
	return out
}
