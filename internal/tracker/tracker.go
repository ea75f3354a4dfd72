package tracker

import (
	"context"

	"github.com/steveyegge/trackersync/internal/types"
)

// WorkflowDetector is the plugin interface each platform integration implements.
// Detectors register themselves with Register from their package init functions.
type WorkflowDetector interface {
	// Tool returns the platform this detector serves.
	Tool() types.Tool

	// ValidateParams checks the platform's required parameters.
	// It must not touch the network.
	ValidateParams(params DetectParams) error

	// Detect queries the platform and returns its normalized workflow.
	Detect(ctx context.Context, params DetectParams) (*WorkflowInfo, error)
}
