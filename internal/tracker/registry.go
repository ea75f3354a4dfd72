package tracker

import (
	"fmt"
	"sync"

	"github.com/steveyegge/trackersync/internal/types"
)

// DetectorFactory builds a fresh WorkflowDetector.
type DetectorFactory func() WorkflowDetector

var (
	detectorsMu sync.RWMutex
	detectors   = map[types.Tool]DetectorFactory{}
)

// Register installs the detector factory for tool and returns the one it
// replaced, if any. A nil factory removes the tool. Platform packages call
// this from init.
func Register(tool types.Tool, factory DetectorFactory) DetectorFactory {
	detectorsMu.Lock()
	defer detectorsMu.Unlock()
	prev := detectors[tool]
	if factory == nil {
		delete(detectors, tool)
	} else {
		detectors[tool] = factory
	}
	return prev
}

// Registered returns the tools with a detector, in types.AllTools order.
func Registered() []types.Tool {
	detectorsMu.RLock()
	defer detectorsMu.RUnlock()
	var tools []types.Tool
	for _, tool := range types.AllTools() {
		if _, ok := detectors[tool]; ok {
			tools = append(tools, tool)
		}
	}
	return tools
}

// NewDetector builds a detector for tool.
func NewDetector(tool types.Tool) (WorkflowDetector, error) {
	detectorsMu.RLock()
	factory := detectors[tool]
	detectorsMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("no workflow detector for tool %q (available: %v)", tool, Registered())
	}
	return factory(), nil
}
