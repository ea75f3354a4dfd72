package tracker

import (
	"context"
	"slices"
	"testing"

	"github.com/steveyegge/trackersync/internal/types"
)

type stubDetector struct {
	tool types.Tool
}

func (s *stubDetector) Tool() types.Tool                   { return s.tool }
func (s *stubDetector) ValidateParams(DetectParams) error { return nil }
func (s *stubDetector) Detect(context.Context, DetectParams) (*WorkflowInfo, error) {
	return &WorkflowInfo{Tool: s.tool, Statuses: []string{"open", "closed"}}, nil
}

// swapDetector installs factory for tool until the test ends.
func swapDetector(t *testing.T, tool types.Tool, factory DetectorFactory) {
	t.Helper()
	prev := Register(tool, factory)
	t.Cleanup(func() { Register(tool, prev) })
}

func TestRegistry(t *testing.T) {
	for _, tool := range types.AllTools() {
		swapDetector(t, tool, nil)
	}

	t.Run("empty", func(t *testing.T) {
		if got := Registered(); len(got) != 0 {
			t.Errorf("Registered() = %v, want empty", got)
		}
		if _, err := NewDetector(types.ToolJira); err == nil {
			t.Error("NewDetector() should fail for unregistered tool")
		}
	})

	t.Run("registered in tool order", func(t *testing.T) {
		swapDetector(t, types.ToolJira, func() WorkflowDetector { return &stubDetector{tool: types.ToolJira} })
		swapDetector(t, types.ToolGitHub, func() WorkflowDetector { return &stubDetector{tool: types.ToolGitHub} })

		want := []types.Tool{types.ToolGitHub, types.ToolJira}
		if got := Registered(); !slices.Equal(got, want) {
			t.Errorf("Registered() = %v, want %v", got, want)
		}
		d, err := NewDetector(types.ToolJira)
		if err != nil {
			t.Fatalf("NewDetector() error = %v", err)
		}
		if d.Tool() != types.ToolJira {
			t.Errorf("Tool() = %q", d.Tool())
		}
	})

	t.Run("register returns the replaced factory", func(t *testing.T) {
		first := func() WorkflowDetector { return &stubDetector{tool: types.ToolADO} }
		swapDetector(t, types.ToolADO, first)
		prev := Register(types.ToolADO, nil)
		if prev == nil {
			t.Fatal("Register() did not return the previous factory")
		}
		if slices.Contains(Registered(), types.ToolADO) {
			t.Error("nil factory did not unregister the tool")
		}
		if old := Register(types.ToolADO, prev); old != nil {
			t.Error("Register() on an empty slot returned a factory")
		}
	})

	t.Run("each call builds a new detector", func(t *testing.T) {
		calls := 0
		swapDetector(t, types.ToolADO, func() WorkflowDetector {
			calls++
			return &stubDetector{tool: types.ToolADO}
		})
		_, _ = NewDetector(types.ToolADO)
		_, _ = NewDetector(types.ToolADO)
		if calls != 2 {
			t.Errorf("factory called %d times, want 2", calls)
		}
	})
}
