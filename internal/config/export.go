package config

import (
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/trackersync/internal/tracker"
	"github.com/steveyegge/trackersync/internal/types"
)

// MarshalMappingsYAML renders mapping tables as YAML, tools sorted and statuses
// in canonical order. Simple statuses render as a bare state.
func MarshalMappingsYAML(mappings map[types.Tool]tracker.ToolMappings) ([]byte, error) {
	tools := make([]types.Tool, 0, len(mappings))
	for tool := range mappings {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i] < tools[j] })

	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, tool := range tools {
		table := &yaml.Node{Kind: yaml.MappingNode}
		for _, status := range types.AllLocalStatuses() {
			ext, ok := mappings[tool][status]
			if !ok {
				continue
			}
			table.Content = append(table.Content, scalar(string(status)), statusNode(ext))
		}
		root.Content = append(root.Content, scalar(string(tool)), table)
	}
	doc := &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}
	return yaml.Marshal(doc)
}

func statusNode(ext tracker.ExternalStatus) *yaml.Node {
	if !ext.IsCompound() {
		return scalar(ext.State)
	}
	labels := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, l := range ext.Labels {
		labels.Content = append(labels.Content, scalar(l))
	}
	return &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
		scalar("state"), scalar(ext.State),
		scalar("labels"), labels,
	}}
}

func scalar(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}
