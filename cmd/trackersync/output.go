package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// emit writes v as JSON or YAML, or calls text for the text format.
func (a *app) emit(v interface{}, text func(w io.Writer)) error {
	switch a.format {
	case formatJSON:
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
	case formatYAML:
		enc := yaml.NewEncoder(a.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return enc.Close()
	default:
		text(a.out)
	}
	return nil
}

// printf writes text output unless --quiet is set.
func (a *app) printf(format string, args ...interface{}) {
	if a.quiet {
		return
	}
	fmt.Fprintf(a.out, format, args...)
}
