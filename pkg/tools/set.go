package tools

import (
	"context"
	"fmt"
	"log/slog"
)

// Set routes tool calls across several executors. The first executor
// whose CanExecute accepts a name handles it. An optional allow list
// restricts which tool names are advertised and executed.
type Set struct {
	executors []ToolExecutor
	allowed   map[string]bool
}

// NewSet creates a Set over the given executors, in priority order.
// Nil executors are skipped.
func NewSet(executors ...ToolExecutor) *Set {
	s := &Set{}
	for _, e := range executors {
		if e != nil {
			s.executors = append(s.executors, e)
		}
	}
	return s
}

// WithAllowed limits the set to the named tools. An empty list allows all.
func (s *Set) WithAllowed(names []string) *Set {
	if len(names) == 0 {
		s.allowed = nil
		return s
	}
	s.allowed = make(map[string]bool, len(names))
	for _, n := range names {
		s.allowed[n] = true
	}
	return s
}

// Len returns the number of executors in the set.
func (s *Set) Len() int {
	return len(s.executors)
}

func (s *Set) isAllowed(name string) bool {
	return s.allowed == nil || s.allowed[name]
}

// Resolve returns the executor handling the named tool.
func (s *Set) Resolve(name string) (ToolExecutor, bool) {
	if !s.isAllowed(name) {
		return nil, false
	}
	for _, e := range s.executors {
		if e.CanExecute(name) {
			return e, true
		}
	}
	return nil, false
}

// Execute routes the call to its executor. It fails with ErrToolNotFound
// when no executor handles the name or the name is not allowed.
func (s *Set) Execute(ctx context.Context, call ToolCall) (*ToolResult, error) {
	e, ok := s.Resolve(call.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, call.Name)
	}
	return e.Execute(ctx, call)
}

// DiscoverTools collects the definitions of every discoverable executor.
// A failing executor is logged and skipped so one unreachable MCP server
// does not hide the remaining tools. Duplicate names keep the first
// definition.
func (s *Set) DiscoverTools(ctx context.Context) []Definition {
	var defs []Definition
	seen := make(map[string]bool)
	for _, e := range s.executors {
		d, ok := e.(Discoverer)
		if !ok {
			continue
		}
		found, err := d.DiscoverTools(ctx)
		if err != nil {
			slog.Warn("tool discovery failed", "kind", e.Kind().String(), "error", err)
			continue
		}
		for _, def := range found {
			if seen[def.Name] || !s.isAllowed(def.Name) {
				continue
			}
			seen[def.Name] = true
			defs = append(defs, def)
		}
	}
	return defs
}
