// Package registry hosts in-process function tools such as the clock and
// web search. Providers contribute tools; the Registry routes calls to
// them and serves as a tools.ToolExecutor.
package registry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/weiche/pkg/tools"
)

// Provider contributes one or more function tools.
type Provider interface {
	// Name identifies the provider in logs, e.g. "web_search".
	Name() string

	Tools() []tools.Definition

	// Execute runs a call for one of the provider's tools. A Go error
	// means the call could not be made.
	Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error)

	// Collectors returns provider-specific metrics, if any.
	Collectors() []prometheus.Collector

	Close() error
}

// Handler is the body of a single-function tool. It receives the raw JSON
// arguments and returns the tool output.
type Handler func(ctx context.Context, arguments string) (string, error)

// Func is a Provider made of one definition and its handler.
type Func struct {
	Def     tools.Definition
	Handler Handler
}

// NewFunc wraps h as a provider for the tool described by def.
func NewFunc(def tools.Definition, h Handler) *Func {
	return &Func{Def: def, Handler: h}
}

func (f *Func) Name() string                       { return f.Def.Name }
func (f *Func) Tools() []tools.Definition          { return []tools.Definition{f.Def} }
func (f *Func) Collectors() []prometheus.Collector { return nil }
func (f *Func) Close() error                       { return nil }

// Execute calls the handler. Handler errors become error results because
// the tool did run.
func (f *Func) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	out, err := f.Handler(ctx, call.Arguments)
	if err != nil {
		return &tools.ToolResult{CallID: call.ID, Output: err.Error(), IsError: true}, nil
	}
	return &tools.ToolResult{CallID: call.ID, Output: out}, nil
}
