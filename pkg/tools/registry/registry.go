package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/weiche/pkg/tools"
)

// Registry routes function tool calls to the provider that owns the tool.
// It is safe for concurrent use.
type Registry struct {
	registerer  prometheus.Registerer
	callTimeout time.Duration

	mu        sync.RWMutex
	providers []Provider
	owners    map[string]Provider
}

var (
	_ tools.ToolExecutor = (*Registry)(nil)
	_ tools.Discoverer   = (*Registry)(nil)
)

// Option configures a Registry.
type Option func(*Registry)

// WithRegisterer registers provider collectors with reg instead of the
// default Prometheus registry. A nil reg disables collector registration.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(r *Registry) { r.registerer = reg }
}

// WithCallTimeout bounds every tool call. Zero means no bound beyond the
// caller's context.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Registry) { r.callTimeout = d }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		registerer: prometheus.DefaultRegisterer,
		owners:     make(map[string]Provider),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a provider. Two providers with the same name are an error.
// When two providers offer the same tool name, the earlier one keeps it.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers {
		if existing.Name() == p.Name() {
			return fmt.Errorf("provider %q already registered", p.Name())
		}
	}
	if r.registerer != nil {
		for _, c := range p.Collectors() {
			var already prometheus.AlreadyRegisteredError
			if err := r.registerer.Register(c); err != nil && !errors.As(err, &already) {
				return fmt.Errorf("registering metrics of %q: %w", p.Name(), err)
			}
		}
	}

	r.providers = append(r.providers, p)

	defs := p.Tools()
	for _, def := range defs {
		if owner, taken := r.owners[def.Name]; taken {
			slog.Warn("duplicate function tool ignored",
				"tool", def.Name,
				"provider", p.Name(),
				"owner", owner.Name(),
			)
			continue
		}
		r.owners[def.Name] = p
	}

	slog.Debug("function provider registered", "provider", p.Name(), "tools", len(defs))
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(providers ...Provider) {
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Kind() tools.ToolKind { return tools.ToolKindFunction }

func (r *Registry) CanExecute(name string) bool {
	_, ok := r.owner(name)
	return ok
}

func (r *Registry) owner(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.owners[name]
	return p, ok
}

// Execute runs the call on the owning provider. Unknown tools and
// provider panics produce error results rather than Go errors.
func (r *Registry) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	p, ok := r.owner(call.Name)
	if !ok {
		return errorResult(call, fmt.Sprintf("no function provider handles tool %q", call.Name)), nil
	}

	if r.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.callTimeout)
		defer cancel()
	}
	return safeExecute(ctx, p, call)
}

func safeExecute(ctx context.Context, p Provider, call tools.ToolCall) (res *tools.ToolResult, err error) {
	defer func() {
		if v := recover(); v != nil {
			slog.Error("function tool panicked", "provider", p.Name(), "tool", call.Name, "panic", v)
			res, err = errorResult(call, fmt.Sprintf("internal error: tool %q panicked", call.Name)), nil
		}
	}()
	return p.Execute(ctx, call)
}

func errorResult(call tools.ToolCall, msg string) *tools.ToolResult {
	return &tools.ToolResult{CallID: call.ID, Output: msg, IsError: true}
}

// DiscoverTools lists the tools owned by each provider, in registration
// order. It never fails.
func (r *Registry) DiscoverTools(context.Context) ([]tools.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var defs []tools.Definition
	for _, p := range r.providers {
		for _, def := range p.Tools() {
			if r.owners[def.Name] == p {
				defs = append(defs, def)
			}
		}
	}
	return defs, nil
}

// HasProviders reports whether anything is registered.
func (r *Registry) HasProviders() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// Close closes every provider and joins their errors.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, p := range r.providers {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
