package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/weiche/pkg/tools"
)

type fakeProvider struct {
	name       string
	defs       []tools.Definition
	exec       func(context.Context, tools.ToolCall) (*tools.ToolResult, error)
	collectors []prometheus.Collector
	closeErr   error
	closed     bool
}

func (f *fakeProvider) Name() string                       { return f.name }
func (f *fakeProvider) Tools() []tools.Definition          { return f.defs }
func (f *fakeProvider) Collectors() []prometheus.Collector { return f.collectors }

func (f *fakeProvider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	if f.exec != nil {
		return f.exec(ctx, call)
	}
	return &tools.ToolResult{CallID: call.ID, Output: f.name}, nil
}

func (f *fakeProvider) Close() error {
	f.closed = true
	return f.closeErr
}

func defs(names ...string) []tools.Definition {
	out := make([]tools.Definition, len(names))
	for i, n := range names {
		out[i] = tools.Definition{Name: n}
	}
	return out
}

func names(d []tools.Definition) string {
	var s []string
	for _, def := range d {
		s = append(s, def.Name)
	}
	return strings.Join(s, ",")
}

func newTestRegistry(t *testing.T, providers ...Provider) *Registry {
	t.Helper()
	r := New(WithRegisterer(prometheus.NewRegistry()))
	for _, p := range providers {
		if err := r.Register(p); err != nil {
			t.Fatalf("Register(%s): %v", p.Name(), err)
		}
	}
	return r
}

func TestRouting(t *testing.T) {
	r := newTestRegistry(t,
		&fakeProvider{name: "first", defs: defs("a", "shared")},
		&fakeProvider{name: "second", defs: defs("shared", "b")},
	)

	got, err := r.DiscoverTools(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if names(got) != "a,shared,b" {
		t.Errorf("DiscoverTools = %s, want a,shared,b", names(got))
	}

	for tool, want := range map[string]string{"a": "first", "shared": "first", "b": "second"} {
		if !r.CanExecute(tool) {
			t.Errorf("CanExecute(%q) = false", tool)
		}
		res, err := r.Execute(context.Background(), tools.ToolCall{ID: "c", Name: tool})
		if err != nil || res.Output != want {
			t.Errorf("Execute(%q) = %+v, %v; want output %q", tool, res, err, want)
		}
	}
	if r.CanExecute("missing") {
		t.Error("CanExecute(missing) = true")
	}
	if r.Kind() != tools.ToolKindFunction {
		t.Errorf("Kind() = %v", r.Kind())
	}
}

func TestRegisterDuplicateName(t *testing.T) {
	r := newTestRegistry(t, &fakeProvider{name: "p", defs: defs("x")})
	if err := r.Register(&fakeProvider{name: "p", defs: defs("y")}); err == nil {
		t.Fatal("expected error for duplicate provider name")
	}
	if r.CanExecute("y") {
		t.Error("tool of rejected provider is routable")
	}
}

func TestRegisterCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "fake_calls_total", Help: "calls"})
	r := New(WithRegisterer(reg))
	if err := r.Register(&fakeProvider{name: "one", collectors: []prometheus.Collector{c}}); err != nil {
		t.Fatal(err)
	}
	// The same collector again is tolerated.
	if err := r.Register(&fakeProvider{name: "two", collectors: []prometheus.Collector{c}}); err != nil {
		t.Fatalf("re-registering a collector: %v", err)
	}

	clash := prometheus.NewGauge(prometheus.GaugeOpts{Name: "fake_calls_total", Help: "other"})
	if err := r.Register(&fakeProvider{name: "three", collectors: []prometheus.Collector{clash}}); err == nil {
		t.Error("expected error for conflicting collector")
	}
}

func TestExecuteFailures(t *testing.T) {
	boom := errors.New("backend down")
	r := newTestRegistry(t,
		&fakeProvider{name: "panics", defs: defs("crash"), exec: func(context.Context, tools.ToolCall) (*tools.ToolResult, error) {
			panic("kaputt")
		}},
		&fakeProvider{name: "fails", defs: defs("fail"), exec: func(context.Context, tools.ToolCall) (*tools.ToolResult, error) {
			return nil, boom
		}},
	)
	ctx := context.Background()

	res, err := r.Execute(ctx, tools.ToolCall{ID: "c1", Name: "unknown"})
	if err != nil || !res.IsError || res.CallID != "c1" {
		t.Errorf("unknown tool: %+v, %v", res, err)
	}

	res, err = r.Execute(ctx, tools.ToolCall{ID: "c2", Name: "crash"})
	if err != nil || !res.IsError || !strings.Contains(res.Output, "panicked") || res.CallID != "c2" {
		t.Errorf("panicking tool: %+v, %v", res, err)
	}

	if _, err := r.Execute(ctx, tools.ToolCall{ID: "c3", Name: "fail"}); !errors.Is(err, boom) {
		t.Errorf("failing tool: err = %v, want %v", err, boom)
	}
}

func TestCallTimeout(t *testing.T) {
	slow := &fakeProvider{name: "slow", defs: defs("wait"), exec: func(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := New(WithRegisterer(nil), WithCallTimeout(10*time.Millisecond))
	r.MustRegister(slow)

	_, err := r.Execute(context.Background(), tools.ToolCall{Name: "wait"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestClose(t *testing.T) {
	p1 := &fakeProvider{name: "p1"}
	p2 := &fakeProvider{name: "p2", closeErr: errors.New("stuck")}
	p3 := &fakeProvider{name: "p3"}
	r := newTestRegistry(t, p1, p2, p3)

	err := r.Close()
	if err == nil || !strings.Contains(err.Error(), "p2: stuck") {
		t.Errorf("Close() = %v, want error mentioning p2", err)
	}
	if !p1.closed || !p2.closed || !p3.closed {
		t.Error("not every provider was closed")
	}
}

func TestEmptyRegistry(t *testing.T) {
	r := New()
	if r.HasProviders() {
		t.Error("HasProviders() = true")
	}
	if d, _ := r.DiscoverTools(context.Background()); len(d) != 0 {
		t.Errorf("DiscoverTools = %v", d)
	}
	if err := r.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}

func TestFunc(t *testing.T) {
	shout := NewFunc(tools.Definition{Name: "shout"}, func(_ context.Context, args string) (string, error) {
		if args == "" {
			return "", errors.New("nothing to shout")
		}
		return strings.ToUpper(args) + "!", nil
	})
	r := newTestRegistry(t, shout)

	res, err := r.Execute(context.Background(), tools.ToolCall{ID: "c1", Name: "shout", Arguments: "hey"})
	if err != nil || res.Output != "HEY!" || res.IsError {
		t.Fatalf("Execute = %+v, %v", res, err)
	}

	res, err = r.Execute(context.Background(), tools.ToolCall{ID: "c2", Name: "shout"})
	if err != nil {
		t.Fatalf("handler error surfaced as Go error: %v", err)
	}
	if !res.IsError || res.Output != "nothing to shout" {
		t.Errorf("result = %+v, want error result", res)
	}
}
