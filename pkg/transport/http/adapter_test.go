package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rhuss/weiche/pkg/agent"
	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/engine"
	"github.com/rhuss/weiche/pkg/provider"
	"github.com/rhuss/weiche/pkg/tools"
	"github.com/rhuss/weiche/pkg/transport"
)

// mockCreator is a configurable mock CompletionCreator for testing.
type mockCreator struct {
	completion *api.ChatCompletion
	chunks     []*api.ChatCompletionChunk
	err        error
	gotReq     *api.ChatCompletionRequest
	gotCtx     context.Context
}

func (m *mockCreator) CreateCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	m.gotReq = req
	m.gotCtx = ctx
	for _, c := range m.chunks {
		if err := w.WriteChunk(ctx, c); err != nil {
			return err
		}
	}
	if m.err != nil {
		return m.err
	}
	if m.completion != nil {
		return w.WriteCompletion(ctx, m.completion)
	}
	return nil
}

func newTestAdapter(creator transport.CompletionCreator) *Adapter {
	return NewAdapter(creator, DefaultConfig())
}

func post(t *testing.T, srv *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST error: %v", err)
	}
	return resp
}

// readSSE returns the data payloads of an SSE body in order.
func readSSE(t *testing.T, r io.Reader) []string {
	t.Helper()
	var payloads []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			payloads = append(payloads, strings.TrimPrefix(line, "data: "))
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("reading SSE body: %v", err)
	}
	return payloads
}

func decodeError(t *testing.T, r io.Reader) string {
	t.Helper()
	var body api.ErrorResponse
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	return body.Error
}

const userHello = `{"model":"m","messages":[{"role":"user","content":"hello"}]`

func TestNonStreamingPostReturnsJSON(t *testing.T) {
	creator := &mockCreator{
		completion: &api.ChatCompletion{
			ID:     "chatcmpl-abc",
			Object: api.ObjectChatCompletion,
			Model:  "m",
			Choices: []api.Choice{{
				Message:      api.AssistantMessage{Role: api.RoleAssistant, Content: "hi"},
				FinishReason: api.FinishReasonStop,
			}},
		},
	}
	srv := httptest.NewServer(newTestAdapter(creator).Handler())
	defer srv.Close()

	resp := post(t, srv, userHello+`,"stream":false}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}

	var got api.ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if got.ID != "chatcmpl-abc" {
		t.Errorf("ID = %q", got.ID)
	}
	if creator.gotReq.IsStreaming() {
		t.Error("stream:false should be classified as non-streaming")
	}
}

func TestStreamingPostEndsWithDone(t *testing.T) {
	creator := &mockCreator{chunks: []*api.ChatCompletionChunk{textChunk("a"), textChunk("b")}}
	srv := httptest.NewServer(newTestAdapter(creator).Handler())
	defer srv.Close()

	resp := post(t, srv, userHello+`}`)
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	payloads := readSSE(t, resp.Body)
	if len(payloads) != 3 {
		t.Fatalf("got %d events, want 3: %v", len(payloads), payloads)
	}
	if payloads[2] != "[DONE]" {
		t.Errorf("last event = %q, want [DONE]", payloads[2])
	}
}

func TestMalformedBodyIsServerError(t *testing.T) {
	creator := &mockCreator{}
	srv := httptest.NewServer(newTestAdapter(creator).Handler())
	defer srv.Close()

	for _, body := range []string{`{"messages": [`, ``, `[1,2]`} {
		resp := post(t, srv, body)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("body %q: status = %d, want 500", body, resp.StatusCode)
		}
		if msg := decodeError(t, resp.Body); !strings.Contains(msg, "invalid JSON") {
			t.Errorf("body %q: error = %q", body, msg)
		}
		resp.Body.Close()
	}
	if creator.gotReq != nil {
		t.Error("creator must not be called for a malformed body")
	}
}

func TestBodyTooLarge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBodySize = 16
	srv := httptest.NewServer(NewAdapter(&mockCreator{}, cfg).Handler())
	defer srv.Close()

	resp := post(t, srv, userHello+`}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", resp.StatusCode)
	}
}

func TestHandlerErrorNonStreaming(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing prompt", api.NewMissingPromptError(), http.StatusBadRequest},
		{"invalid request", api.NewInvalidRequestError("temperature", "out of range"), http.StatusBadRequest},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(newTestAdapter(&mockCreator{err: tt.err}).Handler())
			defer srv.Close()

			resp := post(t, srv, userHello+`,"stream":false}`)
			defer resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if msg := decodeError(t, resp.Body); msg == "" {
				t.Error("expected non-empty error message")
			}
		})
	}
}

func TestHandlerErrorStreamingBecomesErrorEvent(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{err: api.NewMissingPromptError()}).Handler())
	defer srv.Close()

	resp := post(t, srv, userHello+`,"stream":true}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	payloads := readSSE(t, resp.Body)
	if len(payloads) != 1 {
		t.Fatalf("got %d events, want exactly one error event: %v", len(payloads), payloads)
	}
	var ev api.StreamErrorEvent
	if err := json.Unmarshal([]byte(payloads[0]), &ev); err != nil {
		t.Fatalf("decoding error event: %v", err)
	}
	if ev.Error == nil || ev.Error.Code != api.CodeMissingPrompt {
		t.Errorf("error event = %+v, want code %q", ev.Error, api.CodeMissingPrompt)
	}
}

func TestHandlerErrorAfterChunks(t *testing.T) {
	creator := &mockCreator{
		chunks: []*api.ChatCompletionChunk{textChunk("partial")},
		err:    errors.New("connection to agent lost"),
	}
	srv := httptest.NewServer(newTestAdapter(creator).Handler())
	defer srv.Close()

	resp := post(t, srv, userHello+`}`)
	defer resp.Body.Close()

	payloads := readSSE(t, resp.Body)
	if len(payloads) != 2 {
		t.Fatalf("got %d events, want chunk + error: %v", len(payloads), payloads)
	}
	if !strings.Contains(payloads[1], "connection to agent lost") {
		t.Errorf("error event = %q", payloads[1])
	}
}

func TestPreflight(t *testing.T) {
	tests := []struct {
		name        string
		auth        bool
		wantHeaders string
	}{
		{"without auth", false, "Content-Type"},
		{"with auth", true, "Content-Type, Authorization"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AllowAuthorization = tt.auth
			srv := httptest.NewServer(NewAdapter(&mockCreator{}, cfg).Handler())
			defer srv.Close()

			for _, path := range []string{"/v1/chat/completions", "/anything/else"} {
				req, _ := http.NewRequest(http.MethodOptions, srv.URL+path, nil)
				resp, err := http.DefaultClient.Do(req)
				if err != nil {
					t.Fatalf("OPTIONS %s: %v", path, err)
				}
				resp.Body.Close()

				if resp.StatusCode != http.StatusNoContent {
					t.Errorf("OPTIONS %s status = %d, want 204", path, resp.StatusCode)
				}
				if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
					t.Errorf("Allow-Origin = %q", got)
				}
				if got := resp.Header.Get("Access-Control-Allow-Methods"); got != "POST, OPTIONS" {
					t.Errorf("Allow-Methods = %q", got)
				}
				if got := resp.Header.Get("Access-Control-Allow-Headers"); got != tt.wantHeaders {
					t.Errorf("Allow-Headers = %q, want %q", got, tt.wantHeaders)
				}
			}
		})
	}
}

func TestUnknownRoutesAreNotFound(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}).Handler())
	defer srv.Close()

	cases := []struct{ method, path string }{
		{http.MethodGet, "/v1/chat/completions"},
		{http.MethodPost, "/v1/responses"},
		{http.MethodDelete, "/"},
		{http.MethodPut, "/healthz"},
	}
	for _, c := range cases {
		req, _ := http.NewRequest(c.method, srv.URL+c.path, nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", c.method, c.path, err)
		}
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", c.method, c.path, resp.StatusCode)
		}
		if msg := decodeError(t, resp.Body); msg != "Not Found" {
			t.Errorf("%s %s error = %q, want Not Found", c.method, c.path, msg)
		}
		resp.Body.Close()
	}
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(newTestAdapter(&mockCreator{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}
}

func TestListModels(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []string{"claude-sonnet"}
	srv := httptest.NewServer(NewAdapter(&mockCreator{}, cfg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var list api.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Object != "list" || len(list.Data) != 1 || list.Data[0].ID != "claude-sonnet" {
		t.Errorf("model list = %+v", list)
	}
}

type modelListerFunc func(context.Context) ([]provider.ModelInfo, error)

func (f modelListerFunc) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	return f(ctx)
}

func listModels(t *testing.T, cfg Config) api.ModelList {
	t.Helper()
	srv := httptest.NewServer(NewAdapter(&mockCreator{}, cfg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/models")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var list api.ModelList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	return list
}

func TestListModelsFromBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []string{"claude-sonnet"}
	cfg.ModelLister = modelListerFunc(func(context.Context) ([]provider.ModelInfo, error) {
		return []provider.ModelInfo{
			{ID: "claude-sonnet", OwnedBy: "anthropic"},
			{ID: "claude-haiku", OwnedBy: "anthropic"},
		}, nil
	})

	list := listModels(t, cfg)
	if len(list.Data) != 2 {
		t.Fatalf("model list = %+v, want configured model plus one backend model", list.Data)
	}
	if list.Data[0].ID != "claude-sonnet" || list.Data[1].ID != "claude-haiku" || list.Data[1].OwnedBy != "anthropic" {
		t.Errorf("model list = %+v", list.Data)
	}
}

func TestListModelsBackendFailureFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Models = []string{"claude-sonnet"}
	cfg.ModelLister = modelListerFunc(func(context.Context) ([]provider.ModelInfo, error) {
		return nil, errors.New("backend down")
	})

	list := listModels(t, cfg)
	if len(list.Data) != 1 || list.Data[0].ID != "claude-sonnet" {
		t.Errorf("model list = %+v, want configured models only", list.Data)
	}
}

func TestMetricsRouteToggle(t *testing.T) {
	for _, enabled := range []bool{true, false} {
		cfg := DefaultConfig()
		cfg.Metrics = enabled
		srv := httptest.NewServer(NewAdapter(&mockCreator{}, cfg).Handler())

		resp, err := http.Get(srv.URL + "/metrics")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		srv.Close()

		want := http.StatusNotFound
		if enabled {
			want = http.StatusOK
		}
		if resp.StatusCode != want {
			t.Errorf("metrics enabled=%v: status = %d, want %d", enabled, resp.StatusCode, want)
		}
	}
}

func TestRequestIDHeader(t *testing.T) {
	creator := &mockCreator{completion: &api.ChatCompletion{}}
	srv := httptest.NewServer(newTestAdapter(creator).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/v1/chat/completions",
		strings.NewReader(userHello+`,"stream":false}`))
	req.Header.Set("X-Request-ID", "client-id-42")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := resp.Header.Get("X-Request-ID"); got != "client-id-42" {
		t.Errorf("X-Request-ID = %q, want client-id-42", got)
	}
	if got := transport.RequestIDFromContext(creator.gotCtx); got != "client-id-42" {
		t.Errorf("context request ID = %q, want client-id-42", got)
	}

	resp = post(t, srv, userHello+`,"stream":false}`)
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}
}

func TestCancelInFlight(t *testing.T) {
	started := make(chan struct{})
	creator := transport.CompletionCreatorFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
		w.WriteChunk(ctx, textChunk("first"))
		close(started)
		<-ctx.Done()
		return nil
	})
	adapter := newTestAdapter(creator)
	srv := httptest.NewServer(adapter.Handler())
	defer srv.Close()

	done := make(chan []string, 1)
	go func() {
		resp, err := http.Post(srv.URL+"/v1/chat/completions", "application/json", strings.NewReader(userHello+`}`))
		if err != nil {
			done <- nil
			return
		}
		defer resp.Body.Close()
		done <- readSSE(t, resp.Body)
	}()

	<-started
	if ids := adapter.CancelInFlight(); len(ids) != 1 || ids[0] == "" {
		t.Errorf("CancelInFlight() = %v, want one request ID", ids)
	}
	payloads := <-done
	if len(payloads) == 0 || payloads[len(payloads)-1] != "[DONE]" {
		t.Errorf("cancelled stream should still terminate cleanly, got %v", payloads)
	}
}

// --- End-to-end scenarios through the engine ---

// scriptedSource replays events for every turn. A tool call request is
// followed by a content event echoing the resolved outcome.
type scriptedSource struct {
	events []agent.Event
}

func (s *scriptedSource) StartTurn(ctx context.Context, _ agent.Turn) iter.Seq[agent.Event] {
	return func(yield func(agent.Event) bool) {
		for _, ev := range s.events {
			if ev.Call != nil {
				call := *ev.Call
				ev.Call = &call
			}
			if !yield(ev) {
				return
			}
			if ev.Call != nil {
				outcome, _ := ev.Call.Outcome()
				if !yield(agent.Event{Type: agent.EventContent, Text: "saw: " + outcome.Output}) {
					return
				}
			}
		}
	}
}

type failingExecutor struct{}

func (failingExecutor) Execute(_ context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	return nil, errors.New("backend unavailable")
}

func newEngineServer(t *testing.T, events []agent.Event, exec engine.Executor) *httptest.Server {
	t.Helper()
	eng, err := engine.New(&scriptedSource{events: events}, exec, engine.Config{DefaultModel: "default-model"})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(NewServer(eng, WithMetrics(false)).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestScenarioStreamOmitted(t *testing.T) {
	srv := newEngineServer(t, []agent.Event{
		{Type: agent.EventContent, Text: "Hello"},
		{Type: agent.EventContent, Text: " world"},
	}, nil)

	resp := post(t, srv, `{"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	payloads := readSSE(t, resp.Body)
	if len(payloads) != 4 {
		t.Fatalf("got %d events, want 2 content + terminal + [DONE]: %v", len(payloads), payloads)
	}

	var content strings.Builder
	for i, p := range payloads[:3] {
		var chunk api.ChatCompletionChunk
		if err := json.Unmarshal([]byte(p), &chunk); err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		if chunk.Model != "default-model" {
			t.Errorf("chunk %d model = %q, want default-model", i, chunk.Model)
		}
		if c := chunk.Choices[0].Delta.Content; c != nil {
			content.WriteString(*c)
		}
		if i == 2 {
			if fr := chunk.Choices[0].FinishReason; fr == nil || *fr != "stop" {
				t.Errorf("terminal chunk finish_reason = %v, want stop", fr)
			}
		}
	}
	if content.String() != "Hello world" {
		t.Errorf("streamed content = %q, want %q", content.String(), "Hello world")
	}
	if payloads[3] != "[DONE]" {
		t.Errorf("last event = %q", payloads[3])
	}
}

func TestScenarioStreamFalse(t *testing.T) {
	srv := newEngineServer(t, []agent.Event{
		{Type: agent.EventContent, Text: "Hello"},
		{Type: agent.EventContent, Text: " world"},
	}, nil)

	resp := post(t, srv, `{"model":"m1","stream":false,"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	raw, _ := io.ReadAll(resp.Body)
	var got api.ChatCompletion
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Object != "chat.completion" || got.Model != "m1" {
		t.Errorf("completion = %+v", got)
	}
	if got.Choices[0].Message.Content != "Hello world" {
		t.Errorf("content = %q", got.Choices[0].Message.Content)
	}
	if bytes.Contains(raw, []byte("tool_calls")) {
		t.Errorf("tool_calls must be omitted without tool use: %s", raw)
	}
}

func TestScenarioFailingTool(t *testing.T) {
	events := []agent.Event{
		{Type: agent.EventContent, Text: "Let me check."},
		{Type: agent.EventToolCallRequest, Call: &agent.ToolCallRequest{
			ID: "call_1", Name: "lookup", Arguments: json.RawMessage(`{"q":"x"}`),
		}},
	}
	srv := newEngineServer(t, events, failingExecutor{})

	resp := post(t, srv, `{"stream":false,"messages":[{"role":"user","content":"hi"}]}`)
	defer resp.Body.Close()

	var got api.ChatCompletion
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	msg := got.Choices[0].Message
	want := "Let me check.\n[Error: tool lookup failed: backend unavailable]\nsaw: backend unavailable"
	if msg.Content != want {
		t.Errorf("content = %q, want %q", msg.Content, want)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "call_1" || msg.ToolCalls[0].Function.Arguments != `{"q":"x"}` {
		t.Errorf("tool_calls = %+v", msg.ToolCalls)
	}
}

func TestScenarioMissingPrompt(t *testing.T) {
	srv := newEngineServer(t, nil, nil)

	resp := post(t, srv, `{"stream":false,"messages":[{"role":"system","content":"be nice"}]}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("non-streaming status = %d, want 400", resp.StatusCode)
	}
	resp.Body.Close()

	resp = post(t, srv, `{"messages":[{"role":"user","content":"   "}]}`)
	defer resp.Body.Close()
	payloads := readSSE(t, resp.Body)
	if len(payloads) != 1 || !strings.Contains(payloads[0], `"code":"missing_prompt"`) {
		t.Errorf("streaming missing prompt events = %v", payloads)
	}
}
