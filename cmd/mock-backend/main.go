// Command mock-backend runs a deterministic OpenAI-compatible streaming
// backend for trying weiche without a real model. Start weiche with
// WEICHE_BASE_URL pointing at it and no credentials set.
//
// The backend answers every request with a short streamed reply. When the
// request advertises tools and the prompt mentions one of them by name,
// it first asks for that tool; once the tool result comes back it
// streams a reply quoting the result.
//
// Configuration:
//
//	MOCK_PORT  - Listen port (default: 9090)
//	MOCK_DELAY - Pause between streamed tokens (default: 0)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "9090"
	}
	var delay time.Duration
	if v := os.Getenv("MOCK_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid MOCK_DELAY", "error", err)
			os.Exit(1)
		}
		delay = d
	}

	srv := &http.Server{Addr: ":" + port, Handler: newHandler(delay)}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("mock backend starting", "port", port, "delay", delay)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mock backend failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("mock backend shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("shutdown", "error", err)
	}
}

func newHandler(delay time.Duration) http.Handler {
	b := &backend{delay: delay}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", b.handleChatCompletions)
	mux.HandleFunc("GET /v1/models", handleModels)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok\n"))
	})
	return mux
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role       string  `json:"role"`
	Content    *string `json:"content"`
	ToolCallID string  `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// reply is what one model step produces: text, or a single tool call.
type reply struct {
	tokens   []string
	toolName string
	toolArgs string
}

type backend struct {
	delay time.Duration
}

func (b *backend) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}
	if !req.Stream {
		writeError(w, http.StatusBadRequest, "only streaming requests are supported")
		return
	}
	b.stream(r.Context(), w, req.Model, plan(&req))
}

// plan decides the next step from the conversation so far.
func plan(req *chatRequest) reply {
	if n := len(req.Messages); n > 0 && req.Messages[n-1].Role == "tool" {
		return textReply("The tool said: " + content(req.Messages[n-1]))
	}

	prompt := strings.ToLower(lastUserMessage(req))
	for _, t := range req.Tools {
		name := t.Function.Name
		if name != "" && strings.Contains(prompt, strings.ReplaceAll(name, "_", " ")) {
			return reply{toolName: name, toolArgs: "{}"}
		}
	}
	if strings.Contains(prompt, "count from 1 to 5") {
		return reply{tokens: []string{"1", ", ", "2", ", ", "3", ", ", "4", ", ", "5"}}
	}
	return textReply("Hello, nice day!")
}

func textReply(s string) reply {
	var tokens []string
	for i, word := range strings.Split(s, " ") {
		if i > 0 {
			word = " " + word
		}
		tokens = append(tokens, word)
	}
	return reply{tokens: tokens}
}

func (b *backend) stream(ctx context.Context, w http.ResponseWriter, model string, rep reply) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	if model == "" {
		model = "mock-model"
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func(delta map[string]any, finish any, usage map[string]any) bool {
		chunk := map[string]any{
			"id":      "chatcmpl-mock",
			"object":  "chat.completion.chunk",
			"model":   model,
			"choices": []any{map[string]any{"index": 0, "delta": delta, "finish_reason": finish}},
		}
		if usage != nil {
			chunk["usage"] = usage
		}
		data, _ := json.Marshal(chunk)
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		return ctx.Err() == nil
	}
	pause := func() bool {
		if b.delay <= 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(b.delay):
			return true
		}
	}

	if !send(map[string]any{"role": "assistant"}, nil, nil) {
		return
	}

	finish := "stop"
	if rep.toolName != "" {
		finish = "tool_calls"
		call := map[string]any{
			"index":    0,
			"id":       "call_mock_1",
			"type":     "function",
			"function": map[string]any{"name": rep.toolName, "arguments": rep.toolArgs},
		}
		if !send(map[string]any{"tool_calls": []any{call}}, nil, nil) {
			return
		}
	}
	for _, tok := range rep.tokens {
		if !pause() || !send(map[string]any{"content": tok}, nil, nil) {
			return
		}
	}

	send(map[string]any{}, finish, map[string]any{
		"prompt_tokens":     10,
		"completion_tokens": len(rep.tokens),
		"total_tokens":      10 + len(rep.tokens),
	})
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleModels(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"object": "list",
		"data": []map[string]any{
			{"id": "mock-model", "object": "model", "owned_by": "weiche-mock"},
		},
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"message": msg, "type": "invalid_request_error"},
	})
}

func lastUserMessage(req *chatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return content(req.Messages[i])
		}
	}
	return ""
}

func content(m chatMessage) string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}
