// Package openaicompat implements provider.Provider for any backend that
// speaks the OpenAI Chat Completions protocol over HTTP (vLLM, LiteLLM,
// Ollama, llama.cpp server, and hosted OpenAI-compatible gateways).
//
// Requests are sent with stream=true. The SSE body is parsed line by line,
// text deltas are forwarded as they arrive, and tool call fragments are
// buffered per index and emitted in index order once the backend reports a
// finish reason.
package openaicompat
