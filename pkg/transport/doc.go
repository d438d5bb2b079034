// Package transport defines the handler interfaces and middleware chain for
// the weiche HTTP/SSE transport layer.
//
// The transport layer bridges OpenAI-compatible clients and the engine. It
// decodes incoming requests into the types in pkg/api, dispatches them to a
// CompletionCreator, and serializes the result either as a chunk stream
// (SSE) or as a single JSON object.
//
// # Handler Interfaces
//
// CompletionCreator handles POST /v1/chat/completions. The ResponseWriter it
// receives abstracts streaming and non-streaming output, so the creator can
// emit chunks or a complete object without knowing the wire protocol.
//
// # Middleware
//
// The middleware chain wraps CompletionCreator with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID) and structured logging via log/slog.
//
// # Errors
//
// Errors are mapped to HTTP responses in one place. The status code follows
// the api.ErrorType; the body is {"error": "<message>"}. Once a stream has
// started, the HTTP adapter reports failures as a single SSE error event
// instead.
package transport
