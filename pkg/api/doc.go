// Package api defines the wire types of the weiche chat-completions adapter.
//
// The request and response types follow the OpenAI Chat Completions wire
// format so that unmodified OpenAI client libraries can talk to the adapter.
// The package also owns request classification (streaming mode and prompt
// extraction), the error taxonomy shared by all layers, and ID generation.
//
// The package has no external dependencies and performs no I/O.
//
// Core types:
//   - [ChatCompletionRequest]: inbound request with messages and stream flag
//   - [ChatCompletionChunk]: one SSE event of a streaming response
//   - [ChatCompletion]: the aggregated non-streaming response
//   - [APIError]: structured error with type, code, param, and message
package api
