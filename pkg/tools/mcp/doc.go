// Package mcp connects weiche to external MCP (Model Context Protocol)
// servers. It discovers their tools and executes tool calls requested by
// the agent, implementing tools.ToolExecutor and tools.Discoverer on top
// of the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk).
//
// Servers are reached over SSE or streamable HTTP. Static headers and
// OAuth 2.0 client-credentials tokens can be attached to every request.
package mcp
