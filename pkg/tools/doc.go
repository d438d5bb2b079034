// Package tools defines the tool executor contract used by the turn driver
// and the agent session. Executors exist for in-process function tools
// (see the registry package) and MCP server tools (see the mcp package).
//
// A Set combines several executors behind one ToolExecutor-like surface,
// applies the configured allow list, and aggregates tool definitions for
// advertising to the model.
package tools
