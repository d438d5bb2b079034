// Package provider defines the backend-neutral interface the agent session
// uses to talk to a language model. Adapters translate Request and Event to
// their own protocol: openaicompat speaks raw Chat Completions over HTTP,
// openai wraps the official OpenAI SDK, and anthropic wraps the Anthropic
// Messages SDK.
package provider
