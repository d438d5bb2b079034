// Package auth authenticates and rate limits requests to the chat
// completions endpoint.
//
// Authenticators vote on each request: Accept with an identity, Reject
// with a reason, or Abstain when the request carries no credentials they
// understand. A Chain takes the first non-abstaining vote. Rejections are
// written as {"error": "<message>"} with status 401 or 429 before the
// handler runs, so a refused streaming request never sees SSE headers.
package auth
