// Package engine turns one chat-completion request into one agent turn and
// projects the turn onto the OpenAI wire format.
//
// The Driver consumes the agent's event sequence, executes requested tools
// inline and yields Fragments. Two pure projectors render the same
// fragment sequence either as a chunk stream (ProjectStream) or as a single
// completion object (ProjectAggregate). Both render every fragment through
// Fragment.Display, so the aggregated content always equals the
// concatenation of the streamed content deltas.
//
// The Engine implements transport.CompletionCreator and ties the pieces
// together for one request.
package engine
