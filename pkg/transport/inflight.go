package transport

import (
	"context"
	"errors"
	"sync"
)

// ErrShuttingDown is the cancellation cause of turns stopped by CancelAll.
var ErrShuttingDown = errors.New("server shutting down")

// Turns tracks running turns so they can be cancelled together when the
// server stops. Entries are keyed internally, so two requests that share
// a client-supplied request ID are tracked separately.
type Turns struct {
	mu      sync.Mutex
	seq     uint64
	running map[uint64]turn
}

type turn struct {
	requestID string
	cancel    context.CancelCauseFunc
}

// NewTurns creates an empty tracker.
func NewTurns() *Turns {
	return &Turns{running: make(map[uint64]turn)}
}

// Start registers a turn and returns its context. The returned function
// must be called when the turn ends; it cancels the context and forgets
// the turn.
func (t *Turns) Start(parent context.Context, requestID string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	t.mu.Lock()
	t.seq++
	key := t.seq
	t.running[key] = turn{requestID: requestID, cancel: cancel}
	t.mu.Unlock()

	return ctx, func() {
		t.mu.Lock()
		delete(t.running, key)
		t.mu.Unlock()
		cancel(context.Canceled)
	}
}

// CancelAll cancels every running turn with cause and returns the request
// IDs of the cancelled turns.
func (t *Turns) CancelAll(cause error) []string {
	t.mu.Lock()
	running := t.running
	t.running = make(map[uint64]turn)
	t.mu.Unlock()

	ids := make([]string, 0, len(running))
	for _, tr := range running {
		tr.cancel(cause)
		ids = append(ids, tr.requestID)
	}
	return ids
}

// Len returns the number of running turns.
func (t *Turns) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}
