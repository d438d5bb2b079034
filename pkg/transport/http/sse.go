package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/observability"
	"github.com/rhuss/weiche/pkg/transport"
)

// writerState tracks the state of an SSE ResponseWriter.
type writerState int

const (
	writerIdle      writerState = iota // Initial state, no writes yet
	writerStreaming                    // WriteChunk has been called at least once
	writerCompleted                    // [DONE], an error event or a completion was sent
)

// sseResponseWriter implements transport.ResponseWriter for HTTP/SSE
// responses. It handles both streaming (SSE) and non-streaming (JSON)
// output.
type sseResponseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	state   writerState
	tracked bool
}

var _ transport.ResponseWriter = (*sseResponseWriter)(nil)

// newSSEResponseWriter creates a new ResponseWriter wrapping an
// http.ResponseWriter.
func newSSEResponseWriter(w http.ResponseWriter) *sseResponseWriter {
	return &sseResponseWriter{
		w:  w,
		rc: http.NewResponseController(w),
	}
}

// WriteChunk sends a single chunk as an SSE event and flushes it:
//
//	data: {json}\n
//	\n
func (s *sseResponseWriter) WriteChunk(ctx context.Context, chunk *api.ChatCompletionChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write chunk: writer is completed")
	}

	data, err := json.Marshal(chunk)
	if err != nil {
		return fmt.Errorf("failed to marshal chunk: %w", err)
	}

	s.startStream()
	return s.writeData(data)
}

// WriteCompletion sends a complete non-streaming JSON response.
// This is mutually exclusive with WriteChunk.
func (s *sseResponseWriter) WriteCompletion(ctx context.Context, completion *api.ChatCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerStreaming {
		return errors.New("cannot write completion: streaming has already started")
	}
	if s.state == writerCompleted {
		return errors.New("cannot write completion: writer is completed")
	}

	s.w.Header().Set("Content-Type", "application/json")
	s.state = writerCompleted

	if err := json.NewEncoder(s.w).Encode(completion); err != nil {
		return fmt.Errorf("failed to encode completion: %w", err)
	}
	return nil
}

// Flush ensures buffered data is sent to the client.
func (s *sseResponseWriter) Flush() error {
	return s.rc.Flush()
}

// writeDone terminates a stream with the [DONE] sentinel.
func (s *sseResponseWriter) writeDone() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return nil
	}
	s.startStream()
	s.state = writerCompleted
	return s.writeData([]byte("[DONE]"))
}

// writeError sends one SSE error event and completes the stream. If no
// chunk has been sent yet, the SSE headers are sent first so the client
// sees the same content type either way.
func (s *sseResponseWriter) writeError(apiErr *api.APIError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == writerCompleted {
		return errors.New("cannot write error: writer is completed")
	}

	data, err := json.Marshal(api.StreamErrorEvent{Error: apiErr})
	if err != nil {
		return fmt.Errorf("failed to marshal error event: %w", err)
	}

	s.startStream()
	s.state = writerCompleted
	return s.writeData(data)
}

// hasWritten reports whether anything has been sent to the client.
func (s *sseResponseWriter) hasWritten() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != writerIdle
}

// close releases the streaming connection slot, if one was taken.
func (s *sseResponseWriter) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tracked {
		observability.StreamingConnections.Dec()
		s.tracked = false
	}
}

// startStream sends the SSE headers on the first write. Callers hold mu.
func (s *sseResponseWriter) startStream() {
	if s.state != writerIdle {
		return
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.state = writerStreaming

	observability.StreamingConnections.Inc()
	s.tracked = true
}

func (s *sseResponseWriter) writeData(data []byte) error {
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}
