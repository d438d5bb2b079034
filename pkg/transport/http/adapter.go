package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/weiche/pkg/api"
	"github.com/rhuss/weiche/pkg/observability"
	"github.com/rhuss/weiche/pkg/provider"
	"github.com/rhuss/weiche/pkg/transport"
)

// Adapter serves the OpenAI chat-completions API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	creator transport.CompletionCreator
	turns   *transport.Turns
	mux     *http.ServeMux
	config  Config
	started time.Time
}

const modelListTimeout = 10 * time.Second

// ModelLister reports the models served by the backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]provider.ModelInfo, error)
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// Models are the model IDs listed by GET /v1/models. They come
	// first and are the whole list when ModelLister is nil or fails.
	Models []string

	// ModelLister, when set, adds the backend's models to GET /v1/models.
	ModelLister ModelLister

	// AllowAuthorization adds Authorization to the CORS allowed headers.
	// Set it when inbound authentication is enabled.
	AllowAuthorization bool

	// Metrics enables GET /metrics.
	Metrics bool
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 10 << 20, // 10 MB
		Metrics:     true,
	}
}

// NewAdapter creates an HTTP adapter with the given CompletionCreator.
// Middleware is applied to the CompletionCreator in the given order.
func NewAdapter(creator transport.CompletionCreator, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		creator: creator,
		turns:   transport.NewTurns(),
		mux:     http.NewServeMux(),
		config:  cfg,
		started: time.Now(),
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletions)
	a.mux.HandleFunc("OPTIONS /", a.handlePreflight)
	a.mux.HandleFunc("GET /healthz", handleHealthz)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	if cfg.Metrics {
		a.mux.Handle("GET /metrics", observability.Handler())
	}
	a.mux.HandleFunc("/", handleNotFound)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. mw wraps the routes, first
// entry outermost, and runs inside the CORS and request ID handling so
// that its rejections carry both headers.
func (a *Adapter) Handler(mw ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = a.mux
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	return corsMiddleware(httpRequestIDMiddleware(h))
}

// CancelInFlight cancels every running turn and returns the request IDs
// of the cancelled turns.
func (a *Adapter) CancelInFlight() []string {
	return a.turns.CancelAll(transport.ErrShuttingDown)
}

// corsMiddleware allows any origin on every response.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. An ID sent by the client is kept; otherwise a new
// one is generated. The ID is put into the request context and echoed in
// the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// handleChatCompletions handles POST /v1/chat/completions.
func (a *Adapter) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		if errors.Is(err, io.EOF) {
			err = errors.New("empty request body")
		}
		// The response mode is unknown until the body parses.
		transport.WriteAPIError(w, api.NewParseError(err))
		return
	}

	id := transport.RequestIDFromContext(r.Context())
	ctx, done := a.turns.Start(r.Context(), id)
	defer done()

	rw := newSSEResponseWriter(w)
	defer rw.close()

	streaming := req.IsStreaming()
	if err := a.creator.CreateCompletion(ctx, &req, rw); err != nil {
		a.writeHandlerError(w, rw, streaming, err)
		return
	}
	if streaming {
		if err := rw.writeDone(); err != nil {
			slog.Debug("failed to write stream terminator",
				"request_id", id,
				"error", err.Error(),
			)
		}
	}
}

// writeHandlerError writes an error response from the handler. In
// streaming mode the error is sent as one SSE error event, whether or not
// chunks were already sent. In non-streaming mode it becomes a JSON error
// response unless a completion was already written.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, streaming bool, err error) {
	apiErr := transport.AsAPIError(err)

	if streaming {
		if werr := rw.writeError(apiErr); werr != nil {
			slog.Debug("failed to write stream error event", "error", werr.Error())
		}
		return
	}

	if rw.hasWritten() {
		return
	}
	transport.WriteAPIError(w, apiErr)
}

func (a *Adapter) handlePreflight(w http.ResponseWriter, r *http.Request) {
	allowed := "Content-Type"
	if a.config.AllowAuthorization {
		allowed += ", Authorization"
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", allowed)
	w.WriteHeader(http.StatusNoContent)
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	list := api.ModelList{Object: api.ObjectList, Data: []api.Model{}}
	seen := make(map[string]bool)
	add := func(id, owner string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		list.Data = append(list.Data, api.Model{
			ID:      id,
			Object:  api.ObjectModel,
			Created: a.started.Unix(),
			OwnedBy: owner,
		})
	}
	for _, id := range a.config.Models {
		add(id, "weiche")
	}

	if a.config.ModelLister != nil {
		ctx, cancel := context.WithTimeout(r.Context(), modelListTimeout)
		defer cancel()
		models, err := a.config.ModelLister.ListModels(ctx)
		if err != nil {
			slog.Warn("listing backend models failed, serving configured models",
				"request_id", transport.RequestIDFromContext(r.Context()),
				"error", err.Error(),
			)
		}
		for _, m := range models {
			owner := m.OwnedBy
			if owner == "" {
				owner = "weiche"
			}
			add(m.ID, owner)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}

func handleNotFound(w http.ResponseWriter, _ *http.Request) {
	transport.WriteErrorResponse(w, api.NewNotFoundError("Not Found"), http.StatusNotFound)
}
