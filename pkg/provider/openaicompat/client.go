package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rhuss/weiche/pkg/debug"
	"github.com/rhuss/weiche/pkg/provider"
)

// Config configures an OpenAI-compatible backend.
type Config struct {
	// Name labels the provider in logs, metrics and errors. Default:
	// "openai-compatible".
	Name string

	// BaseURL is the backend root, without the /v1 suffix.
	BaseURL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds non-streaming calls such as ListModels. Default: 30s.
	Timeout time.Duration

	// HTTPClient overrides the transport used for all requests.
	HTTPClient *http.Client
}

// Provider streams chat completions from an OpenAI-compatible backend.
type Provider struct {
	name       string
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

var _ provider.Provider = (*Provider)(nil)

// New creates a Provider.
func New(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("openaicompat: base URL is required")
	}
	p := &Provider{
		name:       cfg.Name,
		baseURL:    strings.TrimSuffix(strings.TrimRight(cfg.BaseURL, "/"), "/v1"),
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		httpClient: cfg.HTTPClient,
	}
	if p.name == "" {
		p.name = "openai-compatible"
	}
	if p.timeout == 0 {
		p.timeout = 30 * time.Second
	}
	if p.httpClient == nil {
		// No client-level timeout: a stream can outlive any fixed deadline,
		// so its lifetime is bound by the request context instead.
		p.httpClient = &http.Client{}
	}
	return p, nil
}

// Name returns the configured provider name.
func (p *Provider) Name() string {
	return p.name
}

// Stream posts a streaming chat completion request and parses the SSE
// response on a background goroutine.
func (p *Provider) Stream(ctx context.Context, req *provider.Request) (<-chan provider.Event, error) {
	body, err := json.Marshal(translateRequest(req, req.Model))
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	debug.Trace("providers", "chat completion request", "provider", p.name, "body", debug.Truncate(string(body), 4096))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	p.authorize(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.mapNetworkError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, p.mapHTTPError(resp)
	}

	ch := make(chan provider.Event, 16)
	go func() {
		defer close(ch)
		defer resp.Body.Close()
		parseSSEStream(ctx, resp.Body, ch)
	}()
	return ch, nil
}

// ListModels queries /v1/models.
func (p *Provider) ListModels(ctx context.Context) ([]provider.ModelInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	p.authorize(httpReq)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, p.mapNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, p.mapHTTPError(resp)
	}

	var models chatModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	out := make([]provider.ModelInfo, 0, len(models.Data))
	for _, m := range models.Data {
		out = append(out, provider.ModelInfo{ID: m.ID, OwnedBy: m.OwnedBy})
	}
	return out, nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

func (p *Provider) authorize(req *http.Request) {
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
}
