// Package websearch provides the web_search function tool. SearXNG is the
// only backend so far.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/weiche/pkg/tools"
	"github.com/rhuss/weiche/pkg/tools/registry"
)

const toolName = "web_search"

var toolParameters = json.RawMessage(`{
  "type": "object",
  "properties": {
    "query": {"type": "string", "description": "Search query"},
    "max_results": {"type": "integer", "minimum": 1, "description": "Number of results to return"}
  },
  "required": ["query"]
}`)

// Config selects and configures the search backend.
type Config struct {
	// Backend names the search engine. Default: "searxng".
	Backend string

	// URL is the base URL of the search engine instance.
	URL string

	// MaxResults caps the results per query. Default: 5.
	MaxResults int

	HTTPClient *http.Client
}

// Provider serves the web_search tool.
type Provider struct {
	backend     Backend
	backendName string
	limit       int

	queries *prometheus.CounterVec
	hits    prometheus.Histogram
}

var _ registry.Provider = (*Provider)(nil)

// New creates the provider for cfg.
func New(cfg Config) (*Provider, error) {
	p := &Provider{
		backendName: cfg.Backend,
		limit:       cfg.MaxResults,
	}
	if p.backendName == "" {
		p.backendName = "searxng"
	}
	if p.limit <= 0 {
		p.limit = 5
	}

	switch p.backendName {
	case "searxng":
		if strings.TrimSpace(cfg.URL) == "" {
			return nil, fmt.Errorf("web_search: url is required for the searxng backend")
		}
		p.backend = NewSearXNG(cfg.URL, cfg.HTTPClient)
	default:
		return nil, fmt.Errorf("web_search: unknown backend %q", p.backendName)
	}

	labels := prometheus.Labels{"backend": p.backendName}
	p.queries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "weiche_websearch_queries_total",
		Help:        "Web search queries by outcome",
		ConstLabels: labels,
	}, []string{"status"})
	p.hits = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "weiche_websearch_hits",
		Help:        "Hits returned per web search",
		ConstLabels: labels,
		Buckets:     []float64{0, 1, 2, 3, 5, 10, 20},
	})
	return p, nil
}

func (p *Provider) Name() string { return toolName }

func (p *Provider) Tools() []tools.Definition {
	return []tools.Definition{{
		Name:        toolName,
		Description: "Search the web for current information. Returns titles, URLs and snippets.",
		Parameters:  toolParameters,
	}}
}

// Execute runs a search. Argument and backend problems become error
// results so the model can react to them.
func (p *Provider) Execute(ctx context.Context, call tools.ToolCall) (*tools.ToolResult, error) {
	var args struct {
		Query      string `json:"query"`
		MaxResults int    `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return p.fail(call, "invalid arguments: %v", err), nil
	}
	query := strings.TrimSpace(args.Query)
	if query == "" {
		return p.fail(call, "query must not be empty"), nil
	}
	limit := p.limit
	if args.MaxResults > 0 && args.MaxResults < limit {
		limit = args.MaxResults
	}

	hits, err := p.backend.Search(ctx, query, limit)
	if err != nil {
		return p.fail(call, "search failed: %v", err), nil
	}
	p.queries.WithLabelValues("ok").Inc()
	p.hits.Observe(float64(len(hits)))

	return &tools.ToolResult{CallID: call.ID, Output: render(query, hits)}, nil
}

func (p *Provider) fail(call tools.ToolCall, format string, a ...any) *tools.ToolResult {
	p.queries.WithLabelValues("error").Inc()
	return &tools.ToolResult{CallID: call.ID, Output: fmt.Sprintf(format, a...), IsError: true}
}

func (p *Provider) Collectors() []prometheus.Collector {
	return []prometheus.Collector{p.queries, p.hits}
}

func (p *Provider) Close() error { return nil }

func render(query string, hits []Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results for %q.", query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:\n", query)
	for i, h := range hits {
		fmt.Fprintf(&b, "\n[%d] %s\n%s\n", i+1, h.Title, h.URL)
		if h.Snippet != "" {
			fmt.Fprintf(&b, "%s\n", h.Snippet)
		}
	}
	return b.String()
}
