package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

var markup = regexp.MustCompile(`<[^>]*>`)

// SearXNG queries the JSON API of a SearXNG instance. The instance must
// have the json output format enabled.
type SearXNG struct {
	baseURL    string
	categories string
	client     *http.Client
}

// NewSearXNG creates a backend for the SearXNG instance at baseURL. A nil
// client means http.DefaultClient.
func NewSearXNG(baseURL string, client *http.Client) *SearXNG {
	if client == nil {
		client = http.DefaultClient
	}
	return &SearXNG{
		baseURL:    strings.TrimRight(baseURL, "/"),
		categories: "general",
		client:     client,
	}
}

func (s *SearXNG) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	q := url.Values{"q": {query}, "format": {"json"}, "categories": {s.categories}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("searxng: HTTP %d", resp.StatusCode)
	}

	var body struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("searxng: decoding response: %w", err)
	}

	hits := make([]Hit, 0, min(limit, len(body.Results)))
	for _, r := range body.Results {
		if len(hits) == limit {
			break
		}
		if r.URL == "" {
			continue
		}
		hits = append(hits, Hit{Title: plain(r.Title), URL: r.URL, Snippet: plain(r.Content)})
	}
	return hits, nil
}

// plain strips tags and decodes entities.
func plain(s string) string {
	return strings.TrimSpace(html.UnescapeString(markup.ReplaceAllString(s, "")))
}
