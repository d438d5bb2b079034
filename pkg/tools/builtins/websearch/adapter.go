package websearch

import "context"

// Hit is one search result.
type Hit struct {
	Title   string
	URL     string
	Snippet string
}

// Backend is a search engine.
type Backend interface {
	// Search returns at most limit hits for query.
	Search(ctx context.Context, query string, limit int) ([]Hit, error)
}
