// Package search indexes blog posts in Meilisearch and falls back to Postgres
// full-text search when Meilisearch is unavailable.
package search

import "time"

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Snippet string `json:"snippet"`
	Status  string `json:"status"`
}

// Query describes a search request. OrganizationID is always applied.
type Query struct {
	Text           string
	OrganizationID string
	Status         string
	Limit          int
	Offset         int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
	Engine  string   `json:"engine"`
}

// PostRecord is the data we index for a blog post.
type PostRecord struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organizationId"`
	Title          string   `json:"title"`
	Slug           string   `json:"slug"`
	Excerpt        string   `json:"excerpt"`
	Content        string   `json:"content"`
	Keywords       []string `json:"keywords"`
	Status         string   `json:"status"`
	UpdatedAt      int64    `json:"updatedAt"`
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
