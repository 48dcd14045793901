package models

import (
	"fmt"
	"strings"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// SearchQuery is a full-text query over parsed resume text.
type SearchQuery struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	Fuzzy  bool   `json:"fuzzy,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// Validate ensures the query is non-empty and clamps the limit into [1, MaxSearchLimit].
func (q *SearchQuery) Validate() error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.Limit <= 0 {
		q.Limit = DefaultSearchLimit
	}
	if q.Limit > MaxSearchLimit {
		q.Limit = MaxSearchLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return nil
}

// SearchHit is a single matching resume.
type SearchHit struct {
	ID       string  `json:"id"`
	FileName string  `json:"file_name"`
	Kind     string  `json:"kind"`
	Score    float64 `json:"score"`
	// Snippets holds highlighted fragments of the matching text.
	Snippets []string `json:"snippets,omitempty"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Query     string       `json:"query"`
	Hits      []*SearchHit `json:"hits"`
	Total     uint64       `json:"total"`
	QueryTime int64        `json:"query_time_ms"`
}
