// Package keyword provides full-text search over parsed resume text.
package keyword

import (
	"context"

	"github.com/hyperjump/cvtext/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FileNameBoost multiplies the score contribution from matches in the file name.
	// Use 1.0 for no boost.
	FileNameBoost float64
	// Fuzzy enables typo-tolerant matching within Fuzziness edits (default 1).
	Fuzzy     bool
	Fuzziness int
	// Offset skips the first hits for pagination.
	Offset int
}

// KeywordIndex defines keyword search operations.
type KeywordIndex interface {
	Index(ctx context.Context, r *models.Resume) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) (*KeywordResults, error)
	Delete(ctx context.Context, id string) error
	// DocCount returns the total number of resumes in the index.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID       string
	Score    float64
	FileName string
	Kind     string
	// Snippets are highlighted fragments of the matching text.
	Snippets []string
}

// KeywordResults is one page of hits plus the total match count.
type KeywordResults struct {
	Hits  []*KeywordResult
	Total uint64
}
