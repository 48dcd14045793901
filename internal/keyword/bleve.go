package keyword

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/cvtext/internal/models"
)

const (
	fieldText     = "text"
	fieldFileName = "file_name"
	fieldKind     = "kind"

	defaultFileNameBoost = 2.0
)

// indexedResume is the subset of a resume stored in the index.
type indexedResume struct {
	FileName string `json:"file_name"`
	Text     string `json:"text"`
	Kind     string `json:"kind"`
}

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path.
// An existing index is reopened so unchanged files need not be re-indexed.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	docMapping.Dynamic = false
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + unicode segmentation, no stemming): skill names like
	// "Kubernetes" or "Go" must match exactly, and CJK text is split per ideograph.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(fieldText, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldFileName, textFieldMapping)
	docMapping.AddFieldMappingsAt(fieldKind, bleve.NewKeywordFieldMapping())
	im.AddDocumentMapping("resume", docMapping)
	im.DefaultType = "resume"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces the resume under its ID.
func (b *BleveIndex) Index(ctx context.Context, r *models.Resume) error {
	doc := indexedResume{
		FileName: searchableFileName(r.FileName),
		Text:     r.Text,
		Kind:     r.Kind,
	}
	if err := b.index.Index(r.ID, doc); err != nil {
		return fmt.Errorf("Bleve index failed: %w", err)
	}
	return nil
}

// searchableFileName separates words joined by underscores, dashes and dots so that
// "jane_doe-cv.pdf" matches a query for "jane doe".
func searchableFileName(name string) string {
	return strings.NewReplacer("_", " ", "-", " ", ".", " ").Replace(name)
}

// Search matches query against resume text and file names and returns up to limit hits.
// File name matches are boosted; with opts.Fuzzy each term tolerates small typos.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, opts *SearchOptions) (*KeywordResults, error) {
	boost := defaultFileNameBoost
	fuzzy := false
	fuzziness := 1
	offset := 0
	if opts != nil {
		if opts.FileNameBoost > 0 {
			boost = opts.FileNameBoost
		}
		fuzzy = opts.Fuzzy
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
		offset = opts.Offset
	}

	textQuery := fieldQuery(query, fieldText, fuzzy, fuzziness)
	nameQuery := fieldQuery(query, fieldFileName, fuzzy, fuzziness)
	nameQuery.SetBoost(boost)

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(textQuery, nameQuery), limit, offset, false)
	req.Fields = []string{fieldFileName, fieldKind}
	req.Highlight = bleve.NewHighlight()
	req.Highlight.AddField(fieldText)

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := &KeywordResults{Total: results.Total, Hits: make([]*KeywordResult, len(results.Hits))}
	for i, hit := range results.Hits {
		kr := &KeywordResult{ID: hit.ID, Score: hit.Score, Snippets: hit.Fragments[fieldText]}
		if v, ok := hit.Fields[fieldFileName].(string); ok {
			kr.FileName = v
		}
		if v, ok := hit.Fields[fieldKind].(string); ok {
			kr.Kind = v
		}
		out.Hits[i] = kr
	}
	return out, nil
}

// fieldQuery builds a match query on field, or a disjunction of fuzzy term queries.
func fieldQuery(query, field string, fuzzy bool, fuzziness int) blevequery.BoostableQuery {
	terms := strings.Fields(strings.ToLower(query))
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(query)
		mq.SetField(field)
		return mq
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a resume from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// DocCount returns the total number of resumes in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}
