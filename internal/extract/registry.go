package extract

import (
	"sort"

	"golang.org/x/text/encoding"
)

// Extractor turns the raw bytes of one format into text fragments in reading order.
// A structural violation is reported as an error; the parser maps it to CorruptDocument.
type Extractor interface {
	Extract(data []byte) ([]string, error)
}

// ExtractorFunc adapts a plain function to Extractor.
type ExtractorFunc func(data []byte) ([]string, error)

// Extract calls f(data).
func (f ExtractorFunc) Extract(data []byte) ([]string, error) { return f(data) }

// Registry maps a Kind to its Extractor. It is immutable once built and safe to share.
type Registry struct {
	extractors map[Kind]Extractor
}

// NewRegistry builds a registry from m. Entries for Unknown or nil extractors are ignored.
func NewRegistry(m map[Kind]Extractor) *Registry {
	r := &Registry{extractors: make(map[Kind]Extractor, len(m))}
	for k, ex := range m {
		if k == Unknown || ex == nil {
			continue
		}
		r.extractors[k] = ex
	}
	return r
}

// DefaultRegistry wires every built-in extractor. fallback decodes plain text that is not UTF-8.
func DefaultRegistry(fallback encoding.Encoding) *Registry {
	return NewRegistry(map[Kind]Extractor{
		PlainText:    &plainExtractor{fallback: fallback},
		PDF:          ExtractorFunc(extractPDF),
		WordDocument: ExtractorFunc(extractWord),
		RichText:     ExtractorFunc(extractRTF),
	})
}

// Resolve returns the extractor for kind, or false when none is registered.
func (r *Registry) Resolve(kind Kind) (Extractor, bool) {
	if r == nil || kind == Unknown {
		return nil, false
	}
	ex, ok := r.extractors[kind]
	return ex, ok
}

// With returns a copy of r with ex registered (or replaced) for kind. A nil r counts as empty.
func (r *Registry) With(kind Kind, ex Extractor) *Registry {
	m := make(map[Kind]Extractor, r.size()+1)
	for k, v := range r.entries() {
		m[k] = v
	}
	m[kind] = ex
	return NewRegistry(m)
}

// Without returns a copy of r with kind removed.
func (r *Registry) Without(kind Kind) *Registry {
	m := make(map[Kind]Extractor, r.size())
	for k, v := range r.entries() {
		if k != kind {
			m[k] = v
		}
	}
	return NewRegistry(m)
}

// Kinds lists the registered kinds in enum order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, r.size())
	for k := range r.entries() {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

func (r *Registry) entries() map[Kind]Extractor {
	if r == nil {
		return nil
	}
	return r.extractors
}

func (r *Registry) size() int {
	return len(r.entries())
}
