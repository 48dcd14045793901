// Package extract turns resume files (plain text, PDF, Word and RTF) into normalized plain text.
package extract

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"go.uber.org/zap"
)

// DefaultMaxFileBytes is the largest input Parse will read.
const DefaultMaxFileBytes = 32 << 20

// Result is the outcome of a successful parse.
type Result struct {
	FileName  string `json:"fileName"`
	Text      string `json:"text"`
	Kind      Kind   `json:"kind"`
	Truncated bool   `json:"truncated,omitempty"`
	Script    string `json:"script,omitempty"`
	Bytes     int64  `json:"bytes"`
}

// Parser sniffs, extracts and normalizes documents. It holds no per-call state and is safe for concurrent use.
type Parser struct {
	registry     *Registry
	normalizer   *Normalizer
	maxTextBytes int
	maxFileBytes int64
	legacy       encoding.Encoding
	rejectEmpty  bool
	locale       Locale
	logger       *zap.Logger
}

// Option configures a Parser.
type Option func(*Parser)

// WithMaxTextBytes caps the normalized text. Longer text is truncated and Result.Truncated is set.
func WithMaxTextBytes(n int) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxTextBytes = n
		}
	}
}

// WithMaxFileBytes rejects inputs larger than n bytes as unsupported.
func WithMaxFileBytes(n int64) Option {
	return func(p *Parser) {
		if n > 0 {
			p.maxFileBytes = n
		}
	}
}

// WithLegacyEncoding sets the decoder for plain text that is not UTF-8. Ignored when WithRegistry is given.
func WithLegacyEncoding(enc encoding.Encoding) Option {
	return func(p *Parser) {
		if enc != nil {
			p.legacy = enc
		}
	}
}

// WithRejectEmpty makes a zero-length input fail with EmptyInput instead of being handed to the extractor.
func WithRejectEmpty(reject bool) Option {
	return func(p *Parser) { p.rejectEmpty = reject }
}

// WithLocale selects the language of error messages.
func WithLocale(l Locale) Option {
	return func(p *Parser) { p.locale = l }
}

// WithRegistry replaces the built-in extractors.
func WithRegistry(r *Registry) Option {
	return func(p *Parser) { p.registry = r }
}

// WithLogger sets a logger for debug output (stage transitions, rejections).
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser creates a parser with the built-in extractors and default limits.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		maxTextBytes: DefaultMaxTextBytes,
		maxFileBytes: DefaultMaxFileBytes,
		legacy:       DefaultLegacyEncoding,
		locale:       LocaleEN,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.registry == nil {
		p.registry = DefaultRegistry(p.legacy)
	}
	p.normalizer = NewNormalizer(p.maxTextBytes)
	return p
}

var defaultParser = NewParser()

// Parse reads and parses the file at path with the default parser.
func Parse(path string) (*Result, error) {
	return defaultParser.Parse(path)
}

// Parse reads the file at path and returns its text. Errors are always *ParseError.
func (p *Parser) Parse(path string) (*Result, error) {
	if strings.TrimSpace(path) == "" {
		return nil, p.fail(EmptyInput, StageRead, "", nil, msgEmptyPath)
	}
	name := filepath.Base(path)
	data, err := p.readFile(path, name)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(name, data)
}

// ParseBytes parses data that was read elsewhere (an upload, say). name supplies the extension.
func (p *Parser) ParseBytes(name string, data []byte) (*Result, error) {
	log := p.logger.With(zap.String("file", name))

	if len(data) == 0 && p.rejectEmpty {
		return nil, p.fail(EmptyInput, StageRead, name, nil, msgEmptyFile, name)
	}
	if int64(len(data)) > p.maxFileBytes {
		return nil, p.fail(UnsupportedFormat, StageRead, name, nil, msgTooLarge, name, p.maxFileBytes)
	}

	kind := Sniff(name, data)
	if kind == Unknown {
		ext := extensionOf(name)
		if claimed, ok := extensionKinds[ext]; ok {
			detected := detectedType(data)
			log.Debug("content does not match extension", zap.String("ext", ext), zap.String("detected", detected))
			return nil, p.fail(UnsupportedFormat, StageSniff, name, nil, msgContentMismatch, name, claimed, detected)
		}
		if ext == "" {
			ext = name
		}
		log.Debug("unsupported extension", zap.String("ext", ext))
		return nil, p.fail(UnsupportedFormat, StageSniff, name, nil, msgUnsupportedExt, ext)
	}
	log.Debug("sniffed", zap.Stringer("kind", kind), zap.Int("bytes", len(data)))

	ex, ok := p.registry.Resolve(kind)
	if !ok {
		return nil, p.fail(UnsupportedFormat, StageDispatch, name, nil, msgNoExtractor, extensionOf(name), kind)
	}

	fragments, err := runExtractor(ex, data)
	if err != nil {
		cause := err
		var se *structuralError
		if errors.As(err, &se) {
			cause = se.err
		}
		log.Debug("extraction failed", zap.Stringer("kind", kind), zap.Error(err))
		return nil, p.fail(CorruptDocument, StageExtract, name, err, msgCorrupt, name, kind, cause)
	}
	log.Debug("extracted", zap.Int("fragments", len(fragments)))

	text, truncated := p.normalizer.Normalize(fragments)
	if truncated {
		log.Debug("text truncated", zap.Int("limit", p.maxTextBytes))
	}
	return &Result{
		FileName:  name,
		Text:      text,
		Kind:      kind,
		Truncated: truncated,
		Script:    DominantScript(text),
		Bytes:     int64(len(data)),
	}, nil
}

// readFile holds the file open only for the duration of the read.
func (p *Parser) readFile(path, name string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, p.fail(IoFailure, StageRead, name, err, msgReadFailed, path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, p.fail(IoFailure, StageRead, name, err, msgReadFailed, path)
	}
	if !info.Mode().IsRegular() {
		return nil, p.fail(IoFailure, StageRead, name, nil, msgNotRegular, path)
	}
	if info.Size() > p.maxFileBytes {
		return nil, p.fail(UnsupportedFormat, StageRead, name, nil, msgTooLarge, name, p.maxFileBytes)
	}
	data, err := io.ReadAll(io.LimitReader(f, p.maxFileBytes+1))
	if err != nil {
		return nil, p.fail(IoFailure, StageRead, name, err, msgReadFailed, path)
	}
	return data, nil
}

func (p *Parser) fail(kind ErrorKind, stage Stage, name string, cause error, id messageID, args ...any) *ParseError {
	return &ParseError{
		Kind:     kind,
		Stage:    stage,
		FileName: name,
		Message:  p.locale.format(id, args...),
		Err:      cause,
	}
}

// runExtractor converts an extractor panic into an ordinary error so one bad file cannot take the process down.
func runExtractor(ex Extractor, data []byte) (fragments []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			fragments = nil
			err = fmt.Errorf("extractor panic: %v", r)
		}
	}()
	return ex.Extract(data)
}
