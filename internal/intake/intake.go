// Package intake turns resume files and uploads into stored, searchable records.
// It wraps the parser with a timeout, persists results and failures, and keeps the keyword index in sync.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/cvtext/internal/extract"
	"github.com/hyperjump/cvtext/internal/fileid"
	"github.com/hyperjump/cvtext/internal/keyword"
	"github.com/hyperjump/cvtext/internal/metrics"
	"github.com/hyperjump/cvtext/internal/models"
	"github.com/hyperjump/cvtext/internal/storage"
)

// ErrTimeout is returned when a parse does not finish within the configured timeout.
var ErrTimeout = errors.New("parse timed out")

// ErrExtensionNotAllowed is returned by IngestFile for files outside the allowed list.
var ErrExtensionNotAllowed = errors.New("extension not allowed")

// Result labels for IngestOutcome and the ingest metric.
const (
	ResultStored       = "stored"
	ResultSkipped      = "skipped"
	ResultDeduplicated = "deduplicated"
	ResultFailed       = "failed"
)

// Sources for the ingest metric.
const (
	SourceFile   = "file"
	SourceUpload = "upload"
)

// IngestOutcome describes what happened to one input.
type IngestOutcome struct {
	Resume *models.Resume
	Result string
}

// Intake parses, stores, and indexes resumes.
type Intake struct {
	parser  *extract.Parser
	storage storage.Storage
	keyword keyword.KeywordIndex
	metrics *metrics.Metrics
	timeout time.Duration
	workers int
	logger  *zap.Logger // optional; when set, logs debug events
}

// Option configures an Intake.
type Option func(*Intake)

// WithLogger sets a logger for debug output (file ingested, skipped, failed, etc.).
func WithLogger(l *zap.Logger) Option {
	return func(in *Intake) { in.logger = l }
}

// WithMetrics records parse and ingest outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(in *Intake) { in.metrics = m }
}

// WithTimeout bounds each parse. Zero means no limit.
func WithTimeout(d time.Duration) Option {
	return func(in *Intake) { in.timeout = d }
}

// WithWorkers bounds concurrent parses in IngestDirectory. Values below 1 mean 1.
func WithWorkers(n int) Option {
	return func(in *Intake) { in.workers = n }
}

// New creates an intake over the given parser, storage, and keyword index.
// A nil parser means extract.NewParser() with defaults.
func New(parser *extract.Parser, store storage.Storage, kw keyword.KeywordIndex, opts ...Option) *Intake {
	if parser == nil {
		parser = extract.NewParser()
	}
	in := &Intake{
		parser:  parser,
		storage: store,
		keyword: kw,
		workers: 1,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.workers < 1 {
		in.workers = 1
	}
	return in
}

// Parse parses the file at path without storing it.
func (in *Intake) Parse(ctx context.Context, path string) (*extract.Result, error) {
	return in.run(ctx, filepath.Base(path), func(p *extract.Parser) (*extract.Result, error) {
		return p.Parse(path)
	})
}

// ParseBytes parses an in-memory file without storing it.
func (in *Intake) ParseBytes(ctx context.Context, name string, data []byte) (*extract.Result, error) {
	return in.run(ctx, name, func(p *extract.Parser) (*extract.Result, error) {
		return p.ParseBytes(name, data)
	})
}

type parseOutcome struct {
	res *extract.Result
	err error
}

// run races the parse against ctx and the timeout. A parse that loses the race keeps
// running to completion in its goroutine; its result is dropped.
func (in *Intake) run(ctx context.Context, name string, parse func(*extract.Parser) (*extract.Result, error)) (*extract.Result, error) {
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}
	start := time.Now()
	done := make(chan parseOutcome, 1)
	go func() {
		res, err := parse(in.parser)
		done <- parseOutcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		in.observe(name, out.res, out.err, time.Since(start))
		return out.res, out.err
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%s: %w after %v", name, ErrTimeout, time.Since(start).Round(time.Millisecond))
		}
		in.observe(name, nil, err, time.Since(start))
		if in.logger != nil {
			in.logger.Debug("intake parse abandoned", zap.String("file", name), zap.Error(err))
		}
		return nil, err
	}
}

func (in *Intake) observe(name string, res *extract.Result, err error, elapsed time.Duration) {
	if err != nil {
		in.metrics.ObserveParse(extract.Sniff(name, nil).String(), failureKind(err), elapsed, 0, false)
		return
	}
	in.metrics.ObserveParse(res.Kind.String(), metrics.OutcomeOK, elapsed, len(res.Text), res.Truncated)
}

// failureKind names err for metrics and the failure log.
func failureKind(err error) string {
	if k := extract.KindOf(err); k != 0 {
		return k.String()
	}
	if errors.Is(err, ErrTimeout) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "canceled"
	}
	return "internal"
}

func failureStage(err error) string {
	var pe *extract.ParseError
	if errors.As(err, &pe) {
		return string(pe.Stage)
	}
	return string(extract.StageExtract)
}

// IngestFile parses the file at path and stores it under an ID derived from its absolute path.
// If allowedExts is non-empty the extension must be in the list (case-insensitive).
// Files already stored with the same mtime and size are skipped.
func (in *Intake) IngestFile(ctx context.Context, path string, allowedExts []string) (*IngestOutcome, error) {
	if in.logger != nil {
		in.logger.Debug("intake ingesting file", zap.String("path", path))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("%s: %w", absPath, ErrExtensionNotAllowed)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	id := fileid.PathID(absPath)
	if existing, ok := in.unchanged(ctx, id, absPath, info); ok {
		// Keep the keyword index populated even if it was rebuilt empty.
		if err := in.keyword.Index(ctx, existing); err != nil && in.logger != nil {
			in.logger.Warn("intake failed to reindex unchanged file", zap.String("path", absPath), zap.Error(err))
		}
		in.metrics.ObserveIngest(SourceFile, ResultSkipped)
		if in.logger != nil {
			in.logger.Debug("intake skipping unchanged file", zap.String("path", absPath))
		}
		return &IngestOutcome{Resume: existing, Result: ResultSkipped}, nil
	}

	res, err := in.Parse(ctx, absPath)
	if err != nil {
		in.recordFailure(ctx, SourceFile, filepath.Base(absPath), absPath, err)
		return nil, err
	}
	digest, err := fileDigest(absPath)
	if err != nil {
		return nil, fmt.Errorf("digest: %w", err)
	}
	r := resumeFromResult(id, res, digest)
	r.SourcePath = absPath
	r.SizeBytes = info.Size()
	r.SourceModTime = info.ModTime().UnixNano()
	if existing, err := in.storage.GetResume(ctx, id); err == nil {
		r.CreatedAt = existing.CreatedAt
	}
	if err := in.store(ctx, r); err != nil {
		return nil, err
	}
	in.metrics.ObserveIngest(SourceFile, ResultStored)
	if in.logger != nil {
		in.logger.Debug("intake file stored", zap.String("path", absPath), zap.String("id", id))
	}
	return &IngestOutcome{Resume: r, Result: ResultStored}, nil
}

// unchanged returns the stored resume when it was ingested from absPath with the same mtime and size.
func (in *Intake) unchanged(ctx context.Context, id, absPath string, info os.FileInfo) (*models.Resume, bool) {
	r, err := in.storage.GetResume(ctx, id)
	if err != nil {
		return nil, false
	}
	if r.SourcePath != absPath || r.SourceModTime != info.ModTime().UnixNano() || r.SizeBytes != info.Size() {
		return nil, false
	}
	return r, true
}

// IngestUpload parses and stores uploaded content. Content identical to an already stored
// resume is not parsed again; the existing record is returned.
func (in *Intake) IngestUpload(ctx context.Context, name string, data []byte) (*IngestOutcome, error) {
	digest := fileid.Digest(data)
	if existing, err := in.storage.FindBySHA256(ctx, digest); err == nil {
		in.metrics.ObserveIngest(SourceUpload, ResultDeduplicated)
		if in.logger != nil {
			in.logger.Debug("intake upload deduplicated", zap.String("file", name), zap.String("id", existing.ID))
		}
		return &IngestOutcome{Resume: existing, Result: ResultDeduplicated}, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup digest: %w", err)
	}

	res, err := in.ParseBytes(ctx, name, data)
	if err != nil {
		in.recordFailure(ctx, SourceUpload, name, "", err)
		return nil, err
	}
	r := resumeFromResult(fileid.UploadID(), res, digest)
	r.SizeBytes = int64(len(data))
	if err := in.store(ctx, r); err != nil {
		return nil, err
	}
	in.metrics.ObserveIngest(SourceUpload, ResultStored)
	return &IngestOutcome{Resume: r, Result: ResultStored}, nil
}

func resumeFromResult(id string, res *extract.Result, digest string) *models.Resume {
	return &models.Resume{
		ID:        id,
		FileName:  res.FileName,
		Kind:      res.Kind.String(),
		Text:      res.Text,
		Script:    res.Script,
		Truncated: res.Truncated,
		SHA256:    digest,
	}
}

func (in *Intake) store(ctx context.Context, r *models.Resume) error {
	if err := in.storage.SaveResume(ctx, r); err != nil {
		return fmt.Errorf("failed to store resume: %w", err)
	}
	if err := in.keyword.Index(ctx, r); err != nil {
		return fmt.Errorf("failed to index resume: %w", err)
	}
	return nil
}

func (in *Intake) recordFailure(ctx context.Context, source, name, path string, cause error) {
	in.metrics.ObserveIngest(source, ResultFailed)
	f := &models.ParseFailure{
		FileName:   name,
		SourcePath: path,
		Kind:       failureKind(cause),
		Stage:      failureStage(cause),
		Message:    cause.Error(),
	}
	// The caller's context may be the one that expired.
	if err := in.storage.RecordFailure(context.WithoutCancel(ctx), f); err != nil && in.logger != nil {
		in.logger.Warn("intake failed to record parse failure", zap.String("file", name), zap.Error(err))
	}
	if in.logger != nil {
		in.logger.Debug("intake parse failed", zap.String("file", name), zap.String("kind", f.Kind), zap.Error(cause))
	}
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// Get returns a stored resume.
func (in *Intake) Get(ctx context.Context, id string) (*models.Resume, error) {
	return in.storage.GetResume(ctx, id)
}

// List returns stored resumes newest first, without text.
func (in *Intake) List(ctx context.Context, offset, limit int) ([]*models.Resume, error) {
	return in.storage.ListResumes(ctx, offset, limit)
}

// Failures returns logged parse failures newest first.
func (in *Intake) Failures(ctx context.Context, offset, limit int) ([]*models.ParseFailure, error) {
	return in.storage.ListFailures(ctx, offset, limit)
}

// Delete removes a resume from the keyword index and storage.
func (in *Intake) Delete(ctx context.Context, id string) error {
	if in.logger != nil {
		in.logger.Debug("intake deleting resume", zap.String("id", id))
	}
	if err := in.keyword.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	if err := in.storage.DeleteResume(ctx, id); err != nil {
		return fmt.Errorf("failed to delete resume: %w", err)
	}
	return nil
}

// DeletePath removes the resume ingested from path, if any.
func (in *Intake) DeletePath(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("absolute path: %w", err)
	}
	return in.Delete(ctx, fileid.PathID(absPath))
}

// Search runs a keyword query over stored resume text.
func (in *Intake) Search(ctx context.Context, q *models.SearchQuery) (*models.SearchResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	results, err := in.keyword.Search(ctx, q.Query, q.Limit, &keyword.SearchOptions{Fuzzy: q.Fuzzy, Offset: q.Offset})
	if err != nil {
		return nil, err
	}
	resp := &models.SearchResponse{
		Query: q.Query,
		Hits:  make([]*models.SearchHit, len(results.Hits)),
		Total: results.Total,
	}
	for i, h := range results.Hits {
		resp.Hits[i] = &models.SearchHit{ID: h.ID, FileName: h.FileName, Kind: h.Kind, Score: h.Score, Snippets: h.Snippets}
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	return resp, nil
}

// Status reports record counts. Disk usage is left to the caller, which knows the paths.
func (in *Intake) Status(ctx context.Context) (*models.Status, error) {
	resumes, err := in.storage.CountResumes(ctx)
	if err != nil {
		return nil, err
	}
	failures, err := in.storage.CountFailures(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := in.keyword.DocCount()
	if err != nil {
		return nil, err
	}
	return &models.Status{Resumes: resumes, Failures: failures, Indexed: indexed}, nil
}
