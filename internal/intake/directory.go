package intake

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FileFailure is one file IngestDirectory could not store.
type FileFailure struct {
	Path string `json:"path"`
	Err  error  `json:"-"`
	// Message is Err's text, kept for JSON output.
	Message string `json:"message"`
}

// BatchReport summarizes a directory ingestion.
type BatchReport struct {
	Stored   int           `json:"stored"`
	Skipped  int           `json:"skipped"`
	Failures []FileFailure `json:"failures,omitempty"`
}

func (r *BatchReport) add(path string, out *IngestOutcome, err error) {
	if err != nil {
		r.Failures = append(r.Failures, FileFailure{Path: path, Err: err, Message: err.Error()})
		return
	}
	if out.Result == ResultSkipped {
		r.Skipped++
		return
	}
	r.Stored++
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is in
// allowedExts (all files when empty), running up to the configured number of workers.
// A file that fails to parse is reported in BatchReport.Failures and does not stop the batch;
// the returned error is reserved for walk failures and context cancellation.
func (in *Intake) IngestDirectory(ctx context.Context, dir string, allowedExts []string) (*BatchReport, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", absDir)
	}
	paths, err := collectFiles(absDir, allowedExts)
	if err != nil {
		return nil, err
	}
	if in.logger != nil {
		in.logger.Debug("intake directory scan", zap.String("dir", absDir), zap.Int("files", len(paths)))
	}

	report := &BatchReport{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.workers)
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := in.IngestFile(gctx, path, allowedExts)
			mu.Lock()
			report.add(path, out, err)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// collectFiles returns regular files under root, following symlinks to files only.
func collectFiles(root string, allowedExts []string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	return paths, err
}
