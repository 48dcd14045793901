package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder is a Sink that remembers what it was told.
type recorder struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
}

func (r *recorder) Ingest(path string) {
	r.mu.Lock()
	r.ingested = append(r.ingested, path)
	r.mu.Unlock()
}

func (r *recorder) Remove(path string) {
	r.mu.Lock()
	r.removed = append(r.removed, path)
	r.mu.Unlock()
}

func (r *recorder) snapshot() (ingested, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ingested...), append([]string(nil), r.removed...)
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, roots, exts []string, recursive bool, sink Sink) *Watcher {
	t.Helper()
	w := New(roots, exts, recursive, sink, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_DebounceAndExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".pdf", ".txt"}, true, rec)

	path := filepath.Join(dir, "cv.txt")
	for i := 0; i < 5; i++ {
		if err := writeFile(path, strings.Repeat("x", i+1)); err != nil {
			t.Fatal(err)
		}
	}
	if err := writeFile(filepath.Join(dir, "notes.md"), "ignored"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { in, _ := rec.snapshot(); return len(in) > 0 }) {
		t.Fatal("expected an ingest callback")
	}
	time.Sleep(150 * time.Millisecond)
	ingested, _ := rec.snapshot()
	if len(ingested) != 1 || !strings.HasSuffix(ingested[0], "cv.txt") {
		t.Errorf("rapid writes should settle into one ingest, got %v", ingested)
	}
}

func TestWatcher_RemoveAndRename(t *testing.T) {
	dir := t.TempDir()
	gone := filepath.Join(dir, "gone.pdf")
	moved := filepath.Join(dir, "old.pdf")
	for _, p := range []string{gone, moved} {
		if err := writeFile(p, "%PDF-1.4"); err != nil {
			t.Fatal(err)
		}
	}
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".pdf"}, true, rec)

	if err := os.Remove(gone); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(moved, filepath.Join(dir, "new.pdf")); err != nil {
		t.Fatal(err)
	}
	ok := waitFor(t, func() bool {
		in, rm := rec.snapshot()
		return hasSuffix(rm, "gone.pdf") && hasSuffix(rm, "old.pdf") && hasSuffix(in, "new.pdf")
	})
	if !ok {
		in, rm := rec.snapshot()
		t.Errorf("ingested=%v removed=%v", in, rm)
	}
}

func TestWatcher_IgnoresHiddenAndOwnerFiles(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".docx"}, true, rec)

	_ = writeFile(filepath.Join(dir, "~$resume.docx"), "lock")
	_ = writeFile(filepath.Join(dir, ".resume.docx"), "hidden")
	_ = writeFile(filepath.Join(dir, "resume.docx"), "PK")
	if !waitFor(t, func() bool { in, _ := rec.snapshot(); return hasSuffix(in, "resume.docx") }) {
		t.Fatal("expected resume.docx to be ingested")
	}
	time.Sleep(150 * time.Millisecond)
	ingested, _ := rec.snapshot()
	if len(ingested) != 1 || filepath.Base(ingested[0]) != "resume.docx" {
		t.Errorf("got %v", ingested)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.pdf", []string{".pdf"}, true},
		{"/a/b.PDF", []string{".pdf"}, true},
		{"/a/b.docx", []string{"docx"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		if got := inDir(tt.dir, tt.path); got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

func TestWatcher_SyncExistingFiles(t *testing.T) {
	dir := t.TempDir()
	_ = writeFile(filepath.Join(dir, "a.txt"), "hello")
	_ = writeFile(filepath.Join(dir, "ignore.xyz"), "x")
	_ = mkdirAll(filepath.Join(dir, "sub"))
	_ = writeFile(filepath.Join(dir, "sub", "b.txt"), "nested")

	t.Run("recursive", func(t *testing.T) {
		rec := &recorder{}
		w := startWatcher(t, []string{dir}, []string{".txt"}, true, rec)
		w.SyncExistingFiles()
		ingested, _ := rec.snapshot()
		if len(ingested) != 2 || !hasSuffix(ingested, "a.txt") || !hasSuffix(ingested, "b.txt") {
			t.Errorf("got %v", ingested)
		}
	})
	t.Run("flat", func(t *testing.T) {
		rec := &recorder{}
		w := startWatcher(t, []string{dir}, []string{".txt"}, false, rec)
		w.SyncExistingFiles()
		ingested, _ := rec.snapshot()
		if len(ingested) != 1 || !hasSuffix(ingested, "a.txt") {
			t.Errorf("got %v", ingested)
		}
	})
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "inbox", "new")
	w := startWatcher(t, []string{root}, nil, true, SinkFuncs{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_NewDirectoryIsWatched(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	startWatcher(t, []string{dir}, []string{".txt"}, true, rec)

	nested := filepath.Join(dir, "level1", "level2")
	if err := mkdirAll(nested); err != nil {
		t.Fatal(err)
	}
	// Give the watcher a moment to register the new directories before writing.
	time.Sleep(100 * time.Millisecond)
	if err := writeFile(filepath.Join(nested, "deep.txt"), "deep content"); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { in, _ := rec.snapshot(); return hasSuffix(in, "deep.txt") }) {
		in, _ := rec.snapshot()
		t.Errorf("expected deep.txt to be ingested, got %v", in)
	}
}

func TestSinkFuncs_nilSafe(t *testing.T) {
	var called string
	s := SinkFuncs{OnIngest: func(p string) { called = p }}
	s.Ingest("a")
	s.Remove("b")
	if called != "a" {
		t.Errorf("got %q", called)
	}
}

func mkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}
