package extract

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var unsupportedPattern = regexp.MustCompile(`(?i)不支持|unsupported`)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParse_resumeTxt(t *testing.T) {
	path := writeFile(t, "resume.txt", []byte("张三\n后端工程师\n熟悉 Go、MySQL、Redis"))
	res, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if res.FileName != "resume.txt" {
		t.Errorf("FileName = %q", res.FileName)
	}
	if !strings.Contains(res.Text, "后端工程师") || !strings.Contains(res.Text, "Redis") {
		t.Errorf("Text = %q", res.Text)
	}
	if res.Kind != PlainText {
		t.Errorf("Kind = %v", res.Kind)
	}
}

func TestParse_pngRejected(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"),
		[]byte("plain text in disguise"),
		nil,
	} {
		path := writeFile(t, "resume.png", data)
		_, err := Parse(path)
		if err == nil {
			t.Fatal("expected error")
		}
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("kind = %v, want unsupported", KindOf(err))
		}
		if !unsupportedPattern.MatchString(err.Error()) {
			t.Errorf("message %q does not mention unsupported", err.Error())
		}
		if !strings.Contains(err.Error(), ".png") {
			t.Errorf("message %q does not name the extension", err.Error())
		}
	}
}

func TestParse_chineseLocale(t *testing.T) {
	p := NewParser(WithLocale(LocaleZH))
	path := writeFile(t, "photo.png", []byte("x"))
	_, err := p.Parse(path)
	if err == nil || !strings.Contains(err.Error(), "不支持") {
		t.Errorf("got %v", err)
	}
}

func TestParse_roundTripPlainText(t *testing.T) {
	content := "  Jane   Doe \r\n\r\n\r\n\r\nSkills:\tGo,  Rust\n"
	path := writeFile(t, "cv.txt", []byte(content))
	res, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := Normalize([]string{content}); res.Text != want {
		t.Errorf("got %q, want %q", res.Text, want)
	}
	if res.Text != "Jane Doe\n\nSkills: Go, Rust" {
		t.Errorf("got %q", res.Text)
	}
}

func TestParse_mismatchedContent(t *testing.T) {
	for _, name := range []string{"resume.pdf", "resume.docx", "resume.doc", "resume.rtf"} {
		path := writeFile(t, name, []byte("arbitrary bytes \x00\x01\x02 that are not a document"))
		res, err := Parse(path)
		if err == nil {
			t.Fatalf("%s: expected error, got text %q", name, res.Text)
		}
		k := KindOf(err)
		if k != UnsupportedFormat && k != CorruptDocument {
			t.Errorf("%s: kind = %v", name, k)
		}
	}
}

func TestParse_corruptWithValidMagic(t *testing.T) {
	tests := map[string][]byte{
		"cv.pdf":  []byte("%PDF-1.4\nthis is not really a pdf\n"),
		"cv.docx": []byte("PK\x03\x04 not really a zip"),
		"cv.doc":  append(append([]byte{}, oleMagic...), make([]byte, 600)...),
		"cv.rtf":  []byte(`{\rtf1 never closed`),
	}
	for name, data := range tests {
		_, err := NewParser().ParseBytes(name, data)
		if !errors.Is(err, ErrCorruptDocument) {
			t.Errorf("%s: got %v, want corrupt document", name, err)
			continue
		}
		var pe *ParseError
		if errors.As(err, &pe) && pe.Stage != StageExtract {
			t.Errorf("%s: stage = %v", name, pe.Stage)
		}
	}
}

func TestParse_idempotent(t *testing.T) {
	path := writeFile(t, "cv.pdf", buildPDF("Jane Doe", "Go and Rust"))
	first, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	second, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if *first != *second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if !strings.Contains(first.Text, "Jane Doe") || !strings.Contains(first.Text, "Go and Rust") {
		t.Errorf("Text = %q", first.Text)
	}
}

func TestParse_emptyFiles(t *testing.T) {
	for _, name := range []string{"empty.txt", "empty.rtf"} {
		res, err := Parse(writeFile(t, name, nil))
		if err != nil {
			t.Errorf("%s: %v", name, err)
			continue
		}
		if res.Text != "" {
			t.Errorf("%s: text = %q", name, res.Text)
		}
	}
	for _, name := range []string{"empty.pdf", "empty.doc", "empty.docx"} {
		_, err := Parse(writeFile(t, name, nil))
		if KindOf(err) != CorruptDocument {
			t.Errorf("%s: got %v, want corrupt document", name, err)
		}
	}
}

func TestParseBytes_blankRTF(t *testing.T) {
	res, err := NewParser().ParseBytes("blank.rtf", []byte("\r\n  \n"))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if res.Text != "" || res.Kind != RichText {
		t.Errorf("got %+v", res)
	}
}

func TestParse_rejectEmpty(t *testing.T) {
	p := NewParser(WithRejectEmpty(true))
	_, err := p.Parse(writeFile(t, "empty.txt", nil))
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("got %v, want empty input", err)
	}
}

func TestParse_emptyPath(t *testing.T) {
	_, err := Parse("  ")
	if KindOf(err) != EmptyInput {
		t.Errorf("got %v", err)
	}
}

func TestParse_ioFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.txt")
	_, err := Parse(missing)
	if !errors.Is(err, ErrIoFailure) {
		t.Fatalf("got %v, want io failure", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("underlying cause not attached: %v", err)
	}
	if !strings.Contains(err.Error(), missing) {
		t.Errorf("message %q does not name the path", err.Error())
	}

	dir := t.TempDir()
	if _, err := Parse(dir); KindOf(err) != IoFailure {
		t.Errorf("directory: got %v", err)
	}
}

func TestParse_tooLarge(t *testing.T) {
	p := NewParser(WithMaxFileBytes(16))
	_, err := p.Parse(writeFile(t, "big.txt", []byte(strings.Repeat("x", 17))))
	if KindOf(err) != UnsupportedFormat || !unsupportedPattern.MatchString(err.Error()) {
		t.Errorf("got %v", err)
	}
	if _, err := p.ParseBytes("big.txt", []byte(strings.Repeat("x", 17))); KindOf(err) != UnsupportedFormat {
		t.Errorf("ParseBytes: got %v", err)
	}
}

func TestParse_truncation(t *testing.T) {
	p := NewParser(WithMaxTextBytes(8))
	res, err := p.ParseBytes("cv.txt", []byte("abcdefghijkl"))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if res.Text != "abcdefgh" || !res.Truncated {
		t.Errorf("got %q truncated=%v", res.Text, res.Truncated)
	}
}

func TestParse_missingExtractor(t *testing.T) {
	p := NewParser(WithRegistry(DefaultRegistry(nil).Without(RichText)))
	_, err := p.ParseBytes("cv.rtf", []byte(`{\rtf1 hi}`))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v", err)
	}
	if pe.Kind != UnsupportedFormat || pe.Stage != StageDispatch {
		t.Errorf("got kind=%v stage=%v", pe.Kind, pe.Stage)
	}
}

func TestParse_panickingExtractorIsCorrupt(t *testing.T) {
	boom := ExtractorFunc(func([]byte) ([]string, error) { panic("boom") })
	p := NewParser(WithRegistry(DefaultRegistry(nil).With(PlainText, boom)))
	_, err := p.ParseBytes("cv.txt", []byte("hello"))
	if KindOf(err) != CorruptDocument {
		t.Errorf("got %v", err)
	}
}

func TestParse_legacyEncoding(t *testing.T) {
	enc, err := LegacyEncoding("windows-1251")
	if err != nil {
		t.Fatal(err)
	}
	p := NewParser(WithLegacyEncoding(enc))
	res, err := p.ParseBytes("cv.txt", []byte{0xC8, 0xE2, 0xE0, 0xED})
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if res.Text != "Иван" || res.Script != "Cyrillic" {
		t.Errorf("got %q script=%q", res.Text, res.Script)
	}
}

func TestParse_logsStages(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	p := NewParser(WithLogger(zap.New(core)))
	if _, err := p.ParseBytes("cv.txt", []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if logs.FilterMessage("sniffed").Len() != 1 || logs.FilterMessage("extracted").Len() != 1 {
		t.Errorf("unexpected log entries: %v", logs.All())
	}
}

func TestParse_concurrent(t *testing.T) {
	p := NewParser()
	inputs := map[string][]byte{
		"a.txt":  []byte("plain text"),
		"b.pdf":  buildPDF("pdf text"),
		"c.docx": minimalDocx(t, para("docx text")),
		"d.rtf":  []byte(`{\rtf1 rtf text}`),
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		for name, data := range inputs {
			wg.Add(1)
			go func(name string, data []byte) {
				defer wg.Done()
				res, err := p.ParseBytes(name, data)
				if err != nil {
					t.Errorf("%s: %v", name, err)
					return
				}
				if !strings.Contains(res.Text, "text") {
					t.Errorf("%s: text = %q", name, res.Text)
				}
			}(name, data)
		}
	}
	wg.Wait()
}
