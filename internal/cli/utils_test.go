package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/cvtext/internal/intake"
	"github.com/hyperjump/cvtext/internal/models"
)

func TestParseOutputFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    OutputFormat
		wantErr bool
	}{
		{"", OutputText, false},
		{"text", OutputText, false},
		{"JSON", OutputJSON, false},
		{"yaml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseOutputFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseOutputFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteParsedFiles_JSON(t *testing.T) {
	var buf bytes.Buffer
	files := []ParsedFile{{FileName: "a.txt", Text: "hello", Kind: "text"}, {FileName: "b.png", Error: "unsupported"}}
	if err := WriteParsedFiles(&buf, files, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if len(decoded) != 2 || decoded[0]["fileName"] != "a.txt" || decoded[0]["text"] != "hello" {
		t.Errorf("decoded = %v", decoded)
	}
	if _, ok := decoded[0]["error"]; ok {
		t.Error("error should be omitted on success")
	}

	buf.Reset()
	if err := WriteParsedFiles(&buf, nil, OutputJSON); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty output = %q", buf.String())
	}
}

func TestWriteParsedFiles_text(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteParsedFiles(&buf, []ParsedFile{{FileName: "a.txt", Text: "only"}}, OutputText)
	if buf.String() != "only\n" {
		t.Errorf("single file output = %q", buf.String())
	}

	buf.Reset()
	_ = WriteParsedFiles(&buf, []ParsedFile{{FileName: "a.txt", Text: "one"}, {FileName: "b.pdf", Error: "corrupt"}}, OutputText)
	out := buf.String()
	for _, want := range []string{"==> a.txt <==", "one", "==> b.pdf <==", "error: corrupt"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSearchResults(t *testing.T) {
	resp := &models.SearchResponse{
		Query:     "golang",
		Total:     1,
		QueryTime: 7,
		Hits: []*models.SearchHit{{
			ID: "file:abc", FileName: "jane.pdf", Kind: "pdf", Score: 1.5,
			Snippets: []string{"senior <mark>golang</mark>\ndeveloper"},
		}},
	}
	var buf bytes.Buffer
	if err := WriteSearchResults(&buf, resp, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Found 1 results in 7ms", "1. jane.pdf [pdf]", "id: file:abc", "senior <mark>golang</mark> developer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	if err := WriteSearchResults(&buf, resp, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.SearchResponse
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Total != 1 || decoded.Hits[0].ID != "file:abc" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteResumes(t *testing.T) {
	resumes := []*models.Resume{{
		ID: "upload:1", FileName: "cv.docx", Kind: "word", SizeBytes: 2048,
		Truncated: true, UpdatedAt: time.Now().Add(-2 * time.Hour),
	}}
	var buf bytes.Buffer
	if err := WriteResumes(&buf, resumes, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"ID", "upload:1", "word", "2.0 kB", "2 hours ago", "cv.docx (truncated)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	_ = WriteResumes(&buf, nil, OutputJSON)
	if strings.TrimSpace(buf.String()) != "[]" {
		t.Errorf("empty JSON = %q", buf.String())
	}
}

func TestWriteFailures(t *testing.T) {
	failures := []*models.ParseFailure{{FileName: "x.pdf", Kind: "corrupt_document", Stage: "extract", Message: "broken"}}
	var buf bytes.Buffer
	if err := WriteFailures(&buf, failures, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"corrupt_document", "extract", "x.pdf", "broken", "-"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	s := &models.Status{Resumes: 1200, Failures: 3, Indexed: 1200, DiskUsageBytes: 5 << 20, Version: "1.0"}
	if err := WriteStatus(&buf, s, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"1,200", "failures:    3", "5.2 MB", "version:     1.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteBatchReport(t *testing.T) {
	r := &intake.BatchReport{
		Stored:  2,
		Skipped: 1,
		Failures: []intake.FileFailure{
			{Path: "/in/bad.pdf", Err: errors.New("corrupt"), Message: "corrupt"},
		},
	}
	var buf bytes.Buffer
	if err := WriteBatchReport(&buf, r, 1500*time.Millisecond, OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "stored 2, unchanged 1, failed 1 in 1.5s") || !strings.Contains(out, "/in/bad.pdf: corrupt") {
		t.Errorf("output = %q", out)
	}
}
