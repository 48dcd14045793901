// Package cli provides output helpers for the cvtext command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hyperjump/cvtext/internal/intake"
	"github.com/hyperjump/cvtext/internal/models"
	"github.com/hyperjump/cvtext/pkg/utils"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const snippetLen = 160

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q; use text or json", s)
}

// ParsedFile is one entry of the parse command's output.
type ParsedFile struct {
	FileName string `json:"fileName"`
	Text     string `json:"text"`
	Kind     string `json:"kind,omitempty"`
	Error    string `json:"error,omitempty"`
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteParsedFiles writes parse results. Text output separates files with a header line.
func WriteParsedFiles(w io.Writer, files []ParsedFile, format OutputFormat) error {
	if format == OutputJSON {
		if files == nil {
			files = []ParsedFile{}
		}
		return WriteJSON(w, files)
	}
	for i, f := range files {
		if len(files) > 1 {
			if i > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "==> %s <==\n", f.FileName)
		}
		if f.Error != "" {
			fmt.Fprintf(w, "error: %s\n", f.Error)
			continue
		}
		fmt.Fprintln(w, f.Text)
	}
	return nil
}

// WriteSearchResults writes search results to w in the given format.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms\n\n", response.Total, response.QueryTime)
	for i, hit := range response.Hits {
		fmt.Fprintf(w, "%d. %s [%s] score %.4f\n", i+1, hit.FileName, hit.Kind, hit.Score)
		fmt.Fprintf(w, "   id: %s\n", hit.ID)
		for _, s := range hit.Snippets {
			fmt.Fprintf(w, "   %s\n", utils.Truncate(utils.OneLine(s), snippetLen))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// WriteResumes writes a resume listing as a table or JSON.
func WriteResumes(w io.Writer, resumes []*models.Resume, format OutputFormat) error {
	if format == OutputJSON {
		if resumes == nil {
			resumes = []*models.Resume{}
		}
		return WriteJSON(w, resumes)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSIZE\tUPDATED\tNAME")
	for _, r := range resumes {
		name := r.FileName
		if r.Truncated {
			name += " (truncated)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Kind, humanize.Bytes(uint64(r.SizeBytes)), relTime(r.UpdatedAt), name)
	}
	return tw.Flush()
}

// WriteFailures writes the parse failure log as a table or JSON.
func WriteFailures(w io.Writer, failures []*models.ParseFailure, format OutputFormat) error {
	if format == OutputJSON {
		if failures == nil {
			failures = []*models.ParseFailure{}
		}
		return WriteJSON(w, failures)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tKIND\tSTAGE\tNAME\tMESSAGE")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			relTime(f.CreatedAt), f.Kind, f.Stage, f.FileName, utils.Truncate(f.Message, snippetLen))
	}
	return tw.Flush()
}

// WriteStatus writes service counters.
func WriteStatus(w io.Writer, s *models.Status, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, s)
	}
	fmt.Fprintf(w, "resumes:     %s\n", humanize.Comma(s.Resumes))
	fmt.Fprintf(w, "failures:    %s\n", humanize.Comma(s.Failures))
	fmt.Fprintf(w, "indexed:     %s\n", humanize.Comma(int64(s.Indexed)))
	fmt.Fprintf(w, "disk usage:  %s\n", humanize.Bytes(uint64(s.DiskUsageBytes)))
	if s.Version != "" {
		fmt.Fprintf(w, "version:     %s\n", s.Version)
	}
	return nil
}

// WriteBatchReport summarizes a directory ingest.
func WriteBatchReport(w io.Writer, r *intake.BatchReport, elapsed time.Duration, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, r)
	}
	fmt.Fprintf(w, "stored %d, unchanged %d, failed %d in %s\n",
		r.Stored, r.Skipped, len(r.Failures), elapsed.Round(time.Millisecond))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s: %s\n", f.Path, f.Message)
	}
	return nil
}

func relTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
