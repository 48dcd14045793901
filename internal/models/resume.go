// Package models defines core data structures for parsed resumes, parse failures, and search results.
package models

import "time"

// Resume is the persisted outcome of a successful parse.
type Resume struct {
	ID         string `json:"id" db:"id"`
	SourcePath string `json:"source_path,omitempty" db:"source_path"`
	FileName   string `json:"file_name" db:"file_name"`
	Kind       string `json:"kind" db:"kind"`
	Text       string `json:"text,omitempty" db:"text"`
	Script     string `json:"script,omitempty" db:"script"`
	Truncated  bool   `json:"truncated,omitempty" db:"truncated"`
	SHA256     string `json:"sha256" db:"sha256"`
	SizeBytes  int64  `json:"size_bytes" db:"size_bytes"`
	// SourceModTime is the source file's mtime in Unix nanoseconds; zero for uploads.
	SourceModTime int64     `json:"-" db:"source_mtime"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// ParseFailure records an input the parser rejected.
type ParseFailure struct {
	ID         int64     `json:"id" db:"id"`
	FileName   string    `json:"file_name" db:"file_name"`
	SourcePath string    `json:"source_path,omitempty" db:"source_path"`
	Kind       string    `json:"kind" db:"kind"`
	Stage      string    `json:"stage" db:"stage"`
	Message    string    `json:"message" db:"message"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Status summarizes the service state for the status endpoint and CLI.
type Status struct {
	Resumes        int64  `json:"resumes"`
	Failures       int64  `json:"failures"`
	Indexed        uint64 `json:"indexed"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	Version        string `json:"version,omitempty"`
}
