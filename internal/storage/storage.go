// Package storage defines the persistence interface for parsed resumes and parse failures.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/cvtext/internal/models"
)

// ErrNotFound is returned when a resume does not exist.
var ErrNotFound = errors.New("not found")

// Storage defines resume and failure persistence operations.
type Storage interface {
	// Resume operations
	SaveResume(ctx context.Context, r *models.Resume) error
	GetResume(ctx context.Context, id string) (*models.Resume, error)
	FindBySHA256(ctx context.Context, digest string) (*models.Resume, error)
	DeleteResume(ctx context.Context, id string) error
	// ListResumes returns resumes newest first without their text.
	ListResumes(ctx context.Context, offset, limit int) ([]*models.Resume, error)

	// Failure log
	RecordFailure(ctx context.Context, f *models.ParseFailure) error
	ListFailures(ctx context.Context, offset, limit int) ([]*models.ParseFailure, error)

	// Stats
	CountResumes(ctx context.Context) (int64, error)
	CountFailures(ctx context.Context) (int64, error)

	Close() error
}
