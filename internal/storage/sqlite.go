package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/cvtext/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS resumes (
		id TEXT PRIMARY KEY,
		source_path TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL,
		kind TEXT NOT NULL,
		text TEXT NOT NULL,
		script TEXT NOT NULL DEFAULT '',
		truncated BOOLEAN NOT NULL DEFAULT 0,
		sha256 TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		source_mtime INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_resumes_sha256 ON resumes(sha256);
	CREATE INDEX IF NOT EXISTS idx_resumes_updated_at ON resumes(updated_at);

	CREATE TABLE IF NOT EXISTS parse_failures (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		source_path TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		stage TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_failures_created_at ON parse_failures(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

const resumeColumns = `id, source_path, file_name, kind, text, script, truncated, sha256, size_bytes, source_mtime, created_at, updated_at`

// SaveResume inserts a resume or replaces the stored one with the same ID.
// CreatedAt is kept from the first save.
func (s *SQLiteStorage) SaveResume(ctx context.Context, r *models.Resume) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resumes (`+resumeColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			source_path = excluded.source_path,
			file_name = excluded.file_name,
			kind = excluded.kind,
			text = excluded.text,
			script = excluded.script,
			truncated = excluded.truncated,
			sha256 = excluded.sha256,
			size_bytes = excluded.size_bytes,
			source_mtime = excluded.source_mtime,
			updated_at = excluded.updated_at`,
		r.ID, r.SourcePath, r.FileName, r.Kind, r.Text, r.Script, r.Truncated,
		r.SHA256, r.SizeBytes, r.SourceModTime, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save resume: %w", err)
	}
	return nil
}

// GetResume returns a resume by ID.
func (s *SQLiteStorage) GetResume(ctx context.Context, id string) (*models.Resume, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resumeColumns+` FROM resumes WHERE id = ?`, id)
	r, err := scanResume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resume %s: %w", id, ErrNotFound)
	}
	return r, err
}

// FindBySHA256 returns the most recently updated resume with the given content digest.
func (s *SQLiteStorage) FindBySHA256(ctx context.Context, digest string) (*models.Resume, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resumeColumns+` FROM resumes WHERE sha256 = ? ORDER BY updated_at DESC LIMIT 1`, digest)
	r, err := scanResume(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resume with digest %s: %w", digest, ErrNotFound)
	}
	return r, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResume(row rowScanner) (*models.Resume, error) {
	var r models.Resume
	err := row.Scan(&r.ID, &r.SourcePath, &r.FileName, &r.Kind, &r.Text, &r.Script, &r.Truncated,
		&r.SHA256, &r.SizeBytes, &r.SourceModTime, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteResume removes a resume by ID. Deleting a missing resume returns ErrNotFound.
func (s *SQLiteStorage) DeleteResume(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM resumes WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("resume %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListResumes returns resumes with offset and limit, newest first. Text is not loaded.
func (s *SQLiteStorage) ListResumes(ctx context.Context, offset, limit int) ([]*models.Resume, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_path, file_name, kind, '', script, truncated, sha256, size_bytes, source_mtime, created_at, updated_at
		 FROM resumes ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Resume
	for rows.Next() {
		r, err := scanResume(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordFailure appends a parse failure to the log and sets its ID.
func (s *SQLiteStorage) RecordFailure(ctx context.Context, f *models.ParseFailure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO parse_failures (file_name, source_path, kind, stage, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.FileName, f.SourcePath, f.Kind, f.Stage, f.Message, f.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record parse failure: %w", err)
	}
	f.ID, _ = result.LastInsertId()
	return nil
}

// ListFailures returns logged failures, newest first.
func (s *SQLiteStorage) ListFailures(ctx context.Context, offset, limit int) ([]*models.ParseFailure, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, source_path, kind, stage, message, created_at
		 FROM parse_failures ORDER BY id DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.ParseFailure
	for rows.Next() {
		var f models.ParseFailure
		if err := rows.Scan(&f.ID, &f.FileName, &f.SourcePath, &f.Kind, &f.Stage, &f.Message, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// CountResumes returns the total number of stored resumes.
func (s *SQLiteStorage) CountResumes(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resumes`).Scan(&count)
	return count, err
}

// CountFailures returns the total number of logged failures.
func (s *SQLiteStorage) CountFailures(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM parse_failures`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
