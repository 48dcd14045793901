// Package fileid derives resume IDs from source paths, uploads, and content digests.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	filePrefix   = "file:"
	uploadPrefix = "upload:"
)

// PathID returns a stable resume ID for the given absolute path.
// Same path always yields the same ID, so re-ingesting a file replaces its record.
func PathID(absolutePath string) string {
	normalized := filepath.Clean(absolutePath)
	hash := sha256.Sum256([]byte(normalized))
	return filePrefix + hex.EncodeToString(hash[:])
}

// UploadID returns a fresh ID for content that arrived without a source path.
func UploadID() string {
	return uploadPrefix + uuid.NewString()
}

// Digest returns the hex SHA-256 of data. Uploads with equal digests are deduplicated.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsPathID reports whether id was produced by PathID.
func IsPathID(id string) bool {
	return strings.HasPrefix(id, filePrefix)
}
