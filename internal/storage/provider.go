// Package storage is the file-system abstraction over the fixtures directory
// that feeds document sync and the inbox drop folder.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// ErrOutsideRoot is returned for paths that resolve outside the provider root.
var ErrOutsideRoot = errors.New("storage: path outside root")

// File describes one document file on disk.
type File struct {
	Path      string // relative to the provider root
	Checksum  string // see Checksum
	UpdatedAt time.Time
}

// Provider is the interface for fixture file operations.
type Provider interface {
	// List returns the .md files directly inside dir, sorted by name.
	// Subdirectories are not descended into. A missing dir yields no files.
	List(dir string) ([]File, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Move renames oldPath to newPath, creating parent directories.
	Move(oldPath, newPath string) error
	// Abs resolves path against the root, rejecting traversal.
	Abs(path string) (string, error)
}

// Checksum is the content identity of a document: hex SHA-256 of its bytes.
// The inbox uses it to skip files it has already handled.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
