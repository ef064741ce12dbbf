package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Security errors
var (
	ErrPathTraversal = errors.New("path traversal detected")
	ErrFileNotFound  = errors.New("file not found")
	ErrFileTooLarge  = errors.New("file exceeds size limit")
)

// MaxRawMessageSize is the maximum accepted raw message size (25 MB)
const MaxRawMessageSize = 25 * 1024 * 1024

// RawStore archives original RFC 822 messages so the stored Email rows can
// always be traced back to the bytes that produced them.
type RawStore interface {
	Save(content io.Reader) (string, error)
	Get(path string) (io.ReadCloser, error)
	Delete(path string) error
}

// localRawStore implements RawStore on the local filesystem
type localRawStore struct {
	basePath string
}

// NewLocalRawStore creates a new localRawStore instance
func NewLocalRawStore(basePath string) (RawStore, error) {
	// Ensure base directory exists
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &localRawStore{basePath: basePath}, nil
}

// validatePath ensures path is within basePath (prevents traversal)
func (s *localRawStore) validatePath(path string) (string, error) {
	cleanPath := filepath.Clean(path)

	// Prevent absolute paths
	if filepath.IsAbs(cleanPath) {
		return "", ErrPathTraversal
	}

	// Prevent path traversal
	if strings.Contains(cleanPath, "..") {
		return "", ErrPathTraversal
	}

	fullPath := filepath.Join(s.basePath, cleanPath)

	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}

	absBase, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", fmt.Errorf("invalid base path: %w", err)
	}

	// Security check: ensure file is within allowed directory
	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) &&
		absPath != absBase {
		return "", ErrPathTraversal
	}

	return absPath, nil
}

// ValidateSize rejects messages beyond the archive limit before any bytes
// are written.
func ValidateSize(size int64) error {
	if size > MaxRawMessageSize {
		return ErrFileTooLarge
	}
	return nil
}

// Save archives a raw message and returns its relative path
func (s *localRawStore) Save(content io.Reader) (string, error) {
	// Random names prevent collisions between identically named messages
	uniqueName := uuid.New().String() + ".eml"

	// Shard by the first 2 chars so a single directory never holds the
	// whole archive
	subDir := uniqueName[:2]
	dirPath := filepath.Join(s.basePath, subDir)

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	relPath := filepath.Join(subDir, uniqueName)
	fullPath := filepath.Join(s.basePath, relPath)

	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	// Bound the copy so an oversized stream cannot fill the disk
	written, err := io.Copy(file, io.LimitReader(content, MaxRawMessageSize+1))
	if err != nil {
		os.Remove(fullPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	if written > MaxRawMessageSize {
		os.Remove(fullPath)
		return "", ErrFileTooLarge
	}

	return relPath, nil
}

// Get retrieves an archived message by its path
func (s *localRawStore) Get(path string) (io.ReadCloser, error) {
	// Validate path to prevent traversal
	fullPath, err := s.validatePath(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes an archived message by its path
func (s *localRawStore) Delete(path string) error {
	// Validate path to prevent traversal
	fullPath, err := s.validatePath(path)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			// File already doesn't exist, not an error
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}
