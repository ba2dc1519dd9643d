package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ScratchStore writes short-lived files, such as uploaded reference images and
// generated masks, that a provider SDK needs to read from disk. Callers own
// removal; every spooled file gets a unique name so concurrent requests never
// collide.
type ScratchStore struct {
	basePath string
}

// NewScratchStore initializes a ScratchStore rooted at basePath. An empty
// basePath selects a directory under the OS temp dir.
func NewScratchStore(basePath string) (*ScratchStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		basePath = filepath.Join(os.TempDir(), "stylegen")
	}
	if err := os.MkdirAll(basePath, 0o700); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	return &ScratchStore{basePath: basePath}, nil
}

// BasePath returns the configured root directory.
func (s *ScratchStore) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// Spool persists data under a unique file derived from name and returns the
// absolute path. The base name of name is kept as a suffix so the extension
// survives for multipart uploads.
func (s *ScratchStore) Spool(ctx context.Context, name string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: no store configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(name)
	if err != nil {
		return "", err
	}
	fullPath := filepath.Join(s.basePath, uuid.NewString()+"-"+filepath.Base(cleanKey))
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("storage: write file: %w", err)
	}
	return fullPath, nil
}

// Remove deletes a spooled file. Paths outside the store are refused and a
// file that is already gone is not an error.
func (s *ScratchStore) Remove(path string) error {
	if s == nil {
		return errors.New("storage: no store configured")
	}
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return errors.New("storage: path outside store")
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: remove file: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
