package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// FileArchive writes audit artifacts to a local directory. Each artifact
// gets a timestamped, content-addressed file name; nothing is ever
// overwritten.
type FileArchive struct {
	baseDir string
	log     *slog.Logger
}

// NewFileArchive creates a file archive rooted at baseDir, creating the
// directory if needed.
func NewFileArchive(baseDir string, log *slog.Logger) (*FileArchive, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create archive directory: %w", err)
	}
	return &FileArchive{baseDir: baseDir, log: log}, nil
}

// Archive stores data and returns the file path as locator.
func (a *FileArchive) Archive(ctx context.Context, data []byte) (string, error) {
	hash := sha256.Sum256(data)
	name := fmt.Sprintf("%s-%s.json",
		time.Now().UTC().Format("20060102T150405Z"),
		hex.EncodeToString(hash[:8]))
	path := filepath.Join(a.baseDir, name)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write archive artifact: %w", err)
	}

	a.log.Debug("Archived artifact",
		slog.String("path", path),
		slog.Int("size", len(data)))
	return path, nil
}

// Available checks the archive directory exists.
func (a *FileArchive) Available(ctx context.Context) bool {
	_, err := os.Stat(a.baseDir)
	return err == nil
}

// Name returns an identifier for logging.
func (a *FileArchive) Name() string {
	return fmt.Sprintf("file-archive-%s", filepath.Base(a.baseDir))
}

var _ interfaces.ArchiveSink = (*FileArchive)(nil)
