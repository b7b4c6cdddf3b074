package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// FileStore persists vault records as one JSON file per vault under a
// base directory. Writes go through a temp file and an atomic rename, and
// an in-process mutex serializes the read-compare-write of CompareAndSwap.
// Suitable for single-process deployments.
type FileStore struct {
	baseDir string
	mu      sync.Mutex
	log     *slog.Logger
}

// NewFileStore creates a file-backed store rooted at baseDir, creating
// the directory if needed.
func NewFileStore(baseDir string, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create vault directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, log: log}, nil
}

func (s *FileStore) recordPath(id interfaces.VaultID) string {
	return filepath.Join(s.baseDir, id.String()+".json")
}

// Create persists a new record.
func (s *FileStore) Create(ctx context.Context, rec *interfaces.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.recordPath(rec.ID)
	if _, err := os.Stat(path); err == nil {
		return interfaces.ErrVaultExists
	}
	if err := s.writeRecord(rec); err != nil {
		return err
	}

	s.log.Debug("Created vault record",
		slog.String("vault_id", rec.ID.String()),
		slog.String("path", path))
	return nil
}

// Get returns the stored record.
func (s *FileStore) Get(ctx context.Context, id interfaces.VaultID) (*interfaces.VaultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRecord(id)
}

// CompareAndSwap stores rec if the persisted version still matches.
func (s *FileStore) CompareAndSwap(ctx context.Context, rec *interfaces.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.readRecord(rec.ID)
	if err != nil {
		return err
	}
	if stored.Version != rec.Version {
		return interfaces.ErrVersionConflict
	}

	next := rec.Clone()
	next.Version = rec.Version + 1
	if err := s.writeRecord(next); err != nil {
		return err
	}
	rec.Version = next.Version
	return nil
}

// List returns the IDs of all stored vaults.
func (s *FileStore) List(ctx context.Context) ([]interfaces.VaultID, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault directory: %w", err)
	}

	var ids []interfaces.VaultID
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := interfaces.ParseVaultID(strings.TrimSuffix(name, ".json"))
		if err != nil {
			s.log.Warn("Skipping unrecognized file in vault directory", slog.String("name", name))
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Name returns an identifier for logging.
func (s *FileStore) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.baseDir))
}

func (s *FileStore) readRecord(id interfaces.VaultID) (*interfaces.VaultRecord, error) {
	data, err := os.ReadFile(s.recordPath(id))
	if os.IsNotExist(err) {
		return nil, interfaces.ErrVaultNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to read vault record: %w", err)
	}

	var rec interfaces.VaultRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("corrupt vault record %s: %w", id, err)
	}
	return &rec, nil
}

// writeRecord writes through a temp file and renames it into place so a
// crash mid-write never leaves a truncated record.
func (s *FileStore) writeRecord(rec *interfaces.VaultRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal vault record: %w", err)
	}

	path := s.recordPath(rec.ID)
	tmp, err := os.CreateTemp(s.baseDir, "."+rec.ID.String()+".tmp-")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write vault record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace vault record: %w", err)
	}
	return nil
}
