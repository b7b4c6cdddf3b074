package storage

import (
	"context"
	"sync"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// MemoryStore is an in-process VaultStore. Used by tests and development
// deployments; records do not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[interfaces.VaultID]*interfaces.VaultRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[interfaces.VaultID]*interfaces.VaultRecord),
	}
}

// Create persists a new record.
func (s *MemoryStore) Create(ctx context.Context, rec *interfaces.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return interfaces.ErrVaultExists
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

// Get returns a copy of the stored record.
func (s *MemoryStore) Get(ctx context.Context, id interfaces.VaultID) (*interfaces.VaultRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, interfaces.ErrVaultNotFound
	}
	return rec.Clone(), nil
}

// CompareAndSwap stores rec if the persisted version still matches.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, rec *interfaces.VaultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.records[rec.ID]
	if !exists {
		return interfaces.ErrVaultNotFound
	}
	if stored.Version != rec.Version {
		return interfaces.ErrVersionConflict
	}

	next := rec.Clone()
	next.Version = rec.Version + 1
	s.records[rec.ID] = next
	rec.Version = next.Version
	return nil
}

// List returns the IDs of all stored vaults.
func (s *MemoryStore) List(ctx context.Context) ([]interfaces.VaultID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]interfaces.VaultID, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	return ids, nil
}

// Name returns an identifier for logging.
func (s *MemoryStore) Name() string {
	return "memory"
}
