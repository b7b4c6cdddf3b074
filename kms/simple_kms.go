package kms

import (
	"errors"

	"github.com/deadhandprotocol/deadhand-backend/cryptoutils"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// SimpleKMS derives per-vault shard keys from a master key held in memory.
// Suitable for development and single-operator deployments; production
// setups should prefer ShamirKMS so no single process start carries the
// master key.
type SimpleKMS struct {
	masterKey []byte
}

// NewSimpleKMS creates a new instance with the provided master key.
// The master key must be at least 32 bytes long.
func NewSimpleKMS(masterKey []byte) (*SimpleKMS, error) {
	if len(masterKey) < 32 {
		return nil, errors.New("master key must be at least 32 bytes")
	}

	k := &SimpleKMS{masterKey: make([]byte, len(masterKey))}
	copy(k.masterKey, masterKey)
	return k, nil
}

// ShardKey derives the shard encryption key for a vault.
func (k *SimpleKMS) ShardKey(id interfaces.VaultID) ([]byte, error) {
	return cryptoutils.DeriveShardKey(k.masterKey, id)
}
