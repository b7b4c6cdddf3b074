package interfaces

// KMS hands out per-vault shard encryption keys derived from a master key
// the core never sees directly. Key lifecycle (rotation, unsealing) is the
// key-management collaborator's concern.
type KMS interface {
	// ShardKey derives the 32-byte AES key sealing the vault's custodial
	// share. The same vault always yields the same key.
	ShardKey(id VaultID) ([]byte, error)
}
