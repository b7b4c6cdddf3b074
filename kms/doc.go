// Package kms manages the operator master key and derives per-vault shard
// encryption keys. It implements the interfaces.KMS contract:
//
//	// KMS hands out per-vault shard encryption keys.
//	type KMS interface {
//	    // ShardKey derives the AES key sealing a vault's custodial share.
//	    ShardKey(id VaultID) ([]byte, error)
//	}
//
// The package includes two implementations:
//
// # SimpleKMS
//
// Holds the master key directly in memory, seeded via flag. Suitable for
// development and single-operator deployments.
//
// # ShamirKMS
//
// Applies the product's own threshold engine to its operational key: the
// master key is split with the shamir package among registered
// administrators and never stored in persistent storage. The server boots
// locked and refuses shard-key derivation until the threshold number of
// administrator shares has been submitted; each submission is verified
// against the administrator's registered public key. After reconstruction
// the collected shares are wiped and the master key exists only in memory.
package kms
