package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

const (
	// ShardKeySize is the AES-256 key size used for shard sealing.
	ShardKeySize = 32

	gcmNonceSize = 12

	// shardKeyInfo is the HKDF domain-separation label. Frozen: changing it
	// orphans every sealed share.
	shardKeyInfo = "deadhand/custodial-share/v1"
)

// SealShare encrypts a plaintext share under key with AES-256-GCM and a
// freshly generated nonce. additionalData is authenticated but not
// encrypted; opening with different additional data fails. The caller
// should wipe the plaintext afterwards.
func SealShare(key, plaintext, additionalData []byte) (interfaces.EncryptedShare, error) {
	if len(key) != ShardKeySize {
		return interfaces.EncryptedShare{}, fmt.Errorf("shard key must be %d bytes, got %d", ShardKeySize, len(key))
	}
	if len(plaintext) == 0 {
		return interfaces.EncryptedShare{}, interfaces.ErrEmptySecret
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return interfaces.EncryptedShare{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return interfaces.EncryptedShare{
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, additionalData),
	}, nil
}

// OpenShare decrypts a sealed share, verifying the authentication tag
// and the additional data before returning any plaintext. Tag mismatch
// fails hard with interfaces.ErrAuthenticationFailed.
func OpenShare(key []byte, sealed interfaces.EncryptedShare, additionalData []byte) ([]byte, error) {
	if len(key) != ShardKeySize {
		return nil, fmt.Errorf("shard key must be %d bytes, got %d", ShardKeySize, len(key))
	}
	if len(sealed.Nonce) != gcmNonceSize {
		return nil, fmt.Errorf("%w: bad nonce length", interfaces.ErrAuthenticationFailed)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, additionalData)
	if err != nil {
		return nil, interfaces.ErrAuthenticationFailed
	}
	return plaintext, nil
}

// VaultBinding is the additional authenticated data binding a sealed
// custodial share to its vault identity and beneficiary contact. A
// store-level rewrite of the beneficiary address breaks the binding and
// the release fails authentication instead of delivering to the new
// address.
func VaultBinding(id interfaces.VaultID, beneficiary interfaces.Contact) []byte {
	return []byte(id.String() + "|" + beneficiary.String())
}

// DeriveShardKey derives the per-vault shard key from the master key via
// HKDF-SHA256, using the vault ID as salt. Deterministic: the same vault
// always yields the same key.
func DeriveShardKey(masterKey []byte, id interfaces.VaultID) ([]byte, error) {
	if len(masterKey) < 32 {
		return nil, fmt.Errorf("master key must be at least 32 bytes")
	}

	r := hkdf.New(sha256.New, masterKey, []byte(id.String()), []byte(shardKeyInfo))
	key := make([]byte, ShardKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("shard key derivation failed: %w", err)
	}
	return key, nil
}

// WipeBytes zeroes data in place. Used for plaintext shares and
// reconstructed keys as soon as they are no longer needed.
func WipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
