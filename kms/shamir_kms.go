package kms

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"sync"

	"github.com/deadhandprotocol/deadhand-backend/cryptoutils"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/shamir"
)

// ShamirKMS protects the operator master key with the same threshold
// scheme the product applies to customer secrets. The master key is split
// into shares distributed to administrators and never stored in
// persistent storage. When the service needs to start, administrators
// submit their shares; at the threshold the key is reconstructed, kept
// only in memory, and the collected shares are wiped.
type ShamirKMS struct {
	mu             sync.RWMutex
	masterKey      []byte
	isUnlocked     bool
	threshold      int
	receivedShares map[byte]shamir.Share

	// Fingerprints of authorized administrator public keys.
	adminPubKeys map[string][]byte
}

// NewShamirKMS creates a ShamirKMS for initial setup: it splits the master
// key into total shares with the given threshold and returns the encoded
// shares for distribution to administrators. The caller must securely
// erase the original master key after this returns.
func NewShamirKMS(masterKey []byte, threshold, total int) (*ShamirKMS, [][]byte, error) {
	if len(masterKey) < 32 {
		return nil, nil, errors.New("master key must be at least 32 bytes")
	}

	shares, err := shamir.Split(masterKey, threshold, total)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to split master key: %w", err)
	}

	encoded := make([][]byte, len(shares))
	for i, s := range shares {
		encoded[i] = s.Encode()
	}

	k := &ShamirKMS{
		masterKey:      append([]byte(nil), masterKey...),
		isUnlocked:     true,
		threshold:      threshold,
		receivedShares: make(map[byte]shamir.Share),
		adminPubKeys:   make(map[string][]byte),
	}
	return k, encoded, nil
}

// NewShamirKMSRecovery creates a ShamirKMS in recovery mode, without a
// master key. It remains locked until threshold valid shares are
// submitted.
func NewShamirKMSRecovery(threshold int) *ShamirKMS {
	return &ShamirKMS{
		threshold:      threshold,
		receivedShares: make(map[byte]shamir.Share),
		adminPubKeys:   make(map[string][]byte),
	}
}

// RegisterAdmin authorizes an administrator public key (PEM, ECDSA or
// Ed25519) to submit shares.
func (k *ShamirKMS) RegisterAdmin(pubKeyPEM []byte) error {
	if _, err := parseAdminKey(pubKeyPEM); err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	fingerprint := sha256.Sum256(pubKeyPEM)
	k.adminPubKeys[hex.EncodeToString(fingerprint[:])] = pubKeyPEM
	return nil
}

// SubmitShare submits an encoded master-key share signed by the holding
// administrator. When threshold valid shares have arrived the master key
// is reconstructed and the KMS unlocks.
func (k *ShamirKMS) SubmitShare(encodedShare, signature, adminPubKeyPEM []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.isUnlocked {
		return errors.New("KMS is already unlocked")
	}

	fingerprint := sha256.Sum256(adminPubKeyPEM)
	registered, found := k.adminPubKeys[hex.EncodeToString(fingerprint[:])]
	if !found {
		return errors.New("unregistered admin public key")
	}
	if !bytes.Equal(registered, adminPubKeyPEM) {
		return errors.New("public key does not match registered fingerprint")
	}

	if err := verifyShareSignature(encodedShare, signature, adminPubKeyPEM); err != nil {
		return err
	}

	share, err := shamir.DecodeShare(encodedShare)
	if err != nil {
		return fmt.Errorf("invalid master key share: %w", err)
	}
	k.receivedShares[share.Index] = share

	return k.tryReconstruct()
}

// tryReconstruct combines the received shares once the threshold is met,
// then wipes the share material from memory.
func (k *ShamirKMS) tryReconstruct() error {
	if len(k.receivedShares) < k.threshold {
		return nil // not enough shares yet, not an error
	}

	shares := make([]shamir.Share, 0, len(k.receivedShares))
	for _, s := range k.receivedShares {
		shares = append(shares, s)
	}

	masterKey, err := shamir.Reconstruct(shares)
	if err != nil {
		return fmt.Errorf("failed to reconstruct master key: %w", err)
	}

	k.masterKey = masterKey
	k.isUnlocked = true

	for _, s := range k.receivedShares {
		for _, v := range s.Values {
			v.SetInt64(0)
		}
	}
	k.receivedShares = make(map[byte]shamir.Share)

	return nil
}

// IsUnlocked reports whether the master key has been reconstructed.
func (k *ShamirKMS) IsUnlocked() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.isUnlocked
}

// SharesReceived returns how many distinct shares have been collected so
// far, for bootstrap status reporting.
func (k *ShamirKMS) SharesReceived() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.receivedShares)
}

// Threshold returns the number of shares required to unlock.
func (k *ShamirKMS) Threshold() int {
	return k.threshold
}

// ShardKey derives the shard encryption key for a vault. Fails while the
// KMS is locked.
func (k *ShamirKMS) ShardKey(id interfaces.VaultID) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if !k.isUnlocked {
		return nil, errors.New("KMS is locked - need more shares to unlock")
	}
	return cryptoutils.DeriveShardKey(k.masterKey, id)
}

// SignShare signs an encoded share with an administrator's ECDSA private
// key, for use when submitting the share back during recovery.
func SignShare(encodedShare []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(encodedShare)
	return ecdsa.SignASN1(rand.Reader, privateKey, digest[:])
}

func parseAdminKey(pubKeyPEM []byte) (any, error) {
	block, _ := pem.Decode(pubKeyPEM)
	if block == nil {
		return nil, errors.New("failed to decode admin public key PEM")
	}

	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse admin public key: %w", err)
	}

	switch pubKey.(type) {
	case *ecdsa.PublicKey, ed25519.PublicKey:
		return pubKey, nil
	default:
		return nil, errors.New("admin public key is neither ECDSA nor ED25519 key")
	}
}

func verifyShareSignature(encodedShare, signature, adminPubKeyPEM []byte) error {
	pubKey, err := parseAdminKey(adminPubKeyPEM)
	if err != nil {
		return err
	}

	digest := sha256.Sum256(encodedShare)
	switch key := pubKey.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest[:], signature) {
			return errors.New("invalid signature")
		}
	case ed25519.PublicKey:
		if !ed25519.Verify(key, digest[:], signature) {
			return errors.New("invalid signature")
		}
	}
	return nil
}
