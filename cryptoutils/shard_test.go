package cryptoutils

import (
	"crypto/rand"
	"testing"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMasterKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err, "Failed to generate test master key")
	return key
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testMasterKey(t)
	plaintext := []byte("custodial-share-material")
	binding := VaultBinding(interfaces.NewVaultID(), "heir@example.com")

	sealed, err := SealShare(key, plaintext, binding)
	require.NoError(t, err, "Seal should succeed")
	assert.Len(t, sealed.Nonce, 12, "GCM nonce is 12 bytes")
	assert.NotEqual(t, plaintext, sealed.Ciphertext, "Ciphertext must differ from plaintext")

	opened, err := OpenShare(key, sealed, binding)
	require.NoError(t, err, "Open should succeed with the right key")
	assert.Equal(t, plaintext, opened, "Round-trip")
}

func TestOpenRequiresMatchingBinding(t *testing.T) {
	key := testMasterKey(t)
	id := interfaces.NewVaultID()
	sealed, err := SealShare(key, []byte("share"), VaultBinding(id, "heir@example.com"))
	require.NoError(t, err)

	_, err = OpenShare(key, sealed, VaultBinding(id, "attacker@example.com"))
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed,
		"A rewritten beneficiary contact must break the seal")

	_, err = OpenShare(key, sealed, VaultBinding(interfaces.NewVaultID(), "heir@example.com"))
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed,
		"Rebinding the ciphertext to another vault must break the seal")
}

func TestSealUsesFreshNonce(t *testing.T) {
	key := testMasterKey(t)
	plaintext := []byte("same-input")

	a, err := SealShare(key, plaintext, nil)
	require.NoError(t, err)
	b, err := SealShare(key, plaintext, nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.Nonce, b.Nonce, "Every seal must use a fresh nonce")
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext, "Fresh nonce changes the ciphertext")
}

func TestOpenFailsHardOnTamper(t *testing.T) {
	key := testMasterKey(t)
	sealed, err := SealShare(key, []byte("high-value-share"), nil)
	require.NoError(t, err)

	tampered := sealed
	tampered.Ciphertext = append([]byte(nil), sealed.Ciphertext...)
	tampered.Ciphertext[0] ^= 0x01

	_, err = OpenShare(key, tampered, nil)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed, "Tag mismatch must be a hard failure")

	wrongKey := testMasterKey(t)
	_, err = OpenShare(wrongKey, sealed, nil)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed, "Wrong key must fail authentication")
}

func TestSealValidation(t *testing.T) {
	_, err := SealShare(make([]byte, 16), []byte("x"), nil)
	assert.Error(t, err, "Short key rejected")

	_, err = SealShare(make([]byte, 32), nil, nil)
	assert.ErrorIs(t, err, interfaces.ErrEmptySecret, "Empty plaintext rejected")
}

func TestDeriveShardKey(t *testing.T) {
	master := testMasterKey(t)
	idA := interfaces.NewVaultID()
	idB := interfaces.NewVaultID()

	keyA1, err := DeriveShardKey(master, idA)
	require.NoError(t, err)
	keyA2, err := DeriveShardKey(master, idA)
	require.NoError(t, err)
	keyB, err := DeriveShardKey(master, idB)
	require.NoError(t, err)

	assert.Equal(t, keyA1, keyA2, "Derivation is deterministic per vault")
	assert.NotEqual(t, keyA1, keyB, "Different vaults get different keys")
	assert.Len(t, keyA1, ShardKeySize)

	_, err = DeriveShardKey(make([]byte, 16), idA)
	assert.Error(t, err, "Short master key rejected")
}

func TestTokens(t *testing.T) {
	token, err := NewHeartbeatToken()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(token), 43, "32 bytes of entropy in URL-safe base64")

	hash := HashToken(token)
	assert.True(t, VerifyToken(token, hash), "Token verifies against its own hash")
	assert.False(t, VerifyToken(token+"x", hash), "Modified token fails verification")

	other, err := NewHeartbeatToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other, "Tokens are unique")
}

func TestWipeBytes(t *testing.T) {
	data := []byte{1, 2, 3, 4}
	WipeBytes(data)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
}
