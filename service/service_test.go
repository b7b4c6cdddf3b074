package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/cryptoutils"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/kms"
	"github.com/deadhandprotocol/deadhand-backend/shamir"
	"github.com/deadhandprotocol/deadhand-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T) (*Service, *storage.MemoryStore, *kms.SimpleKMS) {
	t.Helper()
	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i + 1)
	}
	simpleKMS, err := kms.NewSimpleKMS(masterKey)
	require.NoError(t, err)

	store := storage.NewMemoryStore()
	return New(store, simpleKMS, discardLogger()), store, simpleKMS
}

func defaultCreateRequest(secret []byte) CreateVaultRequest {
	return CreateVaultRequest{
		Secret:             secret,
		Threshold:          3,
		TotalShares:        5,
		OwnerContact:       "owner@example.com",
		BeneficiaryContact: "heir@example.com",
	}
}

func TestCreateVault(t *testing.T) {
	ctx := context.Background()
	svc, store, simpleKMS := newTestService(t)

	secret := []byte("my seed phrase goes here")
	original := append([]byte(nil), secret...)

	resp, err := svc.CreateVault(ctx, defaultCreateRequest(secret))
	require.NoError(t, err)

	assert.NotEmpty(t, resp.HeartbeatToken)
	assert.Len(t, resp.OwnerShares, 4, "Owner receives all shares except the custodial one")
	assert.Equal(t, make([]byte, len(original)), secret,
		"Plaintext secret is wiped before CreateVault returns")

	rec, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateActive, rec.State)
	assert.Equal(t, 3, rec.Threshold)
	assert.False(t, rec.CustodialShare.IsZero())
	assert.NotContains(t, string(rec.CustodialShare.Ciphertext), string(original),
		"Custodial share is encrypted at rest")
	assert.Equal(t, cryptoutils.HashToken(resp.HeartbeatToken), rec.TokenHash)
	assert.Equal(t, rec.LastHeartbeatAt.Add(30*24*time.Hour), resp.NextDeadline)

	// Owner shares plus the decrypted custodial share reconstruct the
	// secret.
	key, err := simpleKMS.ShardKey(resp.VaultID)
	require.NoError(t, err)
	plain, err := cryptoutils.OpenShare(key, rec.CustodialShare,
		cryptoutils.VaultBinding(resp.VaultID, rec.BeneficiaryContact))
	require.NoError(t, err)
	custodial, err := shamir.DecodeShare(plain)
	require.NoError(t, err)

	shareA, err := shamir.DecodeShareString(resp.OwnerShares[0])
	require.NoError(t, err)
	shareB, err := shamir.DecodeShareString(resp.OwnerShares[1])
	require.NoError(t, err)

	recovered, err := shamir.Reconstruct([]shamir.Share{custodial, shareA, shareB})
	require.NoError(t, err)
	assert.Equal(t, original, recovered)
}

func TestCreateVaultValidation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	req := defaultCreateRequest([]byte("secret"))
	req.Threshold = 1
	_, err := svc.CreateVault(ctx, req)
	assert.ErrorIs(t, err, interfaces.ErrInvalidThreshold)

	req = defaultCreateRequest(nil)
	_, err = svc.CreateVault(ctx, req)
	assert.ErrorIs(t, err, interfaces.ErrEmptySecret)

	req = defaultCreateRequest([]byte("secret"))
	req.OwnerContact = ""
	_, err = svc.CreateVault(ctx, req)
	assert.Error(t, err)

	req = defaultCreateRequest([]byte("secret"))
	req.Schedule = &interfaces.EscalationSchedule{
		CheckInIntervalDays: 30,
		WarningOffsets:      []int{60, 30},
		TriggerOffsetDays:   90,
	}
	_, err = svc.CreateVault(ctx, req)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSchedule)
}

func TestHeartbeat(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	start := time.Now().UTC()
	svc.SetClock(func() time.Time { return start })
	resp, err := svc.CreateVault(ctx, defaultCreateRequest([]byte("secret")))
	require.NoError(t, err)

	// Valid token advances the heartbeat.
	later := start.Add(10 * 24 * time.Hour)
	svc.SetClock(func() time.Time { return later })
	next, err := svc.Heartbeat(ctx, resp.VaultID, resp.HeartbeatToken)
	require.NoError(t, err)
	assert.Equal(t, later.Add(30*24*time.Hour), next)

	rec, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Equal(t, later, rec.LastHeartbeatAt)

	// Invalid token is rejected without touching the record.
	_, err = svc.Heartbeat(ctx, resp.VaultID, "not-the-token")
	assert.ErrorIs(t, err, interfaces.ErrInvalidToken)

	unchanged, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Equal(t, later, unchanged.LastHeartbeatAt)

	// Unknown vault.
	_, err = svc.Heartbeat(ctx, interfaces.NewVaultID(), resp.HeartbeatToken)
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound)
}

func TestRepeatedHeartbeatsWithinWindow(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	start := time.Now().UTC()
	svc.SetClock(func() time.Time { return start })
	resp, err := svc.CreateVault(ctx, defaultCreateRequest([]byte("secret")))
	require.NoError(t, err)

	// An anxious owner checks in several times well inside one check-in
	// window. Every heartbeat is accepted and only moves the deadline
	// forward.
	var lastNext time.Time
	for _, offset := range []time.Duration{time.Hour, 24 * time.Hour, 3 * 24 * time.Hour} {
		at := start.Add(offset)
		svc.SetClock(func() time.Time { return at })
		next, err := svc.Heartbeat(ctx, resp.VaultID, resp.HeartbeatToken)
		require.NoError(t, err, "Heartbeat at +%v should be accepted", offset)
		assert.Equal(t, at.Add(30*24*time.Hour), next)
		assert.True(t, next.After(lastNext), "Deadline only moves forward")
		lastNext = next
	}

	rec, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateActive, rec.State)
	assert.Equal(t, start.Add(3*24*time.Hour), rec.LastHeartbeatAt)
}

func TestHeartbeatAfterTrigger(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	resp, err := svc.CreateVault(ctx, defaultCreateRequest([]byte("secret")))
	require.NoError(t, err)

	rec, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	rec.State = interfaces.StateTriggered
	rec.ReleaseAttempted = true
	require.NoError(t, store.CompareAndSwap(ctx, rec))

	_, err = svc.Heartbeat(ctx, resp.VaultID, resp.HeartbeatToken)
	assert.ErrorIs(t, err, interfaces.ErrVaultAlreadyTriggered, "There is no resurrection after the trigger")
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	start := time.Now().UTC()
	svc.SetClock(func() time.Time { return start })
	resp, err := svc.CreateVault(ctx, defaultCreateRequest([]byte("secret")))
	require.NoError(t, err)

	status, err := svc.Status(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateActive, status.State)
	assert.Equal(t, 3, status.Threshold)
	assert.Equal(t, 5, status.TotalShares)
	require.NotNil(t, status.NextDeadline)
	assert.Equal(t, start.Add(30*24*time.Hour), *status.NextDeadline)
	assert.Nil(t, status.TriggeredAt)

	// Terminal vault reports no deadline.
	rec, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	rec.State = interfaces.StateTriggered
	require.NoError(t, store.CompareAndSwap(ctx, rec))

	status, err = svc.Status(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Nil(t, status.NextDeadline)

	_, err = svc.Status(ctx, interfaces.NewVaultID())
	assert.ErrorIs(t, err, interfaces.ErrVaultNotFound)
}

func TestMarkRecovered(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t)

	resp, err := svc.CreateVault(ctx, defaultCreateRequest([]byte("secret")))
	require.NoError(t, err)

	err = svc.MarkRecovered(ctx, resp.VaultID)
	assert.ErrorIs(t, err, interfaces.ErrPolicyViolation, "Active vault cannot be marked recovered")

	rec, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	rec.State = interfaces.StateTriggered
	rec.ReleaseAttempted = true
	require.NoError(t, store.CompareAndSwap(ctx, rec))

	require.NoError(t, svc.MarkRecovered(ctx, resp.VaultID))
	got, err := store.Get(ctx, resp.VaultID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateRecovered, got.State)
	require.NotNil(t, got.RecoveredAt)
}
