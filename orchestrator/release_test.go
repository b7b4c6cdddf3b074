package orchestrator

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/cryptoutils"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/kms"
	"github.com/deadhandprotocol/deadhand-backend/notify"
	"github.com/deadhandprotocol/deadhand-backend/shamir"
	"github.com/deadhandprotocol/deadhand-backend/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type releaseFixture struct {
	store    *storage.MemoryStore
	kms      *kms.SimpleKMS
	notifier *notify.MockNotifier
	orch     *Orchestrator
	secret   []byte
	share    shamir.Share
	rec      *interfaces.VaultRecord
}

// newReleaseFixture stores a triggered vault with a sealed custodial
// share, mirroring the state the scheduler leaves behind after the
// trigger transition.
func newReleaseFixture(t *testing.T) *releaseFixture {
	t.Helper()
	ctx := context.Background()

	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	simpleKMS, err := kms.NewSimpleKMS(masterKey)
	require.NoError(t, err)

	secret := []byte("correct horse battery staple seed phrase")
	shares, err := shamir.Split(secret, 3, 5)
	require.NoError(t, err)
	custodial := shares[len(shares)-1]

	id := interfaces.NewVaultID()
	key, err := simpleKMS.ShardKey(id)
	require.NoError(t, err)
	sealed, err := cryptoutils.SealShare(key, custodial.Encode(),
		cryptoutils.VaultBinding(id, "heir@example.com"))
	require.NoError(t, err)

	now := time.Now().UTC()
	triggeredAt := now.Add(-time.Minute)
	rec := &interfaces.VaultRecord{
		ID:                 id,
		Threshold:          3,
		TotalShares:        5,
		OwnerContact:       "owner@example.com",
		BeneficiaryContact: "heir@example.com",
		CustodialShare:     sealed,
		TokenHash:          make([]byte, 32),
		Schedule:           interfaces.DefaultSchedule(),
		State:              interfaces.StateTriggered,
		LastHeartbeatAt:    now.Add(-91 * 24 * time.Hour),
		CreatedAt:          now.Add(-100 * 24 * time.Hour),
		TriggeredAt:        &triggeredAt,
		ReleaseAttempted:   true,
	}

	store := storage.NewMemoryStore()
	require.NoError(t, store.Create(ctx, rec))

	notifier := notify.NewMockNotifier()
	cfg := Config{
		MaxDeliveryRetries: 3,
		InitialBackoff:     time.Millisecond,
		OperatorContact:    "ops@example.com",
	}
	orch := New(store, simpleKMS, notifier, nil, cfg, discardLogger())

	return &releaseFixture{
		store:    store,
		kms:      simpleKMS,
		notifier: notifier,
		orch:     orch,
		secret:   secret,
		share:    custodial,
		rec:      rec,
	}
}

func TestReleaseDeliversCustodialShare(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	require.NoError(t, f.orch.Release(ctx, f.rec.ID))

	deliveries := f.notifier.DeliveriesOfKind(interfaces.NotifyRelease)
	require.Len(t, deliveries, 1)
	assert.Equal(t, interfaces.Contact("heir@example.com"), deliveries[0].Recipient)

	// The delivered body is the encoded custodial share.
	raw, err := base64.RawURLEncoding.DecodeString(deliveries[0].Notification.Body)
	require.NoError(t, err)
	delivered, err := shamir.DecodeShare(raw)
	require.NoError(t, err)
	assert.Equal(t, f.share.Index, delivered.Index)

	stored, err := f.store.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReleaseDeliveredAt, "Delivery must be recorded")
	assert.Equal(t, 1, stored.ReleaseAttempts)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	require.NoError(t, f.orch.Release(ctx, f.rec.ID))
	require.NoError(t, f.orch.Release(ctx, f.rec.ID))

	assert.Len(t, f.notifier.DeliveriesOfKind(interfaces.NotifyRelease), 1,
		"A recorded delivery must not be repeated")
}

func TestReleaseRefusesUntriggeredVault(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	rec, err := f.store.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	rec.State = interfaces.StateActive
	rec.ReleaseAttempted = false
	rec.TriggeredAt = nil
	require.NoError(t, f.store.CompareAndSwap(ctx, rec))

	err = f.orch.Release(ctx, f.rec.ID)
	assert.ErrorIs(t, err, interfaces.ErrPolicyViolation,
		"Share material must never leave the core outside a triggered release")
	assert.Empty(t, f.notifier.Deliveries())
}

func TestReleaseRetriesTransientFailures(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	f.notifier.FailTimes = 2
	f.notifier.FailErr = errors.New("relay unavailable")

	require.NoError(t, f.orch.Release(ctx, f.rec.ID))

	require.Len(t, f.notifier.DeliveriesOfKind(interfaces.NotifyRelease), 1)
	stored, err := f.store.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ReleaseDeliveredAt)
	assert.Equal(t, 3, stored.ReleaseAttempts, "Failed attempts are counted")
}

func TestReleaseExhaustedRetriesAlertsOperator(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	// Exactly the four delivery attempts fail; the operator alert that
	// follows succeeds.
	f.notifier.FailTimes = 4
	f.notifier.FailErr = errors.New("relay down")

	err := f.orch.Release(ctx, f.rec.ID)
	require.Error(t, err)

	stored, getErr := f.store.Get(ctx, f.rec.ID)
	require.NoError(t, getErr)
	assert.Nil(t, stored.ReleaseDeliveredAt, "Failed delivery must not be recorded as delivered")
	assert.Equal(t, 4, stored.ReleaseAttempts, "Initial attempt plus three retries")

	alerts := f.notifier.DeliveriesOfKind(interfaces.NotifyOperatorAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, interfaces.Contact("ops@example.com"), alerts[0].Recipient)
}

func TestRecoverPendingResumesInterruptedRelease(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	// The fixture record models exactly the crash window: triggered,
	// release attempted, no delivery recorded.
	resumed, err := f.orch.RecoverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, resumed)
	assert.Len(t, f.notifier.DeliveriesOfKind(interfaces.NotifyRelease), 1)

	// A second scan finds nothing to do.
	resumed, err = f.orch.RecoverPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, resumed)
	assert.Len(t, f.notifier.DeliveriesOfKind(interfaces.NotifyRelease), 1)
}

func TestReleaseRefusesTamperedBeneficiary(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	// An attacker with store access redirects the release to themselves.
	// The seal binds the original beneficiary, so decryption fails instead.
	rec, err := f.store.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	rec.BeneficiaryContact = "attacker@example.com"
	require.NoError(t, f.store.CompareAndSwap(ctx, rec))

	err = f.orch.Release(ctx, f.rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed)
	assert.Empty(t, f.notifier.DeliveriesOfKind(interfaces.NotifyRelease),
		"No share material may reach a rewritten recipient")
}

func TestReleaseFailsOnCorruptCiphertext(t *testing.T) {
	ctx := context.Background()
	f := newReleaseFixture(t)

	rec, err := f.store.Get(ctx, f.rec.ID)
	require.NoError(t, err)
	rec.CustodialShare.Ciphertext[0] ^= 0xff
	require.NoError(t, f.store.CompareAndSwap(ctx, rec))

	err = f.orch.Release(ctx, f.rec.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrAuthenticationFailed)
	assert.Empty(t, f.notifier.DeliveriesOfKind(interfaces.NotifyRelease),
		"Nothing may be delivered when authentication fails")
}
