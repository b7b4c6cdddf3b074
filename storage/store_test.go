package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStoreRecord(t *testing.T) *interfaces.VaultRecord {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Second)
	return &interfaces.VaultRecord{
		ID:                 interfaces.NewVaultID(),
		Threshold:          3,
		TotalShares:        5,
		OwnerContact:       "owner@example.com",
		BeneficiaryContact: "heir@example.com",
		CustodialShare:     interfaces.EncryptedShare{Nonce: []byte("0123456789ab"), Ciphertext: []byte("sealed")},
		TokenHash:          make([]byte, 32),
		Schedule:           interfaces.DefaultSchedule(),
		State:              interfaces.StateActive,
		LastHeartbeatAt:    now,
		CreatedAt:          now,
	}
}

// storeUnderTest lets the same contract suite run against every
// VaultStore implementation.
func storeUnderTest(t *testing.T, name string) interfaces.VaultStore {
	t.Helper()
	switch name {
	case "memory":
		return NewMemoryStore()
	case "file":
		store, err := NewFileStore(t.TempDir(), discardLogger())
		require.NoError(t, err)
		return store
	default:
		t.Fatalf("unknown store %q", name)
		return nil
	}
}

func TestVaultStoreContract(t *testing.T) {
	for _, name := range []string{"memory", "file"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := storeUnderTest(t, name)
			rec := newStoreRecord(t)

			// Create and duplicate create.
			require.NoError(t, store.Create(ctx, rec))
			assert.ErrorIs(t, store.Create(ctx, rec), interfaces.ErrVaultExists)

			// Get round-trips the record.
			got, err := store.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec.ID, got.ID)
			assert.Equal(t, rec.CustodialShare, got.CustodialShare)
			assert.Equal(t, rec.Schedule, got.Schedule)
			assert.Equal(t, uint64(0), got.Version)

			_, err = store.Get(ctx, interfaces.NewVaultID())
			assert.ErrorIs(t, err, interfaces.ErrVaultNotFound)

			// CAS succeeds at the current version and bumps it.
			got.State = interfaces.StateSoftWarned
			require.NoError(t, store.CompareAndSwap(ctx, got))
			assert.Equal(t, uint64(1), got.Version)

			reread, err := store.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, interfaces.StateSoftWarned, reread.State)
			assert.Equal(t, uint64(1), reread.Version)

			// CAS at a stale version fails and leaves the record untouched.
			stale := reread.Clone()
			stale.Version = 0
			stale.State = interfaces.StateTriggered
			assert.ErrorIs(t, store.CompareAndSwap(ctx, stale), interfaces.ErrVersionConflict)

			unchanged, err := store.Get(ctx, rec.ID)
			require.NoError(t, err)
			assert.Equal(t, interfaces.StateSoftWarned, unchanged.State)

			// CAS on a missing record.
			missing := newStoreRecord(t)
			assert.ErrorIs(t, store.CompareAndSwap(ctx, missing), interfaces.ErrVaultNotFound)

			// List sees the record.
			ids, err := store.List(ctx)
			require.NoError(t, err)
			assert.Contains(t, ids, rec.ID)
		})
	}
}

func TestCompareAndSwapSingleWinner(t *testing.T) {
	for _, name := range []string{"memory", "file"} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := storeUnderTest(t, name)
			rec := newStoreRecord(t)
			require.NoError(t, store.Create(ctx, rec))

			// Many writers race the same version; exactly one may win.
			const writers = 16
			var wg sync.WaitGroup
			results := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					candidate, err := store.Get(ctx, rec.ID)
					if err != nil {
						results <- err
						return
					}
					candidate.State = interfaces.StateSoftWarned
					candidate.Version = 0
					results <- store.CompareAndSwap(ctx, candidate)
				}()
			}
			wg.Wait()
			close(results)

			wins := 0
			for err := range results {
				if err == nil {
					wins++
				} else {
					assert.ErrorIs(t, err, interfaces.ErrVersionConflict)
				}
			}
			assert.Equal(t, 1, wins, "Exactly one CAS at a given version may succeed")
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := newStoreRecord(t)
	require.NoError(t, store.Create(ctx, rec))

	got, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	got.State = interfaces.StateTriggered
	got.TokenHash[0] = 0xff

	fresh, err := store.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateActive, fresh.State, "Mutating a returned record must not affect the store")
	assert.Equal(t, byte(0), fresh.TokenHash[0])
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFileStore(dir, discardLogger())
	require.NoError(t, err)
	rec := newStoreRecord(t)
	require.NoError(t, store.Create(ctx, rec))
	rec.State = interfaces.StateSoftWarned
	require.NoError(t, store.CompareAndSwap(ctx, rec))

	reopened, err := NewFileStore(dir, discardLogger())
	require.NoError(t, err)
	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, interfaces.StateSoftWarned, got.State)
	assert.Equal(t, uint64(1), got.Version)

	ids, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []interfaces.VaultID{rec.ID}, ids)
}

func TestFactoryParsesLocations(t *testing.T) {
	factory := NewFactory(discardLogger())

	store, err := factory.VaultStoreFor("memory://")
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Name())

	store, err = factory.VaultStoreFor("file://" + t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, store.Name(), "file-")

	store, err = factory.VaultStoreFor("vault://127.0.0.1:8200/secret/deadhand?tls=false&token=root")
	require.NoError(t, err)
	assert.Equal(t, "vault-secret-deadhand", store.Name())

	_, err = factory.VaultStoreFor("s3://bucket/prefix")
	assert.Error(t, err, "Archive-only scheme is not a vault store")

	sink, err := factory.ArchiveSinkFor("file://" + t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, sink.Name(), "file-archive-")

	sink, err = factory.ArchiveSinkFor("s3://releases/receipts?region=eu-west-1")
	require.NoError(t, err)
	assert.Equal(t, "s3-archive-releases", sink.Name())

	sink, err = factory.ArchiveSinkFor("ipfs://127.0.0.1:5001")
	require.NoError(t, err)
	assert.Equal(t, "ipfs-archive-127.0.0.1-5001", sink.Name())

	_, err = factory.ArchiveSinkFor("memory://")
	assert.Error(t, err, "Memory scheme is not an archive sink")

	_, err = factory.VaultStoreFor("bogus://x")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}
