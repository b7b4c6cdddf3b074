package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/deadhandprotocol/deadhand-backend/cryptoutils"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/metrics"
	"github.com/deadhandprotocol/deadhand-backend/shamir"
)

// Config tunes the release orchestrator.
type Config struct {
	// MaxDeliveryRetries bounds notification attempts per release before
	// the operator is alerted.
	MaxDeliveryRetries uint64
	// InitialBackoff is the first retry delay; subsequent delays grow
	// exponentially.
	InitialBackoff time.Duration
	// OperatorContact receives alerts when delivery retries are
	// exhausted. Empty disables operator alerts.
	OperatorContact interfaces.Contact
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() Config {
	return Config{
		MaxDeliveryRetries: 5,
		InitialBackoff:     2 * time.Second,
	}
}

// Orchestrator performs custodial share releases.
type Orchestrator struct {
	store    interfaces.VaultStore
	kms      interfaces.KMS
	notifier interfaces.Notifier
	archive  interfaces.ArchiveSink
	cfg      Config
	log      *slog.Logger
}

// New creates an orchestrator. The archive sink may be nil, in which
// case no receipts are written.
func New(store interfaces.VaultStore, kms interfaces.KMS, notifier interfaces.Notifier, archive interfaces.ArchiveSink, cfg Config, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		kms:      kms,
		notifier: notifier,
		archive:  archive,
		cfg:      cfg,
		log:      log,
	}
}

// releaseReceipt is the audit artifact archived after a delivery. It
// intentionally carries no share material.
type releaseReceipt struct {
	VaultID     string    `json:"vault_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	DeliveredAt time.Time `json:"delivered_at"`
	Attempts    int       `json:"attempts"`
}

// Release delivers the custodial share of a triggered vault to its
// beneficiary. Idempotent: a vault whose delivery is already recorded is
// a no-op, so the scheduler and the recovery scan can both call it for
// the same vault.
func (o *Orchestrator) Release(ctx context.Context, id interfaces.VaultID) error {
	rec, err := o.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if rec.State != interfaces.StateTriggered && rec.State != interfaces.StateRecovered {
		return fmt.Errorf("%w: vault %s is not triggered", interfaces.ErrPolicyViolation, id)
	}
	if !rec.ReleaseAttempted {
		return fmt.Errorf("%w: vault %s has no release attempt recorded", interfaces.ErrPolicyViolation, id)
	}
	if rec.ReleaseDeliveredAt != nil {
		o.log.Debug("Release already delivered", slog.String("vault_id", id.String()))
		return nil
	}

	attempts, err := o.deliver(ctx, rec)

	// Record the attempt count regardless of outcome so operators can see
	// progress across restarts.
	if casErr := o.recordOutcome(ctx, id, attempts, err == nil); casErr != nil {
		o.log.Error("Failed to record release outcome",
			slog.String("vault_id", id.String()),
			"err", casErr)
		if err == nil {
			err = casErr
		}
	}

	if err != nil {
		metrics.ReleaseFailures.Inc()
		o.alertOperator(ctx, rec, err)
		return fmt.Errorf("release delivery for vault %s failed: %w", id, err)
	}

	metrics.ReleaseDeliveries.Inc()
	o.archiveReceipt(ctx, rec)
	return nil
}

// deliver decrypts the custodial share and hands it to the notifier
// under the retry policy. The plaintext is wiped before returning.
func (o *Orchestrator) deliver(ctx context.Context, rec *interfaces.VaultRecord) (int, error) {
	key, err := o.kms.ShardKey(rec.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to derive shard key: %w", err)
	}
	defer cryptoutils.WipeBytes(key)

	// The binding covers the beneficiary contact, so a record whose
	// recipient was tampered with fails authentication here instead of
	// delivering to the altered address.
	binding := cryptoutils.VaultBinding(rec.ID, rec.BeneficiaryContact)
	plain, err := cryptoutils.OpenShare(key, rec.CustodialShare, binding)
	if err != nil {
		return 0, fmt.Errorf("failed to open custodial share for vault %s: %w", rec.ID, err)
	}
	defer cryptoutils.WipeBytes(plain)

	// The plaintext is the encoded share; validate its integrity tag
	// before sending anything to the beneficiary.
	if _, err := shamir.DecodeShare(plain); err != nil {
		return 0, fmt.Errorf("custodial share for vault %s is corrupt: %w", rec.ID, err)
	}

	notification := interfaces.Notification{
		Kind:    interfaces.NotifyRelease,
		VaultID: rec.ID,
		Subject: "Custodial share release",
		Body:    base64.RawURLEncoding.EncodeToString(plain),
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(backoff.WithInitialInterval(o.cfg.InitialBackoff)),
		o.cfg.MaxDeliveryRetries), ctx)

	attempts := 0
	err = backoff.Retry(func() error {
		attempts++
		if err := o.notifier.Notify(ctx, rec.BeneficiaryContact, notification); err != nil {
			o.log.Warn("Release delivery attempt failed",
				slog.String("vault_id", rec.ID.String()),
				slog.Int("attempt", attempts),
				"err", err)
			return err
		}
		return nil
	}, policy)

	// Drop the share material from the notification copy as well.
	notification.Body = ""
	return attempts, err
}

// recordOutcome persists the delivery timestamp and attempt count with a
// compare-and-swap retry loop. Conflicts here only race heartbeat-free
// bookkeeping writes, so re-reading and reapplying is safe.
func (o *Orchestrator) recordOutcome(ctx context.Context, id interfaces.VaultID, attempts int, delivered bool) error {
	for {
		rec, err := o.store.Get(ctx, id)
		if err != nil {
			return err
		}
		rec.ReleaseAttempts += attempts
		if delivered && rec.ReleaseDeliveredAt == nil {
			now := time.Now().UTC()
			rec.ReleaseDeliveredAt = &now
		}

		err = o.store.CompareAndSwap(ctx, rec)
		if errors.Is(err, interfaces.ErrVersionConflict) {
			metrics.CASConflicts.WithLabelValues("release_outcome").Inc()
			continue
		}
		return err
	}
}

// alertOperator notifies the operator contact about an exhausted
// delivery.
func (o *Orchestrator) alertOperator(ctx context.Context, rec *interfaces.VaultRecord, cause error) {
	if o.cfg.OperatorContact == "" {
		return
	}
	alert := interfaces.Notification{
		Kind:    interfaces.NotifyOperatorAlert,
		VaultID: rec.ID,
		Subject: "Release delivery failed",
		Body:    fmt.Sprintf("delivery for vault %s exhausted retries: %v", rec.ID, cause),
	}
	if err := o.notifier.Notify(ctx, o.cfg.OperatorContact, alert); err != nil {
		o.log.Error("Failed to alert operator",
			slog.String("vault_id", rec.ID.String()),
			"err", err)
	}
}

// archiveReceipt writes the audit receipt. Archive failures are logged,
// not fatal: the delivery already happened and must not be retried for
// the sake of a receipt.
func (o *Orchestrator) archiveReceipt(ctx context.Context, rec *interfaces.VaultRecord) {
	if o.archive == nil {
		return
	}

	current, err := o.store.Get(ctx, rec.ID)
	if err != nil {
		o.log.Error("Failed to re-read record for receipt", "err", err)
		current = rec
	}

	receipt := releaseReceipt{
		VaultID:  rec.ID.String(),
		Attempts: current.ReleaseAttempts,
	}
	if current.TriggeredAt != nil {
		receipt.TriggeredAt = *current.TriggeredAt
	}
	if current.ReleaseDeliveredAt != nil {
		receipt.DeliveredAt = *current.ReleaseDeliveredAt
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		o.log.Error("Failed to marshal release receipt", "err", err)
		return
	}

	locator, err := o.archive.Archive(ctx, data)
	if err != nil {
		o.log.Error("Failed to archive release receipt",
			slog.String("vault_id", rec.ID.String()),
			"err", err)
		return
	}
	o.log.Info("Archived release receipt",
		slog.String("vault_id", rec.ID.String()),
		slog.String("locator", locator))
}

// RecoverPending resumes deliveries interrupted by a crash: vaults whose
// trigger write landed but whose delivery never completed. Called once
// at startup.
func (o *Orchestrator) RecoverPending(ctx context.Context) (int, error) {
	ids, err := o.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list vaults for recovery: %w", err)
	}

	resumed := 0
	for _, id := range ids {
		rec, err := o.store.Get(ctx, id)
		if err != nil {
			o.log.Error("Failed to read vault during recovery",
				slog.String("vault_id", id.String()),
				"err", err)
			continue
		}
		if rec.State != interfaces.StateTriggered || !rec.ReleaseAttempted || rec.ReleaseDeliveredAt != nil {
			continue
		}

		o.log.Info("Resuming interrupted release", slog.String("vault_id", id.String()))
		resumed++
		if err := o.Release(ctx, id); err != nil {
			o.log.Error("Recovery release failed",
				slog.String("vault_id", id.String()),
				"err", err)
		}
	}
	return resumed, nil
}
