package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/cryptoutils"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/metrics"
	"github.com/deadhandprotocol/deadhand-backend/shamir"
	"github.com/deadhandprotocol/deadhand-backend/vault"
)

// Service implements the vault operations.
type Service struct {
	store interfaces.VaultStore
	kms   interfaces.KMS
	log   *slog.Logger

	// now is replaceable for tests.
	now func() time.Time
}

// New creates a service.
func New(store interfaces.VaultStore, kms interfaces.KMS, log *slog.Logger) *Service {
	return &Service{
		store: store,
		kms:   kms,
		log:   log,
		now:   time.Now,
	}
}

// SetClock replaces the service's clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// CreateVaultRequest carries the inputs for vault creation. Secret is
// wiped by CreateVault before it returns.
type CreateVaultRequest struct {
	Secret             []byte
	Threshold          int
	TotalShares        int
	OwnerContact       interfaces.Contact
	BeneficiaryContact interfaces.Contact
	// Schedule is optional; the zero value selects the default ladder.
	Schedule *interfaces.EscalationSchedule
}

// CreateVaultResponse returns everything the owner must capture at
// creation time. The heartbeat token and the owner shares are shown
// exactly once and never stored.
type CreateVaultResponse struct {
	VaultID        interfaces.VaultID
	HeartbeatToken string
	// OwnerShares are the encoded shares for the owner to distribute.
	// One additional share is held custodially, sealed at rest.
	OwnerShares []string
	// NextDeadline is the first warning deadline.
	NextDeadline time.Time
}

// CreateVault splits the secret, seals the custodial share and persists
// the vault record. The plaintext secret and all plaintext share
// material are wiped before returning.
func (s *Service) CreateVault(ctx context.Context, req CreateVaultRequest) (*CreateVaultResponse, error) {
	defer cryptoutils.WipeBytes(req.Secret)

	if err := req.OwnerContact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid owner contact: %w", err)
	}
	if err := req.BeneficiaryContact.Validate(); err != nil {
		return nil, fmt.Errorf("invalid beneficiary contact: %w", err)
	}

	schedule := interfaces.DefaultSchedule()
	if req.Schedule != nil {
		schedule = *req.Schedule
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}

	shares, err := shamir.Split(req.Secret, req.Threshold, req.TotalShares)
	if err != nil {
		return nil, err
	}

	id := interfaces.NewVaultID()

	// The highest-index share becomes the custodial share; the owner
	// receives the rest. Which index is held custodially is not secret.
	custodial := shares[len(shares)-1]
	ownerShares := make([]string, len(shares)-1)
	for i, share := range shares[:len(shares)-1] {
		ownerShares[i] = share.String()
	}

	key, err := s.kms.ShardKey(id)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shard key: %w", err)
	}
	defer cryptoutils.WipeBytes(key)

	// The beneficiary contact is bound into the seal, so it cannot be
	// rewritten in storage without breaking decryption at release.
	encoded := custodial.Encode()
	sealed, err := cryptoutils.SealShare(key, encoded, cryptoutils.VaultBinding(id, req.BeneficiaryContact))
	cryptoutils.WipeBytes(encoded)
	for _, share := range shares {
		for _, v := range share.Values {
			v.SetInt64(0)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to seal custodial share: %w", err)
	}

	token, err := cryptoutils.NewHeartbeatToken()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rec := &interfaces.VaultRecord{
		ID:                 id,
		Threshold:          req.Threshold,
		TotalShares:        req.TotalShares,
		OwnerContact:       req.OwnerContact,
		BeneficiaryContact: req.BeneficiaryContact,
		CustodialShare:     sealed,
		TokenHash:          cryptoutils.HashToken(token),
		Schedule:           schedule,
		State:              interfaces.StateActive,
		LastHeartbeatAt:    now,
		CreatedAt:          now,
	}

	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to persist vault: %w", err)
	}

	metrics.VaultsCreated.Inc()
	s.log.Info("Vault created",
		slog.String("vault_id", id.String()),
		slog.Int("threshold", req.Threshold),
		slog.Int("total_shares", req.TotalShares))

	return &CreateVaultResponse{
		VaultID:        id,
		HeartbeatToken: token,
		OwnerShares:    ownerShares,
		NextDeadline:   vault.NextEscalationAt(rec, now),
	}, nil
}

// Heartbeat records a verified owner check-in and returns the next
// escalation deadline. Fails with ErrInvalidToken for a bad token and
// ErrVaultAlreadyTriggered after the trigger boundary.
func (s *Service) Heartbeat(ctx context.Context, id interfaces.VaultID, token string) (time.Time, error) {
	for {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return time.Time{}, err
		}

		if !cryptoutils.VerifyToken(token, rec.TokenHash) {
			metrics.HeartbeatsRejected.WithLabelValues("invalid_token").Inc()
			return time.Time{}, interfaces.ErrInvalidToken
		}

		now := s.now().UTC()
		if err := vault.ApplyHeartbeat(rec, now); err != nil {
			metrics.HeartbeatsRejected.WithLabelValues("terminal_state").Inc()
			return time.Time{}, err
		}

		err = s.store.CompareAndSwap(ctx, rec)
		if errors.Is(err, interfaces.ErrVersionConflict) {
			// Raced a scheduler escalation; re-read and re-verify. If the
			// escalation won the trigger, the retry surfaces
			// ErrVaultAlreadyTriggered.
			metrics.CASConflicts.WithLabelValues("heartbeat").Inc()
			continue
		}
		if err != nil {
			return time.Time{}, err
		}

		metrics.HeartbeatsAccepted.Inc()
		s.log.Debug("Heartbeat accepted", slog.String("vault_id", id.String()))
		return vault.NextEscalationAt(rec, now), nil
	}
}

// Status is the read-only view of a vault. It never exposes share
// material or the token hash.
type Status struct {
	VaultID            interfaces.VaultID    `json:"vault_id"`
	State              interfaces.VaultState `json:"state"`
	Threshold          int                   `json:"threshold"`
	TotalShares        int                   `json:"total_shares"`
	LastHeartbeatAt    time.Time             `json:"last_heartbeat_at"`
	NextDeadline       *time.Time            `json:"next_deadline,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	TriggeredAt        *time.Time            `json:"triggered_at,omitempty"`
	RecoveredAt        *time.Time            `json:"recovered_at,omitempty"`
	ReleaseDeliveredAt *time.Time            `json:"release_delivered_at,omitempty"`
}

// Status returns the vault's lifecycle view.
func (s *Service) Status(ctx context.Context, id interfaces.VaultID) (*Status, error) {
	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &Status{
		VaultID:            rec.ID,
		State:              rec.State,
		Threshold:          rec.Threshold,
		TotalShares:        rec.TotalShares,
		LastHeartbeatAt:    rec.LastHeartbeatAt,
		CreatedAt:          rec.CreatedAt,
		TriggeredAt:        rec.TriggeredAt,
		RecoveredAt:        rec.RecoveredAt,
		ReleaseDeliveredAt: rec.ReleaseDeliveredAt,
	}
	if next := vault.NextEscalationAt(rec, s.now().UTC()); !next.IsZero() {
		status.NextDeadline = &next
	}
	return status, nil
}

// MarkRecovered records the beneficiary's acknowledgement that the
// secret was reconstructed. Informational; only valid on a triggered
// vault.
func (s *Service) MarkRecovered(ctx context.Context, id interfaces.VaultID) error {
	for {
		rec, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}

		if err := vault.ApplyRecovered(rec, s.now().UTC()); err != nil {
			return err
		}

		err = s.store.CompareAndSwap(ctx, rec)
		if errors.Is(err, interfaces.ErrVersionConflict) {
			metrics.CASConflicts.WithLabelValues("recovered").Inc()
			continue
		}
		if err != nil {
			return err
		}

		s.log.Info("Vault marked recovered", slog.String("vault_id", id.String()))
		return nil
	}
}
