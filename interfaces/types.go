package interfaces

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VaultID uniquely identifies a vault.
type VaultID uuid.UUID

// NewVaultID generates a random vault ID.
func NewVaultID() VaultID {
	return VaultID(uuid.Must(uuid.NewRandom()))
}

// ParseVaultID parses the canonical string form of a vault ID.
func ParseVaultID(s string) (VaultID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return VaultID{}, fmt.Errorf("invalid vault id: %w", err)
	}
	return VaultID(id), nil
}

// String returns the canonical UUID string.
func (id VaultID) String() string {
	return uuid.UUID(id).String()
}

// Equal compares two vault IDs.
func (id VaultID) Equal(other VaultID) bool {
	return id == other
}

// MarshalText implements encoding.TextMarshaler.
func (id VaultID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *VaultID) UnmarshalText(text []byte) error {
	parsed, err := ParseVaultID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Contact is an opaque notification address owned by the notification
// collaborator. The core never interprets it.
type Contact string

// Validate checks the contact is usable as a delivery address.
func (c Contact) Validate() error {
	if len(c) == 0 {
		return errors.New("empty contact")
	}
	return nil
}

// String returns the raw contact address.
func (c Contact) String() string {
	return string(c)
}

// VaultState is the lifecycle state of a vault.
type VaultState int

const (
	// StateActive means the owner checked in within the first warning
	// offset.
	StateActive VaultState = iota
	// StateSoftWarned means the first warning offset was missed and the
	// owner has been notified.
	StateSoftWarned
	// StateCriticalWarned means the last warning offset was missed.
	StateCriticalWarned
	// StateTriggered means the trigger offset was missed and the custodial
	// share release has been initiated. Terminal: no heartbeat is accepted.
	StateTriggered
	// StateRecovered means the beneficiary acknowledged reconstructing the
	// secret. Terminal and informational only.
	StateRecovered
)

var stateNames = map[VaultState]string{
	StateActive:         "active",
	StateSoftWarned:     "soft_warned",
	StateCriticalWarned: "critical_warned",
	StateTriggered:      "triggered",
	StateRecovered:      "recovered",
}

// String returns the state name.
func (s VaultState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether the state admits no further transitions other
// than the Triggered -> Recovered acknowledgement.
func (s VaultState) Terminal() bool {
	return s == StateTriggered || s == StateRecovered
}

// AcceptsHeartbeat reports whether a heartbeat is valid in this state.
func (s VaultState) AcceptsHeartbeat() bool {
	switch s {
	case StateActive, StateSoftWarned, StateCriticalWarned:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so persisted records and
// API responses carry state names rather than integers.
func (s VaultState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *VaultState) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown vault state %q", string(text))
}

// EncryptedShare is the custodial share at rest: AES-GCM ciphertext with
// the authentication tag appended, plus the nonce used for sealing.
type EncryptedShare struct {
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// IsZero reports whether the share has not been populated.
func (e EncryptedShare) IsZero() bool {
	return len(e.Nonce) == 0 && len(e.Ciphertext) == 0
}

// EscalationSchedule configures the heartbeat ladder as explicit
// day-offsets relative to the last heartbeat, never calendar boundaries.
type EscalationSchedule struct {
	// CheckInIntervalDays is the advertised check-in cadence for the owner.
	CheckInIntervalDays int `json:"check_in_interval_days"`
	// WarningOffsets are the day-offsets at which escalation warnings fire,
	// strictly increasing. The first offset moves the vault to SoftWarned,
	// the last to CriticalWarned.
	WarningOffsets []int `json:"warning_offsets"`
	// TriggerOffsetDays is the day-offset at which the custodial share is
	// released. Must exceed every warning offset.
	TriggerOffsetDays int `json:"trigger_offset_days"`
}

// DefaultSchedule is the 30/60/90-day ladder.
func DefaultSchedule() EscalationSchedule {
	return EscalationSchedule{
		CheckInIntervalDays: 30,
		WarningOffsets:      []int{30, 60},
		TriggerOffsetDays:   90,
	}
}

// Validate checks the ladder is well-formed: at least one warning offset,
// offsets strictly increasing, all positive, all strictly below the
// trigger offset.
func (s EscalationSchedule) Validate() error {
	if s.CheckInIntervalDays <= 0 {
		return fmt.Errorf("%w: check-in interval must be positive", ErrInvalidSchedule)
	}
	if len(s.WarningOffsets) == 0 {
		return fmt.Errorf("%w: at least one warning offset required", ErrInvalidSchedule)
	}
	prev := 0
	for _, offset := range s.WarningOffsets {
		if offset <= prev {
			return fmt.Errorf("%w: warning offsets must be positive and strictly increasing", ErrInvalidSchedule)
		}
		prev = offset
	}
	if s.TriggerOffsetDays <= prev {
		return fmt.Errorf("%w: trigger offset must exceed every warning offset", ErrInvalidSchedule)
	}
	return nil
}

// TriggerOffset returns the trigger offset as a duration.
func (s EscalationSchedule) TriggerOffset() time.Duration {
	return time.Duration(s.TriggerOffsetDays) * 24 * time.Hour
}

// WarningOffset returns the i-th warning offset as a duration.
func (s EscalationSchedule) WarningOffset(i int) time.Duration {
	return time.Duration(s.WarningOffsets[i]) * 24 * time.Hour
}

// VaultRecord is the persisted state of one protected secret. Exactly one
// custodial share per vault, encrypted at rest at all times except
// transiently during release. The plaintext secret is never persisted.
type VaultRecord struct {
	ID          VaultID `json:"id"`
	Threshold   int     `json:"threshold"`
	TotalShares int     `json:"total_shares"`

	OwnerContact       Contact `json:"owner_contact"`
	BeneficiaryContact Contact `json:"beneficiary_contact"`

	CustodialShare EncryptedShare `json:"custodial_share"`
	// TokenHash is the SHA-256 hash of the bearer heartbeat token. The
	// token itself is returned once at creation and never stored.
	TokenHash []byte `json:"token_hash"`

	Schedule EscalationSchedule `json:"schedule"`

	State VaultState `json:"state"`
	// WarningsFired counts the schedule's warning offsets already emitted
	// in the current heartbeat window, so every offset fires exactly once.
	// Reset by a verified heartbeat.
	WarningsFired int `json:"warnings_fired"`
	// LastHeartbeatAt only increases, and only through a verified
	// heartbeat event.
	LastHeartbeatAt time.Time  `json:"last_heartbeat_at"`
	CreatedAt       time.Time  `json:"created_at"`
	TriggeredAt     *time.Time `json:"triggered_at,omitempty"`
	RecoveredAt     *time.Time `json:"recovered_at,omitempty"`

	// ReleaseAttempted is set in the same atomic write as the transition
	// to Triggered, decoupling trigger from delivery confirmation.
	ReleaseAttempted   bool       `json:"release_attempted"`
	ReleaseDeliveredAt *time.Time `json:"release_delivered_at,omitempty"`
	ReleaseAttempts    int        `json:"release_attempts"`

	// Version is the optimistic-concurrency counter checked by
	// VaultStore.CompareAndSwap.
	Version uint64 `json:"version"`
}

// Clone returns a deep copy so callers can mutate a candidate record
// without aliasing stored state.
func (r *VaultRecord) Clone() *VaultRecord {
	cp := *r
	cp.TokenHash = append([]byte(nil), r.TokenHash...)
	cp.CustodialShare.Nonce = append([]byte(nil), r.CustodialShare.Nonce...)
	cp.CustodialShare.Ciphertext = append([]byte(nil), r.CustodialShare.Ciphertext...)
	cp.Schedule.WarningOffsets = append([]int(nil), r.Schedule.WarningOffsets...)
	if r.TriggeredAt != nil {
		t := *r.TriggeredAt
		cp.TriggeredAt = &t
	}
	if r.RecoveredAt != nil {
		t := *r.RecoveredAt
		cp.RecoveredAt = &t
	}
	if r.ReleaseDeliveredAt != nil {
		t := *r.ReleaseDeliveredAt
		cp.ReleaseDeliveredAt = &t
	}
	return &cp
}
