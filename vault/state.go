package vault

import (
	"fmt"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// Transition describes one due state change for a vault.
type Transition struct {
	From interfaces.VaultState
	To   interfaces.VaultState
	// At is the deadline whose passing made the transition due.
	At time.Time
}

// DueTransition returns the next single due escalation step at the given
// instant, or nil if none is due. Warning offsets fire strictly in order,
// one per evaluation and each exactly once per heartbeat window, so a
// vault far past several deadlines still emits every warning. All
// non-final offsets land in SoftWarned, the final one in CriticalWarned,
// and the trigger only fires after every warning has. Terminal states
// never transition.
func DueTransition(rec *interfaces.VaultRecord, now time.Time) *Transition {
	if rec.State.Terminal() {
		return nil
	}
	elapsed := now.Sub(rec.LastHeartbeatAt)

	offsets := rec.Schedule.WarningOffsets
	if rec.WarningsFired < len(offsets) {
		i := rec.WarningsFired
		if elapsed < rec.Schedule.WarningOffset(i) {
			return nil
		}
		to := interfaces.StateSoftWarned
		if i == len(offsets)-1 {
			to = interfaces.StateCriticalWarned
		}
		return &Transition{
			From: rec.State,
			To:   to,
			At:   rec.LastHeartbeatAt.Add(rec.Schedule.WarningOffset(i)),
		}
	}

	if elapsed >= rec.Schedule.TriggerOffset() {
		return &Transition{
			From: rec.State,
			To:   interfaces.StateTriggered,
			At:   rec.LastHeartbeatAt.Add(rec.Schedule.TriggerOffset()),
		}
	}
	return nil
}

// NextEscalationAt returns the instant of the vault's next pending
// escalation deadline, or the zero time when the vault is terminal.
func NextEscalationAt(rec *interfaces.VaultRecord, now time.Time) time.Time {
	if rec.State.Terminal() {
		return time.Time{}
	}
	elapsed := now.Sub(rec.LastHeartbeatAt)
	for i := range rec.Schedule.WarningOffsets {
		if elapsed < rec.Schedule.WarningOffset(i) {
			return rec.LastHeartbeatAt.Add(rec.Schedule.WarningOffset(i))
		}
	}
	return rec.LastHeartbeatAt.Add(rec.Schedule.TriggerOffset())
}

// ApplyTransition mutates the record for a due transition. The caller
// persists the result via CompareAndSwap; a conflict means another writer
// advanced the record first and the evaluation must restart from a fresh
// read.
func ApplyTransition(rec *interfaces.VaultRecord, tr *Transition, now time.Time) error {
	if rec.State != tr.From {
		return fmt.Errorf("transition from %s does not apply to vault in state %s", tr.From, rec.State)
	}
	rec.State = tr.To
	switch tr.To {
	case interfaces.StateSoftWarned, interfaces.StateCriticalWarned:
		rec.WarningsFired++
	case interfaces.StateTriggered:
		t := now
		rec.TriggeredAt = &t
		// Same atomic write as the Triggered transition, so a crash between
		// trigger and delivery is detectable on restart.
		rec.ReleaseAttempted = true
	}
	return nil
}

// ApplyHeartbeat records a verified heartbeat on the record: the state
// resets to Active, the warning ladder rearms and the heartbeat timestamp
// advances. Heartbeats on terminal vaults fail with
// ErrVaultAlreadyTriggered; a heartbeat timestamp never moves backwards.
func ApplyHeartbeat(rec *interfaces.VaultRecord, now time.Time) error {
	if !rec.State.AcceptsHeartbeat() {
		return interfaces.ErrVaultAlreadyTriggered
	}
	if now.After(rec.LastHeartbeatAt) {
		rec.LastHeartbeatAt = now
	}
	rec.State = interfaces.StateActive
	rec.WarningsFired = 0
	return nil
}

// ApplyRecovered acknowledges that the beneficiary reconstructed the
// secret. Only valid on a Triggered vault.
func ApplyRecovered(rec *interfaces.VaultRecord, now time.Time) error {
	if rec.State != interfaces.StateTriggered {
		return fmt.Errorf("%w: vault in state %s cannot be marked recovered", interfaces.ErrPolicyViolation, rec.State)
	}
	rec.State = interfaces.StateRecovered
	t := now
	rec.RecoveredAt = &t
	return nil
}
