// Package vault implements the heartbeat state machine driving a vault's
// lifecycle. All escalation is computed from day-offsets relative to the
// last verified heartbeat, never from calendar boundaries:
//
//	Active -> SoftWarned -> CriticalWarned -> Triggered
//
// A verified heartbeat in any pre-trigger state resets the vault to
// Active and restarts the ladder. Triggered is terminal for heartbeats;
// the only transition out of it is the beneficiary's Recovered
// acknowledgement, which is informational.
//
// The functions here are pure: they take a record and a clock reading and
// return the transition that is due. Persistence and concurrency are the
// caller's problem, resolved through VaultStore.CompareAndSwap.
package vault
