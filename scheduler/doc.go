// Package scheduler periodically sweeps all vaults and applies due
// escalation transitions.
//
// Each sweep re-reads every record and asks the state machine for the
// next due transition, then persists it with a compare-and-swap. A
// conflict means a heartbeat or another evaluator got there first; the
// sweep re-reads and re-evaluates, so a heartbeat racing the trigger
// boundary is resolved by write order, never by wall-clock guesswork.
// Warning transitions notify the owner; the trigger transition hands the
// vault to the release orchestrator.
//
// Sweeps run over a bounded worker pool, keeping tick duration flat as
// the vault population grows.
package scheduler
