// Package orchestrator carries out the custodial share release after a
// vault triggers.
//
// The trigger decision itself is a compare-and-swap on the vault record
// that sets ReleaseAttempted in the same write as the Triggered state, so
// exactly one writer ever owns the release. Delivery is decoupled from
// that decision: the orchestrator decrypts the custodial share, hands it
// to the notifier under a bounded retry policy, wipes the plaintext, and
// records the delivery. A crash between trigger and delivery leaves
// ReleaseAttempted set without a delivery timestamp, which the startup
// recovery scan picks up and resumes.
//
// Audit receipts are archived after delivery. Receipts never contain
// share material.
package orchestrator
