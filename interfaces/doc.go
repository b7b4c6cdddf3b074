// Package interfaces defines the core types and contracts of the deadhand
// inheritance system. It provides the boundary between the vault lifecycle
// core and its collaborators without implementation details.
//
// # Core Types
//
// VaultRecord is the single shared mutable resource of the system: one row
// per protected secret, carrying the encrypted custodial share, the
// escalation schedule, the lifecycle state and an optimistic-concurrency
// version counter. All mutation goes through VaultStore.CompareAndSwap;
// there is no broader read-modify-write path.
//
// # Collaborator Contracts
//
//   - VaultStore: persistence with atomic single-record compare-and-set.
//   - Notifier: delivery of owner warnings and the beneficiary release
//     message. At-least-once semantics are expected from implementations;
//     idempotent handling is the orchestrator's job.
//   - KMS: per-vault shard-key derivation without exposing the master key.
//   - ArchiveSink: append-only storage for audit receipts.
//
// # Error Taxonomy
//
// Sentinel errors are declared here and wrapped with context at call
// sites. Input validation errors (ErrInvalidThreshold, ErrEmptySecret,
// ErrInvalidFieldElement, ErrInvalidSchedule) are rejected synchronously
// and never partially applied. Cryptographic integrity errors
// (ErrAuthenticationFailed, ErrShareIntegrity) are fatal to the operation
// in progress. State-conflict errors (ErrVersionConflict,
// ErrVaultAlreadyTriggered) are expected concurrency outcomes: the losing
// writer re-reads and no-ops.
package interfaces
