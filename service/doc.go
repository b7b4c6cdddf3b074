// Package service implements the vault operations behind the public API:
// creation, heartbeat, status and the recovery acknowledgement.
//
// CreateVault is the only moment the plaintext secret exists inside the
// service. It is split immediately, one share is sealed as the custodial
// share, the rest are returned to the owner, and every plaintext buffer
// is wiped before the call returns. Heartbeats authenticate with the
// bearer token issued at creation; only its hash is stored.
//
// All writes go through the store's compare-and-swap, so a heartbeat
// racing a scheduler escalation is settled by write order.
package service
