// Package storage provides the persistence backends for vault records and
// audit artifacts.
//
// Vault records live in a VaultStore with single-record compare-and-set
// semantics; every state transition in the system funnels through
// CompareAndSwap, which is what makes the trigger decision exactly-once.
// Three stores are available:
//
//   - memory:// - in-process map, for tests and development
//   - file://   - one JSON file per vault with atomic rename writes
//   - vault://  - HashiCorp Vault KV v2, using its native check-and-set
//
// Audit artifacts (release receipts, escalation events) go to an
// ArchiveSink. Sinks are append-only and never carry share material:
//
//   - file:// - local directory
//   - s3://   - Amazon S3 or compatible object storage
//   - ipfs:// - IPFS node
//
// Backends are constructed from location URIs through the Factory, so
// deployments select persistence entirely via flags.
package storage
