// Package httpserver exposes the vault API over HTTP.
//
// Public API:
//
//	POST /api/vaults                                  create a vault
//	POST /api/vaults/{vault_id}/heartbeat/{token}     owner check-in
//	GET  /api/vaults/{vault_id}/status                lifecycle view
//	POST /api/vaults/{vault_id}/recovered             beneficiary ack
//
// Admin API, used to bootstrap a ShamirKMS-protected deployment:
//
//	POST /admin/kms/share                             submit a master key share
//	GET  /admin/kms/status                            bootstrap progress
//
// Operational endpoints: /livez, /readyz, /drain, /undrain, and
// optionally /debug for pprof.
package httpserver
