package interfaces

import "errors"

var (
	// ErrInvalidThreshold is returned when a split is requested with a
	// threshold below 2, above the total share count, or with more than
	// 255 total shares.
	ErrInvalidThreshold = errors.New("invalid threshold: need 2 <= k <= n <= 255")

	// ErrEmptySecret is returned when a zero-length secret is split.
	ErrEmptySecret = errors.New("secret must not be empty")

	// ErrInvalidFieldElement is returned when a value outside [0, prime)
	// reaches a field operation.
	ErrInvalidFieldElement = errors.New("value is not a valid field element")

	// ErrInsufficientShares is returned when fewer than threshold shares
	// with distinct indices are supplied for reconstruction.
	ErrInsufficientShares = errors.New("insufficient shares for reconstruction")

	// ErrShareIntegrity is returned when a share fails its integrity tag
	// check. A corrupted share fails fast rather than silently
	// reconstructing garbage.
	ErrShareIntegrity = errors.New("share integrity check failed")

	// ErrAuthenticationFailed is returned when the custodial share
	// ciphertext fails authentication. This is always a hard failure.
	ErrAuthenticationFailed = errors.New("share decryption authentication failed")

	// ErrVaultNotFound is returned when the requested vault does not exist.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrVaultExists is returned when creating a vault with an ID that is
	// already stored.
	ErrVaultExists = errors.New("vault already exists")

	// ErrVaultAlreadyTriggered is returned for heartbeats arriving after
	// the trigger boundary has been crossed. There is no resurrection.
	ErrVaultAlreadyTriggered = errors.New("vault already triggered")

	// ErrVersionConflict is returned by CompareAndSwap when the stored
	// record version no longer matches. Expected under concurrent
	// scheduler ticks; the caller re-reads and re-evaluates.
	ErrVersionConflict = errors.New("vault record version conflict")

	// ErrInvalidToken is returned when a heartbeat token does not match
	// the vault's stored token hash.
	ErrInvalidToken = errors.New("invalid heartbeat token")

	// ErrInvalidSchedule is returned when warning offsets are not strictly
	// increasing or do not stay below the trigger offset.
	ErrInvalidSchedule = errors.New("invalid escalation schedule")

	// ErrPolicyViolation is returned for any request that would release or
	// reconstruct share material outside the authorized transitions.
	ErrPolicyViolation = errors.New("operation violates release policy")

	// ErrContentNotFound is returned when requested content cannot be
	// found in a storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible due to network issues, authentication failures, or
	// service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
