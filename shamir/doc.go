// Package shamir implements the threshold secret-sharing engine: splitting
// a secret into N shares of which any K reconstruct it, while any K-1
// shares carry zero information about the secret.
//
// The scheme is Shamir's: per 31-byte secret chunk, a random polynomial of
// degree K-1 over GF(2^255-19) with the chunk as constant term, evaluated
// at x = 1..N. Reconstruction is Lagrange interpolation at x=0 and is
// deterministic: any K correct shares yield the identical secret.
//
// # Share Wire Format
//
// Shares encode to a fixed binary layout, frozen at version 0x01:
//
//	version(1) | index(1) | threshold(1) | secretLen(2, big-endian) |
//	chunk values (32 bytes each, big-endian) | tag(8)
//
// The tag is the first 8 bytes of SHA-256 over everything before it. It
// detects corruption so a damaged share fails fast instead of silently
// reconstructing garbage. It is not an authenticity MAC; share
// authenticity is the caller's responsibility.
//
// Reconstruction is a pure function with no server dependency: a holder of
// K shares recovers the secret fully offline.
package shamir
