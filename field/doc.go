// Package field implements arithmetic over the prime field GF(2^255-19)
// used by the secret-sharing engine.
//
// The prime is fixed and documented here for share compatibility: shares
// produced against this field reconstruct against this field, forever.
// Secrets are encoded in 31-byte chunks so every chunk value is strictly
// below the prime.
//
// All operations are constant-structure: loop bounds and branch shapes
// depend only on operand counts, never on operand values, so share values
// do not leak through timing during reconstruction. (big.Int itself is
// not constant-time at the word level; the guarantee here is the absence
// of secret-dependent control flow in this package.)
package field
