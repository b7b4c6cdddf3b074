package shamir

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math/big"
	"sort"

	"github.com/deadhandprotocol/deadhand-backend/field"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

const (
	// ChunkSize is the number of secret bytes encoded per field element.
	// 31 bytes guarantees every chunk value is below the 2^255-19 prime.
	ChunkSize = 31

	shareVersion   = 0x01
	chunkValueSize = 32
	headerSize     = 5 // version + index + threshold + secretLen(2)
	tagSize        = 8

	// MaxSecretLen is bounded by the 2-byte length field in the share
	// header. Far beyond any seed phrase or key material.
	MaxSecretLen = 1<<16 - 1
)

// Share is one output unit of the splitting scheme. Alone it reveals
// nothing about the secret.
type Share struct {
	// Index is the x-coordinate the polynomial was evaluated at, 1-based.
	Index byte
	// Threshold is the number of distinct shares required to reconstruct.
	Threshold byte
	// SecretLen is the original secret length in bytes.
	SecretLen int
	// Values holds one field element per secret chunk.
	Values []*big.Int
}

// Split splits secret into n shares with reconstruction threshold k.
// The secret is never persisted by this function; shares are returned to
// the caller and it is the caller's job to distribute and forget them.
func Split(secret []byte, k, n int) ([]Share, error) {
	if k < 2 || k > n || n > 255 {
		return nil, interfaces.ErrInvalidThreshold
	}
	if len(secret) == 0 {
		return nil, interfaces.ErrEmptySecret
	}
	if len(secret) > MaxSecretLen {
		return nil, fmt.Errorf("secret too long: %d bytes (max %d)", len(secret), MaxSecretLen)
	}

	chunks := encodeChunks(secret)

	shares := make([]Share, n)
	for i := range shares {
		shares[i] = Share{
			Index:     byte(i + 1),
			Threshold: byte(k),
			SecretLen: len(secret),
			Values:    make([]*big.Int, len(chunks)),
		}
	}

	coeffs := make([]*big.Int, k)
	for ci, chunk := range chunks {
		// Degree k-1 polynomial with the secret chunk as constant term and
		// fresh random coefficients per chunk.
		coeffs[0] = chunk
		for d := 1; d < k; d++ {
			c, err := field.RandomElement()
			if err != nil {
				return nil, err
			}
			coeffs[d] = c
		}

		for i := range shares {
			x := big.NewInt(int64(i + 1))
			shares[i].Values[ci] = field.Eval(coeffs, x)
		}
	}

	return shares, nil
}

// Reconstruct recovers the secret from at least threshold shares with
// distinct indices. Any valid subset of correct shares yields the
// identical secret. Reconstruct does not verify share authenticity beyond
// the integrity tag checked at decode time.
func Reconstruct(shares []Share) ([]byte, error) {
	if len(shares) == 0 {
		return nil, interfaces.ErrInsufficientShares
	}

	// Deduplicate by index; shares must agree on the split parameters.
	distinct := make([]Share, 0, len(shares))
	seen := make(map[byte]bool)
	for _, s := range shares {
		if seen[s.Index] {
			continue
		}
		seen[s.Index] = true
		if s.Threshold != shares[0].Threshold || s.SecretLen != shares[0].SecretLen || len(s.Values) != len(shares[0].Values) {
			return nil, fmt.Errorf("%w: shares come from different splits", interfaces.ErrShareIntegrity)
		}
		distinct = append(distinct, s)
	}

	k := int(shares[0].Threshold)
	if len(distinct) < k {
		return nil, interfaces.ErrInsufficientShares
	}

	// Interpolate with exactly k shares; sorting makes the subset choice
	// deterministic, and any consistent subset recovers the same secret.
	sort.Slice(distinct, func(i, j int) bool { return distinct[i].Index < distinct[j].Index })
	subset := distinct[:k]

	numChunks := len(subset[0].Values)
	secret := make([]byte, 0, numChunks*ChunkSize)
	points := make([]field.Point, k)
	for ci := 0; ci < numChunks; ci++ {
		for i, s := range subset {
			points[i] = field.Point{
				X: big.NewInt(int64(s.Index)),
				Y: s.Values[ci],
			}
		}
		chunk, err := field.InterpolateAtZero(points)
		if err != nil {
			return nil, fmt.Errorf("chunk %d interpolation failed: %w", ci, err)
		}
		buf := make([]byte, ChunkSize)
		chunk.FillBytes(buf)
		secret = append(secret, buf...)
	}

	if shares[0].SecretLen > len(secret) {
		return nil, fmt.Errorf("%w: declared secret length exceeds share payload", interfaces.ErrShareIntegrity)
	}
	return secret[:shares[0].SecretLen], nil
}

// Encode serializes the share to its frozen binary wire format with the
// trailing integrity tag.
func (s Share) Encode() []byte {
	buf := make([]byte, headerSize, headerSize+len(s.Values)*chunkValueSize+tagSize)
	buf[0] = shareVersion
	buf[1] = s.Index
	buf[2] = s.Threshold
	binary.BigEndian.PutUint16(buf[3:5], uint16(s.SecretLen))

	val := make([]byte, chunkValueSize)
	for _, v := range s.Values {
		v.FillBytes(val)
		buf = append(buf, val...)
	}

	tag := sha256.Sum256(buf)
	return append(buf, tag[:tagSize]...)
}

// String returns the URL-safe base64 form used outside the core.
func (s Share) String() string {
	return base64.RawURLEncoding.EncodeToString(s.Encode())
}

// DecodeShare parses the binary wire format, verifying the integrity tag
// and that every chunk value is a canonical field element.
func DecodeShare(data []byte) (Share, error) {
	if len(data) < headerSize+chunkValueSize+tagSize {
		return Share{}, fmt.Errorf("%w: share too short", interfaces.ErrShareIntegrity)
	}
	if data[0] != shareVersion {
		return Share{}, fmt.Errorf("%w: unsupported share version %d", interfaces.ErrShareIntegrity, data[0])
	}

	body, tag := data[:len(data)-tagSize], data[len(data)-tagSize:]
	if (len(body)-headerSize)%chunkValueSize != 0 {
		return Share{}, fmt.Errorf("%w: malformed share payload", interfaces.ErrShareIntegrity)
	}

	want := sha256.Sum256(body)
	if subtle.ConstantTimeCompare(tag, want[:tagSize]) != 1 {
		return Share{}, interfaces.ErrShareIntegrity
	}

	s := Share{
		Index:     body[1],
		Threshold: body[2],
		SecretLen: int(binary.BigEndian.Uint16(body[3:5])),
	}
	if s.Index == 0 {
		return Share{}, fmt.Errorf("%w: share index must be nonzero", interfaces.ErrShareIntegrity)
	}
	if s.Threshold < 2 {
		return Share{}, fmt.Errorf("%w: share threshold must be at least 2", interfaces.ErrShareIntegrity)
	}

	for off := headerSize; off < len(body); off += chunkValueSize {
		v := new(big.Int).SetBytes(body[off : off+chunkValueSize])
		if err := field.Validate(v); err != nil {
			return Share{}, fmt.Errorf("share chunk value invalid: %w", err)
		}
		s.Values = append(s.Values, v)
	}
	return s, nil
}

// DecodeShareString parses the URL-safe base64 form produced by String.
func DecodeShareString(encoded string) (Share, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return Share{}, fmt.Errorf("%w: invalid share encoding: %v", interfaces.ErrShareIntegrity, err)
	}
	return DecodeShare(raw)
}

// encodeChunks packs the secret into field elements, 31 bytes per chunk,
// zero-padding the final chunk. The original length travels in the share
// header so decoding truncates exactly.
func encodeChunks(secret []byte) []*big.Int {
	numChunks := (len(secret) + ChunkSize - 1) / ChunkSize
	chunks := make([]*big.Int, numChunks)
	for i := 0; i < numChunks; i++ {
		start := i * ChunkSize
		end := start + ChunkSize
		if end > len(secret) {
			end = len(secret)
		}
		padded := make([]byte, ChunkSize)
		copy(padded, secret[start:end])
		chunks[i] = new(big.Int).SetBytes(padded)
	}
	return chunks
}
