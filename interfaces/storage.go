package interfaces

import (
	"context"
	"fmt"
	"net/url"
)

// VaultStore persists vault records with atomic single-record
// compare-and-set semantics. It is the only shared mutable resource in
// the core; all state transitions are totally ordered per vault by the
// version check in CompareAndSwap.
type VaultStore interface {
	// Create persists a new record. Fails with ErrVaultExists if the ID is
	// already stored.
	Create(ctx context.Context, rec *VaultRecord) error

	// Get returns a copy of the stored record, or ErrVaultNotFound.
	Get(ctx context.Context, id VaultID) (*VaultRecord, error)

	// CompareAndSwap stores rec if and only if the persisted version still
	// equals rec.Version. On success the stored version becomes
	// rec.Version+1 and rec.Version is bumped to match. A mismatch returns
	// ErrVersionConflict and leaves the stored record untouched.
	CompareAndSwap(ctx context.Context, rec *VaultRecord) error

	// List returns the IDs of all stored vaults.
	List(ctx context.Context) ([]VaultID, error)

	// Name returns an identifier for logging.
	Name() string
}

// ArchiveSink stores immutable audit artifacts: release receipts and
// escalation events. Append-only; artifacts never contain share material.
type ArchiveSink interface {
	// Archive stores data and returns a backend-specific locator.
	Archive(ctx context.Context, data []byte) (string, error)

	// Available checks if the sink is accessible.
	Available(ctx context.Context) bool

	// Name returns an identifier for logging.
	Name() string
}

// StoreLocation is a parsed storage backend URI.
type StoreLocation struct {
	Raw    string
	Scheme string
	Host   string
	Path   string
	Query  url.Values
	User   *url.Userinfo
}

// ParseStoreLocation parses and validates a storage backend URI of the
// form [scheme]://[auth@]host[:port][/path][?params].
func ParseStoreLocation(uri string) (StoreLocation, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return StoreLocation{}, fmt.Errorf("%w: %v", ErrInvalidLocationURI, err)
	}

	switch parsed.Scheme {
	case "memory", "file", "vault", "s3", "ipfs":
	default:
		return StoreLocation{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidLocationURI, parsed.Scheme)
	}

	return StoreLocation{
		Raw:    uri,
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   parsed.Path,
		Query:  parsed.Query(),
		User:   parsed.User,
	}, nil
}

// String returns the original URI.
func (loc StoreLocation) String() string {
	return loc.Raw
}

// GetParam returns a query parameter value.
func (loc StoreLocation) GetParam(name string) string {
	return loc.Query.Get(name)
}
