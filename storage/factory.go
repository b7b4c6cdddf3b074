package storage

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
)

// Factory creates storage backends from location URIs so deployments
// select persistence entirely via configuration.
type Factory struct {
	log *slog.Logger
}

// NewFactory creates a backend factory.
func NewFactory(log *slog.Logger) *Factory {
	return &Factory{log: log}
}

// VaultStoreFor creates a vault record store from a location URI.
//
// Supported schemes:
//   - memory:// - in-process map
//   - file:///path/to/dir - one JSON file per vault
//   - vault://host:port/mount/path?token=... - HashiCorp Vault KV v2
func (f *Factory) VaultStoreFor(uri string) (interfaces.VaultStore, error) {
	loc, err := interfaces.ParseStoreLocation(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "memory":
		return NewMemoryStore(), nil
	case "file":
		return NewFileStore(filePath(loc), f.log)
	case "vault":
		return f.createVaultKVStore(loc)
	default:
		return nil, fmt.Errorf("%w: scheme %q is not a vault store", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// ArchiveSinkFor creates an audit artifact sink from a location URI.
//
// Supported schemes:
//   - file:///path/to/dir - local directory
//   - s3://[KEY:SECRET@]bucket/prefix?region=...&endpoint=... - object storage
//   - ipfs://host:port - IPFS node
func (f *Factory) ArchiveSinkFor(uri string) (interfaces.ArchiveSink, error) {
	loc, err := interfaces.ParseStoreLocation(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "file":
		return NewFileArchive(filePath(loc), f.log)
	case "s3":
		return f.createS3Archive(loc)
	case "ipfs":
		return f.createIPFSArchive(loc)
	default:
		return nil, fmt.Errorf("%w: scheme %q is not an archive sink", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// createVaultKVStore parses vault://host:port/mount/data-path?token=...
// The scheme selects the KV store; TLS is controlled with ?tls=false for
// development servers.
func (f *Factory) createVaultKVStore(loc interfaces.StoreLocation) (interfaces.VaultStore, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: vault URI requires a host", interfaces.ErrInvalidLocationURI)
	}

	scheme := "https"
	if loc.GetParam("tls") == "false" {
		scheme = "http"
	}
	address := fmt.Sprintf("%s://%s", scheme, loc.Host)

	mountPath := "secret"
	dataPath := "deadhand"
	parts := strings.Split(strings.Trim(loc.Path, "/"), "/")
	if len(parts) > 0 && parts[0] != "" {
		mountPath = parts[0]
	}
	if len(parts) > 1 {
		dataPath = strings.Join(parts[1:], "/")
	}

	f.log.Debug("Creating Vault KV store",
		slog.String("address", address),
		slog.String("mount", mountPath),
		slog.String("path", dataPath))
	return NewVaultKVStore(address, mountPath, dataPath, loc.GetParam("token"), f.log)
}

// createS3Archive parses s3://[KEY:SECRET@]bucket/prefix?region=...
func (f *Factory) createS3Archive(loc interfaces.StoreLocation) (interfaces.ArchiveSink, error) {
	if loc.Host == "" {
		return nil, fmt.Errorf("%w: s3 URI requires a bucket", interfaces.ErrInvalidLocationURI)
	}

	region := loc.GetParam("region")
	if region == "" {
		region = "us-east-1"
	}

	var accessKey, secretKey string
	if loc.User != nil {
		accessKey = loc.User.Username()
		secretKey, _ = loc.User.Password()
	}

	prefix := strings.TrimPrefix(loc.Path, "/")
	return NewS3Archive(loc.Host, prefix, region, loc.GetParam("endpoint"), accessKey, secretKey, f.log)
}

// createIPFSArchive parses ipfs://host:port
func (f *Factory) createIPFSArchive(loc interfaces.StoreLocation) (interfaces.ArchiveSink, error) {
	host := loc.Host
	port := "5001"
	if i := strings.LastIndex(host, ":"); i >= 0 {
		port = host[i+1:]
		host = host[:i]
	}
	if host == "" {
		return nil, fmt.Errorf("%w: ipfs URI requires a host", interfaces.ErrInvalidLocationURI)
	}
	return NewIPFSArchive(host, port, f.log), nil
}

// filePath extracts the filesystem path from a file:// URI, handling
// both file:///abs/path and file://./relative forms.
func filePath(loc interfaces.StoreLocation) string {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + path
	}
	return path
}
