package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSArchive writes audit artifacts to an IPFS node. The returned
// locator is the content CID, so artifacts are tamper-evident by
// construction.
type IPFSArchive struct {
	shell *shell.Shell
	host  string
	port  string
	log   *slog.Logger
}

// NewIPFSArchive creates an archive sink talking to the IPFS API at
// host:port.
func NewIPFSArchive(host, port string, log *slog.Logger) *IPFSArchive {
	apiURL := fmt.Sprintf("%s:%s", host, port)
	return &IPFSArchive{
		shell: shell.NewShell(apiURL),
		host:  host,
		port:  port,
		log:   log,
	}
}

// Archive adds data to IPFS and returns an ipfs:// locator.
func (a *IPFSArchive) Archive(ctx context.Context, data []byte) (string, error) {
	start := time.Now()

	if !a.shell.IsUp() {
		a.log.Warn("IPFS node unavailable",
			slog.String("host", a.host),
			slog.String("port", a.port))
		return "", interfaces.ErrBackendUnavailable
	}

	cid, err := a.shell.Add(bytes.NewReader(data))
	if err != nil {
		a.log.Error("Failed to archive artifact to IPFS", "err", err)
		return "", fmt.Errorf("failed to add artifact to IPFS: %w", err)
	}

	a.log.Debug("Archived artifact to IPFS",
		slog.String("cid", cid),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))
	return fmt.Sprintf("ipfs://%s", cid), nil
}

// Available checks the IPFS node is up.
func (a *IPFSArchive) Available(ctx context.Context) bool {
	return a.shell.IsUp()
}

// Name returns an identifier for logging.
func (a *IPFSArchive) Name() string {
	return fmt.Sprintf("ipfs-archive-%s-%s", a.host, a.port)
}

var _ interfaces.ArchiveSink = (*IPFSArchive)(nil)
