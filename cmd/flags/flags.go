// Package flags holds the CLI flags and helpers shared by the deadhand
// binaries.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/deadhandprotocol/deadhand-backend/common"
	"github.com/deadhandprotocol/deadhand-backend/httpserver"
)

// SetupLogger builds the service logger from the common logging flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the HTTP server config from the common flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr string) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var VaultStoreFlag = &cli.StringFlag{
	Name:  "vault-store",
	Value: "memory://",
	Usage: "vault record store URI: memory://, file:///path, vault://host:port/mount/path",
}

var ArchiveFlag = &cli.StringFlag{
	Name:  "archive",
	Value: "",
	Usage: "audit archive sink URI: file:///path, s3://bucket/prefix, ipfs://host:port (empty disables)",
}

var NotifyWebhookFlag = &cli.StringFlag{
	Name:  "notify-webhook",
	Value: "",
	Usage: "webhook URL for notification delivery (empty logs notifications instead)",
}

var OperatorContactFlag = &cli.StringFlag{
	Name:  "operator-contact",
	Value: "",
	Usage: "contact alerted when release delivery exhausts retries",
}

var KmsTypeFlag = &cli.StringFlag{
	Name:  "kms-type",
	Value: "simple",
	Usage: "type of KMS to use: 'simple' or 'shamir'",
}

var SimpleKmsSeedFlag = &cli.StringFlag{
	Name:  "simple-kms-seed",
	Value: "",
	Usage: "hex-encoded 32-byte seed for SimpleKMS (required if kms-type is 'simple')",
}

var AdminKeysFileFlag = &cli.StringFlag{
	Name:  "admin-keys-file",
	Value: "",
	Usage: "JSON file with admin public keys for ShamirKMS (required if kms-type is 'shamir')",
}

var KmsThresholdFlag = &cli.IntFlag{
	Name:  "kms-threshold",
	Value: 3,
	Usage: "number of admin shares required to unlock the ShamirKMS",
}

var BootstrapTimeoutFlag = &cli.IntFlag{
	Name:  "bootstrap-timeout",
	Value: 300,
	Usage: "timeout in seconds for the ShamirKMS bootstrap",
}

var SweepIntervalFlag = &cli.DurationFlag{
	Name:  "sweep-interval",
	Value: time.Minute,
	Usage: "interval between scheduler sweeps",
}

var SweepWorkersFlag = &cli.IntFlag{
	Name:  "sweep-workers",
	Value: 8,
	Usage: "concurrent vault evaluations per sweep",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

// CommonFlags are shared by every binary.
var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}
