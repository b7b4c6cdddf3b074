// The deadhand command runs the vault API server, the escalation
// scheduler and the release orchestrator in one process.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/deadhandprotocol/deadhand-backend/cmd/flags"
	"github.com/deadhandprotocol/deadhand-backend/httpserver"
	"github.com/deadhandprotocol/deadhand-backend/interfaces"
	"github.com/deadhandprotocol/deadhand-backend/kms"
	"github.com/deadhandprotocol/deadhand-backend/notify"
	"github.com/deadhandprotocol/deadhand-backend/orchestrator"
	"github.com/deadhandprotocol/deadhand-backend/scheduler"
	"github.com/deadhandprotocol/deadhand-backend/service"
	"github.com/deadhandprotocol/deadhand-backend/storage"
)

func main() {
	app := &cli.App{
		Name:  "deadhand",
		Usage: "Serve the digital inheritance vault API",
		Flags: append([]cli.Flag{
			flags.ListenAddrFlag,
			flags.VaultStoreFlag,
			flags.ArchiveFlag,
			flags.NotifyWebhookFlag,
			flags.OperatorContactFlag,
			flags.KmsTypeFlag,
			flags.SimpleKmsSeedFlag,
			flags.AdminKeysFileFlag,
			flags.KmsThresholdFlag,
			flags.BootstrapTimeoutFlag,
			flags.SweepIntervalFlag,
			flags.SweepWorkersFlag,
		}, flags.CommonFlags...),
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	factory := storage.NewFactory(logger)
	store, err := factory.VaultStoreFor(cCtx.String(flags.VaultStoreFlag.Name))
	if err != nil {
		logger.Error("Failed to create vault store", "err", err)
		return err
	}
	logger.Info("Vault store ready", "store", store.Name())

	var archive interfaces.ArchiveSink
	if uri := cCtx.String(flags.ArchiveFlag.Name); uri != "" {
		archive, err = factory.ArchiveSinkFor(uri)
		if err != nil {
			logger.Error("Failed to create archive sink", "err", err)
			return err
		}
		logger.Info("Archive sink ready", "sink", archive.Name())
	}

	var notifier interfaces.Notifier
	if webhook := cCtx.String(flags.NotifyWebhookFlag.Name); webhook != "" {
		notifier = notify.NewWebhookNotifier(webhook, 30*time.Second, logger)
	} else {
		logger.Warn("No notification webhook configured, logging notifications instead")
		notifier = notify.NewLogNotifier(logger)
	}

	kmsImpl, shamirKMS, err := setupKMS(cCtx, logger)
	if err != nil {
		return err
	}

	svc := service.New(store, kmsImpl, logger)

	orchCfg := orchestrator.DefaultConfig()
	orchCfg.OperatorContact = interfaces.Contact(cCtx.String(flags.OperatorContactFlag.Name))
	orch := orchestrator.New(store, kmsImpl, notifier, archive, orchCfg, logger)

	sched := scheduler.New(store, notifier, orch, scheduler.Config{
		Interval: cCtx.Duration(flags.SweepIntervalFlag.Name),
		Workers:  cCtx.Int(flags.SweepWorkersFlag.Name),
	}, logger)

	handler := httpserver.NewHandler(svc, shamirKMS, logger)
	cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
	server, err := httpserver.New(cfg, handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	server.RunInBackground()

	// With a ShamirKMS the server boots locked: only the admin bootstrap
	// API is usable until the administrators submit their shares.
	if shamirKMS != nil {
		timeout := time.Duration(cCtx.Int(flags.BootstrapTimeoutFlag.Name)) * time.Second
		logger.Info("Waiting for KMS bootstrap", "timeout", timeout)
		if err := waitForUnlock(shamirKMS, timeout); err != nil {
			logger.Error("KMS bootstrap failed", "err", err)
			server.Shutdown()
			return err
		}
		logger.Info("KMS bootstrap complete")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Resume any release interrupted by the previous shutdown before the
	// scheduler starts generating new ones.
	if resumed, err := orch.RecoverPending(ctx); err != nil {
		logger.Error("Release recovery scan failed", "err", err)
	} else if resumed > 0 {
		logger.Info("Resumed interrupted releases", "count", resumed)
	}

	go sched.Run(ctx)

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	cancel()
	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

// setupKMS builds the configured KMS. The second return value is non-nil
// only for a ShamirKMS that needs the admin bootstrap.
func setupKMS(cCtx *cli.Context, logger *slog.Logger) (interfaces.KMS, *kms.ShamirKMS, error) {
	switch kmsType := cCtx.String(flags.KmsTypeFlag.Name); kmsType {
	case "simple":
		seedHex := cCtx.String(flags.SimpleKmsSeedFlag.Name)
		if seedHex == "" {
			return nil, nil, errors.New("simple-kms-seed is required for simple KMS")
		}
		seed, err := hex.DecodeString(seedHex)
		if err != nil || len(seed) != 32 {
			return nil, nil, fmt.Errorf("invalid simple-kms-seed: must be 64 hex chars (32 bytes)")
		}

		simpleKMS, err := kms.NewSimpleKMS(seed)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("SimpleKMS initialized")
		return simpleKMS, nil, nil

	case "shamir":
		adminKeysFile := cCtx.String(flags.AdminKeysFileFlag.Name)
		if adminKeysFile == "" {
			return nil, nil, errors.New("admin-keys-file is required for shamir KMS")
		}

		f, err := os.Open(adminKeysFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open admin keys file: %w", err)
		}
		defer f.Close()

		adminKeys, err := kms.LoadAdminKeys(f)
		if err != nil {
			return nil, nil, err
		}

		shamirKMS := kms.NewShamirKMSRecovery(cCtx.Int(flags.KmsThresholdFlag.Name))
		for _, key := range adminKeys {
			if err := shamirKMS.RegisterAdmin(key); err != nil {
				return nil, nil, fmt.Errorf("failed to register admin key: %w", err)
			}
		}
		logger.Info("ShamirKMS initialized, waiting for admin shares", "admins", len(adminKeys))
		return shamirKMS, shamirKMS, nil

	default:
		return nil, nil, fmt.Errorf("invalid kms-type: %s", kmsType)
	}
}

// waitForUnlock polls the KMS until the administrators have submitted
// enough shares.
func waitForUnlock(shamirKMS *kms.ShamirKMS, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if shamirKMS.IsUnlocked() {
			return nil
		}
		time.Sleep(time.Second)
	}
	return errors.New("bootstrap timed out waiting for admin shares")
}
