package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"dlanstake/config"
	"dlanstake/core"
	"dlanstake/core/events"
	"dlanstake/crypto"
	"dlanstake/observability/logging"
	telemetry "dlanstake/observability/otel"
	"dlanstake/rpc"
	"dlanstake/storage"
	"dlanstake/storage/receipts"
)

const (
	envName       = "DLAN_ENV"
	configPathEnv = "DLAN_CONFIG"
	genesisEnv    = "DLAN_GENESIS"
	shutdownGrace = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFile := flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	configFile := flag.String("config", "./config.toml", "Path to the configuration file (or set DLAN_CONFIG)")
	genesisFlag := flag.String("genesis", "", "Path to a genesis spec (overrides DLAN_GENESIS and config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	flag.Parse()

	if err := loadDotEnv(*envFile); err != nil {
		return err
	}
	if !flag.CommandLine.Changed("config") {
		if fromEnv := strings.TrimSpace(os.Getenv(configPathEnv)); fromEnv != "" {
			*configFile = fromEnv
		}
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	env := strings.TrimSpace(os.Getenv(envName))
	logger := logging.Setup("dlan-node", env,
		logging.WithFormat(cfg.Logging.Format),
		logging.WithLevel(logging.ParseLevel(cfg.Logging.Level)),
		logging.WithFile(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups),
	)
	logger.Info("configuration loaded",
		slog.String("config", *configFile),
		slog.String("network", cfg.NetworkName),
		logging.MaskField("jwt_secret", cfg.RPC.JWTSecret))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     parseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	programID, err := crypto.ParsePublicKey(cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("program id: %w", err)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	genesisPath := resolveGenesisPath(*genesisFlag, cfg.GenesisFile, os.LookupEnv)
	if err := prepareStore(db, programID, genesisPath, *allowMigrateFlag, logger); err != nil {
		return err
	}

	var sink core.ReceiptSink
	var store *receipts.Store
	if strings.TrimSpace(cfg.Receipts.DSN) != "" {
		store, err = receipts.Open(cfg.Receipts.DSN)
		if err != nil {
			return err
		}
		defer store.Close()
		sink = store
	}

	stream := events.NewBroadcaster()
	exec, err := core.NewExecutor(core.ExecutorConfig{
		ProgramID: programID,
		DB:        db,
		Pauses:    cfg.Pauses,
		Emitter:   stream,
		Receipts:  sink,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	server := rpc.NewServer(exec, rpcConfig(cfg), logger)
	server.SetStream(stream)
	if store != nil {
		server.SetReceipts(store)
	}

	go reloadPausesOnHangup(ctx, *configFile, exec, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.RPCAddress) }()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("rpc shutdown failed", slog.Any("error", err))
	}
	return nil
}

// reloadPausesOnHangup re-reads the pause flags on SIGHUP.
func reloadPausesOnHangup(ctx context.Context, path string, exec *core.Executor, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := config.Load(path)
			if err != nil {
				logger.Error("reload config failed", slog.Any("error", err))
				continue
			}
			exec.SetPauses(cfg.Pauses)
			logger.Info("pauses reloaded",
				slog.Bool("stake", cfg.Pauses.Stake),
				slog.Bool("claims", cfg.Pauses.Claims))
		}
	}
}
