package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"

	"dlanstake/config"
	"dlanstake/core/genesis"
	"dlanstake/core/state"
	"dlanstake/rpc"
	"dlanstake/rpc/middleware"
	"dlanstake/storage"
)

// loadDotEnv reads path into the environment. A missing file is fine.
func loadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func resolveGenesisPath(flagValue, cfgValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(cfgValue)
}

// prepareStore applies genesis to an empty store, stamps the schema version
// when the node starts without one, and verifies the on-disk version.
func prepareStore(db storage.Database, programID solana.PublicKey, genesisPath string, allowMigrate bool, logger *slog.Logger) error {
	if genesisPath != "" {
		spec, err := genesis.LoadGenesisSpec(genesisPath)
		if err != nil {
			return fmt.Errorf("load genesis spec: %w", err)
		}
		if !spec.ProgramIDValue().Equals(programID) {
			return fmt.Errorf("genesis program %s does not match configured program %s", spec.ProgramIDValue(), programID)
		}
		switch err := genesis.BuildGenesisFromSpec(spec, db); {
		case errors.Is(err, genesis.ErrAlreadyInitialized):
			logger.Info("genesis already applied", slog.String("genesis", genesisPath))
		case err != nil:
			return fmt.Errorf("apply genesis: %w", err)
		default:
			logger.Info("genesis applied",
				slog.String("genesis", genesisPath),
				slog.Time("genesis_time", spec.GenesisTimestamp()))
		}
	} else if _, ok, err := state.NewManager(db).StateVersion(); err != nil {
		return err
	} else if !ok {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Discard()
		if err := state.NewManager(tx).SetStateVersion(state.StateVersion); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		logger.Warn("starting with an empty ledger; no genesis configured")
	}
	return state.EnsureStateVersion(db, allowMigrate)
}

func rpcConfig(cfg *config.Config) rpc.Config {
	return rpc.Config{
		RateLimit: middleware.RateLimit{
			RatePerSecond:  cfg.RPC.RateLimitPerSecond,
			Burst:          cfg.RPC.Burst,
			TrustedProxies: cfg.RPC.TrustedProxies,
		},
		Auth: middleware.AuthConfig{
			HMACSecret: cfg.RPC.JWTSecret,
			Issuer:     cfg.RPC.JWTIssuer,
			ClockSkew:  2 * time.Minute,
		},
		AllowedOrigins: cfg.RPC.AllowedOrigins,
		DedupeTTL:      cfg.RPC.DedupeTTL(),
		MaxBodyBytes:   cfg.RPC.MaxBodyBytes,
		Quota:          cfg.Quota.Runtime(),
	}
}

// parseHeaders reads "k1=v1,k2=v2" OTLP header lists.
func parseHeaders(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		out[key] = strings.TrimSpace(value)
	}
	return out
}
