package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"dlanstake/native/stake"
)

type Config struct {
	DataDir     string `toml:"DataDir"`
	RPCAddress  string `toml:"RPCAddress"`
	ProgramID   string `toml:"ProgramID"`
	GenesisFile string `toml:"GenesisFile"`
	NetworkName string `toml:"NetworkName"`

	Logging   Logging   `toml:"Logging"`
	RPC       RPC       `toml:"RPC"`
	Receipts  Receipts  `toml:"Receipts"`
	Telemetry Telemetry `toml:"Telemetry"`
	Pauses    Pauses    `toml:"Pauses"`
	Quota     Quota     `toml:"Quota"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written by Load for a fresh node.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./dlan-data"
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8899"
	}
	if strings.TrimSpace(cfg.ProgramID) == "" {
		cfg.ProgramID = stake.DefaultProgramID.String()
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "dlan-local"
	}
	if strings.TrimSpace(cfg.Logging.Format) == "" {
		cfg.Logging.Format = "json"
	}
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.RPC.RateLimitPerSecond == 0 {
		cfg.RPC.RateLimitPerSecond = 20
	}
	if cfg.RPC.Burst == 0 {
		cfg.RPC.Burst = 40
	}
	if cfg.RPC.DedupeTTLSeconds == 0 {
		cfg.RPC.DedupeTTLSeconds = 120
	}
	if cfg.RPC.MaxBodyBytes == 0 {
		cfg.RPC.MaxBodyBytes = 1 << 20
	}
	if cfg.Quota.EpochSeconds == 0 {
		cfg.Quota.EpochSeconds = 60
	}
	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "dlan-node"
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
