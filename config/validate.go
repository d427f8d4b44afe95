package config

import (
	"fmt"
	"net"
	"strings"

	"dlanstake/crypto"
)

var MinJWTSecretLength = 32

func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config must not be nil")
	}
	if _, err := crypto.ParsePublicKey(cfg.ProgramID); err != nil {
		return fmt.Errorf("ProgramID: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "json", "console":
	default:
		return fmt.Errorf("logging: unknown format %q", cfg.Logging.Format)
	}
	if cfg.RPC.RateLimitPerSecond < 0 || cfg.RPC.Burst < 0 {
		return fmt.Errorf("rpc: rate limit and burst must not be negative")
	}
	if secret := cfg.RPC.JWTSecret; secret != "" && len(secret) < MinJWTSecretLength {
		return fmt.Errorf("rpc: JWTSecret shorter than %d bytes", MinJWTSecretLength)
	}
	for _, proxy := range cfg.RPC.TrustedProxies {
		if !validProxy(strings.TrimSpace(proxy)) {
			return fmt.Errorf("rpc: invalid TrustedProxies entry %q", proxy)
		}
	}
	if cfg.RPC.DedupeTTLSeconds < 0 {
		return fmt.Errorf("rpc: DedupeTTLSeconds must not be negative")
	}
	if cfg.Quota.EpochSeconds == 0 && (cfg.Quota.MaxRequestsPerEpoch > 0 || cfg.Quota.MaxLamportsPerEpoch > 0) {
		return fmt.Errorf("quota: EpochSeconds required when limits are set")
	}
	if (cfg.Telemetry.Traces || cfg.Telemetry.Metrics) && strings.TrimSpace(cfg.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: Endpoint required when exporters are enabled")
	}
	return nil
}

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, _, err := net.ParseCIDR(entry)
		return err == nil
	}
	return net.ParseIP(entry) != nil
}
