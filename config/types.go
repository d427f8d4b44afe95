package config

import (
	"time"

	"dlanstake/native/common"
)

// Logging selects the log handler and optional rotated file output.
type Logging struct {
	Format     string `toml:"Format"` // json or console
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
}

// RPC configures the JSON-RPC listener.
type RPC struct {
	RateLimitPerSecond float64  `toml:"RateLimitPerSecond"`
	Burst              int      `toml:"Burst"`
	JWTSecret          string   `toml:"JWTSecret"`
	JWTIssuer          string   `toml:"JWTIssuer"`
	DedupeTTLSeconds   int      `toml:"DedupeTTLSeconds"`
	MaxBodyBytes       int64    `toml:"MaxBodyBytes"`
	AllowedOrigins     []string `toml:"AllowedOrigins"`
	// TrustedProxies lists proxy IPs or CIDRs whose forwarding headers
	// identify the client for rate limiting.
	TrustedProxies     []string `toml:"TrustedProxies"`
}

// DedupeTTL is how long a submitted instruction digest is remembered.
func (r RPC) DedupeTTL() time.Duration {
	return time.Duration(r.DedupeTTLSeconds) * time.Second
}

// Receipts configures the relational receipt index. An empty DSN disables it.
type Receipts struct {
	DSN string `toml:"DSN"`
}

// Telemetry configures OTLP exporters.
type Telemetry struct {
	ServiceName string `toml:"ServiceName"`
	Endpoint    string `toml:"Endpoint"`
	Insecure    bool   `toml:"Insecure"`
	Headers     string `toml:"Headers"`
	Traces      bool   `toml:"Traces"`
	Metrics     bool   `toml:"Metrics"`
}

// Pauses halts entry point groups without restarting the node.
type Pauses struct {
	Stake  bool `toml:"Stake"`
	Claims bool `toml:"Claims"`
}

// IsPaused implements common.PauseView.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case common.ModuleStake:
		return p.Stake
	case common.ModuleClaims:
		return p.Claims
	default:
		return false
	}
}

// Quota defines per-signer admission limits at the RPC layer.
type Quota struct {
	MaxRequestsPerEpoch uint32 `toml:"MaxRequestsPerEpoch"`
	MaxLamportsPerEpoch uint64 `toml:"MaxLamportsPerEpoch"`
	EpochSeconds        uint32 `toml:"EpochSeconds"`
}

// Runtime converts the section into the admission quota.
func (q Quota) Runtime() common.Quota {
	return common.Quota{
		MaxRequestsPerEpoch: q.MaxRequestsPerEpoch,
		MaxLamportsPerEpoch: q.MaxLamportsPerEpoch,
		EpochSeconds:        q.EpochSeconds,
	}
}
