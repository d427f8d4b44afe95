package stake

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// SecondsPerDay is the day-unit claims accrue in.
const SecondsPerDay int64 = 86_400

// DefaultProgramID is the deployed program address.
var DefaultProgramID = solana.MustPublicKeyFromBase58("3hQsDEYknZmKKUBApAGtcGPy395ogJdiB8DCvMKh24K7")

// Track selects an independent claim schedule. Both tracks share the same
// gate arithmetic and vault but keep disjoint records.
type Track uint8

const (
	TrackStandard Track = 1
	TrackPriority Track = 2
)

// Seed is the record derivation label for the track.
func (t Track) Seed() string {
	switch t {
	case TrackStandard:
		return "user"
	case TrackPriority:
		return "vip"
	default:
		return ""
	}
}

func (t Track) String() string {
	switch t {
	case TrackStandard:
		return "standard"
	case TrackPriority:
		return "priority"
	default:
		return "unknown"
	}
}

func (t Track) Valid() bool { return t == TrackStandard || t == TrackPriority }

// ParseTrack accepts the track name or its seed label.
func ParseTrack(value string) (Track, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "standard", "user", "invest":
		return TrackStandard, nil
	case "priority", "vip":
		return TrackPriority, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTrack, value)
	}
}

// Record is the per-participant claim ledger entry. A zero watermark means the
// participant never claimed on the track.
type Record struct {
	Watermark int64
}

func (r *Record) Initialized() bool { return r != nil && r.Watermark != 0 }

// Window is the claimable credit at a point in time.
type Window struct {
	Baseline    int64  `json:"baseline"`
	ElapsedDays uint64 `json:"elapsedDays"`
	NextUnlock  int64  `json:"nextUnlock"`
}

// MintAccounts are the accounts touched by a deposit. MintAuthorityBump is the
// canonical bump the host resolved for the declared mint authority.
type MintAccounts struct {
	Admin             solana.PublicKey
	Mint              solana.PublicKey
	MintAuthorityBump uint8
}

// SplitAccounts are the accounts touched by a disbursement out of the shared
// pool. VaultAuthorityBump is resolved by the host like MintAuthorityBump.
type SplitAccounts struct {
	USDTMint           solana.PublicKey
	VaultToken         solana.PublicKey
	VaultAuthorityBump uint8
	FeeOwner           solana.PublicKey
}

// ClaimResult describes a successful timed claim.
type ClaimResult struct {
	Track       Track            `json:"track"`
	Record      solana.PublicKey `json:"record"`
	Baseline    int64            `json:"baseline"`
	Days        uint64           `json:"days"`
	Watermark   int64            `json:"watermark"`
	Initialized bool             `json:"initialized"`
}

// Status is the read-only view of a participant's record.
type Status struct {
	Track       string           `json:"track"`
	Participant solana.PublicKey `json:"participant"`
	Record      solana.PublicKey `json:"record"`
	Watermark   int64            `json:"watermark"`
	Initialized bool             `json:"initialized"`
	Window
	Now int64 `json:"now"`
}
