package events

import (
	"strconv"

	"github.com/gagliardetto/solana-go"

	"dlanstake/core/types"
)

const (
	TypeStakeMinted            = "stake.minted"
	TypeClaimSplit             = "claim.split"
	TypeClaimRecordInitialized = "claim.record_initialized"
)

// StakeMinted is raised once native currency reached the admin account and
// tokens were minted to the participant.
type StakeMinted struct {
	Authority solana.PublicKey
	Admin     solana.PublicKey
	Mint      solana.PublicKey
	Lamports  uint64
	Minted    uint64
}

func (StakeMinted) EventType() string { return TypeStakeMinted }

func (e StakeMinted) Event() *types.Event {
	return &types.Event{
		Type: TypeStakeMinted,
		Attributes: map[string]string{
			"authority": e.Authority.String(),
			"admin":     e.Admin.String(),
			"mint":      e.Mint.String(),
			"lamports":  formatUint(e.Lamports),
			"minted":    formatUint(e.Minted),
		},
	}
}

// ClaimSplit is raised after a split disbursement. Track is "legacy" for the
// untimed path, in which case Days and Watermark are zero.
type ClaimSplit struct {
	Track      string
	Authority  solana.PublicKey
	FeeOwner   solana.PublicKey
	UserAmount uint64
	FeeAmount  uint64
	Days       uint64
	Watermark  int64
}

func (ClaimSplit) EventType() string { return TypeClaimSplit }

func (e ClaimSplit) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimSplit,
		Attributes: map[string]string{
			"track":      e.Track,
			"authority":  e.Authority.String(),
			"feeOwner":   e.FeeOwner.String(),
			"userAmount": formatUint(e.UserAmount),
			"feeAmount":  formatUint(e.FeeAmount),
			"days":       formatUint(e.Days),
			"watermark":  strconv.FormatInt(e.Watermark, 10),
		},
	}
}

// ClaimRecordInitialized marks the first successful claim on a track.
type ClaimRecordInitialized struct {
	Track     string
	Authority solana.PublicKey
	Record    solana.PublicKey
	Baseline  int64
}

func (ClaimRecordInitialized) EventType() string { return TypeClaimRecordInitialized }

func (e ClaimRecordInitialized) Event() *types.Event {
	return &types.Event{
		Type: TypeClaimRecordInitialized,
		Attributes: map[string]string{
			"track":     e.Track,
			"authority": e.Authority.String(),
			"record":    e.Record.String(),
			"baseline":  strconv.FormatInt(e.Baseline, 10),
		},
	}
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
