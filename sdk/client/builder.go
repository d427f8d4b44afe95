package client

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"

	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/native/stake"
)

// Deployment names the accounts of one program deployment. Derived
// authorities and the vault token account are computed from it.
type Deployment struct {
	ProgramID solana.PublicKey
	Admin     solana.PublicKey
	Mint      solana.PublicKey
	USDTMint  solana.PublicKey
	FeeOwner  solana.PublicKey
}

// Accounts resolves the full account list for instructions.
func (d Deployment) Accounts() (types.InstructionAccounts, error) {
	programID := d.ProgramID
	if programID.IsZero() {
		programID = stake.DefaultProgramID
	}
	mintAuth, _, vaultAuth, _, err := stake.Authorities(programID)
	if err != nil {
		return types.InstructionAccounts{}, err
	}
	accts := types.InstructionAccounts{
		Admin:          d.Admin,
		Mint:           d.Mint,
		MintAuthority:  mintAuth,
		VaultAuthority: vaultAuth,
		FeeOwner:       d.FeeOwner,
		USDTMint:       d.USDTMint,
	}
	if !d.USDTMint.IsZero() {
		vault, err := state.AssociatedTokenAddress(vaultAuth, d.USDTMint)
		if err != nil {
			return types.InstructionAccounts{}, err
		}
		accts.VaultToken = vault
	}
	return accts, nil
}

// Builder signs instructions against a deployment.
type Builder struct {
	deployment Deployment
	nonce      func() uint64
}

// NewBuilder uses the wall clock in nanoseconds as the default nonce so
// repeated identical requests get distinct digests.
func NewBuilder(d Deployment) *Builder {
	return &Builder{deployment: d, nonce: func() uint64 { return uint64(time.Now().UnixNano()) }}
}

// SetNonceFunc overrides nonce generation.
func (b *Builder) SetNonceFunc(fn func() uint64) {
	if fn != nil {
		b.nonce = fn
	}
}

// StakeAndMint builds a legacy deposit minting one unit per lamport.
func (b *Builder) StakeAndMint(key solana.PrivateKey, lamports uint64) (*types.SignedInstruction, error) {
	return b.build(key, types.KindStakeAndMint, types.InstructionArgs{SolLamports: lamports})
}

// StakeAndMintPriced builds a deposit with an off-ledger quoted mint amount.
func (b *Builder) StakeAndMintPriced(key solana.PrivateKey, lamports, mintAmount uint64) (*types.SignedInstruction, error) {
	return b.build(key, types.KindStakeAndMintPriced, types.InstructionArgs{SolLamports: lamports, MintAmount: mintAmount})
}

// Claim builds one of the split disbursement kinds. Days is ignored by the
// legacy split.
func (b *Builder) Claim(key solana.PrivateKey, kind types.InstructionKind, userAmount, feeAmount, days uint64) (*types.SignedInstruction, error) {
	switch kind {
	case types.KindClaimSplit:
		days = 0
	case types.KindInvestClaimSplit, types.KindVIPClaimSplitTimed:
	default:
		return nil, fmt.Errorf("client: %s is not a claim", kind)
	}
	return b.build(key, kind, types.InstructionArgs{UserAmount: userAmount, FeeAmount: feeAmount, Days: days})
}

// ClaimKind maps a track name (or "legacy") to its entry point.
func ClaimKind(track string) (types.InstructionKind, error) {
	if track == "legacy" {
		return types.KindClaimSplit, nil
	}
	parsed, err := stake.ParseTrack(track)
	if err != nil {
		return 0, err
	}
	if parsed == stake.TrackPriority {
		return types.KindVIPClaimSplitTimed, nil
	}
	return types.KindInvestClaimSplit, nil
}

func (b *Builder) build(key solana.PrivateKey, kind types.InstructionKind, args types.InstructionArgs) (*types.SignedInstruction, error) {
	accts, err := b.deployment.Accounts()
	if err != nil {
		return nil, err
	}
	ix := &types.Instruction{
		Kind:      kind,
		Authority: key.PublicKey(),
		Accounts:  accts,
		Args:      args,
		Nonce:     b.nonce(),
	}
	signed, err := ix.Sign(key)
	if err != nil {
		return nil, fmt.Errorf("client: sign instruction: %w", err)
	}
	return signed, nil
}
