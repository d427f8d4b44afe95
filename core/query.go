package core

import (
	"github.com/gagliardetto/solana-go"

	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/native/stake"
)

// Authorities lists the derived signing authorities of the program.
type Authorities struct {
	ProgramID      solana.PublicKey `json:"programId"`
	MintAuthority  solana.PublicKey `json:"mintAuthority"`
	MintBump       uint8            `json:"mintBump"`
	VaultAuthority solana.PublicKey `json:"vaultAuthority"`
	VaultBump      uint8            `json:"vaultBump"`
}

// TokenBalance is the associated token account balance of an owner.
type TokenBalance struct {
	Owner   solana.PublicKey `json:"owner"`
	Mint    solana.PublicKey `json:"mint"`
	Account solana.PublicKey `json:"account"`
	Amount  uint64           `json:"amount"`
}

// MintEntry is a registered mint and its definition.
type MintEntry struct {
	Address solana.PublicKey `json:"address"`
	types.Mint
}

// reader builds a manager over committed state.
func (x *Executor) reader() *state.Manager {
	return state.NewManager(x.db)
}

// ClaimStatus reports a participant's claimable window at the current clock
// reading without mutating anything.
func (x *Executor) ClaimStatus(track stake.Track, participant solana.PublicKey) (*stake.Status, error) {
	engine := stake.NewEngine(x.programID)
	engine.SetState(x.reader())
	now := x.clock.Now().Unix()
	engine.SetNowFunc(func() int64 { return now })
	return engine.Status(track, participant)
}

// Lamports returns the native balance of addr.
func (x *Executor) Lamports(addr solana.PublicKey) (uint64, error) {
	return x.reader().Lamports(addr)
}

// TokenBalance returns owner's balance of mint.
func (x *Executor) TokenBalance(owner, mint solana.PublicKey) (*TokenBalance, error) {
	account, amount, err := x.reader().TokenBalance(owner, mint)
	if err != nil {
		return nil, err
	}
	return &TokenBalance{Owner: owner, Mint: mint, Account: account, Amount: amount}, nil
}

// Mint returns the mint definition at addr or nil.
func (x *Executor) Mint(addr solana.PublicKey) (*types.Mint, error) {
	return x.reader().Mint(addr)
}

// Authorities derives the canonical mint and vault authorities.
func (x *Executor) Authorities() (*Authorities, error) {
	mint, mintBump, vault, vaultBump, err := stake.Authorities(x.programID)
	if err != nil {
		return nil, err
	}
	return &Authorities{
		ProgramID:      x.programID,
		MintAuthority:  mint,
		MintBump:       mintBump,
		VaultAuthority: vault,
		VaultBump:      vaultBump,
	}, nil
}

// Mints lists every registered mint in registration order.
func (x *Executor) Mints() ([]MintEntry, error) {
	reader := x.reader()
	addrs, err := reader.Mints()
	if err != nil {
		return nil, err
	}
	out := make([]MintEntry, 0, len(addrs))
	for _, addr := range addrs {
		mint, err := reader.Mint(addr)
		if err != nil {
			return nil, err
		}
		if mint == nil {
			continue
		}
		out = append(out, MintEntry{Address: addr, Mint: *mint})
	}
	return out, nil
}
