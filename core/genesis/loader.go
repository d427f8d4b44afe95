// core/genesis/loader.go
package genesis

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/gagliardetto/solana-go"

	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/storage"
)

// ErrAlreadyInitialized is returned when genesis is applied to a store that
// already carries ledger state.
var ErrAlreadyInitialized = errors.New("genesis: store already initialized")

// BuildGenesisFromSpec seeds an empty store with the mints, token accounts and
// lamport balances of spec in one transaction.
func BuildGenesisFromSpec(spec *GenesisSpec, db storage.Database) error {
	if spec == nil {
		return fmt.Errorf("genesis spec must not be nil")
	}
	if db == nil {
		return fmt.Errorf("database must not be nil")
	}
	if _, ok, err := state.NewManager(db).StateVersion(); err != nil {
		return err
	} else if ok {
		return ErrAlreadyInitialized
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Discard()
	manager := state.NewManager(tx)

	// 1) Mints (sorted by address)
	mintAddrs := make([]solana.PublicKey, 0, len(spec.mints))
	for addr := range spec.mints {
		mintAddrs = append(mintAddrs, addr)
	}
	sortKeys(mintAddrs)
	supply := make(map[solana.PublicKey]uint64, len(mintAddrs))
	for _, acct := range spec.accounts {
		supply[acct.mint] += acct.amount
	}
	for _, addr := range mintAddrs {
		m := spec.mints[addr]
		if err := manager.RegisterMint(addr, &types.Mint{
			Authority: m.authority,
			Supply:    supply[addr],
			Decimals:  m.decimals,
		}); err != nil {
			return fmt.Errorf("register mint %s: %w", addr, err)
		}
	}

	// 2) Token accounts (already sorted by mint, owner)
	for _, acct := range spec.accounts {
		addr, err := manager.CreateAssociatedTokenAccount(acct.owner, acct.mint)
		if err != nil {
			return fmt.Errorf("token account %s/%s: %w", acct.owner, acct.mint, err)
		}
		if err := manager.PutTokenAccount(addr, &types.TokenAccount{Mint: acct.mint, Owner: acct.owner, Amount: acct.amount}); err != nil {
			return fmt.Errorf("token account %s: %w", addr, err)
		}
	}

	// 3) Lamports (sorted)
	holders := make([]solana.PublicKey, 0, len(spec.lamports))
	for addr := range spec.lamports {
		holders = append(holders, addr)
	}
	sortKeys(holders)
	for _, addr := range holders {
		if err := manager.SetLamports(addr, spec.lamports[addr]); err != nil {
			return fmt.Errorf("lamports %s: %w", addr, err)
		}
	}

	if err := manager.SetStateVersion(state.StateVersion); err != nil {
		return err
	}
	return tx.Commit()
}

func sortKeys(keys []solana.PublicKey) {
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i][:], keys[j][:]) < 0 })
}
