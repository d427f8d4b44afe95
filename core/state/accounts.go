package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	coreerrors "dlanstake/core/errors"
	"dlanstake/core/types"
	"dlanstake/crypto"
)

// GetAccount returns the native account at addr. Missing accounts read as
// empty.
func (m *Manager) GetAccount(addr solana.PublicKey) (*types.Account, error) {
	var lamports uint64
	if _, err := m.KVGet(lamportsKey(addr), &lamports); err != nil {
		return nil, fmt.Errorf("state: load account %s: %w", addr, err)
	}
	return &types.Account{Lamports: lamports}, nil
}

// SetLamports overwrites the native balance of addr.
func (m *Manager) SetLamports(addr solana.PublicKey, lamports uint64) error {
	return m.KVPut(lamportsKey(addr), lamports)
}

// Lamports returns the native balance of addr.
func (m *Manager) Lamports(addr solana.PublicKey) (uint64, error) {
	acct, err := m.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// TransferLamports is the native-currency transfer primitive. The source must
// be authorized by auth.
func (m *Manager) TransferLamports(from, to solana.PublicKey, auth crypto.Authorization, amount uint64) error {
	if auth == nil || !auth.Authorizes(from) {
		return fmt.Errorf("%w: lamport source %s", coreerrors.ErrAuthorityMismatch, from)
	}
	src, err := m.Lamports(from)
	if err != nil {
		return err
	}
	if src < amount {
		return fmt.Errorf("%w: %s holds %d lamports, needs %d", coreerrors.ErrInsufficientBalance, from, src, amount)
	}
	if from.Equals(to) {
		return nil
	}
	dst, err := m.Lamports(to)
	if err != nil {
		return err
	}
	credited, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(dst), uint256.NewInt(amount))
	if overflow || !credited.IsUint64() {
		return fmt.Errorf("%w: lamports of %s", coreerrors.ErrAmountOverflow, to)
	}
	if err := m.SetLamports(from, src-amount); err != nil {
		return err
	}
	return m.SetLamports(to, credited.Uint64())
}
