package state

import (
	"bytes"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"

	coreerrors "dlanstake/core/errors"
	"dlanstake/core/types"
	"dlanstake/crypto"
)

type storedMint struct {
	Authority []byte
	Supply    uint64
	Decimals  uint8
}

type storedTokenAccount struct {
	Mint   []byte
	Owner  []byte
	Amount uint64
}

func addChecked(a, b uint64) (uint64, bool) {
	sum, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !sum.IsUint64() {
		return 0, false
	}
	return sum.Uint64(), true
}

// RegisterMint stores a mint definition and records it in the mint index.
func (m *Manager) RegisterMint(addr solana.PublicKey, mint *types.Mint) error {
	if mint == nil {
		return fmt.Errorf("state: mint must not be nil")
	}
	if existing, err := m.Mint(addr); err != nil {
		return err
	} else if existing != nil {
		return fmt.Errorf("%w: mint %s", coreerrors.ErrAccountExists, addr)
	}
	if err := m.putMint(addr, mint); err != nil {
		return err
	}
	var index [][]byte
	if err := m.KVGetList(mintIndexKey, &index); err != nil {
		return err
	}
	for _, existing := range index {
		if bytes.Equal(existing, addr[:]) {
			return nil
		}
	}
	index = append(index, append([]byte(nil), addr[:]...))
	return m.KVPut(mintIndexKey, index)
}

// Mints lists registered mint addresses in registration order.
func (m *Manager) Mints() ([]solana.PublicKey, error) {
	var index [][]byte
	if err := m.KVGetList(mintIndexKey, &index); err != nil {
		return nil, err
	}
	out := make([]solana.PublicKey, 0, len(index))
	for _, raw := range index {
		out = append(out, solana.PublicKeyFromBytes(raw))
	}
	return out, nil
}

// Mint returns the mint at addr or nil when absent.
func (m *Manager) Mint(addr solana.PublicKey) (*types.Mint, error) {
	var stored storedMint
	ok, err := m.KVGet(mintKey(addr), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: load mint %s: %w", addr, err)
	}
	if !ok {
		return nil, nil
	}
	return &types.Mint{
		Authority: solana.PublicKeyFromBytes(stored.Authority),
		Supply:    stored.Supply,
		Decimals:  stored.Decimals,
	}, nil
}

func (m *Manager) putMint(addr solana.PublicKey, mint *types.Mint) error {
	return m.KVPut(mintKey(addr), &storedMint{
		Authority: mint.Authority.Bytes(),
		Supply:    mint.Supply,
		Decimals:  mint.Decimals,
	})
}

// TokenAccount returns the token account at addr or nil when absent.
func (m *Manager) TokenAccount(addr solana.PublicKey) (*types.TokenAccount, error) {
	var stored storedTokenAccount
	ok, err := m.KVGet(tokenAccountKey(addr), &stored)
	if err != nil {
		return nil, fmt.Errorf("state: load token account %s: %w", addr, err)
	}
	if !ok {
		return nil, nil
	}
	return &types.TokenAccount{
		Mint:   solana.PublicKeyFromBytes(stored.Mint),
		Owner:  solana.PublicKeyFromBytes(stored.Owner),
		Amount: stored.Amount,
	}, nil
}

// PutTokenAccount writes a token account verbatim. Genesis and tests use it to
// seed balances.
func (m *Manager) PutTokenAccount(addr solana.PublicKey, acct *types.TokenAccount) error {
	if acct == nil {
		return fmt.Errorf("state: token account must not be nil")
	}
	return m.KVPut(tokenAccountKey(addr), &storedTokenAccount{
		Mint:   acct.Mint.Bytes(),
		Owner:  acct.Owner.Bytes(),
		Amount: acct.Amount,
	})
}

// AssociatedTokenAddress returns the canonical token account of owner for mint.
func AssociatedTokenAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("state: associated token address: %w", err)
	}
	return addr, nil
}

// CreateAssociatedTokenAccount creates owner's token account for mint when it
// does not exist yet. Creating an existing account is a no-op.
func (m *Manager) CreateAssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	existing, err := m.TokenAccount(addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if existing != nil {
		if !existing.Mint.Equals(mint) || !existing.Owner.Equals(owner) {
			return solana.PublicKey{}, fmt.Errorf("%w: %s is not the token account of %s for %s", coreerrors.ErrAccountExists, addr, owner, mint)
		}
		return addr, nil
	}
	if info, err := m.Mint(mint); err != nil {
		return solana.PublicKey{}, err
	} else if info == nil {
		return solana.PublicKey{}, fmt.Errorf("%w: mint %s", coreerrors.ErrAccountNotFound, mint)
	}
	if err := m.PutTokenAccount(addr, &types.TokenAccount{Mint: mint, Owner: owner}); err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}

// TokenBalance returns the balance of owner's associated token account for
// mint, zero when the account does not exist.
func (m *Manager) TokenBalance(owner, mint solana.PublicKey) (solana.PublicKey, uint64, error) {
	addr, err := AssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, 0, err
	}
	acct, err := m.TokenAccount(addr)
	if err != nil || acct == nil {
		return addr, 0, err
	}
	return addr, acct.Amount, nil
}

// TokenTransfer moves amount between two token accounts of the same mint. The
// source owner must be authorized by auth, which is either the owner's
// verified signature or a program-derived signer.
func (m *Manager) TokenTransfer(from, to solana.PublicKey, auth crypto.Authorization, amount uint64) error {
	src, err := m.TokenAccount(from)
	if err != nil {
		return err
	}
	if src == nil {
		return fmt.Errorf("%w: token account %s", coreerrors.ErrAccountNotFound, from)
	}
	dst, err := m.TokenAccount(to)
	if err != nil {
		return err
	}
	if dst == nil {
		return fmt.Errorf("%w: token account %s", coreerrors.ErrAccountNotFound, to)
	}
	if !src.Mint.Equals(dst.Mint) {
		return fmt.Errorf("%w: %s holds %s, %s holds %s", coreerrors.ErrMintMismatch, from, src.Mint, to, dst.Mint)
	}
	if auth == nil || !auth.Authorizes(src.Owner) {
		return fmt.Errorf("%w: token account %s is owned by %s", coreerrors.ErrAuthorityMismatch, from, src.Owner)
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: %s holds %d, needs %d", coreerrors.ErrInsufficientBalance, from, src.Amount, amount)
	}
	if from.Equals(to) {
		return nil
	}
	credited, ok := addChecked(dst.Amount, amount)
	if !ok {
		return fmt.Errorf("%w: token account %s", coreerrors.ErrAmountOverflow, to)
	}
	src.Amount -= amount
	dst.Amount = credited
	if err := m.PutTokenAccount(from, src); err != nil {
		return err
	}
	return m.PutTokenAccount(to, dst)
}

// MintTo creates amount new units of mint into dest. auth must cover the
// mint's authority.
func (m *Manager) MintTo(mint, dest solana.PublicKey, auth crypto.Authorization, amount uint64) error {
	info, err := m.Mint(mint)
	if err != nil {
		return err
	}
	if info == nil {
		return fmt.Errorf("%w: mint %s", coreerrors.ErrAccountNotFound, mint)
	}
	if auth == nil || !auth.Authorizes(info.Authority) {
		return fmt.Errorf("%w: mint %s requires %s", coreerrors.ErrAuthorityMismatch, mint, info.Authority)
	}
	acct, err := m.TokenAccount(dest)
	if err != nil {
		return err
	}
	if acct == nil {
		return fmt.Errorf("%w: token account %s", coreerrors.ErrAccountNotFound, dest)
	}
	if !acct.Mint.Equals(mint) {
		return fmt.Errorf("%w: %s holds %s", coreerrors.ErrMintMismatch, dest, acct.Mint)
	}
	supply, ok := addChecked(info.Supply, amount)
	if !ok {
		return fmt.Errorf("%w: supply of %s", coreerrors.ErrAmountOverflow, mint)
	}
	balance, ok := addChecked(acct.Amount, amount)
	if !ok {
		return fmt.Errorf("%w: token account %s", coreerrors.ErrAmountOverflow, dest)
	}
	info.Supply = supply
	acct.Amount = balance
	if err := m.putMint(mint, info); err != nil {
		return err
	}
	return m.PutTokenAccount(dest, acct)
}
