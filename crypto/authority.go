package crypto

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	coreerrors "dlanstake/core/errors"
)

// Seed labels of the two program-derived signing authorities.
const (
	MintAuthoritySeed  = "mint-auth"
	VaultAuthoritySeed = "vault-auth"
)

// Authorization proves the holder may act for an address. Host primitives
// accept a transfer or mint only when the authorization covers the account's
// owner or the mint's authority.
type Authorization interface {
	Authorizes(addr solana.PublicKey) bool
}

// ProgramSigner is a key-less authority: the address it vouches for is
// recomputed from the program id, the seeds and the bump. No private key
// exists for it.
type ProgramSigner struct {
	address solana.PublicKey
}

// NewProgramSigner rebuilds the derived address from seeds plus bump. A bump
// that lands on the curve is rejected; a non-canonical bump yields a signer
// for a different address, which host checks then refuse.
func NewProgramSigner(programID solana.PublicKey, bump uint8, seeds ...[]byte) (ProgramSigner, error) {
	all := make([][]byte, 0, len(seeds)+1)
	for _, seed := range seeds {
		all = append(all, append([]byte(nil), seed...))
	}
	all = append(all, []byte{bump})
	addr, err := solana.CreateProgramAddress(all, programID)
	if err != nil {
		return ProgramSigner{}, fmt.Errorf("%w: derive signer: %v", coreerrors.ErrAuthorityMismatch, err)
	}
	return ProgramSigner{address: addr}, nil
}

// Address returns the derived address the signer speaks for.
func (s ProgramSigner) Address() solana.PublicKey { return s.address }

func (s ProgramSigner) Authorizes(addr solana.PublicKey) bool {
	return !s.address.IsZero() && s.address.Equals(addr)
}

// FindProgramAddress returns the canonical derived address and its bump.
func FindProgramAddress(programID solana.PublicKey, seeds ...[]byte) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress(seeds, programID)
}

// ResolveAuthority is the host-side precondition run before a program body:
// the declared authority account must equal the canonical derivation for the
// label. The canonical bump is returned for the program to sign with.
func ResolveAuthority(programID, declared solana.PublicKey, label string) (uint8, error) {
	addr, bump, err := FindProgramAddress(programID, []byte(label))
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", coreerrors.ErrAuthorityMismatch, label, err)
	}
	if !addr.Equals(declared) {
		return 0, fmt.Errorf("%w: %s expected %s got %s", coreerrors.ErrAuthorityMismatch, label, addr, declared)
	}
	return bump, nil
}

// KeySigner is the capability produced by a verified wallet signature. It can
// only be obtained through VerifySignature.
type KeySigner struct {
	key      solana.PublicKey
	verified bool
}

// VerifySignature checks an ed25519 signature over message.
func VerifySignature(key solana.PublicKey, message []byte, sig solana.Signature) (KeySigner, error) {
	if key.IsZero() || !sig.Verify(key, message) {
		return KeySigner{}, coreerrors.ErrInvalidSignature
	}
	return KeySigner{key: key, verified: true}, nil
}

// Key returns the verified wallet address.
func (k KeySigner) Key() solana.PublicKey { return k.key }

func (k KeySigner) Authorizes(addr solana.PublicKey) bool {
	return k.verified && k.key.Equals(addr)
}
