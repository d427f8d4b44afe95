package stake

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"dlanstake/crypto"
)

// RecordAddress derives the storage address of a participant's claim record.
func RecordAddress(programID solana.PublicKey, track Track, participant solana.PublicKey) (solana.PublicKey, uint8, error) {
	if !track.Valid() {
		return solana.PublicKey{}, 0, ErrInvalidTrack
	}
	addr, bump, err := crypto.FindProgramAddress(programID, []byte(track.Seed()), participant.Bytes())
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("stake: derive %s record: %w", track, err)
	}
	return addr, bump, nil
}

// Authorities returns the canonical mint and vault authority addresses.
func Authorities(programID solana.PublicKey) (mint solana.PublicKey, mintBump uint8, vault solana.PublicKey, vaultBump uint8, err error) {
	mint, mintBump, err = crypto.FindProgramAddress(programID, []byte(crypto.MintAuthoritySeed))
	if err != nil {
		return
	}
	vault, vaultBump, err = crypto.FindProgramAddress(programID, []byte(crypto.VaultAuthoritySeed))
	return
}
