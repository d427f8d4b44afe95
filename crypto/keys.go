package crypto

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// GenerateKeypair creates a fresh ed25519 wallet keypair.
func GenerateKeypair() (solana.PrivateKey, error) {
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	return key, nil
}

// ParsePublicKey decodes a base58 address, tolerating surrounding whitespace.
func ParsePublicKey(value string) (solana.PublicKey, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return solana.PublicKey{}, fmt.Errorf("crypto: address required")
	}
	key, err := solana.PublicKeyFromBase58(trimmed)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("crypto: invalid address %q: %w", trimmed, err)
	}
	return key, nil
}
