package crypto

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
)

// SaveKeypair writes the key in the solana-keygen JSON format (an array of 64
// byte values). If the parent directory does not exist it will be created with
// 0700 permissions.
func SaveKeypair(path string, key solana.PrivateKey) error {
	if len(key) == 0 {
		return errors.New("crypto: nil private key")
	}
	if path == "" {
		return errors.New("crypto: empty keypair path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	values := make([]int, len(key))
	for i, b := range key {
		values[i] = int(b)
	}
	data, err := json.Marshal(values)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeypair reads a solana-keygen JSON keypair file.
func LoadKeypair(path string) (solana.PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: empty keypair path")
	}
	return solana.PrivateKeyFromSolanaKeygenFile(path)
}
