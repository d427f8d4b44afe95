package state

import (
	"errors"
	"fmt"
	"reflect"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"dlanstake/storage"
)

// Manager reads and writes ledger state through a key/value surface. The
// executor hands it a storage transaction so every write made while an
// instruction runs is committed or discarded together. Queries use the
// database directly.
type Manager struct {
	kv storage.KV
}

// NewManager creates a state manager operating on the provided store.
func NewManager(kv storage.KV) *Manager {
	return &Manager{kv: kv}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) get(hashed []byte) ([]byte, error) {
	if m == nil || m.kv == nil {
		return nil, fmt.Errorf("state: manager unavailable")
	}
	data, err := m.kv.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return data, err
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the store.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	if m == nil || m.kv == nil {
		return fmt.Errorf("state: manager unavailable")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.kv.Put(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.get(kvKey(key))
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}
