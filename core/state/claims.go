package state

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"dlanstake/native/stake"
)

// storedClaimRecord keeps the watermark's two's complement bits since RLP
// has no signed integers.
type storedClaimRecord struct {
	Watermark uint64
}

// ClaimRecordGet loads the claim record stored at addr. Absent records are
// reported with ok=false and a zero record.
func (m *Manager) ClaimRecordGet(addr solana.PublicKey) (*stake.Record, bool, error) {
	var stored storedClaimRecord
	ok, err := m.KVGet(claimRecordKey(addr), &stored)
	if err != nil {
		return nil, false, fmt.Errorf("state: load claim record %s: %w", addr, err)
	}
	if !ok {
		return &stake.Record{}, false, nil
	}
	return &stake.Record{Watermark: int64(stored.Watermark)}, true, nil
}

// ClaimRecordPut persists rec at addr.
func (m *Manager) ClaimRecordPut(addr solana.PublicKey, rec *stake.Record) error {
	if rec == nil {
		return fmt.Errorf("state: claim record must not be nil")
	}
	return m.KVPut(claimRecordKey(addr), &storedClaimRecord{Watermark: uint64(rec.Watermark)})
}
