package common

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrQuotaRequestsExceeded = errors.New("quota requests exceeded")
	ErrQuotaLamportsExceeded = errors.New("quota lamport cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("quota counter overflow")
)

// QuotaNow captures the current quota usage counters for a signer.
type QuotaNow struct {
	ReqCount     uint32
	LamportsUsed uint64
	EpochID      uint64
}

// Quota defines the admission limits enforced per signer and epoch. Zero
// values disable the corresponding limit.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxLamportsPerEpoch uint64
	EpochSeconds        uint32
}

// Enabled reports whether any limit is configured.
func (q Quota) Enabled() bool {
	return q.EpochSeconds > 0 && (q.MaxRequestsPerEpoch > 0 || q.MaxLamportsPerEpoch > 0)
}

// EpochAt maps a unix timestamp to the quota epoch.
func (q Quota) EpochAt(unix int64) uint64 {
	if q.EpochSeconds == 0 || unix <= 0 {
		return 0
	}
	return uint64(unix) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and lamport usage fit
// within the configured quota. The returned QuotaNow reflects the updated
// counters when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addLamports uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addLamports > 0 {
		if next.LamportsUsed > math.MaxUint64-addLamports {
			return prev, ErrQuotaCounterOverflow
		}
		next.LamportsUsed += addLamports
	}
	if q.MaxLamportsPerEpoch > 0 && next.LamportsUsed > q.MaxLamportsPerEpoch {
		return prev, ErrQuotaLamportsExceeded
	}

	return next, nil
}

// QuotaTracker keeps per-signer counters in memory.
type QuotaTracker struct {
	quota    Quota
	mu       sync.Mutex
	counters map[string]QuotaNow
}

func NewQuotaTracker(q Quota) *QuotaTracker {
	return &QuotaTracker{quota: q, counters: make(map[string]QuotaNow)}
}

// Admit charges one request plus lamports against the signer's quota at the
// given time. Counters are left untouched on rejection.
func (t *QuotaTracker) Admit(signer string, unix int64, lamports uint64) error {
	if t == nil || !t.quota.Enabled() {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	next, err := CheckQuota(t.quota, t.quota.EpochAt(unix), t.counters[signer], 1, lamports)
	if err != nil {
		return err
	}
	t.counters[signer] = next
	return nil
}
