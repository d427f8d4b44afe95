package stake

import (
	"time"

	"github.com/gagliardetto/solana-go"

	"dlanstake/core/events"
	"dlanstake/crypto"
	"dlanstake/native/common"
)

// engineState is the slice of the host the program runs against. All calls
// made during one entry point land in the same host transaction.
type engineState interface {
	TransferLamports(from, to solana.PublicKey, auth crypto.Authorization, amount uint64) error
	CreateAssociatedTokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error)
	TokenTransfer(from, to solana.PublicKey, auth crypto.Authorization, amount uint64) error
	MintTo(mint, dest solana.PublicKey, auth crypto.Authorization, amount uint64) error
	ClaimRecordGet(addr solana.PublicKey) (*Record, bool, error)
	ClaimRecordPut(addr solana.PublicKey, rec *Record) error
}

// Engine is the staking program. It owns no storage; the host hands it a
// transaction-scoped state per invocation.
type Engine struct {
	programID solana.PublicKey
	state     engineState
	emitter   events.Emitter
	pauses    common.PauseView
	nowFn     func() int64
}

// NewEngine constructs the program bound to programID.
func NewEngine(programID solana.PublicKey) *Engine {
	return &Engine{
		programID: programID,
		emitter:   events.NoopEmitter{},
		nowFn: func() int64 {
			return time.Now().Unix()
		},
	}
}

// ProgramID returns the id authorities and records are derived from.
func (e *Engine) ProgramID() solana.PublicKey { return e.programID }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses wires the pause view consulted before every entry point.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || evt == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Status computes the claimable window for a participant without mutating
// anything.
func (e *Engine) Status(track Track, participant solana.PublicKey) (*Status, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	addr, _, err := RecordAddress(e.programID, track, participant)
	if err != nil {
		return nil, err
	}
	rec, _, err := e.state.ClaimRecordGet(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &Record{}
	}
	now := e.now()
	return &Status{
		Track:       track.String(),
		Participant: participant,
		Record:      addr,
		Watermark:   rec.Watermark,
		Initialized: rec.Initialized(),
		Window:      Available(now, rec),
		Now:         now,
	}, nil
}
