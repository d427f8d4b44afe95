package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"dlanstake/core/events"
	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/crypto"
	"dlanstake/native/common"
	"dlanstake/native/stake"
	"dlanstake/observability"
	telemetry "dlanstake/observability/otel"
	"dlanstake/storage"
)

var (
	// ErrInvalidInstruction flags envelopes rejected before execution.
	ErrInvalidInstruction = errors.New("core: invalid instruction")
)

// ReceiptSink persists receipts after execution.
type ReceiptSink interface {
	Record(ctx context.Context, receipt *types.Receipt) error
}

// ExecutorConfig wires the host.
type ExecutorConfig struct {
	ProgramID solana.PublicKey
	DB        storage.Database
	Clock     clockwork.Clock
	Pauses    common.PauseView
	// Emitter receives events of committed instructions only.
	Emitter  events.Emitter
	Receipts ReceiptSink
	Logger   *slog.Logger
}

// Executor is the execution host around the staking program. Each submitted
// instruction runs against its own storage transaction: the signer is
// verified, derived authorities are resolved, the entry point runs with a
// fixed clock reading, and every write is committed together or discarded.
type Executor struct {
	programID solana.PublicKey
	db        storage.Database
	clock     clockwork.Clock
	pauses    common.PauseView
	emitter   events.Emitter
	receipts  ReceiptSink
	logger    *slog.Logger
	tracer    trace.Tracer

	mu sync.Mutex
}

func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("core: database must not be nil")
	}
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = stake.DefaultProgramID
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Emitter == nil {
		cfg.Emitter = events.NoopEmitter{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		programID: cfg.ProgramID,
		db:        cfg.DB,
		clock:     cfg.Clock,
		pauses:    cfg.Pauses,
		emitter:   cfg.Emitter,
		receipts:  cfg.Receipts,
		logger:    cfg.Logger.With(slog.String("component", "executor")),
		tracer:    telemetry.Tracer(),
	}, nil
}

// ProgramID returns the program the executor hosts.
func (x *Executor) ProgramID() solana.PublicKey { return x.programID }

// SetPauses swaps the pause view at runtime.
func (x *Executor) SetPauses(p common.PauseView) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.pauses = p
}

// Submit executes one signed instruction. A receipt is returned for every
// instruction that reached execution, including rejected ones; err carries
// the rejection. Envelopes whose signature does not verify never reach
// execution and leave no receipt.
func (x *Executor) Submit(ctx context.Context, signed *types.SignedInstruction) (*types.Receipt, error) {
	if signed == nil {
		return nil, fmt.Errorf("%w: empty envelope", ErrInvalidInstruction)
	}
	ix := signed.Instruction
	if !ix.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidInstruction, ix.Kind)
	}
	digest, err := ix.Digest()
	if err != nil {
		return nil, fmt.Errorf("%w: encode: %v", ErrInvalidInstruction, err)
	}
	signer, err := Verify(signed)
	if err != nil {
		x.logger.Debug("unsigned instruction dropped",
			slog.String("kind", ix.Kind.String()),
			slog.String("authority", ix.Authority.String()),
			slog.String("digest", digest))
		return nil, err
	}

	ctx, span := x.tracer.Start(ctx, "program."+ix.Kind.String(), trace.WithAttributes(
		attribute.String("authority", ix.Authority.String()),
		attribute.String("digest", digest),
	))
	defer span.End()

	start := x.clock.Now()
	receipt := &types.Receipt{
		ID:         uuid.NewString(),
		Digest:     digest,
		Kind:       ix.Kind,
		Authority:  ix.Authority,
		ExecutedAt: start.UTC(),
	}

	watermark, evts, execErr := x.execute(signer, ix, start.Unix())
	receipt.Success = execErr == nil
	if execErr != nil {
		receipt.ErrorKind = stake.Kind(execErr)
		receipt.Error = execErr.Error()
		span.RecordError(execErr)
		span.SetStatus(codes.Error, receipt.ErrorKind)
	} else {
		receipt.Watermark = watermark
		receipt.Events = events.Render(evts)
		span.SetStatus(codes.Ok, "committed")
	}

	observability.Program().ObserveInstruction(ix.Kind.String(), receipt.ErrorKind, sinceOrZero(x.clock.Since(start)))
	if execErr == nil {
		x.recordOutcome(ix)
		x.logger.Debug("instruction committed",
			slog.String("kind", ix.Kind.String()),
			slog.String("authority", ix.Authority.String()),
			slog.String("digest", digest),
			slog.Int64("watermark", watermark))
	} else {
		x.logger.Warn("instruction rejected",
			slog.String("kind", ix.Kind.String()),
			slog.String("authority", ix.Authority.String()),
			slog.String("digest", digest),
			slog.String("reason", receipt.ErrorKind),
			slog.Any("error", execErr))
	}

	if x.receipts != nil {
		if err := x.receipts.Record(ctx, receipt); err != nil {
			x.logger.Error("persist receipt failed", slog.String("digest", digest), slog.Any("error", err))
		}
	}
	return receipt, execErr
}

// Verify checks the authority's signature over the canonical instruction
// bytes.
func Verify(signed *types.SignedInstruction) (crypto.KeySigner, error) {
	raw, err := signed.Instruction.Bytes()
	if err != nil {
		return crypto.KeySigner{}, fmt.Errorf("%w: encode: %v", ErrInvalidInstruction, err)
	}
	return crypto.VerifySignature(signed.Instruction.Authority, raw, signed.Signature)
}

// execute runs the host preconditions and the entry point inside one storage
// transaction. Events are flushed to the emitter only after commit.
func (x *Executor) execute(signer crypto.KeySigner, ix types.Instruction, now int64) (int64, []events.Event, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	tx, err := x.db.Begin()
	if err != nil {
		return 0, nil, err
	}
	defer tx.Discard()

	buffer := &events.Buffer{}
	engine := stake.NewEngine(x.programID)
	engine.SetState(state.NewManager(tx))
	engine.SetEmitter(buffer)
	engine.SetPauses(x.pauses)
	engine.SetNowFunc(func() int64 { return now })

	watermark, err := x.dispatch(engine, signer, ix)
	if err != nil {
		return 0, nil, err
	}
	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("core: commit: %w", err)
	}
	evts := buffer.Events()
	buffer.Flush(x.emitter)
	for _, evt := range evts {
		observability.Events().RecordEvent(evt.EventType())
	}
	return watermark, evts, nil
}

func (x *Executor) dispatch(engine *stake.Engine, signer crypto.KeySigner, ix types.Instruction) (int64, error) {
	args := ix.Args
	switch ix.Kind {
	case types.KindStakeAndMint, types.KindStakeAndMintPriced:
		bump, err := crypto.ResolveAuthority(x.programID, ix.Accounts.MintAuthority, crypto.MintAuthoritySeed)
		if err != nil {
			return 0, err
		}
		accts := stake.MintAccounts{Admin: ix.Accounts.Admin, Mint: ix.Accounts.Mint, MintAuthorityBump: bump}
		if ix.Kind == types.KindStakeAndMint {
			return 0, engine.StakeAndMint(signer, accts, args.SolLamports)
		}
		return 0, engine.StakeAndMintPriced(signer, accts, args.SolLamports, args.MintAmount)
	}

	bump, err := crypto.ResolveAuthority(x.programID, ix.Accounts.VaultAuthority, crypto.VaultAuthoritySeed)
	if err != nil {
		return 0, err
	}
	accts := stake.SplitAccounts{
		USDTMint:           ix.Accounts.USDTMint,
		VaultToken:         ix.Accounts.VaultToken,
		VaultAuthorityBump: bump,
		FeeOwner:           ix.Accounts.FeeOwner,
	}
	var res *stake.ClaimResult
	switch ix.Kind {
	case types.KindClaimSplit:
		return 0, engine.ClaimUSDTSplit(signer, accts, args.UserAmount, args.FeeAmount)
	case types.KindInvestClaimSplit:
		res, err = engine.InvestClaimSplit(signer, accts, args.UserAmount, args.FeeAmount, args.Days)
	case types.KindVIPClaimSplitTimed:
		res, err = engine.VIPClaimSplitTimed(signer, accts, args.UserAmount, args.FeeAmount, args.Days)
	default:
		return 0, fmt.Errorf("%w: unknown kind %d", ErrInvalidInstruction, ix.Kind)
	}
	if err != nil {
		return 0, err
	}
	return res.Watermark, nil
}

func (x *Executor) recordOutcome(ix types.Instruction) {
	metrics := observability.Program()
	switch ix.Kind {
	case types.KindStakeAndMint:
		metrics.RecordDeposit(ix.Args.SolLamports, ix.Args.SolLamports)
	case types.KindStakeAndMintPriced:
		metrics.RecordDeposit(ix.Args.SolLamports, ix.Args.MintAmount)
	case types.KindClaimSplit:
		metrics.RecordClaim("legacy", 0, ix.Args.UserAmount, ix.Args.FeeAmount)
	case types.KindInvestClaimSplit:
		metrics.RecordClaim(stake.TrackStandard.String(), ix.Args.Days, ix.Args.UserAmount, ix.Args.FeeAmount)
	case types.KindVIPClaimSplitTimed:
		metrics.RecordClaim(stake.TrackPriority.String(), ix.Args.Days, ix.Args.UserAmount, ix.Args.FeeAmount)
	}
}

// sinceOrZero guards metrics against a fake clock moved backwards.
func sinceOrZero(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
