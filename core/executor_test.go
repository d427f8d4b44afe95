package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	coreerrors "dlanstake/core/errors"
	"dlanstake/core/events"
	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/native/common"
	"dlanstake/native/stake"
	"dlanstake/storage"
)

type collectEmitter struct {
	evts []events.Event
}

func (c *collectEmitter) Emit(evt events.Event) { c.evts = append(c.evts, evt) }

type memorySink struct {
	mu       sync.Mutex
	receipts []*types.Receipt
}

func (m *memorySink) Record(_ context.Context, r *types.Receipt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

type harness struct {
	exec     *Executor
	db       *storage.LevelDB
	clock    *clockwork.FakeClock
	emitter  *collectEmitter
	sink     *memorySink
	user     solana.PrivateKey
	admin    solana.PublicKey
	feeOwner solana.PublicKey
	dlanMint solana.PublicKey
	usdtMint solana.PublicKey
	auth     *Authorities
	nonce    uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	h := &harness{
		db:       db,
		clock:    clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0)),
		emitter:  &collectEmitter{},
		sink:     &memorySink{},
		admin:    solana.NewWallet().PublicKey(),
		feeOwner: solana.NewWallet().PublicKey(),
		dlanMint: solana.NewWallet().PublicKey(),
		usdtMint: solana.NewWallet().PublicKey(),
	}
	var err error
	h.user, err = solana.NewRandomPrivateKey()
	require.NoError(t, err)

	h.exec, err = NewExecutor(ExecutorConfig{
		ProgramID: stake.DefaultProgramID,
		DB:        db,
		Clock:     h.clock,
		Emitter:   h.emitter,
		Receipts:  h.sink,
	})
	require.NoError(t, err)
	h.auth, err = h.exec.Authorities()
	require.NoError(t, err)

	mgr := state.NewManager(db)
	require.NoError(t, mgr.RegisterMint(h.dlanMint, &types.Mint{Authority: h.auth.MintAuthority, Decimals: 9}))
	require.NoError(t, mgr.RegisterMint(h.usdtMint, &types.Mint{Authority: h.admin, Decimals: 6}))
	vault, err := mgr.CreateAssociatedTokenAccount(h.auth.VaultAuthority, h.usdtMint)
	require.NoError(t, err)
	require.NoError(t, mgr.PutTokenAccount(vault, &types.TokenAccount{Mint: h.usdtMint, Owner: h.auth.VaultAuthority, Amount: 1_000_000}))
	require.NoError(t, mgr.SetLamports(h.user.PublicKey(), 5_000_000_000))
	return h
}

func (h *harness) accounts(t *testing.T) types.InstructionAccounts {
	t.Helper()
	vault, err := state.AssociatedTokenAddress(h.auth.VaultAuthority, h.usdtMint)
	require.NoError(t, err)
	return types.InstructionAccounts{
		Admin:          h.admin,
		Mint:           h.dlanMint,
		MintAuthority:  h.auth.MintAuthority,
		VaultToken:     vault,
		VaultAuthority: h.auth.VaultAuthority,
		FeeOwner:       h.feeOwner,
		USDTMint:       h.usdtMint,
	}
}

func (h *harness) sign(t *testing.T, kind types.InstructionKind, args types.InstructionArgs) *types.SignedInstruction {
	t.Helper()
	h.nonce++
	ix := &types.Instruction{
		Kind:      kind,
		Authority: h.user.PublicKey(),
		Accounts:  h.accounts(t),
		Args:      args,
		Nonce:     h.nonce,
	}
	signed, err := ix.Sign(h.user)
	require.NoError(t, err)
	return signed
}

func (h *harness) submit(t *testing.T, kind types.InstructionKind, args types.InstructionArgs) (*types.Receipt, error) {
	t.Helper()
	return h.exec.Submit(context.Background(), h.sign(t, kind, args))
}

func (h *harness) usdt(t *testing.T, owner solana.PublicKey) uint64 {
	t.Helper()
	bal, err := h.exec.TokenBalance(owner, h.usdtMint)
	require.NoError(t, err)
	return bal.Amount
}

func TestSubmitStakeAndMintPriced(t *testing.T) {
	h := newHarness(t)
	receipt, err := h.submit(t, types.KindStakeAndMintPriced, types.InstructionArgs{SolLamports: 1_000_000_000, MintAmount: 42})
	require.NoError(t, err)
	require.True(t, receipt.Success)
	require.Len(t, receipt.Events, 1)
	require.Equal(t, events.TypeStakeMinted, receipt.Events[0].Type)

	lamports, err := h.exec.Lamports(h.admin)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_000), lamports)
	bal, err := h.exec.TokenBalance(h.user.PublicKey(), h.dlanMint)
	require.NoError(t, err)
	require.Equal(t, uint64(42), bal.Amount)
	mint, err := h.exec.Mint(h.dlanMint)
	require.NoError(t, err)
	require.Equal(t, uint64(42), mint.Supply)

	require.Len(t, h.emitter.evts, 1)
	require.Len(t, h.sink.receipts, 1)
}

func TestSubmitTimedClaimLifecycle(t *testing.T) {
	h := newHarness(t)
	start := h.clock.Now().Unix()

	receipt, err := h.submit(t, types.KindInvestClaimSplit, types.InstructionArgs{UserAmount: 900, FeeAmount: 100, Days: 1})
	require.NoError(t, err)
	require.Equal(t, start, receipt.Watermark)
	require.Equal(t, uint64(900), h.usdt(t, h.user.PublicKey()))
	require.Equal(t, uint64(100), h.usdt(t, h.feeOwner))

	receipt, err = h.submit(t, types.KindInvestClaimSplit, types.InstructionArgs{UserAmount: 900, FeeAmount: 100, Days: 1})
	require.ErrorIs(t, err, stake.ErrInsufficientElapsedDays)
	require.Equal(t, "InsufficientElapsedDays", receipt.ErrorKind)
	require.False(t, receipt.Success)

	h.clock.Advance(10*24*time.Hour + 40*time.Minute)
	status, err := h.exec.ClaimStatus(stake.TrackStandard, h.user.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(10), status.ElapsedDays)

	receipt, err = h.submit(t, types.KindInvestClaimSplit, types.InstructionArgs{UserAmount: 10, Days: 3})
	require.NoError(t, err)
	require.Equal(t, start+3*stake.SecondsPerDay, receipt.Watermark)

	status, err = h.exec.ClaimStatus(stake.TrackStandard, h.user.PublicKey())
	require.NoError(t, err)
	require.Equal(t, uint64(7), status.ElapsedDays)

	vip, err := h.exec.ClaimStatus(stake.TrackPriority, h.user.PublicKey())
	require.NoError(t, err)
	require.False(t, vip.Initialized)
	require.Equal(t, uint64(1), vip.ElapsedDays)
}

func TestSubmitFailedTransferRollsBackWatermark(t *testing.T) {
	h := newHarness(t)
	_, err := h.submit(t, types.KindVIPClaimSplitTimed, types.InstructionArgs{UserAmount: 1, Days: 1})
	require.NoError(t, err)
	before, err := h.exec.ClaimStatus(stake.TrackPriority, h.user.PublicKey())
	require.NoError(t, err)
	emitted := len(h.emitter.evts)

	h.clock.Advance(48 * time.Hour)
	receipt, err := h.submit(t, types.KindVIPClaimSplitTimed, types.InstructionArgs{UserAmount: 999_999, FeeAmount: 2, Days: 2})
	require.ErrorIs(t, err, coreerrors.ErrInsufficientBalance)
	require.Equal(t, "InsufficientBalance", receipt.ErrorKind)
	require.Empty(t, receipt.Events)

	after, err := h.exec.ClaimStatus(stake.TrackPriority, h.user.PublicKey())
	require.NoError(t, err)
	require.Equal(t, before.Watermark, after.Watermark)
	require.Equal(t, uint64(2), after.ElapsedDays)
	require.Equal(t, uint64(1), h.usdt(t, h.user.PublicKey()))
	require.Len(t, h.emitter.evts, emitted)
}

func TestSubmitFeeOnlyLeg(t *testing.T) {
	h := newHarness(t)
	_, err := h.submit(t, types.KindInvestClaimSplit, types.InstructionArgs{FeeAmount: 500, Days: 1})
	require.NoError(t, err)
	require.Zero(t, h.usdt(t, h.user.PublicKey()))
	require.Equal(t, uint64(500), h.usdt(t, h.feeOwner))
}

func TestSubmitRejectsForeignAuthority(t *testing.T) {
	h := newHarness(t)
	h.nonce++
	accts := h.accounts(t)
	accts.VaultAuthority = h.user.PublicKey()
	ix := &types.Instruction{
		Kind:      types.KindClaimSplit,
		Authority: h.user.PublicKey(),
		Accounts:  accts,
		Args:      types.InstructionArgs{UserAmount: 1},
		Nonce:     h.nonce,
	}
	signed, err := ix.Sign(h.user)
	require.NoError(t, err)
	receipt, err := h.exec.Submit(context.Background(), signed)
	require.ErrorIs(t, err, coreerrors.ErrAuthorityMismatch)
	require.Equal(t, "AuthorityMismatch", receipt.ErrorKind)
	require.Zero(t, h.usdt(t, h.user.PublicKey()))
}

func TestSubmitRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	ix := &types.Instruction{
		Kind:      types.KindStakeAndMint,
		Authority: h.user.PublicKey(),
		Accounts:  h.accounts(t),
		Args:      types.InstructionArgs{SolLamports: 10},
	}
	signed, err := ix.Sign(h.user)
	require.NoError(t, err)
	signed.Instruction.Args.SolLamports = 10_000

	receipt, err := h.exec.Submit(context.Background(), signed)
	require.ErrorIs(t, err, coreerrors.ErrInvalidSignature)
	require.Nil(t, receipt)
	require.Empty(t, h.sink.receipts, "forged envelopes leave no receipt")
	lamports, err := h.exec.Lamports(h.admin)
	require.NoError(t, err)
	require.Zero(t, lamports)

	forged := h.sign(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 10})
	forged.Signature[0] ^= 0xff
	_, err = Verify(forged)
	require.ErrorIs(t, err, coreerrors.ErrInvalidSignature)
}

func TestSubmitConcurrentClaimsSerialize(t *testing.T) {
	h := newHarness(t)
	const racers = 8
	claims := make([]*types.SignedInstruction, racers)
	for i := range claims {
		claims[i] = h.sign(t, types.KindInvestClaimSplit, types.InstructionArgs{UserAmount: 10, FeeAmount: 1, Days: 1})
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  []error
	)
	for _, signed := range claims {
		wg.Add(1)
		go func(signed *types.SignedInstruction) {
			defer wg.Done()
			_, err := h.exec.Submit(context.Background(), signed)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			rejected = append(rejected, err)
		}(signed)
	}
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Len(t, rejected, racers-1)
	for _, err := range rejected {
		require.ErrorIs(t, err, stake.ErrInsufficientElapsedDays)
	}
	require.Equal(t, uint64(10), h.usdt(t, h.user.PublicKey()))
	require.Equal(t, uint64(1), h.usdt(t, h.feeOwner))
	require.Equal(t, uint64(1_000_000-11), h.usdt(t, h.auth.VaultAuthority))
	require.Len(t, h.sink.receipts, racers)
}

func TestSubmitPausedClaims(t *testing.T) {
	h := newHarness(t)
	h.exec.SetPauses(common.Pauses{common.ModuleClaims: true})
	receipt, err := h.submit(t, types.KindInvestClaimSplit, types.InstructionArgs{UserAmount: 1, Days: 1})
	require.ErrorIs(t, err, common.ErrModulePaused)
	require.Equal(t, "ModulePaused", receipt.ErrorKind)

	status, err := h.exec.ClaimStatus(stake.TrackStandard, h.user.PublicKey())
	require.NoError(t, err)
	require.False(t, status.Initialized)
}

func TestSubmitRejectsUnknownKind(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec.Submit(context.Background(), &types.SignedInstruction{Instruction: types.Instruction{Kind: 99}})
	require.ErrorIs(t, err, ErrInvalidInstruction)
	require.Empty(t, h.sink.receipts)
}
