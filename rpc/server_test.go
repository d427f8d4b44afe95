package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"dlanstake/core"
	"dlanstake/core/events"
	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/native/common"
	"dlanstake/native/stake"
	"dlanstake/rpc/middleware"
	"dlanstake/storage"
	"dlanstake/storage/receipts"
)

type testEnv struct {
	server   *Server
	http     *httptest.Server
	exec     *core.Executor
	clock    *clockwork.FakeClock
	user     solana.PrivateKey
	accounts types.InstructionAccounts
	nonce    uint64
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	store, err := receipts.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	stream := events.NewBroadcaster()
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))
	exec, err := core.NewExecutor(core.ExecutorConfig{
		ProgramID: stake.DefaultProgramID,
		DB:        db,
		Clock:     clock,
		Emitter:   stream,
		Receipts:  store,
	})
	require.NoError(t, err)
	auth, err := exec.Authorities()
	require.NoError(t, err)

	admin := solana.NewWallet().PublicKey()
	dlanMint := solana.NewWallet().PublicKey()
	usdtMint := solana.NewWallet().PublicKey()
	user, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	mgr := state.NewManager(db)
	require.NoError(t, mgr.RegisterMint(dlanMint, &types.Mint{Authority: auth.MintAuthority, Decimals: 9}))
	require.NoError(t, mgr.RegisterMint(usdtMint, &types.Mint{Authority: admin, Decimals: 6}))
	vault, err := mgr.CreateAssociatedTokenAccount(auth.VaultAuthority, usdtMint)
	require.NoError(t, err)
	require.NoError(t, mgr.PutTokenAccount(vault, &types.TokenAccount{Mint: usdtMint, Owner: auth.VaultAuthority, Amount: 1_000_000}))
	require.NoError(t, mgr.SetLamports(user.PublicKey(), 5_000_000_000))

	srv := NewServer(exec, cfg, nil)
	srv.SetReceipts(store)
	srv.SetStream(stream)
	srv.SetNowFunc(clock.Now)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{
		server: srv,
		http:   ts,
		exec:   exec,
		clock:  clock,
		user:   user,
		accounts: types.InstructionAccounts{
			Admin:          admin,
			Mint:           dlanMint,
			MintAuthority:  auth.MintAuthority,
			VaultToken:     vault,
			VaultAuthority: auth.VaultAuthority,
			FeeOwner:       solana.NewWallet().PublicKey(),
			USDTMint:       usdtMint,
		},
	}
}

type reply struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (e *testEnv) call(t *testing.T, header http.Header, method string, params ...interface{}) (int, reply) {
	t.Helper()
	raw := make([]json.RawMessage, 0, len(params))
	for _, p := range params {
		b, err := json.Marshal(p)
		require.NoError(t, err)
		raw = append(raw, b)
	}
	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method, "params": raw})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, e.http.URL+"/rpc", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (e *testEnv) signed(t *testing.T, kind types.InstructionKind, args types.InstructionArgs) *types.SignedInstruction {
	t.Helper()
	e.nonce++
	ix := &types.Instruction{Kind: kind, Authority: e.user.PublicKey(), Accounts: e.accounts, Args: args, Nonce: e.nonce}
	signed, err := ix.Sign(e.user)
	require.NoError(t, err)
	return signed
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, Config{})
	resp, err := http.Get(env.http.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(middleware.RequestIDHeader))
}

func TestSendInstructionCommits(t *testing.T) {
	env := newTestEnv(t, Config{})
	status, out := env.call(t, nil, "stake_sendInstruction",
		env.signed(t, types.KindStakeAndMintPriced, types.InstructionArgs{SolLamports: 1_000_000_000, MintAmount: 42}))
	require.Equal(t, http.StatusOK, status)
	require.Nil(t, out.Error)

	var receipt types.Receipt
	require.NoError(t, json.Unmarshal(out.Result, &receipt))
	require.True(t, receipt.Success)
	require.Equal(t, types.KindStakeAndMintPriced, receipt.Kind)

	_, out = env.call(t, nil, "stake_getTokenBalance", tokenBalanceParams{
		Owner: env.user.PublicKey().String(),
		Mint:  env.accounts.Mint.String(),
	})
	require.Nil(t, out.Error)
	var balance core.TokenBalance
	require.NoError(t, json.Unmarshal(out.Result, &balance))
	require.Equal(t, uint64(42), balance.Amount)

	_, out = env.call(t, nil, "stake_getLamports", addressParams{Address: env.accounts.Admin.String()})
	require.Nil(t, out.Error)
	var account types.Account
	require.NoError(t, json.Unmarshal(out.Result, &account))
	require.Equal(t, uint64(1_000_000_000), account.Lamports)

	_, out = env.call(t, nil, "stake_listMints")
	require.Nil(t, out.Error)
	var mints []core.MintEntry
	require.NoError(t, json.Unmarshal(out.Result, &mints))
	require.Len(t, mints, 2)
	require.Equal(t, env.accounts.Mint, mints[0].Address)
	require.Equal(t, uint64(42), mints[0].Supply)
	require.Equal(t, env.accounts.USDTMint, mints[1].Address)
}

func TestSendInstructionRejectsDuplicateDigest(t *testing.T) {
	env := newTestEnv(t, Config{})
	signed := env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 10})
	_, out := env.call(t, nil, "stake_sendInstruction", signed)
	require.Nil(t, out.Error)

	status, out := env.call(t, nil, "stake_sendInstruction", signed)
	require.Equal(t, http.StatusConflict, status)
	require.NotNil(t, out.Error)
	require.Equal(t, codeDuplicate, out.Error.Code)

	env.clock.Advance(3 * time.Minute)
	_, out = env.call(t, nil, "stake_sendInstruction", signed)
	require.Nil(t, out.Error, "digest window expired")
}

func TestTimedClaimRejectionCarriesKind(t *testing.T) {
	env := newTestEnv(t, Config{})
	claim := types.InstructionArgs{UserAmount: 100, FeeAmount: 5, Days: 1}

	_, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindVIPClaimSplitTimed, claim))
	require.Nil(t, out.Error)

	status, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindVIPClaimSplitTimed, claim))
	require.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, out.Error)
	require.Equal(t, codeProgramRejection, out.Error.Code)
	data, ok := out.Error.Data.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "InsufficientElapsedDays", data["kind"])

	_, out = env.call(t, nil, "stake_getClaimStatus", claimStatusParams{
		Track:       "priority",
		Participant: env.user.PublicKey().String(),
	})
	require.Nil(t, out.Error)
	var st stake.Status
	require.NoError(t, json.Unmarshal(out.Result, &st))
	require.True(t, st.Initialized)
	require.Equal(t, int64(1_700_000_000), st.Watermark)
	require.Equal(t, uint64(0), st.ElapsedDays)
	require.Equal(t, int64(1_700_000_000)+stake.SecondsPerDay, st.NextUnlock)
}

func TestInvalidRequests(t *testing.T) {
	env := newTestEnv(t, Config{})

	_, out := env.call(t, nil, "stake_unknown")
	require.Equal(t, codeMethodNotFound, out.Error.Code)

	_, out = env.call(t, nil, "stake_getClaimStatus", claimStatusParams{Track: "gold", Participant: env.user.PublicKey().String()})
	require.Equal(t, codeInvalidParams, out.Error.Code)

	_, out = env.call(t, nil, "stake_getLamports", addressParams{Address: "not-base58!"})
	require.Equal(t, codeInvalidParams, out.Error.Code)

	_, out = env.call(t, nil, "stake_getReceipts", receiptsParams{})
	require.Equal(t, codeInvalidParams, out.Error.Code)

	resp, err := http.Post(env.http.URL+"/rpc", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	var parsed reply
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	require.Equal(t, codeParseError, parsed.Error.Code)
}

func TestSendInstructionRequiresToken(t *testing.T) {
	secret := "0123456789abcdef0123456789abcdef"
	env := newTestEnv(t, Config{Auth: middleware.AuthConfig{HMACSecret: secret}})
	signed := env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 10})

	status, out := env.call(t, nil, "stake_sendInstruction", signed)
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, codeUnauthorized, out.Error.Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	_, out = env.call(t, http.Header{"Authorization": []string{"Bearer " + token}}, "stake_sendInstruction", signed)
	require.Nil(t, out.Error)

	_, out = env.call(t, nil, "stake_getAuthorities")
	require.Nil(t, out.Error, "queries stay public")
}

func TestSignerQuota(t *testing.T) {
	env := newTestEnv(t, Config{Quota: common.Quota{MaxRequestsPerEpoch: 2, EpochSeconds: 60}})
	for i := 0; i < 2; i++ {
		_, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
		require.Nil(t, out.Error)
	}
	status, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
	require.Equal(t, http.StatusTooManyRequests, status)
	require.Equal(t, codeRateLimited, out.Error.Code)

	env.clock.Advance(time.Minute)
	_, out = env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
	require.Nil(t, out.Error)
}

func TestForgedSignatureLeavesSignerUntouched(t *testing.T) {
	env := newTestEnv(t, Config{Quota: common.Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 60}})
	for i := 0; i < 2; i++ {
		forged := env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1})
		forged.Signature[0] ^= 0xff
		status, out := env.call(t, nil, "stake_sendInstruction", forged)
		require.Equal(t, http.StatusUnauthorized, status)
		require.Equal(t, codeUnauthorized, out.Error.Code)
	}

	_, out := env.call(t, nil, "stake_getReceipts", receiptsParams{Authority: env.user.PublicKey().String()})
	require.Nil(t, out.Error)
	var list []*types.Receipt
	require.NoError(t, json.Unmarshal(out.Result, &list))
	require.Empty(t, list)

	_, out = env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
	require.Nil(t, out.Error, "genuine request keeps its quota")
}

func TestDuplicateDigestDoesNotChargeQuota(t *testing.T) {
	env := newTestEnv(t, Config{Quota: common.Quota{MaxRequestsPerEpoch: 2, EpochSeconds: 60}})
	signed := env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1})
	_, out := env.call(t, nil, "stake_sendInstruction", signed)
	require.Nil(t, out.Error)

	for i := 0; i < 3; i++ {
		status, out := env.call(t, nil, "stake_sendInstruction", signed)
		require.Equal(t, http.StatusConflict, status)
		require.Equal(t, codeDuplicate, out.Error.Code)
	}

	_, out = env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
	require.Nil(t, out.Error)
}

func TestQuotaRejectionReleasesDigest(t *testing.T) {
	env := newTestEnv(t, Config{Quota: common.Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 60}})
	_, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
	require.Nil(t, out.Error)

	throttled := env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1})
	status, _ := env.call(t, nil, "stake_sendInstruction", throttled)
	require.Equal(t, http.StatusTooManyRequests, status)

	env.clock.Advance(time.Minute)
	_, out = env.call(t, nil, "stake_sendInstruction", throttled)
	require.Nil(t, out.Error)
}

func TestReceiptsByAuthority(t *testing.T) {
	env := newTestEnv(t, Config{})
	_, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 7}))
	require.Nil(t, out.Error)
	_, out = env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindInvestClaimSplit, types.InstructionArgs{UserAmount: 1, Days: 0}))
	require.NotNil(t, out.Error)

	_, out = env.call(t, nil, "stake_getReceipts", receiptsParams{Authority: env.user.PublicKey().String()})
	require.Nil(t, out.Error)
	var list []*types.Receipt
	require.NoError(t, json.Unmarshal(out.Result, &list))
	require.Len(t, list, 2)

	var failed *types.Receipt
	for _, r := range list {
		if !r.Success {
			failed = r
		}
	}
	require.NotNil(t, failed)
	require.Equal(t, "ZeroDaysRequested", failed.ErrorKind)

	_, out = env.call(t, nil, "stake_getReceipts", receiptsParams{ID: failed.ID})
	require.Nil(t, out.Error)
}

func TestEventStream(t *testing.T) {
	env := newTestEnv(t, Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/events?type=" + events.TypeStakeMinted
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	received := make(chan types.Event, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var evt types.Event
		if json.Unmarshal(data, &evt) == nil {
			received <- evt
		}
	}()

	// The subscription registers after the handshake completes, so keep
	// depositing until the stream delivers.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		_, out := env.call(t, nil, "stake_sendInstruction", env.signed(t, types.KindStakeAndMint, types.InstructionArgs{SolLamports: 1}))
		require.Nil(t, out.Error)
		select {
		case evt := <-received:
			require.Equal(t, events.TypeStakeMinted, evt.Type)
			require.Equal(t, env.user.PublicKey().String(), evt.Attributes["authority"])
			return
		case <-ctx.Done():
			t.Fatalf("no event received: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}
