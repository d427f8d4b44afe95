package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gagliardetto/solana-go"

	"dlanstake/core/state"
	"dlanstake/core/types"
	"dlanstake/crypto"
	"dlanstake/native/stake"
)

type rpcCall struct {
	Method string
	Header http.Header
	Params []json.RawMessage
}

func newDeployment() Deployment {
	return Deployment{
		ProgramID: stake.DefaultProgramID,
		Admin:     solana.NewWallet().PublicKey(),
		Mint:      solana.NewWallet().PublicKey(),
		USDTMint:  solana.NewWallet().PublicKey(),
		FeeOwner:  solana.NewWallet().PublicKey(),
	}
}

func TestDeploymentAccountsDerivesAuthorities(t *testing.T) {
	d := newDeployment()
	accts, err := d.Accounts()
	if err != nil {
		t.Fatalf("accounts: %v", err)
	}
	mintAuth, _, vaultAuth, _, err := stake.Authorities(d.ProgramID)
	if err != nil {
		t.Fatalf("authorities: %v", err)
	}
	if !accts.MintAuthority.Equals(mintAuth) || !accts.VaultAuthority.Equals(vaultAuth) {
		t.Fatalf("derived authorities mismatch")
	}
	vault, err := state.AssociatedTokenAddress(vaultAuth, d.USDTMint)
	if err != nil {
		t.Fatalf("vault address: %v", err)
	}
	if !accts.VaultToken.Equals(vault) {
		t.Fatalf("expected vault %s, got %s", vault, accts.VaultToken)
	}
}

func TestBuilderSignsVerifiableInstructions(t *testing.T) {
	key, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	b := NewBuilder(newDeployment())
	b.SetNonceFunc(func() uint64 { return 9 })

	signed, err := b.Claim(key, types.KindClaimSplit, 100, 5, 3)
	if err != nil {
		t.Fatalf("build claim: %v", err)
	}
	if signed.Instruction.Args.Days != 0 {
		t.Fatalf("legacy split must not carry days")
	}
	if signed.Instruction.Nonce != 9 {
		t.Fatalf("expected nonce 9, got %d", signed.Instruction.Nonce)
	}
	raw, err := signed.Instruction.Bytes()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := crypto.VerifySignature(key.PublicKey(), raw, signed.Signature); err != nil {
		t.Fatalf("signature should verify: %v", err)
	}
	if _, err := b.Claim(key, types.KindStakeAndMint, 1, 1, 1); err == nil {
		t.Fatalf("deposit kind must not build as a claim")
	}
}

func TestClaimKind(t *testing.T) {
	cases := map[string]types.InstructionKind{
		"legacy":   types.KindClaimSplit,
		"standard": types.KindInvestClaimSplit,
		"invest":   types.KindInvestClaimSplit,
		"vip":      types.KindVIPClaimSplitTimed,
		"priority": types.KindVIPClaimSplitTimed,
	}
	for name, want := range cases {
		got, err := ClaimKind(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Fatalf("%s: expected %s, got %s", name, want, got)
		}
	}
	if _, err := ClaimKind("gold"); err == nil {
		t.Fatalf("expected unknown track to fail")
	}
}

func TestSendReturnsReceiptOnRejection(t *testing.T) {
	key, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	var calls []rpcCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
			return
		}
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		calls = append(calls, rpcCall{Method: req.Method, Header: r.Header.Clone(), Params: req.Params})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32030,"message":"stake: insufficient elapsed days","data":{"kind":"InsufficientElapsedDays","receipt":{"id":"r-1","success":false,"errorKind":"InsufficientElapsedDays","kind":"vip_claim_split_timed"}}}}`))
	}))
	defer server.Close()

	c, err := New(server.URL, WithAuthToken("token-1"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	signed, err := NewBuilder(newDeployment()).Claim(key, types.KindVIPClaimSplitTimed, 10, 1, 1)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	receipt, err := c.Send(context.Background(), signed)
	if err == nil {
		t.Fatalf("expected rejection")
	}
	if got := RejectionKind(err); got != "InsufficientElapsedDays" {
		t.Fatalf("unexpected rejection kind %q", got)
	}
	if receipt == nil || receipt.ID != "r-1" || receipt.Kind != types.KindVIPClaimSplitTimed {
		t.Fatalf("expected rejection receipt, got %+v", receipt)
	}
	if len(calls) != 1 || calls[0].Method != "stake_sendInstruction" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	if calls[0].Header.Get("Authorization") != "Bearer token-1" {
		t.Fatalf("missing bearer token")
	}
	var echoed types.SignedInstruction
	if err := json.Unmarshal(calls[0].Params[0], &echoed); err != nil {
		t.Fatalf("decode echoed instruction: %v", err)
	}
	if !echoed.Signature.Equals(signed.Signature) {
		t.Fatalf("signature not forwarded")
	}
}

func TestQueriesDecodeResults(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.Header.Get("Authorization") != "" {
			t.Errorf("queries must not send credentials")
		}
		w.Header().Set("Content-Type", "application/json")
		switch req.Method {
		case "stake_listMints":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":[{"address":"` + owner.String() + `","authority":"` + owner.String() + `","supply":7,"decimals":9}]}`))
		case "stake_getLamports":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"lamports":1234}}`))
		case "stake_getClaimStatus":
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"track":"priority","watermark":86400,"initialized":true,"elapsedDays":2,"baseline":86400,"nextUnlock":345600,"now":300000}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found"}}`))
		}
	}))
	defer server.Close()

	c, err := New(server.URL, WithAuthToken("secret"))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	lamports, err := c.Lamports(context.Background(), owner)
	if err != nil || lamports != 1234 {
		t.Fatalf("lamports: %d %v", lamports, err)
	}
	mints, err := c.Mints(context.Background())
	if err != nil || len(mints) != 1 || mints[0].Supply != 7 || !mints[0].Address.Equals(owner) {
		t.Fatalf("mints: %+v %v", mints, err)
	}
	status, err := c.ClaimStatus(context.Background(), stake.TrackPriority, owner)
	if err != nil {
		t.Fatalf("claim status: %v", err)
	}
	if status.ElapsedDays != 2 || status.NextUnlock != 345600 {
		t.Fatalf("unexpected status %+v", status)
	}
	_, err = c.Authorities(context.Background())
	rpcErr, ok := err.(*Error)
	if !ok || rpcErr.Code != -32601 {
		t.Fatalf("expected method-not-found error, got %v", err)
	}
	if RejectionKind(err) != "" {
		t.Fatalf("non-program errors have no rejection kind")
	}
}
