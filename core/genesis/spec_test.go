// core/genesis/spec_test.go
package genesis

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"dlanstake/core/state"
	"dlanstake/crypto"
	"dlanstake/storage"
)

const programID = "3hQsDEYknZmKKUBApAGtcGPy395ogJdiB8DCvMKh24K7"

func writeSpec(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadGenesisSpecAndBuildGenesis(t *testing.T) {
	dlan := solana.NewWallet().PublicKey()
	usdt := solana.NewWallet().PublicKey()
	payer := solana.NewWallet().PublicKey()

	spec := GenesisSpec{
		GenesisTime: "2024-01-01T00:00:00Z",
		ProgramID:   programID,
		Mints: []MintSpec{
			{Address: dlan.String(), Authority: "program:mint-auth", Decimals: 9},
			{Address: usdt.String(), Authority: payer.String(), Decimals: 6},
		},
		TokenAccounts: []TokenAccountSpec{
			{Owner: "program:vault-auth", Mint: usdt.String(), Amount: 5_000_000},
		},
		Lamports: map[string]uint64{payer.String(): 10_000_000},
	}
	raw, err := json.Marshal(spec)
	require.NoError(t, err)
	loaded, err := LoadGenesisSpec(writeSpec(t, "genesis.json", raw))
	require.NoError(t, err)
	require.Equal(t, 2024, loaded.GenesisTimestamp().Year())

	db := storage.NewMemDB()
	defer db.Close()
	require.NoError(t, BuildGenesisFromSpec(loaded, db))

	mgr := state.NewManager(db)
	mintAuth, _, err := crypto.FindProgramAddress(loaded.ProgramIDValue(), []byte(crypto.MintAuthoritySeed))
	require.NoError(t, err)
	info, err := mgr.Mint(dlan)
	require.NoError(t, err)
	require.Equal(t, mintAuth, info.Authority)

	vaultAuth, _, err := crypto.FindProgramAddress(loaded.ProgramIDValue(), []byte(crypto.VaultAuthoritySeed))
	require.NoError(t, err)
	_, balance, err := mgr.TokenBalance(vaultAuth, usdt)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000_000), balance)
	usdtInfo, err := mgr.Mint(usdt)
	require.NoError(t, err)
	require.Equal(t, uint64(5_000_000), usdtInfo.Supply)

	lamports, err := mgr.Lamports(payer)
	require.NoError(t, err)
	require.Equal(t, uint64(10_000_000), lamports)

	require.ErrorIs(t, BuildGenesisFromSpec(loaded, db), ErrAlreadyInitialized)
}

func TestLoadGenesisSpecYAML(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	doc := "genesisTime: \"2025-06-01T00:00:00Z\"\n" +
		"programId: " + programID + "\n" +
		"mints:\n  - address: " + mint.String() + "\n    authority: \"program:mint-auth\"\n    decimals: 9\n"
	spec, err := LoadGenesisSpec(writeSpec(t, "genesis.yaml", []byte(doc)))
	require.NoError(t, err)
	require.Len(t, spec.Mints, 1)
}

func TestLoadGenesisSpecRejectsInvalid(t *testing.T) {
	mint := solana.NewWallet().PublicKey().String()
	cases := map[string]GenesisSpec{
		"missing time":    {ProgramID: programID},
		"bad program":     {GenesisTime: "2024-01-01T00:00:00Z", ProgramID: "nope"},
		"unknown label":   {GenesisTime: "2024-01-01T00:00:00Z", ProgramID: programID, Mints: []MintSpec{{Address: mint, Authority: "program:treasury"}}},
		"undefined mint":  {GenesisTime: "2024-01-01T00:00:00Z", ProgramID: programID, TokenAccounts: []TokenAccountSpec{{Owner: mint, Mint: mint}}},
		"duplicate mints": {GenesisTime: "2024-01-01T00:00:00Z", ProgramID: programID, Mints: []MintSpec{{Address: mint, Authority: mint}, {Address: mint, Authority: mint}}},
	}
	for name, spec := range cases {
		raw, err := json.Marshal(spec)
		require.NoError(t, err)
		_, err = LoadGenesisSpec(writeSpec(t, "genesis.json", raw))
		require.Error(t, err, name)
	}
}
