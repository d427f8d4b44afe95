package state

import "github.com/gagliardetto/solana-go"

var (
	lamportsPrefix     = []byte("lamports/")
	mintPrefix         = []byte("mint/")
	tokenAccountPrefix = []byte("token/")
	claimRecordPrefix  = []byte("claim/")
	mintIndexKey       = []byte("mint/index")
)

func prefixed(prefix []byte, addr solana.PublicKey) []byte {
	buf := make([]byte, len(prefix)+solana.PublicKeyLength)
	copy(buf, prefix)
	copy(buf[len(prefix):], addr[:])
	return buf
}

func lamportsKey(addr solana.PublicKey) []byte     { return prefixed(lamportsPrefix, addr) }
func mintKey(addr solana.PublicKey) []byte         { return prefixed(mintPrefix, addr) }
func tokenAccountKey(addr solana.PublicKey) []byte { return prefixed(tokenAccountPrefix, addr) }
func claimRecordKey(addr solana.PublicKey) []byte  { return prefixed(claimRecordPrefix, addr) }
