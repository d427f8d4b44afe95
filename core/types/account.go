package types

import "github.com/gagliardetto/solana-go"

// Account is a native-currency account.
type Account struct {
	Lamports uint64 `json:"lamports"`
}

// Mint describes a token and who may create new units of it.
type Mint struct {
	Authority solana.PublicKey `json:"authority"`
	Supply    uint64           `json:"supply"`
	Decimals  uint8            `json:"decimals"`
}

// TokenAccount holds a balance of one mint on behalf of an owner. The owner is
// the only authority able to move the balance out.
type TokenAccount struct {
	Mint   solana.PublicKey `json:"mint"`
	Owner  solana.PublicKey `json:"owner"`
	Amount uint64           `json:"amount"`
}
